package profiler

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"movers/internal/models"
)

const (
	// Markets hash into ten buckets keyed by provider and id; buckets
	// zero through seven train, the rest evaluate.
	splitBuckets    = 10
	trainBucketMax  = 7
	defaultAlpha    = 1.0
	defaultMinDF    = 3
	defaultMaxVocab = 3500
)

// TrainDoc is one labeled market document.
type TrainDoc struct {
	Provider string
	MarketID string
	Doc      string
	Label    string
}

// TrainResult carries the fitted model and holdout metrics.
type TrainResult struct {
	Model      *Model
	TrainDocs  int
	TestDocs   int
	TestHits   int
	Accuracy   float64
	VocabSize  int
	ClassSizes map[string]int
}

// SplitBucket assigns a market to a deterministic bucket so the
// train/test split is stable across runs.
func SplitBucket(provider, marketID string) int {
	h := fnv.New64a()
	h.Write([]byte(provider + ":" + marketID))
	return int(h.Sum64() % splitBuckets)
}

// WeakLabel derives a training label from the rule cascade alone. Markets
// the rules cannot place are unlabeled and excluded from training.
func WeakLabel(category, doc string) (string, bool) {
	res := Classify(nil, category, doc)
	if res.AnchorType == "" || res.AnchorType == models.AnchorOtherUnknown {
		return "", false
	}
	return res.AnchorType, true
}

// Train fits a naive Bayes model on the train buckets and scores it on
// the holdout buckets.
func Train(docs []TrainDoc, alpha float64, minDF, maxVocab int, version string) (*TrainResult, error) {
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	if minDF <= 0 {
		minDF = defaultMinDF
	}
	if maxVocab <= 0 {
		maxVocab = defaultMaxVocab
	}
	if version == "" {
		version = fmt.Sprintf("nb-%s", time.Now().UTC().Format("20060102-150405"))
	}

	var train, test []TrainDoc
	for _, d := range docs {
		if d.Label == "" || d.Doc == "" {
			continue
		}
		if SplitBucket(d.Provider, d.MarketID) <= trainBucketMax {
			train = append(train, d)
		} else {
			test = append(test, d)
		}
	}
	if len(train) == 0 {
		return nil, fmt.Errorf("train: no labeled training documents")
	}

	df := make(map[string]int)
	for _, d := range train {
		seen := make(map[string]struct{})
		for _, f := range Features(d.Doc) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			df[f]++
		}
	}
	vocab := selectVocab(df, minDF, maxVocab)
	if len(vocab) == 0 {
		return nil, fmt.Errorf("train: empty vocabulary (min_df=%d over %d docs)", minDF, len(train))
	}
	vocabIdx := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		vocabIdx[tok] = i
	}

	classSizes := make(map[string]int)
	for _, d := range train {
		classSizes[d.Label]++
	}
	var classes []string
	for _, a := range models.AnchorTypes() {
		if classSizes[a] > 0 {
			classes = append(classes, a)
		}
	}
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}

	counts := make([][]float64, len(classes))
	totals := make([]float64, len(classes))
	for i := range counts {
		counts[i] = make([]float64, len(vocab))
	}
	for _, d := range train {
		c := classIdx[d.Label]
		for _, f := range Features(d.Doc) {
			v, ok := vocabIdx[f]
			if !ok {
				continue
			}
			counts[c][v]++
			totals[c]++
		}
	}

	m := &Model{
		ModelVersion: version,
		CreatedAt:    time.Now().UTC(),
		AnchorTypes:  classes,
		Vocab:        vocab,
		Alpha:        alpha,
		LogPrior:     make([]float64, len(classes)),
		LogProb:      make([][]float64, len(classes)),
	}
	for c := range classes {
		m.LogPrior[c] = logRatio(float64(classSizes[classes[c]]), float64(len(train)))
		m.LogProb[c] = make([]float64, len(vocab))
		denom := totals[c] + alpha*float64(len(vocab))
		for v := range vocab {
			m.LogProb[c][v] = logRatio(counts[c][v]+alpha, denom)
		}
	}
	m.buildIndex()

	res := &TrainResult{
		Model:      m,
		TrainDocs:  len(train),
		TestDocs:   len(test),
		VocabSize:  len(vocab),
		ClassSizes: classSizes,
	}
	for _, d := range test {
		got, _ := m.Predict(d.Doc)
		if got == d.Label {
			res.TestHits++
		}
	}
	if res.TestDocs > 0 {
		res.Accuracy = float64(res.TestHits) / float64(res.TestDocs)
	}
	return res, nil
}

// selectVocab keeps features with document frequency at or above minDF,
// ranked by frequency with lexicographic tie-breaks, capped at maxVocab.
func selectVocab(df map[string]int, minDF, maxVocab int) []string {
	kept := make([]string, 0, len(df))
	for tok, n := range df {
		if n >= minDF {
			kept = append(kept, tok)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if df[kept[i]] != df[kept[j]] {
			return df[kept[i]] > df[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if len(kept) > maxVocab {
		kept = kept[:maxVocab]
	}
	return kept
}

func logRatio(num, denom float64) float64 {
	if num <= 0 || denom <= 0 {
		return 0
	}
	return math.Log(num) - math.Log(denom)
}
