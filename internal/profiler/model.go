package profiler

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// maxDocTokens bounds the prefix of a document used for feature
// extraction; titles rarely get near it.
const maxDocTokens = 64

// Model is a multinomial naive Bayes classifier over unigram and adjacent
// bigram features. It is persisted as a single JSON artifact and treated
// as immutable once loaded.
type Model struct {
	ModelVersion string      `json:"modelVersion"`
	CreatedAt    time.Time   `json:"createdAt"`
	AnchorTypes  []string    `json:"anchorTypes"`
	Vocab        []string    `json:"vocab"`
	Alpha        float64     `json:"alpha"`
	LogPrior     []float64   `json:"logPrior"`
	LogProb      [][]float64 `json:"logProb"`

	vocabIndex map[string]int
}

// Features extracts unigrams plus adjacent bigrams from a normalized
// document, bounded to the token prefix.
func Features(doc string) []string {
	tokens := Tokenize(doc)
	if len(tokens) > maxDocTokens {
		tokens = tokens[:maxDocTokens]
	}
	feats := make([]string, 0, len(tokens)*2)
	feats = append(feats, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		feats = append(feats, tokens[i]+"_"+tokens[i+1])
	}
	return feats
}

// Predict returns the argmax class and its softmax confidence. The empty
// string means the document shares no features with the vocabulary.
func (m *Model) Predict(doc string) (string, float64) {
	if m == nil || len(m.AnchorTypes) == 0 || len(m.Vocab) == 0 {
		return "", 0
	}
	scores := make([]float64, len(m.AnchorTypes))
	copy(scores, m.LogPrior)

	seen := false
	for _, f := range Features(doc) {
		idx, ok := m.vocabIndex[f]
		if !ok {
			continue
		}
		seen = true
		for c := range scores {
			scores[c] += m.LogProb[c][idx]
		}
	}
	if !seen {
		return "", 0
	}

	best := 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return m.AnchorTypes[best], softmaxAt(scores, best)
}

func softmaxAt(scores []float64, idx int) float64 {
	maxv := scores[0]
	for _, s := range scores[1:] {
		if s > maxv {
			maxv = s
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - maxv)
	}
	if sum == 0 {
		return 0
	}
	return math.Exp(scores[idx]-maxv) / sum
}

func (m *Model) buildIndex() {
	m.vocabIndex = make(map[string]int, len(m.Vocab))
	for i, tok := range m.Vocab {
		m.vocabIndex[tok] = i
	}
}

func (m *Model) validate() error {
	if m.ModelVersion == "" {
		return fmt.Errorf("model: missing modelVersion")
	}
	if len(m.AnchorTypes) == 0 {
		return fmt.Errorf("model: no anchor types")
	}
	if len(m.LogPrior) != len(m.AnchorTypes) {
		return fmt.Errorf("model: logPrior length %d != classes %d", len(m.LogPrior), len(m.AnchorTypes))
	}
	if len(m.LogProb) != len(m.AnchorTypes) {
		return fmt.Errorf("model: logProb rows %d != classes %d", len(m.LogProb), len(m.AnchorTypes))
	}
	for c, row := range m.LogProb {
		if len(row) != len(m.Vocab) {
			return fmt.Errorf("model: logProb row %d length %d != vocab %d", c, len(row), len(m.Vocab))
		}
	}
	if m.Alpha <= 0 {
		return fmt.Errorf("model: alpha must be positive")
	}
	return nil
}

// LoadModelFile reads and validates a persisted model artifact.
func LoadModelFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: decode %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.buildIndex()
	return &m, nil
}

// SaveFile writes the artifact; the write goes through a temp file so a
// concurrent reload never observes a half-written model.
func (m *Model) SaveFile(path string) error {
	if err := m.validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
