package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"movers/internal/config"
	"movers/internal/db"
	"movers/internal/logger"
	"movers/internal/profiler"
	"movers/internal/repository"
	gormrepository "movers/internal/repository/gorm"
)

const marketPageSize = 1000

func main() {
	out := flag.String("out", "", "model output path (default: profiler.model_path from config)")
	alpha := flag.Float64("alpha", 1.0, "Laplace smoothing")
	minDF := flag.Int("min-df", 3, "minimum document frequency per feature")
	maxVocab := flag.Int("max-vocab", 3500, "vocabulary size cap")
	version := flag.String("version", "", "model version tag (default: nb-<timestamp>)")
	flag.Parse()

	cfgPath := os.Getenv("MV_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("MV_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer log.Sync()

	path := strings.TrimSpace(*out)
	if path == "" {
		path = strings.TrimSpace(cfg.Profiler.ModelPath)
	}
	if path == "" {
		log.Fatal("no output path: pass -out or set profiler.model_path")
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(database)

	store := gormrepository.New(database.Gorm)
	ctx := context.Background()

	docs, skipped, err := collectTrainingDocs(ctx, store)
	if err != nil {
		log.Fatal("loading markets failed", zap.Error(err))
	}
	log.Info("training corpus assembled",
		zap.Int("labeled", len(docs)),
		zap.Int("unlabeled", skipped))

	result, err := profiler.Train(docs, *alpha, *minDF, *maxVocab, *version)
	if err != nil {
		log.Fatal("training failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("version", result.Model.ModelVersion),
		zap.Int("trainDocs", result.TrainDocs),
		zap.Int("testDocs", result.TestDocs),
		zap.Int("vocab", result.VocabSize),
	}
	if result.TestDocs > 0 {
		fields = append(fields, zap.Float64("holdoutAccuracy", result.Accuracy))
	}
	for class, n := range result.ClassSizes {
		fields = append(fields, zap.Int("class_"+class, n))
	}
	log.Info("model trained", fields...)

	if err := result.Model.SaveFile(path); err != nil {
		log.Fatal("model write failed", zap.Error(err))
	}
	log.Info("model written", zap.String("path", path))
}

// collectTrainingDocs pages through the market catalog and weak-labels each
// market with the rule cascade. Markets the rules cannot anchor are counted
// but left out of the corpus.
func collectTrainingDocs(ctx context.Context, store repository.Repository) ([]profiler.TrainDoc, int, error) {
	var docs []profiler.TrainDoc
	skipped := 0
	offset := 0
	for {
		markets, err := store.ListMarkets(ctx, repository.ListMarketsParams{
			Limit:  marketPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, 0, err
		}
		if len(markets) == 0 {
			break
		}
		for _, m := range markets {
			doc := profiler.MarketDocument(m)
			label, ok := profiler.WeakLabel(m.NormalizedCategory, doc)
			if !ok {
				skipped++
				continue
			}
			docs = append(docs, profiler.TrainDoc{
				Provider: m.Provider,
				MarketID: m.MarketID,
				Doc:      doc,
				Label:    label,
			})
		}
		if len(markets) < marketPageSize {
			break
		}
		offset += len(markets)
	}
	return docs, skipped, nil
}
