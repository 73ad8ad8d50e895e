package profiler

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"movers/internal/config"
	"movers/internal/models"
	"movers/internal/repository"
)

// RulesVersion is the profile version stamped when no model artifact is
// loaded and the cascade runs on rules alone.
const RulesVersion = "rules-v1"

// Profiler assigns an anchor-type profile to every known market. The active
// model is swapped atomically so a reload never blocks classification.
type Profiler struct {
	Repo      repository.Repository
	Logger    *zap.Logger
	ModelPath string
	Reload    time.Duration
	BatchSize int

	model   atomic.Pointer[Model]
	modTime atomic.Int64
}

func New(repo repository.Repository, logger *zap.Logger, cfg config.ProfilerConfig, batchSize int) *Profiler {
	if batchSize <= 0 {
		batchSize = 600
	}
	reload := cfg.ReloadInterval
	if reload <= 0 {
		reload = 2 * time.Minute
	}
	return &Profiler{
		Repo:      repo,
		Logger:    logger,
		ModelPath: cfg.ModelPath,
		Reload:    reload,
		BatchSize: batchSize,
	}
}

// ActiveModel returns the currently loaded model, or nil when the cascade
// runs rules-only.
func (p *Profiler) ActiveModel() *Model {
	return p.model.Load()
}

// ActiveVersion is the version new profiles are stamped with.
func (p *Profiler) ActiveVersion() string {
	if m := p.model.Load(); m != nil {
		return m.ModelVersion
	}
	return RulesVersion
}

// LoadModel reads the artifact from disk if it changed since the last load
// and publishes it. A missing file is not an error; the profiler keeps
// whatever it has (or rules-only mode).
func (p *Profiler) LoadModel() error {
	if p.ModelPath == "" {
		return nil
	}
	info, err := os.Stat(p.ModelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.ModTime().UnixNano() == p.modTime.Load() && p.model.Load() != nil {
		return nil
	}
	m, err := LoadModelFile(p.ModelPath)
	if err != nil {
		return err
	}
	prev := p.model.Swap(m)
	p.modTime.Store(info.ModTime().UnixNano())
	if prev == nil || prev.ModelVersion != m.ModelVersion {
		p.Logger.Info("profiler model loaded",
			zap.String("version", m.ModelVersion),
			zap.Int("vocab", len(m.Vocab)),
			zap.Int("classes", len(m.AnchorTypes)))
	}
	return nil
}

// StartReloader polls the model artifact until the context ends.
func (p *Profiler) StartReloader(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.Reload)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.LoadModel(); err != nil {
					p.Logger.Warn("profiler model reload failed", zap.Error(err))
				}
			}
		}
	}()
}

// ProfileBatch classifies up to BatchSize markets that either have no
// profile or were profiled under an older model version. Returns how many
// profiles were written.
func (p *Profiler) ProfileBatch(ctx context.Context) (int, error) {
	version := p.ActiveVersion()
	markets, err := p.Repo.ListUnprofiledMarkets(ctx, version, p.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(markets) == 0 {
		return 0, nil
	}

	model := p.ActiveModel()
	profiles := make([]models.MarketProfile, 0, len(markets))
	for _, m := range markets {
		res := Classify(model, m.NormalizedCategory, MarketDocument(m))
		profiles = append(profiles, models.MarketProfile{
			Provider:        m.Provider,
			MarketID:        m.MarketID,
			AnchorType:      res.AnchorType,
			InsiderPossible: models.InsiderPossible(res.AnchorType),
			Confidence:      res.Confidence,
			ModelVersion:    version,
		})
	}
	if err := p.Repo.UpsertMarketProfiles(ctx, profiles); err != nil {
		return 0, err
	}
	return len(profiles), nil
}
