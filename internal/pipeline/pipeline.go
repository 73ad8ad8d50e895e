package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"movers/internal/alert"
	"movers/internal/classifier"
	"movers/internal/delta"
	"movers/internal/models"
	"movers/internal/profiler"
	"movers/internal/provider"
	"movers/internal/repository"
	"movers/internal/signal"
)

// Runner drives one full pipeline cycle: ingest, profile, deltas, spot
// refresh, classify, alert, prune. Stages are isolated; a failing stage is
// logged and the cycle moves on so one bad provider or feed cannot stall
// the rest.
type Runner struct {
	Repo       repository.Repository
	Adapters   []provider.Adapter
	Profiler   *profiler.Profiler
	Deltas     *delta.Engine
	Classifier *classifier.Engine
	Alerter    *alert.Alerter
	Spot       *signal.SpotFeed
	Logger     *zap.Logger
	Retention  time.Duration

	running atomic.Bool
}

type marketKey struct {
	provider string
	marketID string
}

// RunCycle executes one cycle unless the previous one is still in flight,
// in which case the tick is dropped and logged. Returns whether it ran.
func (r *Runner) RunCycle(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.Logger.Warn("pipeline cycle skipped, previous cycle still running")
		return false
	}
	defer r.running.Store(false)

	started := time.Now().UTC()
	tick := models.TruncateMinute(started)

	snapshots := r.ingest(ctx, tick)

	profiled := 0
	if r.Profiler != nil {
		n, err := r.Profiler.ProfileBatch(ctx)
		if err != nil {
			r.Logger.Error("profile stage failed", zap.Error(err))
		}
		profiled = n
	}

	deltas := 0
	if r.Deltas != nil {
		_, n, err := r.Deltas.ComputeTick(ctx)
		if err != nil {
			r.Logger.Error("delta stage failed", zap.Error(err))
		}
		deltas = n
	}

	if r.Spot != nil {
		if err := r.Spot.Refresh(ctx); err != nil {
			r.Logger.Warn("spot refresh failed", zap.Error(err))
		}
	}

	classified := 0
	if r.Classifier != nil {
		version := profiler.RulesVersion
		if r.Profiler != nil {
			version = r.Profiler.ActiveVersion()
		}
		_, n, err := r.Classifier.ClassifyTick(ctx, version)
		if err != nil {
			r.Logger.Error("classify stage failed", zap.Error(err))
		}
		classified = n
	}

	alerts := 0
	if r.Alerter != nil {
		n, err := r.Alerter.RunAlerts(ctx)
		if err != nil {
			r.Logger.Error("alert stage failed", zap.Error(err))
		}
		alerts = n
	}

	r.prune(ctx, tick)

	r.Logger.Info("pipeline cycle complete",
		zap.Time("tick", tick),
		zap.Int("snapshots", snapshots),
		zap.Int("profiled", profiled),
		zap.Int("deltas", deltas),
		zap.Int("classified", classified),
		zap.Int("alerts", alerts),
		zap.Duration("elapsed", time.Since(started)))
	return true
}

// ingest fetches every enabled adapter in parallel and stores each
// provider's batch in its own transaction. Returns total outcomes stored.
func (r *Runner) ingest(ctx context.Context, tick time.Time) int {
	var mu sync.Mutex
	total := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range r.Adapters {
		if adapter == nil || !adapter.Enabled() {
			continue
		}
		adapter := adapter
		g.Go(func() error {
			snaps, err := adapter.FetchSnapshots(gctx, tick)
			if err != nil {
				r.Logger.Error("provider fetch failed",
					zap.String("provider", adapter.Name()),
					zap.Error(err))
				return nil
			}
			if len(snaps) == 0 {
				r.Logger.Warn("provider returned no outcomes",
					zap.String("provider", adapter.Name()))
				return nil
			}
			if err := r.storeSnapshots(gctx, snaps); err != nil {
				r.Logger.Error("provider store failed",
					zap.String("provider", adapter.Name()),
					zap.Error(err))
				return nil
			}
			r.Logger.Info("provider ingested",
				zap.String("provider", adapter.Name()),
				zap.Int("outcomes", len(snaps)))
			mu.Lock()
			total += len(snaps)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return total
}

// storeSnapshots projects adapter output into catalog and tick rows and
// writes them atomically.
func (r *Runner) storeSnapshots(ctx context.Context, snaps []provider.OutcomeSnapshot) error {
	seenMarkets := make(map[marketKey]string, len(snaps))
	seenOutcomes := make(map[marketKey]map[string]struct{}, len(snaps))
	markets := make([]models.Market, 0, len(snaps))
	outcomes := make([]models.Outcome, 0, len(snaps))
	rows := make([]models.Snapshot, 0, len(snaps))

	for _, s := range snaps {
		key := marketKey{s.Provider, s.MarketID}
		normalized, ok := seenMarkets[key]
		if !ok {
			normalized = models.NormalizeCategory(s.RawCategory)
			seenMarkets[key] = normalized

			m := models.Market{
				Provider:           s.Provider,
				MarketID:           s.MarketID,
				Title:              s.Title,
				NormalizedCategory: normalized,
				Metadata:           s.Metadata.Encode(),
			}
			if s.RawCategory != "" {
				rawCategory := s.RawCategory
				m.RawCategory = &rawCategory
			}
			if s.Status != "" {
				status := s.Status
				m.Status = &status
			}
			markets = append(markets, m)
		}

		if seenOutcomes[key] == nil {
			seenOutcomes[key] = make(map[string]struct{}, 2)
		}
		if _, ok := seenOutcomes[key][s.OutcomeID]; !ok {
			seenOutcomes[key][s.OutcomeID] = struct{}{}
			outcomes = append(outcomes, models.Outcome{
				Provider:  s.Provider,
				MarketID:  s.MarketID,
				OutcomeID: s.OutcomeID,
				Label:     s.OutcomeLabel,
			})
		}

		rows = append(rows, models.Snapshot{
			TSMinute:           s.TSMinute,
			Provider:           s.Provider,
			MarketID:           s.MarketID,
			OutcomeID:          s.OutcomeID,
			Probability:        s.Probability,
			SpreadPP:           s.SpreadPP,
			Volume24hUSD:       s.Volume24hUSD,
			LiquidityUSD:       s.LiquidityUSD,
			OutcomeLabel:       s.OutcomeLabel,
			Title:              s.Title,
			NormalizedCategory: normalized,
		})
	}

	return r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := r.Repo.UpsertMarketsTx(ctx, tx, markets); err != nil {
			return err
		}
		if err := r.Repo.UpsertOutcomesTx(ctx, tx, outcomes); err != nil {
			return err
		}
		return r.Repo.UpsertSnapshotsTx(ctx, tx, rows)
	})
}

// prune enforces the retention horizon on tick-indexed tables.
func (r *Runner) prune(ctx context.Context, tick time.Time) {
	if r.Retention <= 0 {
		return
	}
	cutoff := tick.Add(-r.Retention)
	snapshots, err := r.Repo.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		r.Logger.Error("snapshot prune failed", zap.Error(err))
	}
	deltas, err := r.Repo.DeleteDeltasBefore(ctx, cutoff)
	if err != nil {
		r.Logger.Error("delta prune failed", zap.Error(err))
	}
	classifications, err := r.Repo.DeleteClassificationsBefore(ctx, cutoff)
	if err != nil {
		r.Logger.Error("classification prune failed", zap.Error(err))
	}
	if snapshots+deltas+classifications > 0 {
		r.Logger.Debug("retention pruned",
			zap.Time("cutoff", cutoff),
			zap.Int64("snapshots", snapshots),
			zap.Int64("deltas", deltas),
			zap.Int64("classifications", classifications))
	}
}
