package delta

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"movers/internal/models"
	"movers/internal/repository"
)

// Engine computes windowed probability deltas. Each run works on the most
// recent snapshot minute so a tick covers every provider that reported in
// the cycle, regardless of which adapter finished last.
type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func New(repo repository.Repository, logger *zap.Logger) *Engine {
	return &Engine{Repo: repo, Logger: logger}
}

type outcomeKey struct {
	provider  string
	marketID  string
	outcomeID string
}

// Round2 rounds to two decimals, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeTick writes one delta row per outcome captured at the latest
// snapshot minute. A window column stays nil when the outcome has no
// snapshot at or before tick minus the lookback. Returns the tick and how
// many rows were written; both zero values mean there was nothing to do.
func (e *Engine) ComputeTick(ctx context.Context) (*time.Time, int, error) {
	tickPtr, err := e.Repo.LatestSnapshotMinute(ctx)
	if err != nil {
		return nil, 0, err
	}
	if tickPtr == nil {
		return nil, 0, nil
	}
	tick := *tickPtr

	last, err := e.Repo.LatestDeltaMinute(ctx)
	if err != nil {
		return nil, 0, err
	}
	if last != nil && !last.Before(tick) {
		return &tick, 0, nil
	}

	current, err := e.Repo.ListSnapshotsAt(ctx, tick)
	if err != nil {
		return nil, 0, err
	}
	if len(current) == 0 {
		return &tick, 0, nil
	}

	windows := models.Windows()
	baselines := make(map[string]map[outcomeKey]float64, len(windows))
	for _, w := range windows {
		rows, err := e.Repo.ListBaselineSnapshots(ctx, tick.Add(-w.Lookback))
		if err != nil {
			return nil, 0, err
		}
		byKey := make(map[outcomeKey]float64, len(rows))
		for _, snap := range rows {
			byKey[outcomeKey{snap.Provider, snap.MarketID, snap.OutcomeID}] = snap.Probability
		}
		baselines[w.Key] = byKey
	}

	deltas := make([]models.Delta, 0, len(current))
	for _, snap := range current {
		d := models.Delta{
			TSMinute:  tick,
			Provider:  snap.Provider,
			MarketID:  snap.MarketID,
			OutcomeID: snap.OutcomeID,
		}
		key := outcomeKey{snap.Provider, snap.MarketID, snap.OutcomeID}
		for _, w := range windows {
			base, ok := baselines[w.Key][key]
			if !ok {
				continue
			}
			v := Round2((snap.Probability - base) * 100)
			d.SetWindow(w.Key, &v)
		}
		deltas = append(deltas, d)
	}

	if err := e.Repo.UpsertDeltas(ctx, deltas); err != nil {
		return nil, 0, err
	}
	e.Logger.Debug("deltas computed",
		zap.Time("tick", tick),
		zap.Int("outcomes", len(deltas)))
	return &tick, len(deltas), nil
}
