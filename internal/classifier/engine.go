package classifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"movers/internal/models"
	"movers/internal/repository"
	"movers/internal/signal"
)

// Engine scores every outcome at the latest delta tick.
type Engine struct {
	Repo   repository.Repository
	Spot   *signal.SpotFeed
	Logger *zap.Logger
}

func New(repo repository.Repository, spot *signal.SpotFeed, logger *zap.Logger) *Engine {
	return &Engine{Repo: repo, Spot: spot, Logger: logger}
}

type outcomeKey struct {
	provider  string
	marketID  string
	outcomeID string
}

// ClassifyTick writes one classification row per delta row at the latest
// tick. modelVersion stamps the rows with the profile model the scores
// were derived under.
func (e *Engine) ClassifyTick(ctx context.Context, modelVersion string) (*time.Time, int, error) {
	tickPtr, err := e.Repo.LatestDeltaMinute(ctx)
	if err != nil {
		return nil, 0, err
	}
	if tickPtr == nil {
		return nil, 0, nil
	}
	tick := *tickPtr

	deltas, err := e.Repo.ListDeltasAt(ctx, tick)
	if err != nil {
		return nil, 0, err
	}
	if len(deltas) == 0 {
		return &tick, 0, nil
	}

	snaps, err := e.Repo.ListSnapshotsAt(ctx, tick)
	if err != nil {
		return nil, 0, err
	}
	snapByKey := make(map[outcomeKey]models.Snapshot, len(snaps))
	for _, snap := range snaps {
		snapByKey[outcomeKey{snap.Provider, snap.MarketID, snap.OutcomeID}] = snap
	}

	profByMarket, err := e.loadProfiles(ctx, deltas)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now().UTC()
	var btc, eth *float64
	if e.Spot != nil {
		btc = e.Spot.ChangePct("BTCUSDT", time.Minute, now)
		eth = e.Spot.ChangePct("ETHUSDT", time.Minute, now)
	}

	rows := make([]models.Classification, 0, len(deltas))
	for _, d := range deltas {
		snap, ok := snapByKey[outcomeKey{d.Provider, d.MarketID, d.OutcomeID}]
		if !ok {
			e.Logger.Warn("delta without snapshot at tick",
				zap.String("provider", d.Provider),
				zap.String("market_id", d.MarketID),
				zap.String("outcome_id", d.OutcomeID))
			continue
		}
		var profile *models.MarketProfile
		if p, ok := profByMarket[repository.MarketKey{Provider: d.Provider, MarketID: d.MarketID}]; ok {
			prof := p
			profile = &prof
		}
		res := Score(Inputs{
			Snapshot: snap,
			Delta:    d,
			Profile:  profile,
			BTC1mPct: btc,
			ETH1mPct: eth,
		})
		rows = append(rows, models.Classification{
			TSMinute:       tick,
			Provider:       d.Provider,
			MarketID:       d.MarketID,
			OutcomeID:      d.OutcomeID,
			OpaqueScore:    res.Opaque,
			ExogenousScore: res.Exogenous,
			Label:          res.Label,
			ReasonTags:     models.EncodeReasonTags(res.ReasonTags),
			ModelVersion:   modelVersion,
		})
	}

	if err := e.Repo.UpsertClassifications(ctx, rows); err != nil {
		return nil, 0, err
	}
	e.Logger.Debug("outcomes classified",
		zap.Time("tick", tick),
		zap.Int("outcomes", len(rows)))
	return &tick, len(rows), nil
}

func (e *Engine) loadProfiles(ctx context.Context, deltas []models.Delta) (map[repository.MarketKey]models.MarketProfile, error) {
	seen := make(map[repository.MarketKey]struct{}, len(deltas))
	keys := make([]repository.MarketKey, 0, len(deltas))
	for _, d := range deltas {
		key := repository.MarketKey{Provider: d.Provider, MarketID: d.MarketID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	profiles, err := e.Repo.ListMarketProfiles(ctx, keys)
	if err != nil {
		return nil, err
	}
	byMarket := make(map[repository.MarketKey]models.MarketProfile, len(profiles))
	for _, p := range profiles {
		byMarket[repository.MarketKey{Provider: p.Provider, MarketID: p.MarketID}] = p
	}
	return byMarket, nil
}
