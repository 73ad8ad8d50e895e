package provider

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"movers/internal/models"
)

// Adapter is one upstream prediction-market source. FetchSnapshots returns
// every open outcome's quote stamped with the cycle tick; a failing adapter
// returns an error and the cycle continues with the remaining adapters.
type Adapter interface {
	Name() string
	Enabled() bool
	FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]OutcomeSnapshot, error)
}

// OutcomeSnapshot is one normalized quote plus the market attributes needed
// to upsert the catalog rows alongside it.
type OutcomeSnapshot struct {
	Provider     string
	MarketID     string
	OutcomeID    string
	OutcomeLabel string

	Title       string
	RawCategory string
	Status      string
	Metadata    models.MarketMetadata

	TSMinute     time.Time
	Probability  float64
	SpreadPP     *float64
	Volume24hUSD decimal.Decimal
	LiquidityUSD decimal.Decimal
}

// canonicalProb maps raw upstream values to [0,1]. Sources ship fractions
// and percents interchangeably; anything above 1 is treated as a percent.
func canonicalProb(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	if raw > 1 {
		raw = raw / 100
	}
	return clamp01(raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// spreadPP returns |ask-bid| in percentage points for two [0,1] quotes, or
// nil when either side is absent.
func spreadPP(bid, ask *float64) *float64 {
	if bid == nil || ask == nil {
		return nil
	}
	pp := math.Abs(*ask-*bid) * 100
	return &pp
}
