package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"movers/internal/models"
)

// ErrUnknownWindow is returned when a caller asks for a delta window that
// is not part of the configured window set.
var ErrUnknownWindow = errors.New("repository: unknown window key")

// Repository is the persistence surface shared by the pipeline stages and
// the read API. Implementations must be safe for concurrent use.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Catalog: markets and their outcomes, maintained on every ingest tick.
	UpsertMarketsTx(ctx context.Context, tx *gorm.DB, items []models.Market) error
	UpsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error
	UpsertSnapshotsTx(ctx context.Context, tx *gorm.DB, items []models.Snapshot) error
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	CountMarkets(ctx context.Context) (int64, error)

	// Tick history.
	ListSnapshotsAt(ctx context.Context, tsMinute time.Time) ([]models.Snapshot, error)
	ListBaselineSnapshots(ctx context.Context, atOrBefore time.Time) ([]models.Snapshot, error)
	CountSnapshotsSince(ctx context.Context, provider, marketID, outcomeID string, since time.Time) (int64, error)
	LatestSnapshotMinute(ctx context.Context) (*time.Time, error)
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)

	// Windowed deltas.
	UpsertDeltas(ctx context.Context, items []models.Delta) error
	ListDeltasAt(ctx context.Context, tsMinute time.Time) ([]models.Delta, error)
	LatestDeltaMinute(ctx context.Context) (*time.Time, error)
	DeleteDeltasBefore(ctx context.Context, before time.Time) (int64, error)

	// Per-tick classifications.
	UpsertClassifications(ctx context.Context, items []models.Classification) error
	LatestClassificationMinute(ctx context.Context) (*time.Time, error)
	DeleteClassificationsBefore(ctx context.Context, before time.Time) (int64, error)

	// Market anchor profiles.
	ListUnprofiledMarkets(ctx context.Context, modelVersion string, limit int) ([]models.Market, error)
	UpsertMarketProfiles(ctx context.Context, items []models.MarketProfile) error
	GetMarketProfile(ctx context.Context, provider, marketID string) (*models.MarketProfile, error)
	ListMarketProfiles(ctx context.Context, keys []MarketKey) ([]models.MarketProfile, error)

	// Movers read surface: markets ranked by the extreme signed delta among
	// their outcomes for the requested window and direction, then the
	// outcome rows for a page of markets.
	ListMoverMarkets(ctx context.Context, params ListMoversParams) ([]MoverMarketKey, error)
	CountMoverMarkets(ctx context.Context, params ListMoversParams) (int64, error)
	ListMoverRows(ctx context.Context, params ListMoverRowsParams) ([]MoverRow, error)

	// Alert scan and dedup state.
	ListAlertCandidates(ctx context.Context, tsMinute time.Time, params AlertScanParams) ([]MoverRow, error)
	GetAlertState(ctx context.Context, signature string) (*models.AlertState, error)
	UpsertAlertState(ctx context.Context, item *models.AlertState) error
}

type MarketKey struct {
	Provider string
	MarketID string
}

// MoverMarketKey is one page entry of the market-level ranking. LeadDelta
// is the extreme delta of the market's outcomes for the sort window under
// the requested direction; nil when every outcome's delta is null.
type MoverMarketKey struct {
	Provider  string
	MarketID  string
	LeadDelta *float64
}

// MoverRow is one outcome at one tick with its snapshot, deltas and
// classification joined flat.
type MoverRow struct {
	TSMinute           time.Time
	Provider           string
	MarketID           string
	OutcomeID          string
	OutcomeLabel       string
	Title              string
	NormalizedCategory string
	MarketMetadata     []byte

	Probability  float64
	SpreadPP     *float64
	Volume24hUSD decimal.Decimal
	LiquidityUSD decimal.Decimal

	Delta1m  *float64
	Delta5m  *float64
	Delta10m *float64
	Delta30m *float64
	Delta1h  *float64
	Delta6h  *float64
	Delta12h *float64
	Delta24h *float64

	OpaqueScore    float64
	ExogenousScore float64
	Label          string
	ReasonTags     []byte
}

// DeltaByWindow returns the row's delta for the given window key.
func (r *MoverRow) DeltaByWindow(key string) *float64 {
	switch key {
	case "1m":
		return r.Delta1m
	case "5m":
		return r.Delta5m
	case "10m":
		return r.Delta10m
	case "30m":
		return r.Delta30m
	case "1h":
		return r.Delta1h
	case "6h":
		return r.Delta6h
	case "12h":
		return r.Delta12h
	case "24h":
		return r.Delta24h
	default:
		return nil
	}
}

type ListMarketsParams struct {
	Limit    int
	Offset   int
	Provider *string
	Category *string
	OrderBy  string
	Asc      *bool
}

type ListMoversParams struct {
	TSMinute time.Time
	Window   string
	Asc      bool

	Providers       []string
	Category        *string
	Label           *string
	MinLiquidityUSD *float64
	MaxSpreadPP     *float64

	Limit  int
	Offset int
}

// ListMoverRowsParams fetches every outcome row at one tick for a page of
// markets. The liquidity and spread bounds mirror the market-level filters
// so low-liquidity outcomes drop out of the grouped view as well.
type ListMoverRowsParams struct {
	TSMinute time.Time
	Window   string
	Keys     []MarketKey

	MinLiquidityUSD *float64
	MaxSpreadPP     *float64
}

type AlertScanParams struct {
	Label           string
	MinLiquidityUSD float64
	MaxSpreadPP     float64
	Cap             int
}
