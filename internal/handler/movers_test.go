package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"movers/internal/config"
	"movers/internal/repository"
)

type moversStubRepo struct {
	repository.Repository

	tick  *time.Time
	total int64
	keys  []repository.MoverMarketKey
	rows  []repository.MoverRow

	err        error
	lastParams repository.ListMoversParams
	lastRows   repository.ListMoverRowsParams
}

func (s *moversStubRepo) LatestDeltaMinute(ctx context.Context) (*time.Time, error) {
	return s.tick, s.err
}

func (s *moversStubRepo) CountMoverMarkets(ctx context.Context, params repository.ListMoversParams) (int64, error) {
	s.lastParams = params
	return s.total, s.err
}

func (s *moversStubRepo) ListMoverMarkets(ctx context.Context, params repository.ListMoversParams) ([]repository.MoverMarketKey, error) {
	return s.keys, s.err
}

func (s *moversStubRepo) ListMoverRows(ctx context.Context, params repository.ListMoverRowsParams) ([]repository.MoverRow, error) {
	s.lastRows = params
	return s.rows, s.err
}

func newTestHandler(repo repository.Repository) *MoversHandler {
	gin.SetMode(gin.TestMode)
	return NewMoversHandler(repo, zap.NewNop(), config.MoversConfig{})
}

func serveMovers(t *testing.T, h *MoversHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	h.Register(r)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(rec, req)
	return rec
}

func queryContext(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c
}

func TestParseQueryDefaults(t *testing.T) {
	h := newTestHandler(&moversStubRepo{})
	q := h.parseQuery(queryContext("/api/movers"))

	if len(q.Providers) != 2 || q.Providers[0] != "polymarket" || q.Providers[1] != "kalshi" {
		t.Fatalf("providers = %v", q.Providers)
	}
	if q.Category != nil || q.Label != nil {
		t.Fatalf("category/label filters set by default")
	}
	if q.Window != "24h" || q.Asc {
		t.Fatalf("window/sort = %s asc=%v", q.Window, q.Asc)
	}
	if q.MinLiquidity == nil || *q.MinLiquidity != 5000 {
		t.Fatalf("minLiquidity = %v", q.MinLiquidity)
	}
	if q.MaxSpread == nil || *q.MaxSpread != 15 {
		t.Fatalf("maxSpread = %v", q.MaxSpread)
	}
	if q.Page != 1 || q.PageSize != 50 {
		t.Fatalf("page/pageSize = %d/%d", q.Page, q.PageSize)
	}
}

func TestParseQueryOverrides(t *testing.T) {
	h := newTestHandler(&moversStubRepo{})
	q := h.parseQuery(queryContext("/api/movers?providers=opinion,bogus,opinion&category=crypto&tab=opaque&sortWindow=5m&sort=asc&includeLowLiquidity=true&page=3&pageSize=500"))

	if len(q.Providers) != 1 || q.Providers[0] != "opinion" {
		t.Fatalf("providers = %v", q.Providers)
	}
	if q.Category == nil || *q.Category != "crypto" {
		t.Fatalf("category = %v", q.Category)
	}
	if q.Label == nil || *q.Label != "opaque_info_sensitive" {
		t.Fatalf("label = %v", q.Label)
	}
	if q.Window != "5m" || !q.Asc {
		t.Fatalf("window/sort = %s asc=%v", q.Window, q.Asc)
	}
	if q.MinLiquidity != nil || q.MaxSpread != nil {
		t.Fatalf("liquidity filters kept with includeLowLiquidity")
	}
	if q.Page != 3 || q.PageSize != 100 {
		t.Fatalf("page/pageSize = %d/%d", q.Page, q.PageSize)
	}
}

func TestParseQueryClampsLowValues(t *testing.T) {
	h := newTestHandler(&moversStubRepo{})
	q := h.parseQuery(queryContext("/api/movers?providers=bogus&sortWindow=2m&sort=down&page=0&pageSize=5"))

	if len(q.Providers) != 2 {
		t.Fatalf("invalid providers should fall back, got %v", q.Providers)
	}
	if q.Window != "24h" {
		t.Fatalf("invalid window should fall back, got %s", q.Window)
	}
	if q.Asc {
		t.Fatalf("unknown sort should stay desc")
	}
	if q.Page != 1 || q.PageSize != 10 {
		t.Fatalf("page/pageSize = %d/%d", q.Page, q.PageSize)
	}
}

func moverRow(outcomeID string, delta24h *float64) repository.MoverRow {
	return repository.MoverRow{
		TSMinute:           time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		Provider:           "polymarket",
		MarketID:           "m1",
		OutcomeID:          outcomeID,
		OutcomeLabel:       outcomeID,
		Title:              "Will the bill pass?",
		NormalizedCategory: "policy",
		MarketMetadata:     []byte(`{"slug":"bill-pass"}`),
		Probability:        0.5,
		Volume24hUSD:       decimal.NewFromInt(20000),
		LiquidityUSD:       decimal.NewFromInt(9000),
		Delta24h:           delta24h,
		OpaqueScore:        70,
		ExogenousScore:     10,
		Label:              "opaque_info_sensitive",
		ReasonTags:         []byte(`["size_outlier"]`),
	}
}

func TestListMoversGroupsByMarket(t *testing.T) {
	up, down := 5.0, -8.0
	repo := &moversStubRepo{
		tick:  timePtr(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)),
		total: 125,
		keys: []repository.MoverMarketKey{
			{Provider: "polymarket", MarketID: "m1", LeadDelta: &up},
		},
		rows: []repository.MoverRow{
			moverRow("no", &down),
			moverRow("yes", &up),
		},
	}
	h := newTestHandler(repo)

	rec := serveMovers(t, h, "/api/movers?page=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp moversResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data rows = %d, want 1", len(resp.Data))
	}

	market := resp.Data[0]
	if market.MarketID != "m1" || market.MarketTitle != "Will the bill pass?" {
		t.Fatalf("market = %+v", market)
	}
	if market.LeadOutcomeID != "yes" {
		t.Fatalf("lead outcome = %s, want yes (max signed delta under desc)", market.LeadOutcomeID)
	}
	if market.Label != "opaque_info_sensitive" {
		t.Fatalf("label = %s", market.Label)
	}
	if len(market.ReasonTags) != 1 || market.ReasonTags[0] != "size_outlier" {
		t.Fatalf("reason tags = %v", market.ReasonTags)
	}
	if string(market.MarketMeta) != `{"slug":"bill-pass"}` {
		t.Fatalf("market meta = %s", market.MarketMeta)
	}
	if len(market.Outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(market.Outcomes))
	}

	first := market.Outcomes[0]
	if len(first.Deltas) != 8 {
		t.Fatalf("delta map has %d windows, want 8", len(first.Deltas))
	}
	if first.Deltas["1m"] != nil {
		t.Fatalf("1m delta should be null")
	}
	if d := first.Deltas["24h"]; d == nil || *d != -8 {
		t.Fatalf("24h delta = %v", d)
	}

	meta := resp.Meta
	if meta.SortWindow != "24h" || meta.Sort != "desc" {
		t.Fatalf("meta sort = %+v", meta)
	}
	if meta.Page != 3 || meta.PageSize != 50 {
		t.Fatalf("meta page = %+v", meta)
	}
	if meta.TotalRows != 125 || meta.TotalPages != 3 {
		t.Fatalf("meta totals = %+v", meta)
	}

	if repo.lastParams.Offset != 100 || repo.lastParams.Limit != 50 {
		t.Fatalf("pagination pushed down = limit %d offset %d", repo.lastParams.Limit, repo.lastParams.Offset)
	}
	if repo.lastRows.MinLiquidityUSD == nil || *repo.lastRows.MinLiquidityUSD != 5000 {
		t.Fatalf("row fetch lost liquidity floor")
	}
}

func TestListMoversNoTicksYet(t *testing.T) {
	h := newTestHandler(&moversStubRepo{})

	rec := serveMovers(t, h, "/api/movers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp moversResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 0 || resp.Meta.TotalRows != 0 || resp.Meta.TotalPages != 0 {
		t.Fatalf("expected empty page, got %+v", resp)
	}
}

func TestListMoversStorageFailure(t *testing.T) {
	h := newTestHandler(&moversStubRepo{err: errors.New(`pq: relation "deltas" does not exist`)})

	rec := serveMovers(t, h, "/api/movers")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Failed to load movers." {
		t.Fatalf("error body = %q", body["error"])
	}
}

func TestLeadOutcomeDirections(t *testing.T) {
	up, down := 5.0, -8.0
	rows := []repository.MoverRow{
		moverRow("no", &down),
		moverRow("yes", &up),
		moverRow("maybe", nil),
	}

	if lead := leadOutcome(rows, "24h", false); lead.OutcomeID != "yes" {
		t.Fatalf("desc lead = %s, want yes", lead.OutcomeID)
	}
	if lead := leadOutcome(rows, "24h", true); lead.OutcomeID != "no" {
		t.Fatalf("asc lead = %s, want no", lead.OutcomeID)
	}

	nilRows := []repository.MoverRow{moverRow("a", nil), moverRow("b", nil)}
	if lead := leadOutcome(nilRows, "24h", false); lead.OutcomeID != "a" {
		t.Fatalf("all-null lead = %s, want first row", lead.OutcomeID)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
