package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"movers/internal/config"
	"movers/internal/models"
	"movers/internal/repository"
)

const (
	defaultSortWindow = "24h"
	defaultPageSize   = 50
	minPageSize       = 10
	maxPageSize       = 100
)

type MoversHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger

	DefaultMinLiquidity float64
	DefaultMaxSpread    float64
}

func NewMoversHandler(repo repository.Repository, logger *zap.Logger, cfg config.MoversConfig) *MoversHandler {
	minLiquidity := cfg.DefaultMinLiquidity
	if minLiquidity <= 0 {
		minLiquidity = 5000
	}
	maxSpread := cfg.DefaultMaxSpread
	if maxSpread <= 0 {
		maxSpread = 15
	}
	return &MoversHandler{
		Repo:                repo,
		Logger:              logger,
		DefaultMinLiquidity: minLiquidity,
		DefaultMaxSpread:    maxSpread,
	}
}

func (h *MoversHandler) Register(r *gin.Engine) {
	r.GET("/api/movers", h.listMovers)
}

type moversQuery struct {
	Providers    []string
	Category     *string
	Label        *string
	Window       string
	Asc          bool
	MinLiquidity *float64
	MaxSpread    *float64
	Page         int
	PageSize     int
}

// @Summary List latest movers grouped by market
// @Tags movers
// @Param providers query string false "csv of polymarket,kalshi,opinion"
// @Param category query string false "normalized category or all"
// @Param tab query string false "opaque|exogenous|all"
// @Param sortWindow query string false "delta window driving the sort"
// @Param sort query string false "asc|desc"
// @Param includeLowLiquidity query bool false "disable liquidity and spread floors"
// @Param minLiquidity query number false "liquidity floor in USD"
// @Param maxSpread query number false "spread ceiling in pp"
// @Param page query int false "1-based page"
// @Param pageSize query int false "rows per page, 10..100"
// @Success 200 {object} moversResponse
// @Failure 500 {object} map[string]string
// @Router /api/movers [get]
func (h *MoversHandler) listMovers(c *gin.Context) {
	if h.Repo == nil {
		moversError(c)
		return
	}
	ctx := c.Request.Context()
	q := h.parseQuery(c)

	tick, err := h.Repo.LatestDeltaMinute(ctx)
	if err != nil {
		h.logFailure("resolve latest tick", err)
		moversError(c)
		return
	}
	if tick == nil {
		c.JSON(http.StatusOK, moversResponse{
			Data: []MarketRow{},
			Meta: h.meta(q, 0),
		})
		return
	}

	params := repository.ListMoversParams{
		TSMinute:        *tick,
		Window:          q.Window,
		Asc:             q.Asc,
		Providers:       q.Providers,
		Category:        q.Category,
		Label:           q.Label,
		MinLiquidityUSD: q.MinLiquidity,
		MaxSpreadPP:     q.MaxSpread,
		Limit:           q.PageSize,
		Offset:          (q.Page - 1) * q.PageSize,
	}

	total, err := h.Repo.CountMoverMarkets(ctx, params)
	if err != nil {
		h.logFailure("count mover markets", err)
		moversError(c)
		return
	}
	pageKeys, err := h.Repo.ListMoverMarkets(ctx, params)
	if err != nil {
		h.logFailure("list mover markets", err)
		moversError(c)
		return
	}

	keys := make([]repository.MarketKey, 0, len(pageKeys))
	for _, k := range pageKeys {
		keys = append(keys, repository.MarketKey{Provider: k.Provider, MarketID: k.MarketID})
	}
	rows, err := h.Repo.ListMoverRows(ctx, repository.ListMoverRowsParams{
		TSMinute:        *tick,
		Window:          q.Window,
		Keys:            keys,
		MinLiquidityUSD: q.MinLiquidity,
		MaxSpreadPP:     q.MaxSpread,
	})
	if err != nil {
		h.logFailure("list mover rows", err)
		moversError(c)
		return
	}

	c.JSON(http.StatusOK, moversResponse{
		Data: groupMarkets(pageKeys, rows, q.Window, q.Asc),
		Meta: h.meta(q, total),
	})
}

func (h *MoversHandler) parseQuery(c *gin.Context) moversQuery {
	q := moversQuery{
		Providers: csvQuery(c, "providers", models.KnownProviders()),
		Window:    defaultSortWindow,
		Page:      1,
		PageSize:  defaultPageSize,
	}
	if len(q.Providers) == 0 {
		q.Providers = []string{models.ProviderPolymarket, models.ProviderKalshi}
	}

	if category := strings.TrimSpace(c.Query("category")); category != "" && category != "all" {
		q.Category = &category
	}

	switch strings.ToLower(strings.TrimSpace(c.Query("tab"))) {
	case "opaque":
		label := models.LabelOpaqueInfoSensitive
		q.Label = &label
	case "exogenous":
		label := models.LabelExogenousArbitrage
		q.Label = &label
	}

	if window := strings.TrimSpace(c.Query("sortWindow")); window != "" {
		if _, ok := models.WindowByKey(window); ok {
			q.Window = window
		}
	}
	q.Asc = strings.EqualFold(strings.TrimSpace(c.Query("sort")), "asc")

	if !boolQueryDefault(c, "includeLowLiquidity", false) {
		minLiquidity := floatQuery(c, "minLiquidity", h.DefaultMinLiquidity)
		maxSpread := floatQuery(c, "maxSpread", h.DefaultMaxSpread)
		q.MinLiquidity = &minLiquidity
		q.MaxSpread = &maxSpread
	}

	if page := intQuery(c, "page", 1); page > 1 {
		q.Page = page
	}
	q.PageSize = clampInt(intQuery(c, "pageSize", defaultPageSize), minPageSize, maxPageSize)
	return q
}

func (h *MoversHandler) meta(q moversQuery, total int64) moversMeta {
	sort := "desc"
	if q.Asc {
		sort = "asc"
	}
	totalPages := int64(0)
	if total > 0 {
		totalPages = (total + int64(q.PageSize) - 1) / int64(q.PageSize)
	}
	return moversMeta{
		SortWindow: q.Window,
		Sort:       sort,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalRows:  total,
		TotalPages: totalPages,
	}
}

func (h *MoversHandler) logFailure(stage string, err error) {
	if h.Logger != nil {
		h.Logger.Error("movers query failed", zap.String("stage", stage), zap.Error(err))
	}
}

// groupMarkets folds flat outcome rows into one MarketRow per page key,
// preserving the ranking order. The lead outcome is the extreme signed
// delta for the sort window under the requested direction.
func groupMarkets(pageKeys []repository.MoverMarketKey, rows []repository.MoverRow, window string, asc bool) []MarketRow {
	type marketKey struct {
		provider string
		marketID string
	}
	grouped := make(map[marketKey][]repository.MoverRow, len(pageKeys))
	for _, row := range rows {
		key := marketKey{row.Provider, row.MarketID}
		grouped[key] = append(grouped[key], row)
	}

	data := make([]MarketRow, 0, len(pageKeys))
	for _, k := range pageKeys {
		group := grouped[marketKey{k.Provider, k.MarketID}]
		if len(group) == 0 {
			continue
		}
		lead := leadOutcome(group, window, asc)
		outcomes := make([]OutcomeRow, 0, len(group))
		for _, row := range group {
			outcomes = append(outcomes, outcomeRow(row))
		}
		data = append(data, MarketRow{
			Provider:           lead.Provider,
			MarketID:           lead.MarketID,
			MarketTitle:        lead.Title,
			NormalizedCategory: lead.NormalizedCategory,
			Label:              lead.Label,
			ReasonTags:         models.DecodeReasonTags(datatypes.JSON(lead.ReasonTags)),
			LeadOutcomeID:      lead.OutcomeID,
			MarketMeta:         json.RawMessage(lead.MarketMetadata),
			Outcomes:           outcomes,
			Timestamp:          lead.TSMinute,
		})
	}
	return data
}

func leadOutcome(group []repository.MoverRow, window string, asc bool) repository.MoverRow {
	lead := group[0]
	leadDelta := lead.DeltaByWindow(window)
	for _, row := range group[1:] {
		d := row.DeltaByWindow(window)
		if d == nil {
			continue
		}
		if leadDelta == nil || (asc && *d < *leadDelta) || (!asc && *d > *leadDelta) {
			lead = row
			leadDelta = d
		}
	}
	return lead
}

func outcomeRow(row repository.MoverRow) OutcomeRow {
	deltas := make(map[string]*float64, len(models.WindowKeys()))
	for _, key := range models.WindowKeys() {
		deltas[key] = row.DeltaByWindow(key)
	}
	return OutcomeRow{
		OutcomeID:      row.OutcomeID,
		OutcomeLabel:   row.OutcomeLabel,
		Probability:    row.Probability,
		SpreadPP:       row.SpreadPP,
		Volume24hUSD:   row.Volume24hUSD,
		LiquidityUSD:   row.LiquidityUSD,
		OpaqueScore:    row.OpaqueScore,
		ExogenousScore: row.ExogenousScore,
		Label:          row.Label,
		ReasonTags:     models.DecodeReasonTags(datatypes.JSON(row.ReasonTags)),
		Deltas:         deltas,
	}
}

func csvQuery(c *gin.Context, key string, allowed []string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	allow := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		allow[v] = struct{}{}
	}
	out := make([]string, 0, len(allowed))
	seen := make(map[string]struct{}, len(allowed))
	for _, part := range strings.Split(raw, ",") {
		val := strings.ToLower(strings.TrimSpace(part))
		if val == "" {
			continue
		}
		if _, ok := allow[val]; !ok {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func floatQuery(c *gin.Context, key string, def float64) float64 {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}

func boolQueryDefault(c *gin.Context, key string, def bool) bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
