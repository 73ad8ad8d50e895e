package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MarketRow is one qualifying market at the served tick, grouped with all
// of its outcomes. Label and reason tags come from the lead outcome.
type MarketRow struct {
	Provider           string          `json:"provider"`
	MarketID           string          `json:"marketId"`
	MarketTitle        string          `json:"marketTitle"`
	NormalizedCategory string          `json:"normalizedCategory"`
	Label              string          `json:"label"`
	ReasonTags         []string        `json:"reasonTags"`
	LeadOutcomeID      string          `json:"leadOutcomeId"`
	MarketMeta         json.RawMessage `json:"marketMeta,omitempty"`
	Outcomes           []OutcomeRow    `json:"outcomes"`
	Timestamp          time.Time       `json:"timestamp"`
}

// OutcomeRow is one outcome's quote, scores and the full per-window delta
// map; a window maps to null until enough history exists.
type OutcomeRow struct {
	OutcomeID      string              `json:"outcomeId"`
	OutcomeLabel   string              `json:"outcomeLabel"`
	Probability    float64             `json:"probability"`
	SpreadPP       *float64            `json:"spreadPP"`
	Volume24hUSD   decimal.Decimal     `json:"volume24hUsd"`
	LiquidityUSD   decimal.Decimal     `json:"liquidityUsd"`
	OpaqueScore    float64             `json:"opaqueScore"`
	ExogenousScore float64             `json:"exogenousScore"`
	Label          string              `json:"label"`
	ReasonTags     []string            `json:"reasonTags"`
	Deltas         map[string]*float64 `json:"deltas"`
}

type moversMeta struct {
	SortWindow string `json:"sortWindow"`
	Sort       string `json:"sort"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalRows  int64  `json:"totalRows"`
	TotalPages int64  `json:"totalPages"`
}

type moversResponse struct {
	Data []MarketRow `json:"data"`
	Meta moversMeta  `json:"meta"`
}

// moversError keeps failure bodies generic so storage errors never leak
// through the read surface.
func moversError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load movers."})
}
