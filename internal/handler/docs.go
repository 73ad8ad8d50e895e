package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Prediction Market Movers

Minute-tick pipeline over prediction-market providers: snapshots, windowed
probability deltas, move classification, and chat alerts.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- GET /api/movers

## GET /api/movers

Latest classified movers grouped by market, ranked by one window's delta.

Query parameters:
- providers: csv of polymarket,kalshi,opinion (default polymarket,kalshi)
- category: crypto|politics|policy|sports|macro|other|all
- tab: opaque|exogenous|all
- sortWindow: 1m|5m|10m|30m|1h|6h|12h|24h (default 24h)
- sort: asc|desc (default desc)
- includeLowLiquidity: true disables the liquidity and spread floors
- minLiquidity: USD floor (default 5000)
- maxSpread: percentage-point ceiling (default 15)
- page, pageSize: pageSize 10..100 (default 50)
`)
	})
}
