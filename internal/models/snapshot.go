package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one minute-stamped quote observation for one outcome.
// Title and NormalizedCategory are cached from the market row so mover
// queries and alert messages avoid a join against markets.
type Snapshot struct {
	TSMinute           time.Time       `gorm:"primaryKey;type:timestamptz;column:ts_minute"`
	Provider           string          `gorm:"primaryKey;type:text"`
	MarketID           string          `gorm:"primaryKey;type:text;column:market_id"`
	OutcomeID          string          `gorm:"primaryKey;type:text;column:outcome_id"`
	Probability        float64         `gorm:"type:numeric;not null"`
	SpreadPP           *float64        `gorm:"type:numeric;column:spread_pp"`
	Volume24hUSD       decimal.Decimal `gorm:"type:numeric(30,10);column:volume_24h_usd"`
	LiquidityUSD       decimal.Decimal `gorm:"type:numeric(30,10);column:liquidity_usd"`
	OutcomeLabel       string          `gorm:"type:text;column:outcome_label"`
	Title              string          `gorm:"type:text"`
	NormalizedCategory string          `gorm:"type:text;index"`
	CreatedAt          time.Time       `gorm:"type:timestamptz;autoCreateTime"`
}

func (Snapshot) TableName() string {
	return "snapshots"
}
