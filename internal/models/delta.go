package models

import "time"

// Delta holds the percentage-point probability change for one outcome at one
// tick, one nullable column per window in the fixed set. A nil column means
// no snapshot existed at or before tick − lookback.
type Delta struct {
	TSMinute  time.Time `gorm:"primaryKey;type:timestamptz;column:ts_minute"`
	Provider  string    `gorm:"primaryKey;type:text"`
	MarketID  string    `gorm:"primaryKey;type:text;column:market_id"`
	OutcomeID string    `gorm:"primaryKey;type:text;column:outcome_id"`

	Delta1m  *float64 `gorm:"type:numeric;column:delta_1m"`
	Delta5m  *float64 `gorm:"type:numeric;column:delta_5m"`
	Delta10m *float64 `gorm:"type:numeric;column:delta_10m"`
	Delta30m *float64 `gorm:"type:numeric;column:delta_30m"`
	Delta1h  *float64 `gorm:"type:numeric;column:delta_1h"`
	Delta6h  *float64 `gorm:"type:numeric;column:delta_6h"`
	Delta12h *float64 `gorm:"type:numeric;column:delta_12h"`
	Delta24h *float64 `gorm:"type:numeric;column:delta_24h"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Delta) TableName() string {
	return "deltas"
}

func (d *Delta) ByWindow(key string) *float64 {
	switch key {
	case "1m":
		return d.Delta1m
	case "5m":
		return d.Delta5m
	case "10m":
		return d.Delta10m
	case "30m":
		return d.Delta30m
	case "1h":
		return d.Delta1h
	case "6h":
		return d.Delta6h
	case "12h":
		return d.Delta12h
	case "24h":
		return d.Delta24h
	default:
		return nil
	}
}

func (d *Delta) SetWindow(key string, val *float64) {
	switch key {
	case "1m":
		d.Delta1m = val
	case "5m":
		d.Delta5m = val
	case "10m":
		d.Delta10m = val
	case "30m":
		d.Delta30m = val
	case "1h":
		d.Delta1h = val
	case "6h":
		d.Delta6h = val
	case "12h":
		d.Delta12h = val
	case "24h":
		d.Delta24h = val
	}
}

// WindowMap returns the full window→delta map in canonical window order,
// nil entries included, as the read API exposes it.
func (d *Delta) WindowMap() map[string]*float64 {
	out := make(map[string]*float64, len(windowSet))
	for _, w := range windowSet {
		out[w.Key] = d.ByWindow(w.Key)
	}
	return out
}
