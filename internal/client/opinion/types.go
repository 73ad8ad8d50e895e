package opinion

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Market struct {
	MarketID     int64         `json:"marketId"`
	Title        string        `json:"marketTitle"`
	Category     string        `json:"category"`
	Status       string        `json:"status"`
	YesTokenID   string        `json:"yesTokenId"`
	NoTokenID    string        `json:"noTokenId"`
	YesPrice     Decimal       `json:"yesPrice"`
	Volume24h    Decimal       `json:"volume24h"`
	Liquidity    Decimal       `json:"liquidity"`
	ChildMarkets []ChildMarket `json:"childMarkets"`
}

// ChildMarket is one outcome of a categorical market. Binary markets have
// no children.
type ChildMarket struct {
	MarketID   int64   `json:"marketId"`
	Title      string  `json:"marketTitle"`
	YesTokenID string  `json:"yesTokenId"`
	YesPrice   Decimal `json:"yesPrice"`
}

type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var obj struct {
		Price Decimal `json:"price"`
		Size  Decimal `json:"size"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		l.Price = obj.Price.Decimal
		l.Size = obj.Size.Decimal
		return nil
	}
	var arr []Decimal
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) >= 2 {
		l.Price = arr[0].Decimal
		l.Size = arr[1].Decimal
		return nil
	}
	return fmt.Errorf("invalid level: %s", string(b))
}

// BestBid returns the highest bid, or zero when the side is empty.
func (b *OrderBook) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, lv := range b.Bids {
		if lv.Price.GreaterThan(best) {
			best = lv.Price
		}
	}
	return best
}

func (b *OrderBook) BestAsk() decimal.Decimal {
	best := decimal.Zero
	for _, lv := range b.Asks {
		if best.IsZero() || lv.Price.LessThan(best) {
			best = lv.Price
		}
	}
	return best
}

// Decimal tolerates numbers delivered as JSON strings, raw numbers or null.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			d.Decimal = decimal.Zero
			return nil
		}
		val, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		d.Decimal = decimal.NewFromFloat(f)
		return nil
	}
	return fmt.Errorf("invalid decimal: %s", string(b))
}
