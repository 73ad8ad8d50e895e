package clob

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

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

type Order struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (o *Order) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) >= 2 {
		price, err := parseDecimalRaw(arr[0])
		if err != nil {
			return err
		}
		size, err := parseDecimalRaw(arr[1])
		if err != nil {
			return err
		}
		o.Price = price
		o.Size = size
		return nil
	}
	var obj struct {
		Price json.RawMessage `json:"price"`
		Size  json.RawMessage `json:"size"`
		Qty   json.RawMessage `json:"qty"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		price, err := parseDecimalRaw(obj.Price)
		if err != nil {
			return err
		}
		sizeRaw := obj.Size
		if len(sizeRaw) == 0 {
			sizeRaw = obj.Qty
		}
		size, err := parseDecimalRaw(sizeRaw)
		if err != nil {
			return err
		}
		o.Price = price
		o.Size = size
		return nil
	}
	return fmt.Errorf("invalid order: %s", string(b))
}

type OrderBook struct {
	Bids []Order `json:"bids"`
	Asks []Order `json:"asks"`
}

// BestBid returns the highest bid price, or zero when the side is empty.
// CLOB book sides arrive sorted away from the touch, so scan for the extreme.
func (b *OrderBook) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, o := range b.Bids {
		if o.Price.GreaterThan(best) {
			best = o.Price
		}
	}
	return best
}

func (b *OrderBook) BestAsk() decimal.Decimal {
	best := decimal.Zero
	for _, o := range b.Asks {
		if best.IsZero() || o.Price.LessThan(best) {
			best = o.Price
		}
	}
	return best
}

// DepthValueUSD sums price*size over the top `levels` of each side, best
// levels first.
func (b *OrderBook) DepthValueUSD(levels int) decimal.Decimal {
	if levels <= 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	total = total.Add(sideValue(sortedByPriceDesc(b.Bids), levels))
	total = total.Add(sideValue(sortedByPriceAsc(b.Asks), levels))
	return total
}

func sideValue(orders []Order, levels int) decimal.Decimal {
	if levels > len(orders) {
		levels = len(orders)
	}
	total := decimal.Zero
	for _, o := range orders[:levels] {
		total = total.Add(o.Price.Mul(o.Size))
	}
	return total
}

func sortedByPriceDesc(orders []Order) []Order {
	out := make([]Order, len(orders))
	copy(out, orders)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	return out
}

func sortedByPriceAsc(orders []Order) []Order {
	out := make([]Order, len(orders))
	copy(out, orders)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

func parsePrice(body []byte) (Decimal, error) {
	var resp struct {
		Price Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && !resp.Price.Decimal.IsZero() {
		return resp.Price, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Decimal{}, err
	}
	if priceRaw, ok := raw["price"]; ok {
		val, err := parseDecimalRaw(priceRaw)
		if err != nil {
			return Decimal{}, err
		}
		return Decimal{Decimal: val}, nil
	}
	return Decimal{}, fmt.Errorf("price not found in response")
}

func parseOrderBook(body []byte) (*OrderBook, error) {
	var book OrderBook
	if err := json.Unmarshal(body, &book); err == nil {
		return &book, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if bidsRaw, ok := raw["bids"]; ok {
		_ = json.Unmarshal(bidsRaw, &book.Bids)
	}
	if asksRaw, ok := raw["asks"]; ok {
		_ = json.Unmarshal(asksRaw, &book.Asks)
	}
	return &book, nil
}

func parseDecimalRaw(b json.RawMessage) (decimal.Decimal, error) {
	var d Decimal
	if err := json.Unmarshal(b, &d); err != nil {
		return decimal.Zero, err
	}
	return d.Decimal, nil
}
