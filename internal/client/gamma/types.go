package gamma

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Market is the subset of Gamma market fields the ingest path consumes.
// Gamma delivers several list-valued fields as JSON-encoded strings and
// numeric fields interchangeably as numbers or strings.
type Market struct {
	ID            StringValue `json:"id"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Category      string      `json:"category"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
	Outcomes      StringList  `json:"outcomes"`
	OutcomePrices DecimalList `json:"outcomePrices"`
	ClobTokenIDs  StringList  `json:"clobTokenIds"`
	Volume24hr    Decimal     `json:"volume24hr"`
	Liquidity     Decimal     `json:"liquidityNum"`
	BestBid       Decimal     `json:"bestBid"`
	BestAsk       Decimal     `json:"bestAsk"`
	Events        []Event     `json:"events"`
}

type Event struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
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

// StringValue decodes a JSON string or number into a string.
type StringValue string

func (v *StringValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*v = StringValue(n.String())
		return nil
	}
	return fmt.Errorf("invalid string value: %s", string(b))
}

func (v StringValue) String() string { return string(v) }

// StringList decodes either a JSON array of strings or a string holding a
// JSON-encoded array, which is how Gamma ships outcomes and token ids.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*l = nil
			return nil
		}
		var inner []string
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return fmt.Errorf("invalid string list: %q", s)
		}
		*l = inner
		return nil
	}
	return fmt.Errorf("invalid string list: %s", string(b))
}

// DecimalList decodes either a JSON array or a string-encoded array of
// decimal values.
type DecimalList []decimal.Decimal

func (l *DecimalList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var arr []Decimal
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = unwrapDecimals(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*l = nil
			return nil
		}
		var inner []Decimal
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return fmt.Errorf("invalid decimal list: %q", s)
		}
		*l = unwrapDecimals(inner)
		return nil
	}
	return fmt.Errorf("invalid decimal list: %s", string(b))
}

func unwrapDecimals(in []Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(in))
	for _, d := range in {
		out = append(out, d.Decimal)
	}
	return out
}
