package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	ProviderPolymarket = "polymarket"
	ProviderKalshi     = "kalshi"
	ProviderOpinion    = "opinion"
)

// KnownProviders lists every provider the pipeline can ingest, in the order
// adapters are registered.
func KnownProviders() []string {
	return []string{ProviderPolymarket, ProviderKalshi, ProviderOpinion}
}

type Market struct {
	Provider           string         `gorm:"primaryKey;type:text"`
	MarketID           string         `gorm:"primaryKey;type:text;column:market_id"`
	Title              string         `gorm:"type:text;not null"`
	RawCategory        *string        `gorm:"type:text"`
	NormalizedCategory string         `gorm:"type:text;not null;index"`
	Status             *string        `gorm:"type:text"`
	Metadata           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}

// ComboLeg is one leg of a combination market, recovered from the provider's
// ticker metadata or a comma-delimited "yes …/no …" title.
type ComboLeg struct {
	Side string `json:"side"`
	Text string `json:"text"`
}

// MarketMetadata is the typed view of the provider-specific metadata bag.
// Unknown keys survive in the raw JSON; only the fields the pipeline reads
// are modeled here.
type MarketMetadata struct {
	Slug          string     `json:"slug,omitempty"`
	EventTicker   string     `json:"event_ticker,omitempty"`
	OriginalTitle string     `json:"original_title,omitempty"`
	Legs          []ComboLeg `json:"legs,omitempty"`
}

func (m MarketMetadata) Encode() datatypes.JSON {
	raw, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}

func DecodeMetadata(raw datatypes.JSON) MarketMetadata {
	var meta MarketMetadata
	if len(raw) == 0 {
		return meta
	}
	_ = json.Unmarshal(raw, &meta)
	return meta
}
