package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	LabelOpaqueInfoSensitive = "opaque_info_sensitive"
	LabelExogenousArbitrage  = "exogenous_arbitrage"
	LabelUnclear             = "unclear"
)

type Classification struct {
	TSMinute  time.Time `gorm:"primaryKey;type:timestamptz;column:ts_minute"`
	Provider  string    `gorm:"primaryKey;type:text"`
	MarketID  string    `gorm:"primaryKey;type:text;column:market_id"`
	OutcomeID string    `gorm:"primaryKey;type:text;column:outcome_id"`

	OpaqueScore    float64        `gorm:"type:numeric;not null"`
	ExogenousScore float64        `gorm:"type:numeric;not null"`
	Label          string         `gorm:"type:text;not null;index"`
	ReasonTags     datatypes.JSON `gorm:"type:jsonb"`
	ModelVersion   string         `gorm:"type:text;column:model_version"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Classification) TableName() string {
	return "classifications"
}

// EncodeReasonTags preserves tag order; the list reads as an audit trail of
// which rules fired.
func EncodeReasonTags(tags []string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON([]byte(`[]`))
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON([]byte(`[]`))
	}
	return datatypes.JSON(raw)
}

func DecodeReasonTags(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	_ = json.Unmarshal(raw, &tags)
	return tags
}
