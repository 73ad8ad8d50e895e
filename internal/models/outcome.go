package models

import "time"

type Outcome struct {
	Provider  string    `gorm:"primaryKey;type:text"`
	MarketID  string    `gorm:"primaryKey;type:text;column:market_id"`
	OutcomeID string    `gorm:"primaryKey;type:text;column:outcome_id"`
	Label     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Outcome) TableName() string {
	return "outcomes"
}
