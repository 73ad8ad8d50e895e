package models

import "time"

// AlertState records the last successful send per alert signature
// (provider:market:outcome:window:direction). Only the alerter writes it,
// and only after the chat dispatch succeeded.
type AlertState struct {
	Signature  string    `gorm:"primaryKey;type:text"`
	LastSentAt time.Time `gorm:"type:timestamptz;not null;column:last_sent_at"`
}

func (AlertState) TableName() string {
	return "alert_states"
}
