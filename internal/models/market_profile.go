package models

import "time"

// Anchor types describe what externally drives a market's probability.
const (
	AnchorSpotPrice      = "spot_price_anchored"
	AnchorLiveScore      = "live_score_anchored"
	AnchorMacroRelease   = "scheduled_macro_release"
	AnchorPolicyDecision = "policy_regulatory_decision"
	AnchorSportsTeamNews = "sports_team_news"
	AnchorCryptoNews     = "crypto_news_security"
	AnchorOtherUnknown   = "other_unknown"
)

func AnchorTypes() []string {
	return []string{
		AnchorSpotPrice,
		AnchorLiveScore,
		AnchorMacroRelease,
		AnchorPolicyDecision,
		AnchorSportsTeamNews,
		AnchorCryptoNews,
		AnchorOtherUnknown,
	}
}

// InsiderPossible is false only for anchors tracking a fast public reference;
// everything else can in principle move on non-public information.
func InsiderPossible(anchorType string) bool {
	switch anchorType {
	case AnchorSpotPrice, AnchorLiveScore:
		return false
	default:
		return true
	}
}

type MarketProfile struct {
	Provider        string    `gorm:"primaryKey;type:text"`
	MarketID        string    `gorm:"primaryKey;type:text;column:market_id"`
	AnchorType      string    `gorm:"type:text;not null"`
	InsiderPossible bool      `gorm:"not null"`
	Confidence      float64   `gorm:"type:numeric;not null"`
	ModelVersion    string    `gorm:"type:text;column:model_version;index"`
	UpdatedAt       time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (MarketProfile) TableName() string {
	return "market_profiles"
}
