package classifier

import (
	"math"

	"github.com/shopspring/decimal"

	"movers/internal/models"
	"movers/internal/profiler"
)

const (
	baseOpaque    = 20.0
	baseExogenous = 10.0

	defaultProfileConfidence = 0.7

	spotShockPct    = 0.8
	sizeVolumeUSD   = 10000
	sizeDeltaPP     = 4.0
	tightSpreadPP   = 8.0
	abruptDeltaPP   = 15.0
	labelScoreFloor = 50.0
)

var sizeVolumeThreshold = decimal.NewFromInt(sizeVolumeUSD)

// Inputs is everything the rule cascade looks at for one outcome at one
// tick. Profile and the spot changes are optional.
type Inputs struct {
	Snapshot models.Snapshot
	Delta    models.Delta
	Profile  *models.MarketProfile
	BTC1mPct *float64
	ETH1mPct *float64
}

// Result is the scored outcome with its ordered reason trail.
type Result struct {
	Opaque     float64
	Exogenous  float64
	Label      string
	ReasonTags []string
}

// Score runs the additive rule cascade. Rules fire independently; each
// appends its tag in table order so the reason list reads as an audit of
// what contributed.
func Score(in Inputs) Result {
	opaque := baseOpaque
	exog := baseExogenous
	var tags []string
	add := func(tag string) { tags = append(tags, tag) }

	anchor := ""
	conf := defaultProfileConfidence
	if in.Profile != nil {
		anchor = in.Profile.AnchorType
		if in.Profile.Confidence > 0 {
			conf = in.Profile.Confidence
		}
		if conf > 1 {
			conf = 1
		}
	}

	switch anchor {
	case models.AnchorLiveScore:
		exog += 60 * conf
		add("anchor_live_score")
	case models.AnchorSpotPrice:
		exog += 55 * conf
		add("anchor_spot_price")
	case models.AnchorSportsTeamNews:
		opaque += 45 * conf
		add("anchor_sports_team_news")
	case models.AnchorCryptoNews:
		opaque += 45 * conf
		add("anchor_crypto_news")
	case models.AnchorMacroRelease:
		opaque += 35 * conf
		add("anchor_macro_release")
	case models.AnchorPolicyDecision:
		opaque += 30 * conf
		add("anchor_policy_decision")
	}

	if anchor == "" || anchor == models.AnchorOtherUnknown {
		doc := profiler.NormalizeText(in.Snapshot.Title)
		ctxInfo := profiler.DetectContext(in.Snapshot.NormalizedCategory, doc)
		if ctxInfo.Sports {
			exog += 15
			add("sports_related")
		}
		if ctxInfo.Crypto {
			exog += 10
			add("crypto_related")
		}
	}

	if anchor == models.AnchorSpotPrice && maxAbsPct(in.BTC1mPct, in.ETH1mPct) >= spotShockPct {
		exog += 18
		add("spot_price_shock")
	}

	switch in.Snapshot.NormalizedCategory {
	case models.CategoryPolitics, models.CategoryPolicy, models.CategoryMacro, models.CategoryOther:
		opaque += 20
		add("opaque_info_prone_category")
	}

	delta1m := in.Delta.Delta1m
	if delta1m != nil && math.Abs(*delta1m) >= sizeDeltaPP &&
		in.Snapshot.Volume24hUSD.GreaterThanOrEqual(sizeVolumeThreshold) {
		opaque += 20
		add("meaningful_size_move")
	}

	if in.Snapshot.SpreadPP != nil && *in.Snapshot.SpreadPP <= tightSpreadPP {
		opaque += 10
		add("tight_spread")
	}

	if delta1m != nil && math.Abs(*delta1m) >= abruptDeltaPP {
		if anchor == models.AnchorLiveScore || anchor == models.AnchorSpotPrice {
			exog += 12 * math.Max(conf, 0.9)
		} else {
			opaque += 10
		}
		add("abrupt_micro_move")
	}

	opaque = clampScore(opaque)
	exog = clampScore(exog)

	return Result{
		Opaque:     opaque,
		Exogenous:  exog,
		Label:      labelFor(opaque, exog),
		ReasonTags: tags,
	}
}

func labelFor(opaque, exog float64) string {
	switch {
	case opaque >= exog && opaque >= labelScoreFloor:
		return models.LabelOpaqueInfoSensitive
	case exog >= labelScoreFloor:
		return models.LabelExogenousArbitrage
	default:
		return models.LabelUnclear
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func maxAbsPct(vals ...*float64) float64 {
	max := 0.0
	for _, v := range vals {
		if v == nil {
			continue
		}
		if a := math.Abs(*v); a > max {
			max = a
		}
	}
	return max
}
