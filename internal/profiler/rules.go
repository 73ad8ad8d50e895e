package profiler

import "movers/internal/models"

// RuleResult is one cascade decision.
type RuleResult struct {
	AnchorType string
	Confidence float64
}

// hardRules are the high-precision prefilters that run before the model.
func hardRules(ctxInfo Context, doc string) (RuleResult, bool) {
	if ctxInfo.Crypto && hasPriceAnchor(doc) {
		return RuleResult{AnchorType: models.AnchorSpotPrice, Confidence: 0.95}, true
	}
	if ctxInfo.Sports && hasLiveScore(doc) && !hasTeamNews(doc) {
		return RuleResult{AnchorType: models.AnchorLiveScore, Confidence: 0.95}, true
	}
	return RuleResult{}, false
}

// fallbackRules run when neither the hard rules nor the model decided.
// First match wins.
func fallbackRules(ctxInfo Context, doc string) RuleResult {
	switch {
	case hasMacro(doc):
		return RuleResult{AnchorType: models.AnchorMacroRelease, Confidence: 0.8}
	case ctxInfo.Crypto && hasCryptoNews(doc) && !hasLiveScore(doc):
		return RuleResult{AnchorType: models.AnchorCryptoNews, Confidence: 0.8}
	case ctxInfo.Sports && hasTeamNews(doc):
		return RuleResult{AnchorType: models.AnchorSportsTeamNews, Confidence: 0.8}
	case hasPolicy(doc):
		return RuleResult{AnchorType: models.AnchorPolicyDecision, Confidence: 0.65}
	default:
		return RuleResult{AnchorType: models.AnchorOtherUnknown, Confidence: 0.3}
	}
}

// contextAllows rejects model predictions that claim an exogenous anchor
// without the matching context.
func contextAllows(anchorType string, ctxInfo Context) bool {
	switch anchorType {
	case models.AnchorSpotPrice:
		return ctxInfo.Crypto
	case models.AnchorLiveScore:
		return ctxInfo.Sports
	default:
		return true
	}
}

// Classify runs the full cascade for one document: hard rules, then the
// model when one is loaded, then the fallback ladder.
func Classify(model *Model, category, doc string) RuleResult {
	ctxInfo := DetectContext(category, doc)

	if res, ok := hardRules(ctxInfo, doc); ok {
		return res
	}

	if model != nil {
		anchorType, conf := model.Predict(doc)
		if anchorType != "" && conf >= minModelConfidence && contextAllows(anchorType, ctxInfo) {
			return RuleResult{AnchorType: anchorType, Confidence: conf}
		}
	}

	return fallbackRules(ctxInfo, doc)
}

// minModelConfidence is the acceptance floor for model predictions.
const minModelConfidence = 0.55
