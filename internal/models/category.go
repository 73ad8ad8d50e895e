package models

import "strings"

const (
	CategoryCrypto   = "crypto"
	CategoryPolitics = "politics"
	CategoryPolicy   = "policy"
	CategorySports   = "sports"
	CategoryMacro    = "macro"
	CategoryOther    = "other"
)

func Categories() []string {
	return []string{
		CategoryCrypto,
		CategoryPolitics,
		CategoryPolicy,
		CategorySports,
		CategoryMacro,
		CategoryOther,
	}
}

func IsCategory(val string) bool {
	for _, c := range Categories() {
		if c == val {
			return true
		}
	}
	return false
}

// NormalizeCategory maps a provider's free-form category tag onto the fixed
// category set. Providers disagree wildly here (Kalshi "Economics" vs
// Polymarket "Business"), so matching is keyword-based on the lowercased tag.
func NormalizeCategory(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return CategoryOther
	}
	switch {
	case containsAny(s, "crypto", "bitcoin", "btc", "eth", "defi", "token", "blockchain", "web3"):
		return CategoryCrypto
	case containsAny(s, "politic", "election", "geopolit", "president", "congress", "senate", "parliament"):
		return CategoryPolitics
	case containsAny(s, "policy", "regulat", "legislat", "court", "law", "sec ", "ruling"):
		return CategoryPolicy
	case containsAny(s, "sport", "nba", "nfl", "mlb", "nhl", "soccer", "football", "tennis", "golf", "ufc", "esport"):
		return CategorySports
	case containsAny(s, "macro", "econom", "fed", "inflation", "cpi", "gdp", "rates", "financ", "jobs", "employment"):
		return CategoryMacro
	default:
		return CategoryOther
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
