package profiler

import (
	"regexp"
	"strings"

	"movers/internal/models"
)

// Anchor profiling works on a normalized document: every text fragment the
// market exposes (title, original combo title, leg texts), lowercased, with
// punctuation stripped except the characters that carry meaning in price
// and score phrasing ($ + . : -).
var nonTokenRE = regexp.MustCompile(`[^\p{L}\p{N}$+.:\- ]+`)

func NormalizeText(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	cleaned := nonTokenRE.ReplaceAllString(joined, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// MarketDocument builds the normalized document for one market.
func MarketDocument(m models.Market) string {
	meta := models.DecodeMetadata(m.Metadata)
	parts := make([]string, 0, 2+len(meta.Legs))
	parts = append(parts, m.Title)
	if meta.OriginalTitle != "" && meta.OriginalTitle != m.Title {
		parts = append(parts, meta.OriginalTitle)
	}
	for _, leg := range meta.Legs {
		parts = append(parts, leg.Text)
	}
	return NormalizeText(parts...)
}

var (
	cryptoKeywordRE = regexp.MustCompile(`\b(btc|bitcoin|eth|ethereum|sol|solana|xrp|ripple|doge|dogecoin|ada|cardano|bnb|ltc|crypto|cryptocurrency|token|coin|altcoin|stablecoin|defi|binance|coinbase|tether|usdt|usdc|satoshi)\b`)

	priceAnchorRE = regexp.MustCompile(`\b(above|below|over|under|at least)\b|\$`)

	digitRE = regexp.MustCompile(`[0-9]`)

	sportsKeywordRE = regexp.MustCompile(`\b(nba|nfl|mlb|nhl|ncaa|wnba|epl|uefa|fifa|f1|soccer|football|basketball|baseball|hockey|tennis|golf|cricket|ufc|mma|boxing|premier league|champions league|playoffs?|super bowl|world series|world cup|grand slam|stanley cup)\b`)

	liveScoreRE = regexp.MustCompile(`\b(scores?|scoring|points?|pts|goals?|rebounds?|assists?|yards?|touchdowns?|strikeouts?|home runs?|aces?|birdies?)\b|\bwins? by\b|\bmargin of victory\b|\bcombined\b|\bbeat(s|en)?\b|\bdefeats?\b|\bvs\b|\bwins? (the )?(game|match|series|title|championship|cup|bowl|final)\b`)

	teamNewsRE = regexp.MustCompile(`\b(injur(y|ed|ies)|trades?|traded|signs?|signing|signed|suspend(ed|s)?|suspension|fired?|hires?|hired|coach|coaching|roster|lineup|waive[ds]?|waivers|retires?|retired|retirement|holdout|acl|hamstring|out for the season)\b`)

	macroRE = regexp.MustCompile(`\b(cpi|ppi|pce|gdp|fomc|nonfarm|payrolls?|unemployment|jobless|inflation|interest rates?|rate (cut|hike|decision)|fed funds|federal reserve|the fed|ecb|boe|boj|treasury yields?|recession|jobs report)\b`)

	cryptoNewsRE = regexp.MustCompile(`\b(hack(ed|s)?|exploits?|exploited|rug ?pull|sec|etf|listings?|delist(ed|ing)?|regulat(es?|ion|ory)|lawsuits?|sued?|sues|bankrupt(cy)?|halving|hard fork|mainnet|airdrops?|upgrades?|outages?|depeg(s|ged)?)\b`)

	policyRE = regexp.MustCompile(`\b(bill|law|laws|executive order|regulation|regulatory|bans?|banned|approv(es?|al|ed)|supreme court|court ruling|rulings?|veto(es|ed)?|congress|senate|parliament|legislation|statute|tariffs?|sanctions?|nominat(es?|ion|ed)|confirm(s|ed|ation)?|impeach(ed|ment)?|shutdown|signed into law|signs into law)\b`)
)

// Context captures the category/keyword context the cascade gates on.
type Context struct {
	Crypto bool
	Sports bool
}

// DetectContext inspects the normalized category plus the document text.
func DetectContext(category, doc string) Context {
	return Context{
		Crypto: category == models.CategoryCrypto || cryptoKeywordRE.MatchString(doc),
		Sports: category == models.CategorySports || sportsKeywordRE.MatchString(doc),
	}
}

func hasPriceAnchor(doc string) bool { return priceAnchorRE.MatchString(doc) && digitRE.MatchString(doc) }
func hasLiveScore(doc string) bool   { return liveScoreRE.MatchString(doc) }
func hasTeamNews(doc string) bool    { return teamNewsRE.MatchString(doc) }
func hasMacro(doc string) bool       { return macroRE.MatchString(doc) }
func hasCryptoNews(doc string) bool  { return cryptoNewsRE.MatchString(doc) }
func hasPolicy(doc string) bool      { return policyRE.MatchString(doc) }
