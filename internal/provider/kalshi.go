package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"movers/internal/client/kalshi"
	"movers/internal/config"
	"movers/internal/models"
)

// Kalshi quotes are integer cents; 0 and 100 mean "no resting order", not a
// tradable price.
const (
	kalshiPageSize     = 1000
	comboTitleMinChars = 80
)

// KalshiAdapter lists open markets and derives a yes/no outcome pair per
// market from the cent quotes.
type KalshiAdapter struct {
	Client *kalshi.Client
	Cfg    config.KalshiConfig
	Logger *zap.Logger
}

func NewKalshiAdapter(client *kalshi.Client, cfg config.KalshiConfig, logger *zap.Logger) *KalshiAdapter {
	return &KalshiAdapter{
		Client: client,
		Cfg:    cfg,
		Logger: logger,
	}
}

func (a *KalshiAdapter) Name() string { return models.ProviderKalshi }

func (a *KalshiAdapter) Enabled() bool {
	return a != nil && a.Cfg.Enabled && a.Client != nil
}

func (a *KalshiAdapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]OutcomeSnapshot, error) {
	limit := a.Cfg.MarketLimit
	if limit <= 0 {
		limit = 1000
	}

	var out []OutcomeSnapshot
	cursor := ""
	fetched := 0
	for fetched < limit {
		pageLimit := kalshiPageSize
		if remaining := limit - fetched; remaining < pageLimit {
			pageLimit = remaining
		}
		resp, err := a.Client.GetMarkets(ctx, kalshi.GetMarketsParams{
			Limit:  pageLimit,
			Cursor: cursor,
			Status: "open",
		})
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Markets {
			out = append(out, a.marketSnapshots(m, tsMinute)...)
		}
		fetched += len(resp.Markets)
		cursor = resp.Cursor
		if cursor == "" || len(resp.Markets) == 0 {
			break
		}
	}
	return out, nil
}

func (a *KalshiAdapter) marketSnapshots(m kalshi.Market, tsMinute time.Time) []OutcomeSnapshot {
	if m.Ticker == "" {
		return nil
	}

	yesProb, spread, ok := kalshiYesProb(m)
	if !ok {
		return nil
	}

	title := m.Title
	meta := models.MarketMetadata{EventTicker: m.EventTicker}
	if legs, isCombo := detectComboLegs(m); isCombo {
		meta.Legs = legs
		meta.OriginalTitle = m.Title
		title = comboTitle(legs)
	}

	yesLabel := strings.TrimSpace(m.YesSubTitle)
	if yesLabel == "" {
		yesLabel = "Yes"
	}

	volume := decimal.NewFromInt(m.Volume24h)
	liquidity := decimal.New(m.Liquidity, -2)

	base := OutcomeSnapshot{
		Provider:     models.ProviderKalshi,
		MarketID:     m.Ticker,
		Title:        title,
		RawCategory:  m.Category,
		Status:       m.Status,
		Metadata:     meta,
		TSMinute:     tsMinute,
		SpreadPP:     spread,
		Volume24hUSD: volume,
		LiquidityUSD: liquidity,
	}

	yes := base
	yes.OutcomeID = "yes"
	yes.OutcomeLabel = yesLabel
	yes.Probability = yesProb

	no := base
	no.OutcomeID = "no"
	no.OutcomeLabel = "No"
	no.Probability = clamp01(1 - yesProb)

	return []OutcomeSnapshot{yes, no}
}

// kalshiYesProb derives the yes probability from cent quotes: mid of
// bid/ask when both are real quotes, otherwise the last trade.
func kalshiYesProb(m kalshi.Market) (float64, *float64, bool) {
	if quoted(m.YesBid) && quoted(m.YesAsk) {
		bid := float64(m.YesBid) / 100
		ask := float64(m.YesAsk) / 100
		mid := canonicalProb((bid + ask) / 2)
		return mid, spreadPP(&bid, &ask), true
	}
	if quoted(m.LastPrice) {
		return canonicalProb(float64(m.LastPrice) / 100), nil, true
	}
	return 0, nil, false
}

func quoted(cents int) bool {
	return cents > 0 && cents < 100
}

// detectComboLegs recognizes combination markets by the structured leg
// list, a combo ticker, or a long comma-delimited "yes ... , no ..." title.
func detectComboLegs(m kalshi.Market) ([]models.ComboLeg, bool) {
	if legs := structuredLegs(m); len(legs) >= 2 {
		return legs, true
	}
	comboTicker := strings.Contains(m.Ticker, "COMBO") || strings.Contains(m.EventTicker, "COMBO")
	if comboTicker || len(m.Title) > comboTitleMinChars {
		if legs := legsFromTitle(m.Title); len(legs) >= 2 {
			return legs, true
		}
	}
	return nil, false
}

func structuredLegs(m kalshi.Market) []models.ComboLeg {
	raw := kalshi.DecodeSelectedLegs(m.SelectedLegs)
	legs := make([]models.ComboLeg, 0, len(raw))
	for _, leg := range raw {
		text := strings.TrimSpace(leg.Title)
		if text == "" {
			text = strings.TrimSpace(leg.YesSubTitle)
		}
		if text == "" {
			text = strings.TrimSpace(leg.MarketTicker)
		}
		if text == "" {
			continue
		}
		side := strings.ToLower(strings.TrimSpace(leg.Side))
		if side != "yes" && side != "no" {
			side = "yes"
		}
		legs = append(legs, models.ComboLeg{Side: side, Text: text})
	}
	return legs
}

func legsFromTitle(title string) []models.ComboLeg {
	parts := strings.Split(title, ",")
	if len(parts) < 2 {
		return nil
	}
	legs := make([]models.ComboLeg, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		var side string
		switch {
		case strings.HasPrefix(lower, "yes "):
			side = "yes"
		case strings.HasPrefix(lower, "no "):
			side = "no"
		default:
			return nil
		}
		legs = append(legs, models.ComboLeg{
			Side: side,
			Text: strings.TrimSpace(part[len(side)+1:]),
		})
	}
	return legs
}

func comboTitle(legs []models.ComboLeg) string {
	if len(legs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s (+%d legs)", legs[0].Text, len(legs)-1)
}
