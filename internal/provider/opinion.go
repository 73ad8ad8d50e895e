package provider

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"movers/internal/client/opinion"
	"movers/internal/config"
	"movers/internal/models"
)

// OpinionAdapter paginates the rate-limited listing endpoint. Binary
// markets are priced from the listing itself; categorical markets get one
// order-depth fetch per child outcome.
type OpinionAdapter struct {
	Client *opinion.Client
	Cfg    config.OpinionConfig
	Logger *zap.Logger
}

func NewOpinionAdapter(client *opinion.Client, cfg config.OpinionConfig, logger *zap.Logger) *OpinionAdapter {
	return &OpinionAdapter{
		Client: client,
		Cfg:    cfg,
		Logger: logger,
	}
}

func (a *OpinionAdapter) Name() string { return models.ProviderOpinion }

// Enabled requires the feature flag plus credentials; a flagged-on adapter
// without a key stays disabled.
func (a *OpinionAdapter) Enabled() bool {
	return a != nil && a.Cfg.Enabled && a.Client != nil &&
		a.Cfg.BaseURL != "" && a.Cfg.APIKey != ""
}

func (a *OpinionAdapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]OutcomeSnapshot, error) {
	pageSize := a.Cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	limit := a.Cfg.MarketLimit
	if limit <= 0 {
		limit = 2000
	}

	var out []OutcomeSnapshot
	fetched := 0
	for page := 1; fetched < limit; page++ {
		markets, _, err := a.Client.ListMarkets(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		if len(markets) == 0 {
			break
		}
		for _, m := range markets {
			if fetched >= limit {
				break
			}
			out = append(out, a.marketSnapshots(ctx, m, tsMinute)...)
			fetched++
		}
		if len(markets) < pageSize {
			break
		}
	}
	return out, nil
}

func (a *OpinionAdapter) marketSnapshots(ctx context.Context, m opinion.Market, tsMinute time.Time) []OutcomeSnapshot {
	marketID := strconv.FormatInt(m.MarketID, 10)
	if m.MarketID == 0 || m.Title == "" {
		return nil
	}

	base := OutcomeSnapshot{
		Provider:     models.ProviderOpinion,
		MarketID:     marketID,
		Title:        m.Title,
		RawCategory:  m.Category,
		Status:       m.Status,
		TSMinute:     tsMinute,
		Volume24hUSD: m.Volume24h.Decimal,
		LiquidityUSD: m.Liquidity.Decimal,
	}

	if len(m.ChildMarkets) > 0 {
		return a.categoricalSnapshots(ctx, m, base)
	}
	return binarySnapshots(m, base)
}

// binarySnapshots derives the no outcome from 1 - yes.
func binarySnapshots(m opinion.Market, base OutcomeSnapshot) []OutcomeSnapshot {
	if m.YesPrice.Decimal.IsZero() {
		return nil
	}
	yesProb := canonicalProb(m.YesPrice.Decimal.InexactFloat64())

	yes := base
	yes.OutcomeID = yesOutcomeID(m.YesTokenID, base.MarketID)
	yes.OutcomeLabel = "Yes"
	yes.Probability = yesProb

	no := base
	no.OutcomeID = noOutcomeID(m.NoTokenID, base.MarketID)
	no.OutcomeLabel = "No"
	no.Probability = clamp01(1 - yesProb)

	return []OutcomeSnapshot{yes, no}
}

func (a *OpinionAdapter) categoricalSnapshots(ctx context.Context, m opinion.Market, base OutcomeSnapshot) []OutcomeSnapshot {
	out := make([]OutcomeSnapshot, 0, len(m.ChildMarkets))
	for _, child := range m.ChildMarkets {
		if child.MarketID == 0 {
			continue
		}
		snap := base
		snap.OutcomeID = strconv.FormatInt(child.MarketID, 10)
		snap.OutcomeLabel = child.Title

		prob := canonicalProb(child.YesPrice.Decimal.InexactFloat64())
		if child.YesTokenID != "" {
			if book, err := a.Client.GetOrderBook(ctx, child.YesTokenID); err != nil {
				a.Logger.Debug("orderbook fetch failed",
					zap.String("token_id", child.YesTokenID), zap.Error(err))
			} else if bid, ask := book.BestBid(), book.BestAsk(); !bid.IsZero() && !ask.IsZero() {
				bidF, askF := clamp01(bid.InexactFloat64()), clamp01(ask.InexactFloat64())
				prob = canonicalProb((bidF + askF) / 2)
				snap.SpreadPP = spreadPP(&bidF, &askF)
			}
		}
		if prob == 0 {
			continue
		}
		snap.Probability = prob
		out = append(out, snap)
	}
	return out
}

func yesOutcomeID(tokenID, marketID string) string {
	if tokenID != "" {
		return tokenID
	}
	return marketID + ":yes"
}

func noOutcomeID(tokenID, marketID string) string {
	if tokenID != "" {
		return tokenID
	}
	return marketID + ":no"
}
