package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"movers/internal/client/clob"
	"movers/internal/client/gamma"
	"movers/internal/config"
	"movers/internal/models"
)

const gammaPageSize = 100

// PolymarketAdapter lists markets from Gamma and prices each outcome token
// from the CLOB order book.
type PolymarketAdapter struct {
	Gamma  *gamma.Client
	Clob   *clob.Client
	Cfg    config.PolymarketConfig
	Logger *zap.Logger
}

func NewPolymarketAdapter(gammaClient *gamma.Client, clobClient *clob.Client, cfg config.PolymarketConfig, logger *zap.Logger) *PolymarketAdapter {
	return &PolymarketAdapter{
		Gamma:  gammaClient,
		Clob:   clobClient,
		Cfg:    cfg,
		Logger: logger,
	}
}

func (a *PolymarketAdapter) Name() string { return models.ProviderPolymarket }

func (a *PolymarketAdapter) Enabled() bool {
	return a != nil && a.Cfg.Enabled && a.Gamma != nil && a.Clob != nil
}

func (a *PolymarketAdapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]OutcomeSnapshot, error) {
	markets, err := a.listMarkets(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]OutcomeSnapshot, 0, len(markets)*2)
	for _, m := range markets {
		snaps := a.marketSnapshots(ctx, m, tsMinute)
		out = append(out, snaps...)
	}
	return out, nil
}

func (a *PolymarketAdapter) listMarkets(ctx context.Context) ([]gamma.Market, error) {
	limit := a.Cfg.MarketLimit
	if limit <= 0 {
		limit = 500
	}

	active, closed, ascending := true, false, false
	var markets []gamma.Market
	for offset := 0; offset < limit; offset += gammaPageSize {
		pageLimit := gammaPageSize
		if remaining := limit - offset; remaining < pageLimit {
			pageLimit = remaining
		}
		page, err := a.Gamma.ListMarkets(ctx, gamma.ListMarketsParams{
			Active:    &active,
			Closed:    &closed,
			Limit:     pageLimit,
			Offset:    offset,
			Order:     "volume24hr",
			Ascending: &ascending,
		})
		if err != nil {
			return nil, err
		}
		markets = append(markets, page...)
		if len(page) < pageLimit {
			break
		}
	}
	return markets, nil
}

// marketSnapshots prices every outcome token of one market. Books are
// fetched in parallel with bounded concurrency; a token whose book cannot
// be priced falls back to the listing price, then to the last trade.
func (a *PolymarketAdapter) marketSnapshots(ctx context.Context, m gamma.Market, tsMinute time.Time) []OutcomeSnapshot {
	marketID := m.ID.String()
	if marketID == "" || len(m.Outcomes) == 0 {
		return nil
	}
	if len(m.ClobTokenIDs) != len(m.Outcomes) {
		a.Logger.Debug("skipping market with mismatched outcome tokens",
			zap.String("market_id", marketID),
			zap.Int("outcomes", len(m.Outcomes)),
			zap.Int("tokens", len(m.ClobTokenIDs)))
		return nil
	}

	concurrency := a.Cfg.BookConcurrency
	if concurrency <= 0 {
		concurrency = 16
	}
	depthLevels := a.Cfg.BookDepthLevels
	if depthLevels <= 0 {
		depthLevels = 20
	}

	books := make([]*clob.OrderBook, len(m.ClobTokenIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, tokenID := range m.ClobTokenIDs {
		i, tokenID := i, tokenID
		g.Go(func() error {
			book, err := a.Clob.GetBook(gctx, tokenID)
			if err != nil {
				a.Logger.Debug("book fetch failed",
					zap.String("token_id", tokenID), zap.Error(err))
				return nil
			}
			books[i] = book
			return nil
		})
	}
	_ = g.Wait()

	status := "active"
	if m.Closed {
		status = "closed"
	}
	meta := models.MarketMetadata{Slug: m.Slug}

	out := make([]OutcomeSnapshot, 0, len(m.Outcomes))
	for i, label := range m.Outcomes {
		tokenID := m.ClobTokenIDs[i]
		prob, spread, ok := a.priceOutcome(ctx, m, i, books[i])
		if !ok {
			continue
		}

		liquidity := m.Liquidity
		if books[i] != nil {
			if depth := books[i].DepthValueUSD(depthLevels); !depth.IsZero() {
				liquidity = gamma.Decimal{Decimal: depth}
			}
		}

		out = append(out, OutcomeSnapshot{
			Provider:     models.ProviderPolymarket,
			MarketID:     marketID,
			OutcomeID:    tokenID,
			OutcomeLabel: label,
			Title:        m.Question,
			RawCategory:  m.Category,
			Status:       status,
			Metadata:     meta,
			TSMinute:     tsMinute,
			Probability:  prob,
			SpreadPP:     spread,
			Volume24hUSD: m.Volume24hr.Decimal,
			LiquidityUSD: liquidity.Decimal,
		})
	}
	return out
}

func (a *PolymarketAdapter) priceOutcome(ctx context.Context, m gamma.Market, idx int, book *clob.OrderBook) (float64, *float64, bool) {
	if book != nil {
		bid, ask := book.BestBid(), book.BestAsk()
		if !bid.IsZero() && !ask.IsZero() {
			bidF, askF := clamp01(bid.InexactFloat64()), clamp01(ask.InexactFloat64())
			mid := canonicalProb((bidF + askF) / 2)
			return mid, spreadPP(&bidF, &askF), true
		}
	}
	if idx < len(m.OutcomePrices) {
		if p := m.OutcomePrices[idx]; !p.IsZero() {
			return canonicalProb(p.InexactFloat64()), nil, true
		}
	}
	last, err := a.Clob.GetLastTradePrice(ctx, m.ClobTokenIDs[idx])
	if err != nil || last.Decimal.IsZero() {
		return 0, nil, false
	}
	return canonicalProb(last.Decimal.InexactFloat64()), nil, true
}
