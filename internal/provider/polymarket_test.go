package provider

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"movers/internal/client/clob"
	"movers/internal/client/gamma"
	"movers/internal/config"
)

func testPolymarketAdapter(t *testing.T, handler http.HandlerFunc) (*PolymarketAdapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.PolymarketConfig{
		Enabled:         true,
		Timeout:         5 * time.Second,
		BookConcurrency: 4,
		BookDepthLevels: 20,
	}
	a := NewPolymarketAdapter(
		gamma.NewClient(srv.Client(), srv.URL),
		clob.NewClient(srv.Client(), srv.URL),
		cfg,
		zap.NewNop(),
	)
	return a, srv
}

func TestPolymarketMidFromBook(t *testing.T) {
	a, _ := testPolymarketAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"bids":[["0.40","100"],["0.39","50"]],"asks":[["0.44","80"]]}`))
	})

	m := gamma.Market{
		Question:      "Will it happen?",
		Outcomes:      gamma.StringList{"Yes", "No"},
		ClobTokenIDs:  gamma.StringList{"tok-yes", "tok-no"},
		OutcomePrices: gamma.DecimalList{},
	}
	prob, spread, ok := a.priceOutcome(context.Background(), m, 0, mustBook(t, a, "tok-yes"))
	if !ok {
		t.Fatalf("expected a price")
	}
	if math.Abs(prob-0.42) > 1e-9 {
		t.Fatalf("prob = %v, want 0.42", prob)
	}
	if spread == nil || math.Abs(*spread-4) > 1e-6 {
		t.Fatalf("spread = %#v, want 4pp", spread)
	}
}

func mustBook(t *testing.T, a *PolymarketAdapter, tokenID string) *clob.OrderBook {
	t.Helper()
	book, err := a.Clob.GetBook(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	return book
}

func TestPolymarketFallsBackToListingPrice(t *testing.T) {
	a, _ := testPolymarketAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	m := gamma.Market{
		Outcomes:      gamma.StringList{"Yes"},
		ClobTokenIDs:  gamma.StringList{"tok"},
		OutcomePrices: decimalList(t, "0.63"),
	}
	prob, spread, ok := a.priceOutcome(context.Background(), m, 0, nil)
	if !ok {
		t.Fatalf("expected listing fallback")
	}
	if math.Abs(prob-0.63) > 1e-9 {
		t.Fatalf("prob = %v, want 0.63", prob)
	}
	if spread != nil {
		t.Fatalf("listing fallback must not invent a spread")
	}
}

func TestPolymarketFallsBackToLastTrade(t *testing.T) {
	a, _ := testPolymarketAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/last-trade-price" {
			w.Write([]byte(`{"price":"0.71"}`))
			return
		}
		http.NotFound(w, r)
	})

	m := gamma.Market{
		Outcomes:      gamma.StringList{"Yes"},
		ClobTokenIDs:  gamma.StringList{"tok"},
		OutcomePrices: gamma.DecimalList{},
	}
	prob, _, ok := a.priceOutcome(context.Background(), m, 0, nil)
	if !ok {
		t.Fatalf("expected last-trade fallback")
	}
	if math.Abs(prob-0.71) > 1e-9 {
		t.Fatalf("prob = %v, want 0.71", prob)
	}
}

func TestPolymarketSkipsMismatchedTokenList(t *testing.T) {
	a, _ := testPolymarketAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[],"asks":[]}`))
	})

	m := gamma.Market{
		ID:           gamma.StringValue("7"),
		Outcomes:     gamma.StringList{"Yes", "No"},
		ClobTokenIDs: gamma.StringList{"only-one"},
	}
	if snaps := a.marketSnapshots(context.Background(), m, time.Now().UTC()); len(snaps) != 0 {
		t.Fatalf("expected no snapshots for mismatched lists, got %d", len(snaps))
	}
}

func decimalList(t *testing.T, values ...string) gamma.DecimalList {
	t.Helper()
	var list gamma.DecimalList
	raw := `["` + values[0] + `"`
	for _, v := range values[1:] {
		raw += `,"` + v + `"`
	}
	raw += `]`
	if err := list.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("decimal list: %v", err)
	}
	return list
}
