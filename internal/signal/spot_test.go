package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestChangePct(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	f := NewSpotFeed(nil, zap.NewNop(), "", nil)
	f.Record("BTCUSDT", 100000, now.Add(-2*time.Minute))
	f.Record("BTCUSDT", 101000, now.Add(-time.Minute))
	f.Record("BTCUSDT", 102010, now)

	got := f.ChangePct("BTCUSDT", time.Minute, now)
	if got == nil {
		t.Fatalf("ChangePct = nil, want value")
	}
	// 101000 -> 102010 over the last minute.
	if *got < 0.999 || *got > 1.001 {
		t.Fatalf("ChangePct = %v, want ~1.0", *got)
	}
}

func TestChangePctNoBaseline(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	f := NewSpotFeed(nil, zap.NewNop(), "", nil)
	f.Record("BTCUSDT", 100000, now.Add(-30*time.Second))
	f.Record("BTCUSDT", 101000, now)

	if got := f.ChangePct("BTCUSDT", time.Minute, now); got != nil {
		t.Fatalf("ChangePct = %v, want nil without an old enough sample", *got)
	}
}

func TestChangePctStale(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	f := NewSpotFeed(nil, zap.NewNop(), "", nil)
	f.Record("BTCUSDT", 100000, now.Add(-10*time.Minute))
	f.Record("BTCUSDT", 101000, now.Add(-9*time.Minute))

	if got := f.ChangePct("BTCUSDT", time.Minute, now); got != nil {
		t.Fatalf("ChangePct = %v, want nil when the feed is stale", *got)
	}
}

func TestChangePctUnknownSymbol(t *testing.T) {
	f := NewSpotFeed(nil, zap.NewNop(), "", nil)
	if got := f.ChangePct("ETHUSDT", time.Minute, time.Now()); got != nil {
		t.Fatalf("ChangePct = %v, want nil for unknown symbol", *got)
	}
}

func TestRefresh(t *testing.T) {
	prices := map[string]string{
		"BTCUSDT": "117250.10",
		"ETHUSDT": "4411.55",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		price, ok := prices[symbol]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"` + symbol + `","price":"` + price + `"}`))
	}))
	defer srv.Close()

	f := NewSpotFeed(srv.Client(), zap.NewNop(), srv.URL, []string{"BTCUSDT", "ETHUSDT"})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := f.Latest("BTCUSDT"); got != 117250.10 {
		t.Fatalf("Latest BTCUSDT = %v", got)
	}
	if got := f.Latest("ETHUSDT"); got != 4411.55 {
		t.Fatalf("Latest ETHUSDT = %v", got)
	}
	if h := f.Health(); h.Status != "healthy" || h.LastPollAt == nil {
		t.Fatalf("Health = %+v", h)
	}
}

func TestRefreshPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"117000"}`))
	}))
	defer srv.Close()

	f := NewSpotFeed(srv.Client(), zap.NewNop(), srv.URL, []string{"BTCUSDT", "ETHUSDT"})
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh should tolerate partial failure, got %v", err)
	}
	if got := f.Latest("BTCUSDT"); got != 117000 {
		t.Fatalf("Latest BTCUSDT = %v", got)
	}
	if got := f.Latest("ETHUSDT"); got != 0 {
		t.Fatalf("Latest ETHUSDT = %v, want 0", got)
	}
}

func TestRefreshTotalOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewSpotFeed(srv.Client(), zap.NewNop(), srv.URL, []string{"BTCUSDT"})
	if err := f.Refresh(context.Background()); err == nil {
		t.Fatalf("Refresh should fail when nothing is reachable")
	}
	if h := f.Health(); h.Status != "down" || h.LastError == nil {
		t.Fatalf("Health = %+v", h)
	}
}

func TestParseMiniTicker(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		symbol string
		price  float64
		ok     bool
	}{
		{
			"combined stream",
			`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"117000.5"}}`,
			"BTCUSDT", 117000.5, true,
		},
		{
			"bare event",
			`{"e":"24hrMiniTicker","s":"ETHUSDT","c":"4400.25"}`,
			"ETHUSDT", 4400.25, true,
		},
		{"missing close", `{"s":"BTCUSDT"}`, "", 0, false},
		{"bad price", `{"s":"BTCUSDT","c":"n/a"}`, "", 0, false},
		{"not json", `ping`, "", 0, false},
	}
	for _, tt := range tests {
		symbol, price, ok := parseMiniTicker([]byte(tt.msg))
		if ok != tt.ok || symbol != tt.symbol || price != tt.price {
			t.Fatalf("%s: parseMiniTicker = %q/%v/%v, want %q/%v/%v",
				tt.name, symbol, price, ok, tt.symbol, tt.price, tt.ok)
		}
	}
}
