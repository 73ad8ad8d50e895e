package provider

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"movers/internal/client/kalshi"
)

func TestKalshiYesProbFromQuotes(t *testing.T) {
	m := kalshi.Market{YesBid: 40, YesAsk: 44, LastPrice: 70}
	prob, spread, ok := kalshiYesProb(m)
	if !ok {
		t.Fatalf("expected a usable quote")
	}
	if math.Abs(prob-0.42) > 1e-9 {
		t.Fatalf("prob = %v, want 0.42", prob)
	}
	if spread == nil || math.Abs(*spread-4) > 1e-9 {
		t.Fatalf("spread = %#v, want 4pp", spread)
	}
}

func TestKalshiYesProbFallsBackToLast(t *testing.T) {
	tests := []struct {
		name string
		m    kalshi.Market
		want float64
	}{
		{"missing bid", kalshi.Market{YesBid: 0, YesAsk: 44, LastPrice: 37}, 0.37},
		{"boundary ask", kalshi.Market{YesBid: 40, YesAsk: 100, LastPrice: 55}, 0.55},
	}
	for _, tt := range tests {
		prob, spread, ok := kalshiYesProb(tt.m)
		if !ok {
			t.Fatalf("%s: expected a usable quote", tt.name)
		}
		if math.Abs(prob-tt.want) > 1e-9 {
			t.Fatalf("%s: prob = %v, want %v", tt.name, prob, tt.want)
		}
		if spread != nil {
			t.Fatalf("%s: expected nil spread on last-price fallback", tt.name)
		}
	}
}

func TestKalshiYesProbAllSentinels(t *testing.T) {
	m := kalshi.Market{YesBid: 0, YesAsk: 100, LastPrice: 0}
	if _, _, ok := kalshiYesProb(m); ok {
		t.Fatalf("expected no usable quote")
	}
}

func TestKalshiMarketSnapshotsEmitsComplementaryPair(t *testing.T) {
	a := &KalshiAdapter{}
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snaps := a.marketSnapshots(kalshi.Market{
		Ticker:      "FED-25DEC",
		EventTicker: "FED",
		Title:       "Fed cuts rates in December?",
		YesSubTitle: "Cut",
		Category:    "Economics",
		Status:      "open",
		YesBid:      60,
		YesAsk:      64,
		Volume24h:   12000,
		Liquidity:   800000,
	}, ts)
	if len(snaps) != 2 {
		t.Fatalf("expected yes+no, got %d snapshots", len(snaps))
	}
	yes, no := snaps[0], snaps[1]
	if yes.OutcomeID != "yes" || no.OutcomeID != "no" {
		t.Fatalf("unexpected outcome ids %q %q", yes.OutcomeID, no.OutcomeID)
	}
	if yes.OutcomeLabel != "Cut" || no.OutcomeLabel != "No" {
		t.Fatalf("unexpected labels %q %q", yes.OutcomeLabel, no.OutcomeLabel)
	}
	if sum := yes.Probability + no.Probability; math.Abs(sum-1) > 1e-9 {
		t.Fatalf("yes+no = %v, want 1", sum)
	}
	if !yes.TSMinute.Equal(ts) || !no.TSMinute.Equal(ts) {
		t.Fatalf("snapshots must carry the cycle tick")
	}
	if yes.LiquidityUSD.InexactFloat64() != 8000 {
		t.Fatalf("liquidity = %v, want 8000 USD", yes.LiquidityUSD)
	}
}

func TestDetectComboLegsFromTitle(t *testing.T) {
	title := "yes Chiefs beat the Bills on Sunday, no Lakers cover the spread, yes Yankees win the series opener"
	m := kalshi.Market{Ticker: "KXCOMBO-1", Title: title}
	legs, ok := detectComboLegs(m)
	if !ok {
		t.Fatalf("expected combo detection")
	}
	if len(legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(legs))
	}
	if legs[0].Side != "yes" || legs[0].Text != "Chiefs beat the Bills on Sunday" {
		t.Fatalf("unexpected first leg %+v", legs[0])
	}
	if legs[1].Side != "no" {
		t.Fatalf("unexpected second leg side %q", legs[1].Side)
	}
	if got := comboTitle(legs); got != "Chiefs beat the Bills on Sunday (+2 legs)" {
		t.Fatalf("comboTitle = %q", got)
	}
}

func TestDetectComboLegsShortTitleNotCombo(t *testing.T) {
	m := kalshi.Market{Ticker: "FED-25DEC", Title: "Fed cuts rates in December?"}
	if _, ok := detectComboLegs(m); ok {
		t.Fatalf("plain binary market flagged as combo")
	}
}

func TestDetectComboLegsStructured(t *testing.T) {
	raw, _ := json.Marshal([]kalshi.SelectedLeg{
		{Side: "yes", Title: "Team A wins"},
		{Side: "no", Title: "Team B covers"},
	})
	m := kalshi.Market{Ticker: "X", Title: "short", SelectedLegs: raw}
	legs, ok := detectComboLegs(m)
	if !ok || len(legs) != 2 {
		t.Fatalf("expected 2 structured legs, got %v %d", ok, len(legs))
	}
	if legs[1].Side != "no" || legs[1].Text != "Team B covers" {
		t.Fatalf("unexpected leg %+v", legs[1])
	}
}

func TestKalshiComboReplacesTitle(t *testing.T) {
	title := "yes Chiefs beat the Bills on Sunday afternoon, no Lakers cover the spread against Boston, yes Yankees take the opener"
	a := &KalshiAdapter{}
	snaps := a.marketSnapshots(kalshi.Market{
		Ticker:    "KXCOMBO-9",
		Title:     title,
		YesBid:    30,
		YesAsk:    34,
		Volume24h: 100,
	}, time.Now().UTC())
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Title == title {
		t.Fatalf("combo title was not summarized")
	}
	if snaps[0].Metadata.OriginalTitle != title {
		t.Fatalf("original title must be kept in metadata")
	}
	if len(snaps[0].Metadata.Legs) != 3 {
		t.Fatalf("expected 3 legs in metadata, got %d", len(snaps[0].Metadata.Legs))
	}
}
