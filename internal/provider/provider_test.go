package provider

import (
	"math"
	"testing"
)

func TestCanonicalProb(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.42, 0.42},
		{55, 0.55},
		{100, 1},
		{150, 1},
		{-0.2, 0},
		{0, 0},
		{1, 1},
	}
	for _, tt := range tests {
		if got := canonicalProb(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("canonicalProb(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalProbRejectsNaN(t *testing.T) {
	if got := canonicalProb(math.NaN()); got != 0 {
		t.Fatalf("canonicalProb(NaN) = %v, want 0", got)
	}
	if got := canonicalProb(math.Inf(1)); got != 0 {
		t.Fatalf("canonicalProb(+Inf) = %v, want 0", got)
	}
}

func TestSpreadPP(t *testing.T) {
	bid, ask := 0.40, 0.44
	got := spreadPP(&bid, &ask)
	if got == nil || math.Abs(*got-4) > 1e-9 {
		t.Fatalf("spreadPP = %#v, want 4", got)
	}
	if spreadPP(nil, &ask) != nil || spreadPP(&bid, nil) != nil {
		t.Fatalf("missing side must yield nil spread")
	}
	// Crossed quotes still produce a non-negative spread.
	lo, hi := 0.50, 0.45
	got = spreadPP(&lo, &hi)
	if got == nil || *got < 0 {
		t.Fatalf("crossed quote spread = %#v", got)
	}
}
