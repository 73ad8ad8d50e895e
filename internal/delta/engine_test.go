package delta

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"movers/internal/models"
	"movers/internal/repository"
)

// deltaStubRepo keeps snapshots in memory and answers the same questions
// the SQL store answers. Only the methods the engine calls are implemented.
type deltaStubRepo struct {
	repository.Repository
	snapshots []models.Snapshot
	deltas    []models.Delta
	lastDelta *time.Time
}

func (s *deltaStubRepo) LatestSnapshotMinute(ctx context.Context) (*time.Time, error) {
	var max *time.Time
	for i := range s.snapshots {
		ts := s.snapshots[i].TSMinute
		if max == nil || ts.After(*max) {
			t := ts
			max = &t
		}
	}
	return max, nil
}

func (s *deltaStubRepo) LatestDeltaMinute(ctx context.Context) (*time.Time, error) {
	return s.lastDelta, nil
}

func (s *deltaStubRepo) ListSnapshotsAt(ctx context.Context, tsMinute time.Time) ([]models.Snapshot, error) {
	var out []models.Snapshot
	for _, snap := range s.snapshots {
		if snap.TSMinute.Equal(tsMinute) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *deltaStubRepo) ListBaselineSnapshots(ctx context.Context, atOrBefore time.Time) ([]models.Snapshot, error) {
	latest := map[[3]string]models.Snapshot{}
	for _, snap := range s.snapshots {
		if snap.TSMinute.After(atOrBefore) {
			continue
		}
		key := [3]string{snap.Provider, snap.MarketID, snap.OutcomeID}
		if cur, ok := latest[key]; !ok || snap.TSMinute.After(cur.TSMinute) {
			latest[key] = snap
		}
	}
	out := make([]models.Snapshot, 0, len(latest))
	for _, snap := range latest {
		out = append(out, snap)
	}
	return out, nil
}

func (s *deltaStubRepo) UpsertDeltas(ctx context.Context, items []models.Delta) error {
	s.deltas = append(s.deltas, items...)
	return nil
}

func snap(ts time.Time, provider, marketID, outcomeID string, prob float64) models.Snapshot {
	return models.Snapshot{
		TSMinute:    ts,
		Provider:    provider,
		MarketID:    marketID,
		OutcomeID:   outcomeID,
		Probability: prob,
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{3.125, 3.13},
		{-3.125, -3.13},
		{1.2, 1.2},
		{0, 0},
		{6.299999999999994, 6.3},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Fatalf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComputeTick(t *testing.T) {
	tick := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &deltaStubRepo{
		snapshots: []models.Snapshot{
			snap(tick.Add(-5*time.Minute), models.ProviderPolymarket, "m1", "yes", 0.35),
			snap(tick.Add(-time.Minute), models.ProviderPolymarket, "m1", "yes", 0.40),
			snap(tick, models.ProviderPolymarket, "m1", "yes", 0.463),
			snap(tick, models.ProviderKalshi, "k1", "yes", 0.55),
		},
	}
	e := New(repo, zap.NewNop())

	got, n, err := e.ComputeTick(context.Background())
	if err != nil {
		t.Fatalf("ComputeTick: %v", err)
	}
	if got == nil || !got.Equal(tick) {
		t.Fatalf("tick = %v, want %v", got, tick)
	}
	if n != 2 || len(repo.deltas) != 2 {
		t.Fatalf("wrote %d rows, want 2", n)
	}

	var m1 *models.Delta
	for i := range repo.deltas {
		if repo.deltas[i].MarketID == "m1" {
			m1 = &repo.deltas[i]
		}
	}
	if m1 == nil {
		t.Fatalf("no delta row for m1")
	}
	if m1.Delta1m == nil || *m1.Delta1m != 6.3 {
		t.Fatalf("delta_1m = %v, want 6.3", m1.Delta1m)
	}
	if m1.Delta5m == nil || *m1.Delta5m != 11.3 {
		t.Fatalf("delta_5m = %v, want 11.3", m1.Delta5m)
	}
	for _, key := range []string{"10m", "30m", "1h", "6h", "12h", "24h"} {
		if v := m1.ByWindow(key); v != nil {
			t.Fatalf("delta_%s = %v, want nil", key, *v)
		}
	}
}

func TestComputeTickFirstObservationAllNull(t *testing.T) {
	tick := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &deltaStubRepo{
		snapshots: []models.Snapshot{
			snap(tick, models.ProviderKalshi, "k1", "yes", 0.55),
		},
	}
	e := New(repo, zap.NewNop())

	if _, n, err := e.ComputeTick(context.Background()); err != nil || n != 1 {
		t.Fatalf("ComputeTick = %d, %v; want 1 row", n, err)
	}
	d := repo.deltas[0]
	for _, key := range models.WindowKeys() {
		if v := d.ByWindow(key); v != nil {
			t.Fatalf("delta_%s = %v, want nil on first observation", key, *v)
		}
	}
}

func TestComputeTickSkipsWhenCurrent(t *testing.T) {
	tick := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &deltaStubRepo{
		snapshots: []models.Snapshot{snap(tick, models.ProviderKalshi, "k1", "yes", 0.5)},
		lastDelta: &tick,
	}
	e := New(repo, zap.NewNop())

	got, n, err := e.ComputeTick(context.Background())
	if err != nil {
		t.Fatalf("ComputeTick: %v", err)
	}
	if got == nil || !got.Equal(tick) || n != 0 || len(repo.deltas) != 0 {
		t.Fatalf("expected idempotent skip, got n=%d deltas=%d", n, len(repo.deltas))
	}
}

func TestComputeTickNoSnapshots(t *testing.T) {
	e := New(&deltaStubRepo{}, zap.NewNop())
	got, n, err := e.ComputeTick(context.Background())
	if err != nil || got != nil || n != 0 {
		t.Fatalf("ComputeTick = %v, %d, %v; want nil, 0, nil", got, n, err)
	}
}
