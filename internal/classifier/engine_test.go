package classifier

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"movers/internal/models"
	"movers/internal/repository"
	"movers/internal/signal"
)

type classifyStubRepo struct {
	repository.Repository
	tick     time.Time
	deltas   []models.Delta
	snaps    []models.Snapshot
	profiles []models.MarketProfile
	written  []models.Classification
}

func (s *classifyStubRepo) LatestDeltaMinute(ctx context.Context) (*time.Time, error) {
	if s.tick.IsZero() {
		return nil, nil
	}
	t := s.tick
	return &t, nil
}

func (s *classifyStubRepo) ListDeltasAt(ctx context.Context, tsMinute time.Time) ([]models.Delta, error) {
	return s.deltas, nil
}

func (s *classifyStubRepo) ListSnapshotsAt(ctx context.Context, tsMinute time.Time) ([]models.Snapshot, error) {
	return s.snaps, nil
}

func (s *classifyStubRepo) ListMarketProfiles(ctx context.Context, keys []repository.MarketKey) ([]models.MarketProfile, error) {
	return s.profiles, nil
}

func (s *classifyStubRepo) UpsertClassifications(ctx context.Context, items []models.Classification) error {
	s.written = append(s.written, items...)
	return nil
}

func TestClassifyTick(t *testing.T) {
	tick := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &classifyStubRepo{
		tick: tick,
		deltas: []models.Delta{
			{TSMinute: tick, Provider: models.ProviderPolymarket, MarketID: "m1", OutcomeID: "yes", Delta1m: f64(6)},
			{TSMinute: tick, Provider: models.ProviderKalshi, MarketID: "k1", OutcomeID: "yes", Delta1m: f64(1)},
		},
		snaps: []models.Snapshot{
			{
				TSMinute: tick, Provider: models.ProviderPolymarket, MarketID: "m1", OutcomeID: "yes",
				Title:              "Cabinet reshuffle before december?",
				NormalizedCategory: models.CategoryPolitics,
			},
			{
				TSMinute: tick, Provider: models.ProviderKalshi, MarketID: "k1", OutcomeID: "yes",
				Title:              "Best picture winner announced?",
				NormalizedCategory: models.CategoryOther,
			},
		},
		profiles: []models.MarketProfile{
			{
				Provider: models.ProviderPolymarket, MarketID: "m1",
				AnchorType: models.AnchorPolicyDecision, Confidence: 1,
			},
		},
	}
	e := New(repo, nil, zap.NewNop())

	got, n, err := e.ClassifyTick(context.Background(), "rules-v1")
	if err != nil {
		t.Fatalf("ClassifyTick: %v", err)
	}
	if got == nil || !got.Equal(tick) || n != 2 {
		t.Fatalf("tick=%v n=%d, want %v and 2", got, n, tick)
	}

	byMarket := map[string]models.Classification{}
	for _, c := range repo.written {
		byMarket[c.MarketID] = c
	}

	m1 := byMarket["m1"]
	// 20 + 30 + 20 = 70 opaque against 10 exogenous.
	if m1.OpaqueScore != 70 || m1.Label != models.LabelOpaqueInfoSensitive {
		t.Fatalf("m1 = %+v", m1)
	}
	if m1.ModelVersion != "rules-v1" {
		t.Fatalf("m1 model version = %q", m1.ModelVersion)
	}
	tags := models.DecodeReasonTags(m1.ReasonTags)
	if len(tags) != 2 || tags[0] != "anchor_policy_decision" {
		t.Fatalf("m1 tags = %v", tags)
	}

	k1 := byMarket["k1"]
	if k1.Label != models.LabelUnclear || k1.OpaqueScore != 40 {
		t.Fatalf("k1 = %+v", k1)
	}
}

func TestClassifyTickUsesSpotFeed(t *testing.T) {
	tick := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	repo := &classifyStubRepo{
		tick: tick,
		deltas: []models.Delta{
			{TSMinute: tick, Provider: models.ProviderPolymarket, MarketID: "m1", OutcomeID: "yes", Delta1m: f64(9)},
		},
		snaps: []models.Snapshot{
			{
				TSMinute: tick, Provider: models.ProviderPolymarket, MarketID: "m1", OutcomeID: "yes",
				Title:              "Will BTC trade above $120,000 today?",
				NormalizedCategory: models.CategoryCrypto,
			},
		},
		profiles: []models.MarketProfile{
			{
				Provider: models.ProviderPolymarket, MarketID: "m1",
				AnchorType: models.AnchorSpotPrice, Confidence: 0.9,
			},
		},
	}
	feed := signal.NewSpotFeed(nil, zap.NewNop(), "", nil)
	now := time.Now().UTC()
	feed.Record("BTCUSDT", 100000, now.Add(-70*time.Second))
	feed.Record("BTCUSDT", 101200, now)

	e := New(repo, feed, zap.NewNop())
	if _, _, err := e.ClassifyTick(context.Background(), "nb-1"); err != nil {
		t.Fatalf("ClassifyTick: %v", err)
	}
	tags := models.DecodeReasonTags(repo.written[0].ReasonTags)
	found := false
	for _, tag := range tags {
		if tag == "spot_price_shock" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tags = %v, want spot_price_shock", tags)
	}
	if repo.written[0].Label != models.LabelExogenousArbitrage {
		t.Fatalf("label = %q", repo.written[0].Label)
	}
}

func TestClassifyTickNoDeltas(t *testing.T) {
	e := New(&classifyStubRepo{}, nil, zap.NewNop())
	got, n, err := e.ClassifyTick(context.Background(), "rules-v1")
	if err != nil || got != nil || n != 0 {
		t.Fatalf("ClassifyTick = %v, %d, %v; want nil, 0, nil", got, n, err)
	}
}
