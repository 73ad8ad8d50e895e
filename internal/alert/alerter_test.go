package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"movers/internal/config"
	"movers/internal/models"
	"movers/internal/repository"
)

type alertStubRepo struct {
	repository.Repository
	tick   time.Time
	rows   []repository.MoverRow
	states map[string]models.AlertState
}

func (s *alertStubRepo) LatestClassificationMinute(ctx context.Context) (*time.Time, error) {
	if s.tick.IsZero() {
		return nil, nil
	}
	t := s.tick
	return &t, nil
}

func (s *alertStubRepo) ListAlertCandidates(ctx context.Context, tsMinute time.Time, params repository.AlertScanParams) ([]repository.MoverRow, error) {
	return s.rows, nil
}

func (s *alertStubRepo) GetAlertState(ctx context.Context, signature string) (*models.AlertState, error) {
	if s.states == nil {
		return nil, nil
	}
	state, ok := s.states[signature]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *alertStubRepo) UpsertAlertState(ctx context.Context, item *models.AlertState) error {
	if s.states == nil {
		s.states = map[string]models.AlertState{}
	}
	s.states[item.Signature] = *item
	return nil
}

type stubSender struct {
	sent []string
	fail bool
}

func (s *stubSender) Send(ctx context.Context, text string) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubSender) Enabled() bool { return true }

func f64(v float64) *float64 { return &v }

func candidateRow() repository.MoverRow {
	return repository.MoverRow{
		TSMinute:     time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		Provider:     models.ProviderPolymarket,
		MarketID:     "m1",
		OutcomeID:    "yes",
		OutcomeLabel: "Yes",
		Title:        "Cabinet reshuffle before december?",
		Probability:  0.463,
		Delta1m:      f64(7),
		Delta5m:      f64(9),
		Delta30m:     f64(20),
		Label:        models.LabelOpaqueInfoSensitive,
		ReasonTags:   []byte(`["opaque_info_prone_category","tight_spread"]`),
	}
}

func newTestAlerter(repo repository.Repository, sender *stubSender) *Alerter {
	return New(repo, sender, zap.NewNop(), config.AlertsConfig{
		MinLiquidityUSD: 5000,
		MaxSpreadPP:     15,
		Cooldown:        30 * time.Minute,
		ScanCap:         500,
	})
}

func TestBestTriggeredWindow(t *testing.T) {
	row := candidateRow()
	window, delta, ok := bestTriggeredWindow(&row)
	if !ok || window != "30m" || delta != 20 {
		t.Fatalf("best = %q/%v/%v, want 30m/20/true", window, delta, ok)
	}

	quiet := repository.MoverRow{Delta1m: f64(5), Delta5m: f64(-7.9)}
	if _, _, ok := bestTriggeredWindow(&quiet); ok {
		t.Fatalf("quiet row should not trigger")
	}

	// Equal scores keep the shortest window.
	tie := repository.MoverRow{Delta1m: f64(6), Delta5m: f64(8)}
	window, _, ok = bestTriggeredWindow(&tie)
	if !ok || window != "1m" {
		t.Fatalf("tie best = %q, want 1m", window)
	}

	down := repository.MoverRow{Delta1m: f64(-7)}
	window, delta, ok = bestTriggeredWindow(&down)
	if !ok || window != "1m" || delta != -7 {
		t.Fatalf("down best = %q/%v, want 1m/-7", window, delta)
	}
}

func TestRunAlertsSendsAndRecordsState(t *testing.T) {
	repo := &alertStubRepo{
		tick: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		rows: []repository.MoverRow{candidateRow()},
	}
	sender := &stubSender{}

	sent, err := newTestAlerter(repo, sender).RunAlerts(context.Background())
	if err != nil {
		t.Fatalf("RunAlerts: %v", err)
	}
	if sent != 1 || len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	sig := "polymarket:m1:yes:30m:UP"
	if _, ok := repo.states[sig]; !ok {
		t.Fatalf("state not recorded, have %v", repo.states)
	}

	msg := sender.sent[0]
	for _, frag := range []string{
		"Provider: polymarket",
		"Market: Cabinet reshuffle before december?",
		"Outcome: Yes",
		"Probability: 46.3%",
		"Delta[30m]: +20.00 pp",
		"Label: opaque_info_sensitive",
		"Reasons: opaque_info_prone_category, tight_spread",
		"Tick: 2026-01-02T12:00:00Z",
	} {
		if !strings.Contains(msg, frag) {
			t.Fatalf("message missing %q:\n%s", frag, msg)
		}
	}
}

func TestRunAlertsCooldown(t *testing.T) {
	repo := &alertStubRepo{
		tick: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		rows: []repository.MoverRow{candidateRow()},
	}
	sender := &stubSender{}
	a := newTestAlerter(repo, sender)

	if sent, _ := a.RunAlerts(context.Background()); sent != 1 {
		t.Fatalf("first run sent %d, want 1", sent)
	}
	// Within cooldown nothing goes out, however often the alerter runs.
	for i := 0; i < 3; i++ {
		if sent, _ := a.RunAlerts(context.Background()); sent != 0 {
			t.Fatalf("run %d sent within cooldown", i)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.sent))
	}

	// Past the cooldown the same signature fires again.
	sig := "polymarket:m1:yes:30m:UP"
	repo.states[sig] = models.AlertState{
		Signature:  sig,
		LastSentAt: time.Now().UTC().Add(-45 * time.Minute),
	}
	if sent, _ := a.RunAlerts(context.Background()); sent != 1 {
		t.Fatalf("post-cooldown run did not send")
	}
	if len(sender.sent) != 2 {
		t.Fatalf("messages = %d, want 2", len(sender.sent))
	}
}

func TestRunAlertsSendFailureRecordsNoState(t *testing.T) {
	repo := &alertStubRepo{
		tick: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		rows: []repository.MoverRow{candidateRow()},
	}
	sender := &stubSender{fail: true}

	sent, err := newTestAlerter(repo, sender).RunAlerts(context.Background())
	if err != nil {
		t.Fatalf("RunAlerts: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
	if len(repo.states) != 0 {
		t.Fatalf("state must not be recorded on send failure, have %v", repo.states)
	}
}

func TestRunAlertsSkipsUntriggeredRows(t *testing.T) {
	row := candidateRow()
	row.Delta1m = f64(2)
	row.Delta5m = nil
	row.Delta30m = nil
	repo := &alertStubRepo{tick: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), rows: []repository.MoverRow{row}}
	sender := &stubSender{}

	if sent, err := newTestAlerter(repo, sender).RunAlerts(context.Background()); err != nil || sent != 0 {
		t.Fatalf("RunAlerts = %d, %v; want 0, nil", sent, err)
	}
}

func TestRunAlertsDisabledSender(t *testing.T) {
	a := New(&alertStubRepo{}, disabledSender{}, zap.NewNop(), config.AlertsConfig{})
	if sent, err := a.RunAlerts(context.Background()); err != nil || sent != 0 {
		t.Fatalf("RunAlerts = %d, %v; want 0, nil", sent, err)
	}
}

type disabledSender struct{}

func (disabledSender) Send(ctx context.Context, text string) error { return nil }
func (disabledSender) Enabled() bool                               { return false }
