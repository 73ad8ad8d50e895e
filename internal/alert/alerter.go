package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"movers/internal/config"
	"movers/internal/models"
	"movers/internal/notify"
	"movers/internal/repository"
)

// thresholds are the absolute percentage-point triggers per window.
var thresholds = map[string]float64{
	"1m":  6,
	"5m":  8,
	"10m": 10,
	"30m": 14,
	"1h":  18,
	"6h":  24,
	"12h": 30,
	"24h": 38,
}

// Alerter scans the latest classified tick for opaque-labeled movers and
// dispatches at most one message per signature per cooldown.
type Alerter struct {
	Repo   repository.Repository
	Sender notify.Sender
	Logger *zap.Logger

	MinLiquidityUSD float64
	MaxSpreadPP     float64
	Cooldown        time.Duration
	ScanCap         int
}

func New(repo repository.Repository, sender notify.Sender, logger *zap.Logger, cfg config.AlertsConfig) *Alerter {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	scanCap := cfg.ScanCap
	if scanCap <= 0 {
		scanCap = 500
	}
	return &Alerter{
		Repo:            repo,
		Sender:          sender,
		Logger:          logger,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MaxSpreadPP:     cfg.MaxSpreadPP,
		Cooldown:        cooldown,
		ScanCap:         scanCap,
	}
}

// RunAlerts returns how many messages were sent this cycle.
func (a *Alerter) RunAlerts(ctx context.Context) (int, error) {
	if a.Sender == nil || !a.Sender.Enabled() {
		return 0, nil
	}
	tickPtr, err := a.Repo.LatestClassificationMinute(ctx)
	if err != nil {
		return 0, err
	}
	if tickPtr == nil {
		return 0, nil
	}
	tick := *tickPtr

	rows, err := a.Repo.ListAlertCandidates(ctx, tick, repository.AlertScanParams{
		Label:           models.LabelOpaqueInfoSensitive,
		MinLiquidityUSD: a.MinLiquidityUSD,
		MaxSpreadPP:     a.MaxSpreadPP,
		Cap:             a.ScanCap,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range rows {
		row := &rows[i]
		window, delta, ok := bestTriggeredWindow(row)
		if !ok {
			continue
		}
		direction := "UP"
		if delta < 0 {
			direction = "DOWN"
		}
		signature := fmt.Sprintf("%s:%s:%s:%s:%s", row.Provider, row.MarketID, row.OutcomeID, window, direction)

		state, err := a.Repo.GetAlertState(ctx, signature)
		if err != nil {
			return sent, err
		}
		now := time.Now().UTC()
		if state != nil && now.Sub(state.LastSentAt) < a.Cooldown {
			continue
		}

		if err := a.Sender.Send(ctx, formatMessage(row, window, delta)); err != nil {
			a.Logger.Error("alert dispatch failed",
				zap.String("signature", signature),
				zap.Error(err))
			continue
		}
		if err := a.Repo.UpsertAlertState(ctx, &models.AlertState{Signature: signature, LastSentAt: now}); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		a.Logger.Info("alerts dispatched",
			zap.Time("tick", tick),
			zap.Int("sent", sent))
	}
	return sent, nil
}

// bestTriggeredWindow returns the window with the highest score among
// windows whose absolute delta reaches the threshold. Ties keep the
// shortest window.
func bestTriggeredWindow(row *repository.MoverRow) (string, float64, bool) {
	best := ""
	bestScore := 0.0
	bestDelta := 0.0
	for _, key := range models.WindowKeys() {
		d := row.DeltaByWindow(key)
		if d == nil {
			continue
		}
		score := math.Abs(*d) / thresholds[key]
		if score >= 1 && score > bestScore {
			best, bestScore, bestDelta = key, score, *d
		}
	}
	return best, bestDelta, best != ""
}

func formatMessage(row *repository.MoverRow, window string, delta float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Probability move detected\n")
	fmt.Fprintf(&b, "Provider: %s\n", row.Provider)
	fmt.Fprintf(&b, "Market: %s\n", row.Title)
	fmt.Fprintf(&b, "Outcome: %s\n", row.OutcomeLabel)
	fmt.Fprintf(&b, "Probability: %.1f%%\n", row.Probability*100)
	fmt.Fprintf(&b, "Delta[%s]: %+.2f pp\n", window, delta)
	fmt.Fprintf(&b, "Label: %s\n", row.Label)
	if tags := models.DecodeReasonTags(datatypes.JSON(row.ReasonTags)); len(tags) > 0 {
		fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(tags, ", "))
	}
	fmt.Fprintf(&b, "Tick: %s", row.TSMinute.UTC().Format(time.RFC3339))
	return b.String()
}
