package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxSampleAge bounds the in-memory price history per symbol. The classifier
// only looks back one minute; the headroom covers slow cycles.
const maxSampleAge = 5 * time.Minute

type pricePoint struct {
	ts    time.Time
	price float64
}

// HealthStatus is the feed's last known condition, surfaced by readyz.
type HealthStatus struct {
	Status     string
	LastPollAt *time.Time
	LastError  *string
}

// SpotFeed tracks reference spot prices for a small set of symbols. It is
// fed by REST polls each pipeline cycle and optionally by a websocket
// stream between cycles; both paths write through Record.
type SpotFeed struct {
	HTTP     *http.Client
	Logger   *zap.Logger
	Endpoint string
	Symbols  []string

	mu        sync.Mutex
	series    map[string][]pricePoint
	lastPoll  *time.Time
	lastError *string
	status    string
}

func NewSpotFeed(httpClient *http.Client, logger *zap.Logger, endpoint string, symbols []string) *SpotFeed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SpotFeed{
		HTTP:     httpClient,
		Logger:   logger,
		Endpoint: strings.TrimSpace(endpoint),
		Symbols:  symbols,
		series:   make(map[string][]pricePoint),
	}
}

// Record appends one observation and trims the symbol's history.
func (f *SpotFeed) Record(symbol string, price float64, at time.Time) {
	if f == nil || symbol == "" || price <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.series == nil {
		f.series = make(map[string][]pricePoint)
	}
	points := append(f.series[symbol], pricePoint{ts: at, price: price})
	cut := at.Add(-maxSampleAge)
	j := 0
	for ; j < len(points)-1; j++ {
		if points[j].ts.After(cut) {
			break
		}
	}
	f.series[symbol] = points[j:]
}

// Refresh polls every configured symbol once. Individual symbol failures
// are logged and do not fail the refresh; the error reports only a total
// outage (no symbol reachable).
func (f *SpotFeed) Refresh(ctx context.Context) error {
	if f == nil || f.Endpoint == "" || len(f.Symbols) == 0 {
		return nil
	}
	now := time.Now().UTC()

	var okCount int
	var okMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range f.Symbols {
		symbol := symbol
		g.Go(func() error {
			price, err := f.fetchPrice(gctx, symbol)
			if err != nil {
				f.Logger.Warn("spot price fetch failed",
					zap.String("symbol", symbol),
					zap.Error(err))
				return nil
			}
			f.Record(symbol, price, time.Now().UTC())
			okMu.Lock()
			okCount++
			okMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if okCount == 0 {
		err := fmt.Errorf("spot feed: no symbol reachable")
		f.setHealth(now, "down", err.Error())
		return err
	}
	f.setHealth(now, "healthy", "")
	return nil
}

// ChangePct returns the percent change of the symbol over the lookback, or
// nil when the history is too short or too stale to answer.
func (f *SpotFeed) ChangePct(symbol string, lookback time.Duration, now time.Time) *float64 {
	if f == nil || lookback <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	points := f.series[symbol]
	if len(points) == 0 {
		return nil
	}
	latest := points[len(points)-1]
	if now.Sub(latest.ts) > 3*lookback {
		return nil
	}
	cutoff := now.Add(-lookback)
	var base *pricePoint
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].ts.After(cutoff) {
			base = &points[i]
			break
		}
	}
	if base == nil || base.price <= 0 {
		return nil
	}
	pct := (latest.price - base.price) / base.price * 100.0
	return &pct
}

// Latest returns the most recent price for the symbol, zero when unknown.
func (f *SpotFeed) Latest(symbol string) float64 {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	points := f.series[symbol]
	if len(points) == 0 {
		return 0
	}
	return points[len(points)-1].price
}

func (f *SpotFeed) Health() HealthStatus {
	if f == nil {
		return HealthStatus{Status: "unknown"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.status
	if status == "" {
		status = "unknown"
	}
	h := HealthStatus{Status: status, LastPollAt: f.lastPoll}
	if f.lastError != nil {
		h.LastError = f.lastError
	}
	return h
}

func (f *SpotFeed) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("http %d", resp.StatusCode)
	}
	var parsed struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parsed.Price), 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price %q", parsed.Price)
	}
	return price, nil
}

func (f *SpotFeed) setHealth(ts time.Time, status, errStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPoll = &ts
	f.status = status
	if errStr == "" {
		f.lastError = nil
	} else {
		f.lastError = &errStr
	}
}
