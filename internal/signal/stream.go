package signal

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// SpotStream keeps the feed warm between REST polls by consuming a
// miniTicker websocket. It is optional; the pipeline works from polls
// alone when the stream is disabled or down.
type SpotStream struct {
	Feed   *SpotFeed
	Logger *zap.Logger
	URL    string
}

// Run connects and reconnects until the context ends. Backoff doubles to
// a minute and resets after a connection that lived long enough to be
// considered healthy.
func (s *SpotStream) Run(ctx context.Context) {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			backoff = time.Second
		}
		s.Logger.Warn("spot stream disconnected",
			zap.Error(err),
			zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

func (s *SpotStream) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		symbol, price, ok := parseMiniTicker(msg)
		if !ok {
			continue
		}
		s.Feed.Record(symbol, price, time.Now().UTC())
	}
}

// parseMiniTicker accepts both the combined-stream envelope and a bare
// miniTicker event and returns the symbol with its close price.
func parseMiniTicker(msg []byte) (string, float64, bool) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	body := msg
	if err := json.Unmarshal(msg, &envelope); err == nil && len(envelope.Data) > 0 {
		body = envelope.Data
	}
	var event struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return "", 0, false
	}
	if event.Symbol == "" || event.Close == "" {
		return "", 0, false
	}
	price, err := strconv.ParseFloat(event.Close, 64)
	if err != nil || price <= 0 {
		return "", 0, false
	}
	return event.Symbol, price, true
}
