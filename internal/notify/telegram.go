package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"movers/internal/config"
)

const (
	defaultTelegramHost = "https://api.telegram.org"
	maxSendAttempts     = 3
	maxRetryAfter       = 30 * time.Second
)

// Sender delivers one alert message to the configured chat channel.
type Sender interface {
	Send(ctx context.Context, text string) error
	Enabled() bool
}

// New picks the transport from config. Without usable credentials alerts
// are computed but not dispatched.
func New(cfg config.TelegramConfig, logger *zap.Logger) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "user":
		if cfg.UserAPI != "" && cfg.UserKey != "" {
			return &UserSender{HTTP: client, Logger: logger, Endpoint: cfg.UserAPI, Key: cfg.UserKey}
		}
	case "bot", "":
		if cfg.BotToken != "" && cfg.ChatID != "" {
			return &BotSender{HTTP: client, Logger: logger, Host: defaultTelegramHost, BotToken: cfg.BotToken, ChatID: cfg.ChatID}
		}
	}
	logger.Info("telegram dispatch disabled", zap.String("mode", mode))
	return Disabled{}
}

// Disabled is the no-credentials transport.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, text string) error { return nil }
func (Disabled) Enabled() bool                               { return false }

// BotSender posts through the Telegram bot API. A 429 answer is retried
// after the server-provided pause.
type BotSender struct {
	HTTP     *http.Client
	Logger   *zap.Logger
	Host     string
	BotToken string
	ChatID   string
}

func (s *BotSender) Enabled() bool { return true }

type botSendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type botSendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (s *BotSender) Send(ctx context.Context, text string) error {
	if s.BotToken == "" || s.ChatID == "" {
		return fmt.Errorf("telegram: missing bot_token/chat_id")
	}
	host := s.Host
	if host == "" {
		host = defaultTelegramHost
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", host, url.PathEscape(s.BotToken))
	body, err := json.Marshal(botSendMessageRequest{ChatID: s.ChatID, Text: text})
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		retryAfter, err := s.sendOnce(ctx, endpoint, body)
		if err == nil {
			return nil
		}
		if retryAfter <= 0 || attempt == maxSendAttempts-1 {
			return err
		}
		if retryAfter > maxRetryAfter {
			retryAfter = maxRetryAfter
		}
		s.Logger.Warn("telegram rate limited",
			zap.Duration("retry_after", retryAfter),
			zap.Int("attempt", attempt+1))
		if err := sleepCtx(ctx, retryAfter); err != nil {
			return err
		}
	}
	return fmt.Errorf("telegram: send attempts exhausted")
}

// sendOnce returns a positive retryAfter only for rate-limit answers.
func (s *BotSender) sendOnce(ctx context.Context, endpoint string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var parsed botSendMessageResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests || parsed.ErrorCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(parsed.Parameters.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return retryAfter, fmt.Errorf("telegram: rate limited")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("telegram: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !parsed.OK {
		return 0, fmt.Errorf("telegram: api error %d: %s", parsed.ErrorCode, parsed.Description)
	}
	return 0, nil
}

// UserSender posts to a self-hosted relay that forwards messages from a
// user account session.
type UserSender struct {
	HTTP     *http.Client
	Logger   *zap.Logger
	Endpoint string
	Key      string
}

func (s *UserSender) Enabled() bool { return true }

type userSendRequest struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

func (s *UserSender) Send(ctx context.Context, text string) error {
	if s.Endpoint == "" || s.Key == "" {
		return fmt.Errorf("telegram: missing user_api/user_key")
	}
	body, err := json.Marshal(userSendRequest{Key: s.Key, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("telegram: user api http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
