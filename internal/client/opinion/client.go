package opinion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is a read-only client for the Opinion openapi. The API enforces a
// strict request rate, so every call waits on a process-wide token bucket
// and backs off on 429 responses.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries int
	retryBase  time.Duration
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, apiKey string, maxRPS float64, maxRetries int, retryBase time.Duration) *Client {
	host = strings.TrimRight(host, "/")
	if maxRPS <= 0 {
		maxRPS = 14
	}
	if maxRetries <= 0 {
		maxRetries = 4
	}
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &Client{
		host:       host,
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), 1),
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type marketPage struct {
	List  []Market `json:"list"`
	Total int      `json:"total"`
}

// ListMarkets fetches one page of the market listing. Pages are 1-based.
func (c *Client) ListMarkets(ctx context.Context, page, limit int) ([]Market, int, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("status", "activity")

	body, err := c.doRequest(ctx, "/openapi/market", query)
	if err != nil {
		return nil, 0, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, 0, fmt.Errorf("API code %d: %s", env.Code, env.Msg)
	}
	var pageData marketPage
	if err := json.Unmarshal(env.Data, &pageData); err != nil {
		return nil, 0, fmt.Errorf("failed to decode market page: %w", err)
	}
	return pageData.List, pageData.Total, nil
}

// GetOrderBook fetches order depth for one outcome token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	query := url.Values{}
	query.Set("token_id", tokenID)

	body, err := c.doRequest(ctx, "/openapi/orderbook", query)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("API code %d: %s", env.Code, env.Msg)
	}
	var book OrderBook
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return nil, fmt.Errorf("failed to decode orderbook: %w", err)
	}
	return &book, nil
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("apikey", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			delay := c.retryBase << attempt
			if after := retryAfter(resp.Header); after > 0 {
				delay = after
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}
}

func retryAfter(h http.Header) time.Duration {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
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
