package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client is a read-only client for the Kalshi trade API. Prices are cents
// in [0,100].
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = "https://api.elections.kalshi.com/trade-api/v2"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

type GetMarketsParams struct {
	Limit  int
	Cursor string
	Status string
}

type MarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

type Market struct {
	Ticker       string          `json:"ticker"`
	EventTicker  string          `json:"event_ticker"`
	Title        string          `json:"title"`
	Subtitle     string          `json:"subtitle"`
	YesSubTitle  string          `json:"yes_sub_title"`
	Category     string          `json:"category"`
	Status       string          `json:"status"`
	YesBid       int             `json:"yes_bid"`
	YesAsk       int             `json:"yes_ask"`
	LastPrice    int             `json:"last_price"`
	Volume24h    int64           `json:"volume_24h"`
	Liquidity    int64           `json:"liquidity"`
	OpenInterest int64           `json:"open_interest"`
	SelectedLegs json.RawMessage `json:"selected_legs,omitempty"`
}

// SelectedLeg is one leg of a combination market. Leg lists arrive in a few
// shapes; DecodeSelectedLegs normalizes them.
type SelectedLeg struct {
	Side         string `json:"side"`
	MarketTicker string `json:"market_ticker"`
	Title        string `json:"title"`
	YesSubTitle  string `json:"yes_sub_title"`
}

func DecodeSelectedLegs(raw json.RawMessage) []SelectedLeg {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var legs []SelectedLeg
	if err := json.Unmarshal(raw, &legs); err == nil {
		return legs
	}
	var wrapped struct {
		Legs []SelectedLeg `json:"legs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Legs
	}
	return nil
}

// GetMarkets fetches one page of markets; follow the returned cursor until
// it is empty.
func (c *Client) GetMarkets(ctx context.Context, params GetMarketsParams) (*MarketsResponse, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		query.Set("cursor", params.Cursor)
	}
	if params.Status != "" {
		query.Set("status", params.Status)
	}

	body, err := c.doRequest(ctx, "/markets", query)
	if err != nil {
		return nil, err
	}

	var resp MarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}
	return &resp, nil
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
