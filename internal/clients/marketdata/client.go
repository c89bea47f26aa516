// Package marketdata talks to the market-data microservice: spot prices and
// market session state.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/domain"
)

// Client for the market-data HTTP API
type Client struct {
	baseURL string
	client  *http.Client
	ws      *SessionWebSocket // optional push subscriber, may be nil
	log     zerolog.Logger
}

// NewClient creates a new market-data client.
// ws is optional; when set, session lookups prefer the pushed state over an
// HTTP round trip.
func NewClient(baseURL string, ws *SessionWebSocket, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		ws:      ws,
		log:     log.With().Str("client", "marketdata").Logger(),
	}
}

// ResolvePrices fetches last-known prices for the given tickers.
// Tickers the service does not know are simply absent from the result.
func (c *Client) ResolvePrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	if len(tickers) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	reqURL := fmt.Sprintf("%s/api/prices?tickers=%s",
		c.baseURL, url.QueryEscape(strings.Join(tickers, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price service returned status %d", resp.StatusCode)
	}

	// Prices arrive as strings to avoid float rounding on the wire
	var result struct {
		Prices map[string]string `json:"prices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(result.Prices))
	for ticker, raw := range result.Prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			c.log.Warn().
				Str("ticker", ticker).
				Str("raw", raw).
				Msg("Unparseable price in response, dropping")
			continue
		}
		if price.IsPositive() {
			prices[strings.ToUpper(ticker)] = price
		}
	}

	c.log.Debug().
		Int("requested", len(tickers)).
		Int("resolved", len(prices)).
		Msg("Prices resolved")

	return prices, nil
}

// IsMarketOpen answers the session question for an asset type.
// Crypto never closes. For stocks the pushed WebSocket state is preferred
// when fresh; otherwise a synchronous HTTP lookup is made.
func (c *Client) IsMarketOpen(ctx context.Context, assetType string) (domain.SessionStatus, error) {
	if strings.EqualFold(assetType, "crypto") {
		return domain.SessionStatus{Open: true}, nil
	}

	if c.ws != nil {
		if status, ok := c.ws.CachedStatus(); ok {
			return status, nil
		}
	}

	reqURL := fmt.Sprintf("%s/api/market/status?asset_type=%s", c.baseURL, url.QueryEscape(assetType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.SessionStatus{}, fmt.Errorf("failed to build session request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.SessionStatus{}, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.SessionStatus{}, fmt.Errorf("session service returned status %d", resp.StatusCode)
	}

	var status domain.SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return domain.SessionStatus{}, fmt.Errorf("failed to decode session response: %w", err)
	}

	return status, nil
}
