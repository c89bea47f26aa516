// Package advisor talks to the decision-generation service that turns
// portfolio context into proposed trades. Its responses are model output and
// treated as untrusted input end to end.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/domain"
)

// Client for the advisor HTTP API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new advisor client. Advisor calls sit on a language
// model, so the timeout is much longer than for market data.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "advisor").Logger(),
	}
}

// rawTrade mirrors the loose upstream shape. Shares may arrive as a JSON
// number or a quoted string; decimal handles both.
type rawTrade struct {
	Action string          `json:"action"`
	Ticker string          `json:"ticker"`
	Shares json.RawMessage `json:"shares"`
	Reason string          `json:"reason"`
}

type proposeResponse struct {
	Trades []rawTrade `json:"trades"`
}

// ProposeTrades asks the advisor for a trade list.
// Malformed entries are carried through as zero-share proposals rather than
// dropped, so the validator can report them as structured errors.
func (c *Client) ProposeTrades(ctx context.Context, pctx domain.ProposalContext) ([]domain.ProposedTrade, error) {
	body, err := json.Marshal(pctx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proposal context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/propose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build proposal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Info().
		Str("portfolio_id", pctx.PortfolioID).
		Str("mode", pctx.Mode).
		Msg("Requesting trade proposals")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proposal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("advisor returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var decoded proposeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode proposal response: %w", err)
	}

	trades := make([]domain.ProposedTrade, 0, len(decoded.Trades))
	for _, raw := range decoded.Trades {
		trades = append(trades, domain.ProposedTrade{
			Action:    strings.TrimSpace(raw.Action),
			Ticker:    strings.TrimSpace(raw.Ticker),
			Shares:    parseShares(raw.Shares, c.log),
			Reasoning: raw.Reason,
		})
	}

	c.log.Info().
		Str("portfolio_id", pctx.PortfolioID).
		Int("trades", len(trades)).
		Msg("Trade proposals received")

	return trades, nil
}

// parseShares decodes a share count that may be a number, a quoted number,
// or garbage. Garbage becomes zero and fails share-count validation later.
func parseShares(raw json.RawMessage, log zerolog.Logger) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}

	s := strings.Trim(string(raw), `" `)
	if s == "" || s == "null" {
		return decimal.Zero
	}

	shares, err := decimal.NewFromString(s)
	if err != nil {
		log.Warn().Str("raw", string(raw)).Msg("Unparseable share count in proposal")
		return decimal.Zero
	}
	return shares
}
