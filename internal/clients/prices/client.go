// Package prices fetches last-known prices from the read-only price feed, a
// query-parameterized endpoint returning one symbol-to-price mapping per tab.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTab is the feed tab holding equity prices.
const DefaultTab = "stocks"

// Payload is the feed's response envelope.
type Payload struct {
	Tab    string             `json:"tab"`
	AsOf   string             `json:"asOf"`
	Prices map[string]float64 `json:"prices"`
}

// Client for the price feed.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a price feed client. baseURL is the feed's endpoint URL
// without query parameters.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "prices").Logger(),
	}
}

// Fetch reads the mapping for tab. An empty tab defaults to "stocks".
func (c *Client) Fetch(ctx context.Context, tab string) (Payload, error) {
	if tab == "" {
		tab = DefaultTab
	}

	reqURL := c.baseURL + "?tab=" + url.QueryEscape(tab)
	c.log.Debug().Str("url", reqURL).Msg("Fetching prices")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().Int("status", resp.StatusCode).Msg("Feed response")
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Payload{}, fmt.Errorf("failed to parse feed response: %w", err)
	}

	c.log.Debug().
		Str("tab", payload.Tab).
		Str("asOf", payload.AsOf).
		Int("symbols", len(payload.Prices)).
		Msg("Fetched prices")
	return payload, nil
}
