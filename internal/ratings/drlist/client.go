// Package drlist fetches the DR list: the upstream collaborator that
// publishes the set of Depositary Receipts currently tracked.
package drlist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Record is one row of the DR list as the upstream returns it.
type Record struct {
	Symbol             string `json:"symbol"`
	Underlying         string `json:"underlying"`
	UnderlyingName     string `json:"underlyingName"`
	UnderlyingExchange string `json:"underlyingExchange"`
}

type listResponse struct {
	Rows []Record `json:"rows"`
}

// Client fetches the DR list.
type Client struct {
	httpClient *http.Client
	url        string
	log        zerolog.Logger
}

// New builds a Client. timeout bounds the whole request (spec.md §4.5: 20s).
func New(url string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		log:        log.With().Str("component", "dr_list_client").Logger(),
	}
}

// Fetch returns the full DR list.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build dr list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch dr list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dr list returned status %d", resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode dr list: %w", err)
	}
	return out.Rows, nil
}

// DedupeByCode implements spec.md §4.5 step 2: prefer the record carrying a
// non-empty underlyingExchange when the same u_code appears more than once.
func DedupeByCode(records []Record) []Record {
	byCode := make(map[string]Record, len(records))
	order := make([]string, 0, len(records))

	for _, rec := range records {
		code := strings.ToUpper(strings.TrimSpace(rec.Underlying))
		if code == "" {
			continue
		}
		existing, seen := byCode[code]
		if !seen {
			byCode[code] = rec
			order = append(order, code)
			continue
		}
		if existing.UnderlyingExchange == "" && rec.UnderlyingExchange != "" {
			byCode[code] = rec
		}
	}

	out := make([]Record, 0, len(order))
	for _, code := range order {
		out = append(out, byCode[code])
	}
	return out
}
