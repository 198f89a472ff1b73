// Package scanner implements TickerFetcher: one HTTP GET to the ratings
// scanner per symbol, with jittered retries and a depth-first fallback
// search for fields the scanner sometimes nests.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratingerr"
	"github.com/rs/zerolog"
)

const tvFields = "Recommend.All,Recommend.All|1W,close,change,change_abs,high,low,volume,currency"

// Client fetches rating/price data from the ratings scanner.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// New builds a scanner Client. requestTimeout bounds each individual HTTP
// attempt (spec.md §5: 15s per attempt).
func New(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		log:        log.With().Str("component", "ticker_fetcher").Logger(),
	}
}

// Fetch performs the single-symbol scanner GET with the spec's retry rules:
// 50-500ms initial jitter, up to 3 attempts, 429 backs off 2*2^attempt
// seconds, any other transport/parse error backs off 1s.
func (c *Client) Fetch(ctx context.Context, scannerSymbol string) (domain.FetchResult, error) {
	if err := sleepCtx(ctx, jitter()); err != nil {
		return domain.FetchResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		result, rateLimited, err := c.attempt(ctx, scannerSymbol)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == 2 {
			break
		}
		if rateLimited {
			wait := 2 * time.Second << uint(attempt)
			if werr := sleepCtx(ctx, wait); werr != nil {
				return domain.FetchResult{}, werr
			}
			continue
		}
		if werr := sleepCtx(ctx, time.Second); werr != nil {
			return domain.FetchResult{}, werr
		}
	}
	return domain.FetchResult{}, fmt.Errorf("%w: %s: %v", ratingerr.ErrUpstreamTransport, scannerSymbol, lastErr)
}

func (c *Client) attempt(ctx context.Context, scannerSymbol string) (domain.FetchResult, bool, error) {
	params := url.Values{}
	params.Set("symbol", scannerSymbol)
	params.Set("fields", tvFields)
	params.Set("no_404", "true")
	params.Set("label-product", "popup-technicals")

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.FetchResult{}, false, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("Origin", "https://www.tradingview.com")
	req.Header.Set("Referer", "https://www.tradingview.com/")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FetchResult{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.FetchResult{}, true, fmt.Errorf("%w: 429", ratingerr.ErrUpstreamRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.FetchResult{}, false, fmt.Errorf("scanner returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.FetchResult{}, false, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.FetchResult{}, false, err
	}

	return parsePayload(payload), false, nil
}

// parsePayload implements the field-lookup robustness contract: try
// data.* first, then fall back to a depth-first search of the whole tree.
func parsePayload(payload map[string]interface{}) domain.FetchResult {
	data, _ := payload["data"].(map[string]interface{})

	lookup := func(key string) interface{} {
		if data != nil {
			if v, ok := data[key]; ok {
				return v
			}
		}
		if v, ok := findKeyRecursive(payload, key); ok {
			return v
		}
		return nil
	}

	dailyVal := safeFloat(lookup("Recommend.All"))
	weeklyVal := safeFloat(lookup("Recommend.All|1W"))

	return domain.FetchResult{
		// Rating is left Unknown here; LiveUpdater and HistorySnapshotter
		// classify Val under their own scheme (Live vs Snapshot).
		Daily: domain.TimeframeSnapshot{
			Val:    dailyVal,
			Rating: domain.LabelUnknown,
		},
		Weekly: domain.TimeframeSnapshot{
			Val:    weeklyVal,
			Rating: domain.LabelUnknown,
		},
		MarketData: domain.MarketData{
			Currency:  safeString(lookup("currency")),
			Price:     safeFloat(lookup("close")),
			ChangePct: safeFloat(lookup("change")),
			ChangeAbs: safeFloat(lookup("change_abs")),
			High:      safeFloat(lookup("high")),
			Low:       safeFloat(lookup("low")),
		},
	}
}

// findKeyRecursive performs a depth-first search of a decoded JSON tree for
// key, since the scanner occasionally nests the result under an unrelated
// wrapper object.
func findKeyRecursive(node interface{}, key string) (interface{}, bool) {
	switch v := node.(type) {
	case map[string]interface{}:
		if val, ok := v[key]; ok {
			return val, true
		}
		for _, child := range v {
			if val, ok := findKeyRecursive(child, key); ok {
				return val, true
			}
		}
	case []interface{}:
		for _, child := range v {
			if val, ok := findKeyRecursive(child, key); ok {
				return val, true
			}
		}
	}
	return nil, false
}

func safeFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		if isFinite(n) {
			return &n
		}
	case int:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil && isFinite(f) {
			return &f
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func safeString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func jitter() time.Duration {
	return time.Duration(50+rand.Intn(451)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
