// Package resolver turns a DR-list record into the canonical scanner symbol
// and market code, following the same regexp-detection style as the
// teacher's identifier resolution.
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratingerr"
	"github.com/rs/zerolog"
)

// Record is the free-form DR-list input.
type Record struct {
	Symbol             string // the DR's own listed symbol ("dr_symbol")
	Underlying         string
	UnderlyingName     string
	UnderlyingExchange string
}

// Result is the resolved scanner symbol plus market code.
type Result struct {
	ScannerSymbol string
	MarketCode    domain.MarketCode
}

var (
	parenTokenRe  = regexp.MustCompile(`\(([A-Z0-9.\-_]+)\)$`)
	trailingTwoRe = regexp.MustCompile(`\d{2}$`)
	digitsOnlyRe  = regexp.MustCompile(`^[0-9]+$`)
)

// Resolver resolves DR-list records. It carries a logger the way the
// teacher's identifier resolvers do, scoping every skip with the offending
// ticker.
type Resolver struct {
	log zerolog.Logger
}

// New builds a Resolver with a component-scoped logger.
func New(log zerolog.Logger) *Resolver {
	return &Resolver{log: log.With().Str("component", "symbol_resolver").Logger()}
}

// Resolve implements the precedence and market-specific coercion rules.
// A validation failure is returned as an error; callers skip that ticker
// and continue the batch.
func (r *Resolver) Resolve(rec Record) (Result, error) {
	market := MarketCodeFromExchange(rec.UnderlyingExchange)

	ticker, err := normalizeTicker(rec)
	if err != nil {
		r.log.Warn().Str("symbol", rec.Symbol).Err(err).Msg("ticker normalization failed")
		return Result{}, err
	}

	ticker, err = coerceForMarket(market, ticker)
	if err != nil {
		r.log.Warn().Str("symbol", rec.Symbol).Str("market", string(market)).Err(err).Msg("market coercion failed")
		return Result{}, err
	}

	return Result{
		ScannerSymbol: scannerSymbol(rec.UnderlyingExchange, ticker),
		MarketCode:    market,
	}, nil
}

// normalizeTicker implements the three-rule ticker normalization precedence.
func normalizeTicker(rec Record) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(rec.UnderlyingName))
	if m := parenTokenRe.FindStringSubmatch(name); m != nil {
		return m[1], nil
	}

	dr := strings.ToUpper(strings.TrimSpace(rec.Symbol))
	if dr != "" && trailingTwoRe.MatchString(dr) {
		candidate := dr[:len(dr)-2]
		// A trailing two-digit suffix is only a DR batch/subscription code
		// when the base ticker it exposes is alphabetic; a numeric
		// remainder means dr was already a native numeric exchange code,
		// not an ADR-style suffix, so fall through to the underlying.
		if len(candidate) >= 2 && !digitsOnlyRe.MatchString(candidate) {
			return candidate, nil
		}
	} else if dr != "" && len(dr) >= 2 {
		return dr, nil
	}

	underlying := strings.ToUpper(strings.TrimSpace(rec.Underlying))
	if underlying == "" {
		return "", fmt.Errorf("%w: no usable ticker field", errResolution)
	}
	return underlying, nil
}

var errResolution = ratingerr.ErrSymbolResolution

// coerceForMarket applies the market-specific ticker coercion spec.md §4.1
// requires for HK, TW and CN (digits-only, leading zeros stripped for HK).
func coerceForMarket(market domain.MarketCode, ticker string) (string, error) {
	switch market {
	case domain.MarketHK:
		if !digitsOnlyRe.MatchString(ticker) {
			return "", fmt.Errorf("%w: HK ticker %q is not numeric", errResolution, ticker)
		}
		stripped := strings.TrimLeft(ticker, "0")
		if stripped == "" {
			stripped = "0"
		}
		return stripped, nil
	case domain.MarketTW, domain.MarketCN:
		if !digitsOnlyRe.MatchString(ticker) {
			return "", fmt.Errorf("%w: %s ticker %q is not digits-only", errResolution, market, ticker)
		}
		return ticker, nil
	default:
		return ticker, nil
	}
}

// MarketCodeFromExchange maps a free-form exchange description to a
// MarketCode, checking full names before abbreviations, per spec.md §6.
func MarketCodeFromExchange(exchange string) domain.MarketCode {
	if exchange == "" {
		return domain.MarketUS
	}
	ex := strings.ToLower(exchange)

	switch {
	case strings.Contains(ex, "euronext amsterdam"):
		return domain.MarketNL
	case strings.Contains(ex, "euronext milan"):
		return domain.MarketIT
	case strings.Contains(ex, "euronext paris"):
		return domain.MarketFR
	case strings.Contains(ex, "nasdaq copenhagen"):
		return domain.MarketDK
	case strings.Contains(ex, "ho chi minh"), strings.Contains(ex, "hose"),
		strings.Contains(ex, "hnx"), strings.Contains(ex, "hanoi"):
		return domain.MarketVN
	case strings.Contains(ex, "shanghai"), strings.Contains(ex, "shenzhen"):
		return domain.MarketCN
	case strings.Contains(ex, "singapore exchange"), strings.Contains(ex, "sgx"):
		return domain.MarketSG
	case strings.Contains(ex, "taiwan stock exchange"):
		return domain.MarketTW
	case strings.Contains(ex, "stock exchange of hong kong"), strings.Contains(ex, "hkex"):
		return domain.MarketHK
	case strings.Contains(ex, "tokyo stock exchange"):
		return domain.MarketJP
	case strings.Contains(ex, "nyse archipelago"):
		return domain.MarketUS
	case strings.Contains(ex, "nasdaq global select"), strings.Contains(ex, "nasdaq stock market"),
		strings.Contains(ex, "nyse"), strings.Contains(ex, "nasdaq"):
		return domain.MarketUS
	default:
		return domain.MarketUS
	}
}

// scannerSymbol builds the "EXCHANGE:TICKER" scanner symbol, mirroring the
// exchange-prefix table the upstream scanner expects.
func scannerSymbol(exchange, ticker string) string {
	ex := strings.ToUpper(strings.Join(strings.Fields(exchange), " "))

	switch {
	case containsAny(ex, "MILAN", "MIL"):
		return "MIL:" + ticker
	case containsAny(ex, "COPENHAGEN", "OMX"):
		return "OMXCOP:" + strings.ReplaceAll(ticker, "-", "_")
	case containsAny(ex, "EURONEXT", "PARIS", "AMSTERDAM", "BRUSSELS", "FRANCE", "NETHERLANDS"):
		return "EURONEXT:" + ticker
	case containsAny(ex, "SHANGHAI", "SSE"):
		return "SSE:" + ticker
	case containsAny(ex, "SHENZHEN", "SZSE"):
		return "SZSE:" + ticker
	case containsAny(ex, "HONG", "HK", "HKEX"):
		return "HKEX:" + ticker
	case containsAny(ex, "VIET", "HOCHIMINH", "HOSE", "HNX"):
		return "HOSE:" + ticker
	case containsAny(ex, "TOKYO", "JAPAN", "TSE", "JP"):
		return "TSE:" + ticker
	case containsAny(ex, "SINGAPORE", "SGX", "SG"):
		return "SGX:" + ticker
	case containsAny(ex, "TAIWAN", "TWSE", "TW"):
		return "TWSE:" + ticker
	case strings.Contains(ex, "NASDAQ"):
		return "NASDAQ:" + ticker
	case containsAny(ex, "NEW YORK", "NYSE", "NY"):
		if containsAny(ex, "ARCHIPELAGO", "ARCA", "AMEX") {
			return "AMEX:" + ticker
		}
		return "NYSE:" + ticker
	case digitsOnlyRe.MatchString(ticker):
		return "HKEX:" + ticker
	default:
		return "NASDAQ:" + ticker
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
