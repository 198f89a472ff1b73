package resolver

import (
	"testing"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r := New(zerolog.Nop())

	res, err := r.Resolve(Record{
		Symbol:             "AAPL80",
		Underlying:         "AAPL",
		UnderlyingName:     "Apple Inc. (AAPL)",
		UnderlyingExchange: "The Nasdaq Stock Market",
	})
	require.NoError(t, err)
	assert.Equal(t, "NASDAQ:AAPL", res.ScannerSymbol)
	assert.Equal(t, domain.MarketUS, res.MarketCode)

	res, err = r.Resolve(Record{
		Symbol:             "0700",
		Underlying:         "700",
		UnderlyingName:     "Tencent Holdings",
		UnderlyingExchange: "The Stock Exchange of Hong Kong Limited",
	})
	require.NoError(t, err)
	assert.Equal(t, "HKEX:700", res.ScannerSymbol)
	assert.Equal(t, domain.MarketHK, res.MarketCode)
}

func TestMarketCodeFromExchangeFullNamesBeforeAbbreviations(t *testing.T) {
	assert.Equal(t, domain.MarketUS, MarketCodeFromExchange("NYSE Arca / Archipelago Exchange"))
	assert.Equal(t, domain.MarketNL, MarketCodeFromExchange("Euronext Amsterdam"))
	assert.Equal(t, domain.MarketFR, MarketCodeFromExchange("Euronext Paris"))
	assert.Equal(t, domain.MarketUS, MarketCodeFromExchange(""))
	assert.Equal(t, domain.MarketUS, MarketCodeFromExchange("Some Unknown Exchange"))
}

func TestResolveHKRequiresNumericTicker(t *testing.T) {
	r := New(zerolog.Nop())
	_, err := r.Resolve(Record{
		Symbol:             "ABCXY",
		Underlying:         "ABCXY",
		UnderlyingExchange: "The Stock Exchange of Hong Kong Limited",
	})
	assert.Error(t, err)
}

func TestResolveHKStripsLeadingZeros(t *testing.T) {
	r := New(zerolog.Nop())
	res, err := r.Resolve(Record{
		Symbol:             "0005",
		Underlying:         "0005",
		UnderlyingExchange: "HKEX",
	})
	require.NoError(t, err)
	assert.Equal(t, "HKEX:5", res.ScannerSymbol)
}
