package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFlatPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"Recommend.All":0.62,"Recommend.All|1W":-0.2,"close":123.45,"change":1.2,"change_abs":1.5,"high":125,"low":120,"currency":"USD"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, zerolog.Nop())
	res, err := c.Fetch(context.Background(), "NASDAQ:AAPL")
	require.NoError(t, err)
	require.NotNil(t, res.Daily.Val)
	assert.InDelta(t, 0.62, *res.Daily.Val, 1e-9)
	require.NotNil(t, res.Weekly.Val)
	assert.InDelta(t, -0.2, *res.Weekly.Val, 1e-9)
	assert.Equal(t, "USD", res.MarketData.Currency)
	require.NotNil(t, res.MarketData.Price)
	assert.InDelta(t, 123.45, *res.MarketData.Price, 1e-9)
}

func TestFetchNestedPayloadFallsBackToRecursiveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"wrapper":{"inner":{"Recommend.All":0.1,"Recommend.All|1W":0.2,"currency":"EUR"}}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, zerolog.Nop())
	res, err := c.Fetch(context.Background(), "EURONEXT:ASML")
	require.NoError(t, err)
	require.NotNil(t, res.Daily.Val)
	assert.InDelta(t, 0.1, *res.Daily.Val, 1e-9)
	assert.Equal(t, "EUR", res.MarketData.Currency)
}

func TestFetchRetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"Recommend.All":0.3,"Recommend.All|1W":0.4}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, zerolog.Nop())
	res, err := c.Fetch(context.Background(), "NASDAQ:X")
	require.NoError(t, err)
	require.NotNil(t, res.Daily.Val)
	assert.Equal(t, 2, attempts)
}
