package poll

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthImbalance(t *testing.T) {
	bids := [][2]float64{{65_000, 2}, {64_990, 1}}  // 194,990 notional
	asks := [][2]float64{{65_010, 1}}               // 65,010 notional

	imbalance, bidDepth, askDepth := depthImbalance(bids, asks)
	assert.InDelta(t, 194_990, bidDepth, 1e-6)
	assert.InDelta(t, 65_010, askDepth, 1e-6)
	assert.InDelta(t, (194_990.0-65_010)/(194_990+65_010), imbalance, 1e-9)
}

func TestDepthImbalanceEmptyBook(t *testing.T) {
	imbalance, bidDepth, askDepth := depthImbalance(nil, nil)
	assert.Zero(t, imbalance)
	assert.Zero(t, bidDepth)
	assert.Zero(t, askDepth)

	// One-sided books saturate.
	imbalance, _, _ = depthImbalance([][2]float64{{100, 1}}, nil)
	assert.InDelta(t, 1.0, imbalance, 1e-9)
}

func TestStringLevels(t *testing.T) {
	levels := stringLevels([][2]string{
		{"65000.5", "2"},
		{"not-a-number", "1"}, // dropped
		{"64990", "0.5"},
	})
	require.Len(t, levels, 2)
	assert.Equal(t, [2]float64{65_000.5, 2}, levels[0])
	assert.Equal(t, [2]float64{64_990, 0.5}, levels[1])
}

func TestAggTradesDelta(t *testing.T) {
	trades := []binanceAggTrade{
		{ID: 10, Price: "65000", Quantity: "2", IsBuyerMaker: false}, // taker buy +130k
		{ID: 11, Price: "65000", Quantity: "1", IsBuyerMaker: true},  // taker sell -65k
		{ID: 12, Price: "bogus", Quantity: "1", IsBuyerMaker: false}, // dropped
	}

	delta, cursor, n := aggTradesDelta(trades, 0)
	assert.InDelta(t, 65_000, delta, 1e-6)
	assert.EqualValues(t, 11, cursor)
	assert.Equal(t, 2, n)

	// Trades at or below the cursor were already sampled.
	delta, cursor, n = aggTradesDelta(trades, 11)
	assert.Zero(t, delta)
	assert.EqualValues(t, 11, cursor)
	assert.Zero(t, n)
}

func TestBybitTradesDelta(t *testing.T) {
	trades := []bybitTrade{
		{Price: "65000", Size: "1", Side: "Buy", Time: "1000"},
		{Price: "65000", Size: "2", Side: "Sell", Time: "2000"},
		{Price: "65000", Size: "1", Side: "Buy", Time: "nope"}, // dropped
	}

	delta, cursor, n := bybitTradesDelta(trades, 0)
	assert.InDelta(t, -65_000, delta, 1e-6) // 65k buy - 130k sell
	assert.EqualValues(t, 2000, cursor)
	assert.Equal(t, 2, n)

	delta, _, n = bybitTradesDelta(trades, 1000)
	assert.InDelta(t, -130_000, delta, 1e-6)
	assert.Equal(t, 1, n)
}

func TestHyperliquidTradesDelta(t *testing.T) {
	trades := []hlTrade{
		{Side: "B", Px: "65000", Sz: "1", Time: 1000},
		{Side: "A", Px: "65000", Sz: "0.5", Time: 2000},
	}

	delta, cursor, n := hlTradesDelta(trades, 0)
	assert.InDelta(t, 32_500, delta, 1e-6)
	assert.EqualValues(t, 2000, cursor)
	assert.Equal(t, 2, n)

	_, _, n = hlTradesDelta(trades, 2000)
	assert.Zero(t, n)
}

func TestClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, clientAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"value":42}`)
	}))
	defer srv.Close()

	c := NewClient("test", 100)
	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 42, out.Value)
}

func TestClientPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := NewClient("test", 100)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"type": "l2Book"}, &out))
	assert.True(t, out.OK)
}

func TestClientNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test", 100)
	err := c.GetJSON(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClientBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test", 1000)
	for i := 0; i < 5; i++ {
		assert.Error(t, c.GetJSON(context.Background(), srv.URL, nil))
	}
	require.EqualValues(t, 5, hits.Load())

	// Open breaker short-circuits: no request leaves the client.
	assert.Error(t, c.GetJSON(context.Background(), srv.URL, nil))
	assert.EqualValues(t, 5, hits.Load())
}
