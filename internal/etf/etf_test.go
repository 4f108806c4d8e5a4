package etf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpsignal/perpsignal/internal/store"
)

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (m *memStore) Save(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Load(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("no snapshot %s", name)
	}
	return raw, nil
}

func TestMarketStatus(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 3, 14, 12, 0, 0, 0, et), "weekend"}, // Saturday
		{time.Date(2026, 3, 10, 2, 30, 0, 0, et), "closed"},
		{time.Date(2026, 3, 10, 8, 0, 0, 0, et), "pre-market"},
		{time.Date(2026, 3, 10, 9, 30, 0, 0, et), "open"},
		{time.Date(2026, 3, 10, 15, 59, 0, 0, et), "open"},
		{time.Date(2026, 3, 10, 16, 0, 0, 0, et), "after-hours"},
		{time.Date(2026, 3, 10, 23, 30, 0, 0, et), "after-hours"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MarketStatus(c.at), c.at.String())
	}
}

func TestPollEndpointFailover(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	var gotKey string
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-soso-api-key")
		fmt.Fprint(w, `{"code":0,"data":{
			"totalNetInflow":"250000000",
			"list":[{"ticker":"IBIT","netInflow":"150000000"},{"ticker":"FBTC","netInflow":"60000000"},{"ticker":"GBTC","netInflow":"-10000000"}],
			"history":[{"date":"2026-03-09","totalNetInflow":"120000000"}]
		}}`)
	}))
	defer good.Close()

	saved := endpoints
	endpoints = []string{broken.URL, good.URL}
	defer func() { endpoints = saved }()

	st := store.New(newMemStore())
	p := New(st, "test-key")
	p.poll(context.Background())

	assert.Equal(t, "test-key", gotKey)
	state := st.ETFFlows()
	require.NotNil(t, state)
	assert.InDelta(t, 250_000_000, state.NetFlowUSD, 1e-6)
	assert.InDelta(t, 150_000_000, state.Breakdown["IBIT"], 1e-6)
	// Funds outside the tracked set are not summed into the breakdown.
	assert.NotContains(t, state.Breakdown, "GBTC")
	require.Len(t, state.History, 1)
	assert.Equal(t, "2026-03-09", state.History[0].Date)
}

func TestPollUpstreamErrorCode(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":401,"data":{}}`)
	}))
	defer bad.Close()

	saved := endpoints
	endpoints = []string{bad.URL}
	defer func() { endpoints = saved }()

	st := store.New(newMemStore())
	p := New(st, "test-key")
	p.poll(context.Background())
	assert.Nil(t, st.ETFFlows())
}
