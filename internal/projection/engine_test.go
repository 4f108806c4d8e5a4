package projection

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
	"github.com/perpsignal/perpsignal/internal/winrate"
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

type fixture struct {
	store   *store.Store
	tracker *winrate.Tracker
	engine  *Engine
	clock   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()}
	f.store = store.New(newMemStore())
	f.tracker = winrate.New(newMemStore())
	f.engine = New(f.store, f.tracker)
	now := func() int64 { return f.clock }
	f.store.SetClock(now)
	f.tracker.SetClock(now)
	f.engine.SetClock(now)
	return f
}

// seedPrices writes n samples 5 minutes apart ending at the fixture
// clock, moving linearly from start to end.
func (f *fixture) seedPrices(exchange, coin string, n int, start, end float64) {
	saved := f.clock
	for i := 0; i < n; i++ {
		f.clock = saved - int64(n-1-i)*5*60_000
		v := start + (end-start)*float64(i)/float64(n-1)
		f.store.AddPrice(exchange, coin, v)
	}
	f.clock = saved
}

func TestProjectCollectingWithoutData(t *testing.T) {
	f := newFixture(t)
	for _, h := range []models.Horizon{models.Horizon12H, models.Horizon4H, models.HorizonDaily} {
		proj := f.engine.Project("BTC", h)
		assert.Equal(t, models.StatusCollecting, proj.Status, string(h))
		assert.Nil(t, proj.Prediction)
	}
}

func TestProjectCollectingBelowMinPoints(t *testing.T) {
	f := newFixture(t)
	f.seedPrices("binance", "BTC", minPricePoints-1, 64_000, 65_000)
	proj := f.engine.Project("BTC", models.Horizon12H)
	assert.Equal(t, models.StatusCollecting, proj.Status)
}

func TestProject12HRedistributesWeights(t *testing.T) {
	// Only momentum and confluence have data; the composite must be the
	// weighted mean over just those two legs.
	f := newFixture(t)
	f.seedPrices("binance", "BTC", 288, 60_000, 66_000)

	proj := f.engine.Project("BTC", models.Horizon12H)
	require.Equal(t, models.StatusActive, proj.Status)
	require.NotNil(t, proj.Prediction)

	momentum := factors.Momentum(f.store.PriceSeries("binance", "BTC"), f.clock)
	require.True(t, momentum.Available)
	crossEx := factors.CrossExchangeConfluence(map[string]float64{"binance": 1})
	expected := (0.30*momentum.Score + 0.10*crossEx.Score) / 0.40
	assert.InDelta(t, expected, proj.Prediction.Score, 1e-9)

	// Legs without data are carried as unavailable components.
	assert.False(t, proj.Components["cvdPersistence"].Available)
	assert.False(t, proj.Components["whales"].Available)
	assert.True(t, proj.Components["momentum"].Available)
}

func TestProject12HRecordsPrediction(t *testing.T) {
	f := newFixture(t)
	f.seedPrices("binance", "BTC", 288, 60_000, 66_000)

	proj := f.engine.Project("BTC", models.Horizon12H)
	require.Equal(t, models.StatusActive, proj.Status)

	preds := f.tracker.Predictions(winrate.Filter{Coin: "BTC", Type: models.Type12H})
	require.Len(t, preds, 1)
	assert.Equal(t, proj.Prediction.Score, preds[0].Score)
	assert.Equal(t, proj.CurrentPrice, preds[0].InitialPrice)
	// The 12h engine also logs its component signal types.
	assert.Len(t, f.tracker.Predictions(winrate.Filter{Coin: "BTC", Type: models.Type4HComposite}), 1)
}

func TestProjectionCacheServesInsideTTL(t *testing.T) {
	f := newFixture(t)
	f.seedPrices("binance", "BTC", 288, 60_000, 66_000)

	first := f.engine.Project("BTC", models.Horizon12H)
	require.Equal(t, models.StatusActive, first.Status)

	// New data inside the TTL does not change the served projection.
	f.clock += (10 * time.Minute).Milliseconds()
	f.store.AddPrice("binance", "BTC", 80_000)
	second := f.engine.Project("BTC", models.Horizon12H)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, first.Prediction.Score, second.Prediction.Score)

	// Past the TTL the engine recomputes.
	f.clock += time.Hour.Milliseconds()
	third := f.engine.Project("BTC", models.Horizon12H)
	assert.NotEqual(t, first.GeneratedAt, third.GeneratedAt)
}

func TestProjectionCacheIsPerCoinAndHorizon(t *testing.T) {
	f := newFixture(t)
	f.seedPrices("binance", "BTC", 288, 60_000, 66_000)
	f.seedPrices("binance", "ETH", 288, 3_000, 3_300)

	btc := f.engine.Project("BTC", models.Horizon12H)
	eth := f.engine.Project("ETH", models.Horizon12H)
	require.Equal(t, models.StatusActive, btc.Status)
	require.Equal(t, models.StatusActive, eth.Status)
	assert.Equal(t, "BTC", btc.Coin)
	assert.Equal(t, "ETH", eth.Coin)
}

func TestDailyVetoOnDisagreement(t *testing.T) {
	// Two of three cross-exchange venues agree: 0.67 sits under the 0.70
	// gate and the daily projection refuses to emit.
	f := newFixture(t)
	f.seedPrices("binance", "BTC", 288, 60_000, 66_000)    // up
	f.seedPrices("hyperliquid", "BTC", 20, 65_000, 65_600) // up
	f.seedPrices("bybit", "BTC", 20, 65_600, 65_000)       // down

	proj := f.engine.Project("BTC", models.HorizonDaily)
	require.Equal(t, models.StatusVeto, proj.Status)
	assert.Contains(t, proj.Reason, "cross-exchange agreement")
	assert.Nil(t, proj.Prediction)

	// A vetoed projection is not cached and not recorded.
	assert.Zero(t, f.tracker.Count())
}

func TestDailyWarmingUpGate(t *testing.T) {
	f := newFixture(t)
	// Enough points to gather but far too few for daily completeness.
	f.seedPrices("binance", "BTC", 20, 65_000, 65_500)

	proj := f.engine.Project("BTC", models.HorizonDaily)
	assert.Equal(t, models.StatusWarmingUp, proj.Status)
}

func TestGrade4Bands(t *testing.T) {
	assert.Equal(t, "A+", grade4(0.7, true))
	assert.Equal(t, "A", grade4(-0.65, false))
	assert.Equal(t, "B+", grade4(0.4, true))
	assert.Equal(t, "B", grade4(-0.4, false))
	assert.Equal(t, "C", grade4(0.1, true))
}

func TestBiasLabels(t *testing.T) {
	bias, strength := biasLabel12(0.65)
	assert.Equal(t, "STRONG_BULL", bias)
	assert.Equal(t, "STRONG", strength)

	bias, _ = biasLabel12(-0.35)
	assert.Equal(t, "BEARISH", bias)

	bias, strength = biasLabelDaily(0.09, 5)
	assert.Equal(t, "MICRO_BULL", bias)
	assert.Equal(t, "MICRO", strength)

	bias, _ = biasLabelDaily(0.01, 1.5)
	assert.Equal(t, "CONSOLIDATION", bias)
}

func TestDirectionBands(t *testing.T) {
	assert.Equal(t, models.DirBullish, directionFor(0.1, 0.1))
	assert.Equal(t, models.DirNeutral, directionFor(0.05, 0.1))
	assert.Equal(t, models.DirBearish, directionFor(-0.2, 0.1))
}

func TestWeightedRedistributionIdentity(t *testing.T) {
	var w weighted
	w.add(factors.Result{Score: 0.8, Available: true}, 0.30)
	w.add(factors.Result{Score: -0.4, Available: false}, 0.25) // ignored
	w.add(factors.Result{Score: 0.2, Available: true}, 0.20)
	score, ok := w.score()
	require.True(t, ok)
	assert.InDelta(t, (0.30*0.8+0.20*0.2)/0.50, score, 1e-12)

	var empty weighted
	_, ok = empty.score()
	assert.False(t, ok)
}
