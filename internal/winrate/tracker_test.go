package winrate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpsignal/perpsignal/internal/models"
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

type fixedPrices map[string]float64

func (f fixedPrices) PreferredPrice(coin string) (float64, bool) {
	p, ok := f[coin]
	return p, ok
}

func testTracker(t *testing.T) (*Tracker, *memStore, *int64) {
	t.Helper()
	files := newMemStore()
	tr := New(files)
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).UnixMilli()
	tr.SetClock(func() int64 { return clock })
	return tr, files, &clock
}

func pred(coin, typ string, price float64, dir models.Direction) models.Prediction {
	return models.Prediction{
		Coin:               coin,
		Type:               typ,
		InitialPrice:       price,
		PredictedBias:      "BULLISH",
		PredictedDirection: dir,
		Score:              0.5,
		Strength:           "MODERATE",
		ConfidenceLevel:    "MEDIUM",
	}
}

func TestRecordCooldown(t *testing.T) {
	tr, _, clock := testTracker(t)

	_, ok := tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))
	require.True(t, ok)

	// Same (coin, type) inside the 4h cooldown is rejected.
	_, ok = tr.Record(pred("BTC", models.Type12H, 65_100, models.DirBullish))
	assert.False(t, ok)

	// A different type or coin is unaffected.
	_, ok = tr.Record(pred("BTC", models.Type4H, 65_000, models.DirBullish))
	assert.True(t, ok)
	_, ok = tr.Record(pred("ETH", models.Type12H, 3_500, models.DirBullish))
	assert.True(t, ok)

	// Past the cooldown it records again.
	*clock += (4*time.Hour + time.Minute).Milliseconds()
	_, ok = tr.Record(pred("BTC", models.Type12H, 66_000, models.DirBullish))
	assert.True(t, ok)
	assert.Equal(t, 4, tr.Count())
}

func TestRecordAssignsIdentity(t *testing.T) {
	tr, _, clock := testTracker(t)
	stored, ok := tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))
	require.True(t, ok)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, *clock, stored.Timestamp)
	assert.Equal(t, models.OutcomePending, stored.Outcome)
	assert.False(t, stored.Evaluated)
}

func TestEvaluateHonoursDelay(t *testing.T) {
	tr, _, clock := testTracker(t)
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))

	// 7 hours in: the 12hr type is not yet due.
	*clock += (7 * time.Hour).Milliseconds()
	assert.Zero(t, tr.Evaluate(fixedPrices{"BTC": 66_000}))

	*clock += (2 * time.Hour).Milliseconds()
	assert.Equal(t, 1, tr.Evaluate(fixedPrices{"BTC": 66_000}))
	// Already evaluated records are not touched again.
	assert.Zero(t, tr.Evaluate(fixedPrices{"BTC": 60_000}))
}

func TestEvaluateGradesDirections(t *testing.T) {
	tr, _, clock := testTracker(t)
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))
	tr.Record(pred("ETH", models.Type12H, 3_500, models.DirBearish))
	tr.Record(pred("SOL", models.Type12H, 150, models.DirNeutral))

	*clock += (9 * time.Hour).Milliseconds()
	n := tr.Evaluate(fixedPrices{
		"BTC": 66_000, // +1.54%: bullish confirmed
		"ETH": 3_540,  // +1.14%: bearish call wrong
		"SOL": 150.3,  // +0.2%: inside the neutral band
	})
	require.Equal(t, 3, n)

	outcomes := map[string]models.Outcome{}
	for _, p := range tr.Predictions(Filter{}) {
		outcomes[p.Coin] = p.Outcome
	}
	assert.Equal(t, models.OutcomeCorrect, outcomes["BTC"])
	assert.Equal(t, models.OutcomeIncorrect, outcomes["ETH"])
	assert.Equal(t, models.OutcomeCorrect, outcomes["SOL"])

	btc := tr.Predictions(Filter{Coin: "BTC"})[0]
	assert.Equal(t, 66_000.0, btc.FinalPrice)
	assert.InDelta(t, 1.538, btc.ActualChangePct, 0.01)
}

func TestEvaluateWithoutPriceIsInconclusive(t *testing.T) {
	tr, _, clock := testTracker(t)
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))

	*clock += (9 * time.Hour).Milliseconds()
	require.Equal(t, 1, tr.Evaluate(fixedPrices{}))

	p := tr.Predictions(Filter{Coin: "BTC"})[0]
	assert.True(t, p.Evaluated)
	assert.Equal(t, models.OutcomeInconclusive, p.Outcome)

	// Inconclusive records stay out of the win rate.
	st := tr.Stats("BTC")
	assert.Zero(t, st.Total)
}

func TestStatsStrongSubset(t *testing.T) {
	tr, _, clock := testTracker(t)

	strong := pred("BTC", models.Type12H, 65_000, models.DirBullish)
	strong.Strength = "STRONG"
	tr.Record(strong)
	tr.Record(pred("BTC", models.Type4H, 65_000, models.DirBearish))

	*clock += (9 * time.Hour).Milliseconds()
	tr.Evaluate(fixedPrices{"BTC": 66_000})

	st := tr.Stats("BTC")
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Correct)
	assert.InDelta(t, 50.0, st.WinRate, 1e-9)
	assert.Equal(t, 1, st.StrongTotal)
	assert.Equal(t, 1, st.StrongCorrect)
	assert.InDelta(t, 100.0, st.StrongWinRate, 1e-9)
}

func TestEquityCurveAndStreaks(t *testing.T) {
	tr, _, clock := testTracker(t)
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))
	*clock += (5 * time.Hour).Milliseconds()
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBearish))

	*clock += (20 * time.Hour).Milliseconds()
	tr.Evaluate(fixedPrices{"BTC": 66_000})

	curve := tr.EquityCurve(Filter{Coin: "BTC"}, 10_000)
	require.Len(t, curve, 2)
	assert.InDelta(t, 10_200, curve[0].Equity, 1e-6)
	assert.InDelta(t, 10_200*0.985, curve[1].Equity, 1e-6)

	streaks := tr.StreakStats(Filter{Coin: "BTC"})
	assert.Equal(t, -1, streaks.Current)
	assert.Equal(t, "loss", streaks.CurrentKind)
	assert.Equal(t, 1, streaks.LongestWin)
	assert.Equal(t, 1, streaks.LongestLoss)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	tr, files, clock := testTracker(t)
	stored, _ := tr.Record(models.Prediction{
		Coin: "BTC", Type: models.Type12H, InitialPrice: 65_000,
		PredictedDirection: models.DirBullish,
		Signals:            map[string]float64{"momentum": 0.4, "customFactor": -0.2},
	})
	tr.Save(false)

	restored := New(files)
	restored.SetClock(func() int64 { return *clock })
	require.NoError(t, restored.Restore())
	require.Equal(t, 1, restored.Count())

	p := restored.Predictions(Filter{Coin: "BTC"})[0]
	assert.Equal(t, stored.ID, p.ID)
	// Open signal map survives the round trip, unknown keys included.
	assert.Equal(t, -0.2, p.Signals["customFactor"])
}

func TestSavePrunesOldRecords(t *testing.T) {
	tr, files, clock := testTracker(t)
	tr.Record(pred("BTC", models.Type12H, 65_000, models.DirBullish))

	*clock += (366 * 24 * time.Hour).Milliseconds()
	tr.Record(pred("BTC", models.Type12H, 70_000, models.DirBullish))
	tr.Save(true)

	restored := New(files)
	require.NoError(t, restored.Restore())
	assert.Equal(t, 1, restored.Count())
}

func TestFilterByTypeAndRegime(t *testing.T) {
	tr, _, clock := testTracker(t)
	p := pred("BTC", models.Type12H, 65_000, models.DirBullish)
	p.Signals = map[string]float64{"regime": 0.6}
	tr.Record(p)
	tr.Record(pred("BTC", models.TypeCVD2H, 65_000, models.DirBearish))

	*clock += time.Hour.Milliseconds()
	assert.Len(t, tr.Predictions(Filter{Type: models.Type12H}), 1)
	assert.Len(t, tr.Predictions(Filter{Regime: "BULLISH"}), 1)
	assert.Empty(t, tr.Predictions(Filter{Regime: "BEARISH"}))
	assert.Len(t, tr.Predictions(Filter{FromMs: *clock - 2*time.Hour.Milliseconds()}), 2)
	assert.Empty(t, tr.Predictions(Filter{ToMs: *clock - 2*time.Hour.Milliseconds()}))
}
