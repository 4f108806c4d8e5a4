package factors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpsignal/perpsignal/internal/models"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC).UnixMilli()

func series(points ...[2]float64) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, models.SeriesPoint{Timestamp: testNow + int64(p[0]*60_000), Value: p[1]})
	}
	return out
}

func TestRegimeLongCrowded(t *testing.T) {
	// OI up 2% in an hour with heavily positive annualised funding reads
	// contrarian bearish.
	oi := series([2]float64{-50, 100_000_000}, [2]float64{0, 102_000_000})
	prices := series([2]float64{-50, 65_000}, [2]float64{0, 65_300})

	res := Regime(oi, prices, 0.0005, "binance", testNow)
	require.True(t, res.Available)
	assert.Equal(t, RegimeLongCrowded, res.Signal)
	assert.InDelta(t, -0.6, res.Score, 1e-9)
}

func TestRegimeShortCrowdedMirrors(t *testing.T) {
	oi := series([2]float64{-50, 100_000_000}, [2]float64{0, 102_000_000})
	prices := series([2]float64{-50, 65_000}, [2]float64{0, 64_800})

	res := Regime(oi, prices, -0.0005, "binance", testNow)
	assert.Equal(t, RegimeShortCrowded, res.Signal)
	assert.InDelta(t, 0.6, res.Score, 1e-9)
}

func TestRegimeCapitulationFollowsFlush(t *testing.T) {
	oi := series([2]float64{-50, 100_000_000}, [2]float64{0, 96_000_000})
	down := series([2]float64{-50, 65_000}, [2]float64{0, 63_500})

	res := Regime(oi, down, 0, "binance", testNow)
	assert.Equal(t, RegimeCapitulation, res.Signal)
	assert.InDelta(t, 0.3, res.Score, 1e-9)

	up := series([2]float64{-50, 65_000}, [2]float64{0, 66_500})
	res = Regime(oi, up, 0, "binance", testNow)
	assert.InDelta(t, -0.3, res.Score, 1e-9)
}

func TestRegimeHyperliquidAnnualisation(t *testing.T) {
	// The same per-period rate annualises 8x hotter on hourly settlement:
	// 0.00012 stays healthy on binance but crowds out on hyperliquid.
	oi := series([2]float64{-50, 100_000_000}, [2]float64{0, 102_000_000})
	prices := series([2]float64{-50, 65_000}, [2]float64{0, 65_300})

	res := Regime(oi, prices, 0.00012, "binance", testNow)
	assert.Equal(t, RegimeHealthyLong, res.Signal)

	res = Regime(oi, prices, 0.00012, "hyperliquid", testNow)
	assert.Equal(t, RegimeLongCrowded, res.Signal)
}

func TestRegimeInsufficientData(t *testing.T) {
	res := Regime(nil, nil, 0.0005, "binance", testNow)
	assert.False(t, res.Available)
	assert.Equal(t, InsufficientData, res.Signal)
	assert.Zero(t, res.Score)
}

func TestSpotPerpDivergenceMatrix(t *testing.T) {
	// BTC weak threshold is $2.5M.
	cases := []struct {
		name   string
		spot   float64
		perp   float64
		signal string
		score  float64
	}{
		{"capitulation bottom", 3_000_000, -3_000_000, CapitulationBottom, 0.75},
		{"spot accumulation", 3_000_000, 0, SpotAccumulation, 0.85},
		{"aligned bullish", 3_000_000, 3_000_000, AlignedBullish, 0.50},
		{"fake pump", -3_000_000, 3_000_000, FakePump, -0.85},
		{"distribution", -3_000_000, 0, Distribution, -0.70},
		{"aligned bearish", -3_000_000, -3_000_000, AlignedBearish, -0.50},
		{"neutral", 1_000_000, -1_000_000, "NEUTRAL", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := SpotPerpDivergence(tc.spot, tc.perp, "BTC", true)
			require.True(t, res.Available)
			assert.Equal(t, tc.signal, res.Signal)
			assert.InDelta(t, tc.score, res.Score, 1e-9)
		})
	}
}

func TestSpotPerpDivergenceNoData(t *testing.T) {
	res := SpotPerpDivergence(0, 0, "BTC", false)
	assert.False(t, res.Available)
}

func TestCVDPersistenceSaturates(t *testing.T) {
	// $50M of one-sided flow blows far past BTC's $10M strong threshold;
	// the score must clamp at 1.
	cvd := []models.CVDPoint{
		{Time: testNow - 10*60_000, Delta: 25_000_000},
		{Time: testNow - 5*60_000, Delta: 25_000_000},
	}
	res := CVDPersistence(cvd, "BTC", testNow)
	require.True(t, res.Available)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "PERSISTENT_BUYING", res.Signal)
}

func TestCVDPersistenceCoinScale(t *testing.T) {
	// The same $4M flow is modest for BTC but saturating for SOL.
	cvd := []models.CVDPoint{{Time: testNow - 10*60_000, Delta: 4_000_000}}
	btc := CVDPersistence(cvd, "BTC", testNow)
	sol := CVDPersistence(cvd, "SOL", testNow)
	assert.Less(t, btc.Score, sol.Score)
	assert.Equal(t, 1.0, sol.Score)
}

func TestFundingZScoreExtreme(t *testing.T) {
	// 91 days of quiet funding then a violent spike: z clears the long
	// baseline's 2.5 threshold and scores maximum contrarian short.
	start := testNow - 91*24*3600_000
	funding := make([]models.SeriesPoint, 0, 100)
	step := (testNow - start) / 99
	for i := 0; i < 99; i++ {
		funding = append(funding, models.SeriesPoint{Timestamp: start + int64(i)*step, Value: 0.0001})
	}
	funding = append(funding, models.SeriesPoint{Timestamp: testNow, Value: 0.001})

	res := FundingZScore(funding, testNow)
	require.True(t, res.Available)
	assert.Equal(t, ExtremeLongBias, res.Signal)
	assert.InDelta(t, -0.9, res.Score, 1e-9)
}

func TestFundingZScoreShortBaselineDemandsMore(t *testing.T) {
	// The same z that fires on a 90 day baseline stays quiet on a week of
	// history where the extreme threshold is 3.5.
	start := testNow - 7*24*3600_000
	funding := make([]models.SeriesPoint, 0, 20)
	step := (testNow - start) / 19
	for i := 0; i < 19; i++ {
		v := 0.0001
		if i%2 == 0 {
			v = 0.00013
		}
		funding = append(funding, models.SeriesPoint{Timestamp: start + int64(i)*step, Value: v})
	}
	// Roughly z=3 against this history.
	funding = append(funding, models.SeriesPoint{Timestamp: testNow, Value: 0.000161})

	res := FundingZScore(funding, testNow)
	require.True(t, res.Available)
	assert.NotEqual(t, ExtremeLongBias, res.Signal)
}

func TestFundingZScoreNeedsSamples(t *testing.T) {
	funding := series([2]float64{-10, 0.0001})
	res := FundingZScore(funding, testNow)
	assert.False(t, res.Available)
}

func TestCrossExchangeAgreement(t *testing.T) {
	res := CrossExchangeConfluence(map[string]float64{
		"binance": 1.0, "hyperliquid": 0.9, "bybit": 0.5,
	})
	assert.Equal(t, "STRONG_AGREEMENT", res.Signal)
	assert.InDelta(t, 0.70, res.Score, 1e-9)
	assert.InDelta(t, 1.0, res.Agreement, 1e-9)
}

func TestCrossExchangeTwoOfThreeIsMixed(t *testing.T) {
	// 2/3 agreement sits below the 0.70 gate, so the daily projection
	// vetoes on this output.
	res := CrossExchangeConfluence(map[string]float64{
		"binance": 1.0, "hyperliquid": 0.9, "bybit": -0.5,
	})
	assert.Equal(t, "MIXED", res.Signal)
	assert.Zero(t, res.Score)
	assert.Less(t, res.Agreement, 0.70)
	assert.Equal(t, 2, res.Bullish)
	assert.Equal(t, 1, res.Bearish)
}

func TestLiquidationCascadeBearish(t *testing.T) {
	// $55M of long liquidations with the 5m rate far above the 15m and
	// 1h rates: an accelerating bearish cascade at full magnitude.
	events := []models.LiquidationEvent{
		{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 15_000_000, Timestamp: testNow - 40*60_000},
		{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 10_000_000, Timestamp: testNow - 10*60_000},
		{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 30_000_000, Timestamp: testNow - 2*60_000},
	}
	res := LiquidationCascade(events, testNow)
	require.True(t, res.Available)
	assert.True(t, res.Accelerating)
	assert.Equal(t, BearishCascade, res.Signal)
	assert.InDelta(t, -0.85, res.Score, 1e-9)
}

func TestLiquidationExhaustionContrarian(t *testing.T) {
	// Heavy 2h long flush that has stopped accelerating flips contrarian
	// bullish.
	events := []models.LiquidationEvent{
		{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 40_000_000, Timestamp: testNow - 100*60_000},
		{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 20_000_000, Timestamp: testNow - 90*60_000},
	}
	res := LiquidationCascade(events, testNow)
	require.True(t, res.Available)
	assert.False(t, res.Accelerating)
	assert.Equal(t, LongExhaustion, res.Signal)
	assert.InDelta(t, 0.40, res.Score, 1e-9)
}

func TestLiquidationZones(t *testing.T) {
	res := LiquidationZones(65_000, 0.0006, 200_000_000, 12)
	require.True(t, res.Available)
	// Hot funding and fast OI push leverage to 100+10, so the zone sits
	// under 1% from price.
	assert.InDelta(t, 110, res.Leverage, 1e-9)
	assert.Less(t, res.LongZone, 65_000.0)
	assert.Greater(t, res.ShortZone, 65_000.0)
	assert.Equal(t, "HIGH", res.Probability)
	assert.InDelta(t, 60_000_000, res.OIAtRisk, 1e-3)
}

func TestMomentumClamps(t *testing.T) {
	prices := series(
		[2]float64{-240, 50_000},
		[2]float64{-30, 58_000},
		[2]float64{-5, 64_000},
		[2]float64{0, 65_000},
	)
	res := Momentum(prices, testNow)
	require.True(t, res.Available)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, "STRONG_UP", res.Signal)
}

func TestChangeOverWindowSparseSeries(t *testing.T) {
	// A single point inside the window has no in-window reference and
	// must not report a change.
	prices := series([2]float64{0, 65_000})
	_, ok := changeOverWindow(prices, time.Hour, testNow)
	assert.False(t, ok)
}

func TestCompletenessBands(t *testing.T) {
	full := Completeness(288, 288, 288, 720)
	assert.Equal(t, BandFull, full.Band)
	assert.InDelta(t, 1.0, full.Overall, 1e-9)

	empty := Completeness(10, 10, 10, 10)
	assert.Equal(t, BandWarmingUp, empty.Band)

	half := Completeness(288, 288, 0, 0)
	assert.Equal(t, BandMediumCap, half.Band)
}

func TestFreshnessDecay(t *testing.T) {
	fresh := Freshness(0)
	assert.InDelta(t, 1.0, fresh.Factor, 1e-9)
	assert.False(t, fresh.ShouldRefresh)

	old := Freshness(9 * time.Hour)
	assert.True(t, old.ShouldRefresh)
	assert.True(t, old.Stale)
	assert.GreaterOrEqual(t, old.Factor, 0.60)
}

func TestWhaleAlignment(t *testing.T) {
	res := WhaleAlignment(models.WhaleConsensus{Positions: 5, LongPct: 0.8, ConsistentLongs: 2}, true)
	require.True(t, res.Available)
	assert.Equal(t, "WHALES_LONG", res.Signal)
	assert.InDelta(t, 0.8, res.Score, 1e-9)

	res = WhaleAlignment(models.WhaleConsensus{Positions: 2, LongPct: 1}, true)
	assert.False(t, res.Available)
}

func TestSessionBoundaries(t *testing.T) {
	at := func(hour int) int64 {
		return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC).UnixMilli()
	}
	assert.Equal(t, "ASIA", Session(at(3)))
	assert.Equal(t, "LONDON", Session(at(8)))
	assert.Equal(t, "OVERLAP", Session(at(13)))
	assert.Equal(t, "NEW_YORK", Session(at(18)))
	assert.Equal(t, "LATE_NY", Session(at(22)))
}
