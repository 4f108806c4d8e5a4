// Package factors contains the pure scoring functions the projection
// engines compose. Every function operates on copies of store slices,
// performs no I/O, and returns a score in [-1, 1] where negative is
// bearish. Missing inputs yield score 0 with an INSUFFICIENT_DATA label
// so the engines can redistribute weight.
package factors

import (
	"math"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// InsufficientData is the label returned when a factor lacks inputs.
const InsufficientData = "INSUFFICIENT_DATA"

// Result is one factor's output.
type Result struct {
	Score     float64 `json:"score"`
	Signal    string  `json:"signal"`
	Available bool    `json:"available"`
}

func unavailable() Result {
	return Result{Signal: InsufficientData}
}

// Component converts a Result into the projection wire form.
func (r Result) Component() models.Component {
	return models.Component{Score: r.Score, Signal: r.Signal, Available: r.Available}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// changeOverWindow returns the percent change across the window ending
// at now. The reference point must itself lie inside the window so a
// sparse series cannot fake a long lookback.
func changeOverWindow(series []models.SeriesPoint, window time.Duration, nowMs int64) (float64, bool) {
	start := nowMs - window.Milliseconds()
	var first, last *models.SeriesPoint
	for i := range series {
		if series[i].Timestamp < start {
			continue
		}
		if first == nil {
			first = &series[i]
		}
		last = &series[i]
	}
	if first == nil || last == nil || first == last || first.Value == 0 {
		return 0, false
	}
	return (last.Value - first.Value) / first.Value * 100, true
}

// sumDeltas sums CVD deltas inside the window ending at now.
func sumDeltas(series []models.CVDPoint, window time.Duration, nowMs int64) float64 {
	start := nowMs - window.Milliseconds()
	var sum float64
	for _, p := range series {
		if p.Time >= start && p.Time <= nowMs {
			sum += p.Delta
		}
	}
	return sum
}

// Momentum scores blended price momentum: 10% of the 5 m move, 30% of
// the 30 m move, 60% of the 4 h move, saturating at a 5% blended move.
func Momentum(prices []models.SeriesPoint, nowMs int64) Result {
	d5, ok5 := changeOverWindow(prices, 5*time.Minute, nowMs)
	d30, ok30 := changeOverWindow(prices, 30*time.Minute, nowMs)
	d4h, ok4h := changeOverWindow(prices, 4*time.Hour, nowMs)
	if !ok5 && !ok30 && !ok4h {
		return unavailable()
	}
	raw := 0.1*d5 + 0.3*d30 + 0.6*d4h
	score := clamp(raw/5, -1, 1)
	signal := "FLAT"
	switch {
	case score >= 0.3:
		signal = "STRONG_UP"
	case score >= 0.1:
		signal = "UP"
	case score <= -0.3:
		signal = "STRONG_DOWN"
	case score <= -0.1:
		signal = "DOWN"
	}
	return Result{Score: score, Signal: signal, Available: true}
}

// Volatility reports the 4 h range as a percent of average price.
type VolatilityResult struct {
	RangePct float64 `json:"rangePct"`
	High     bool    `json:"high"`
}

// Volatility measures the 4 h high-low range; above 3% flags high.
func Volatility(prices []models.SeriesPoint, nowMs int64) VolatilityResult {
	start := nowMs - (4 * time.Hour).Milliseconds()
	var lo, hi, sum float64
	n := 0
	for _, p := range prices {
		if p.Timestamp < start {
			continue
		}
		if n == 0 || p.Value < lo {
			lo = p.Value
		}
		if n == 0 || p.Value > hi {
			hi = p.Value
		}
		sum += p.Value
		n++
	}
	if n < 2 || sum == 0 {
		return VolatilityResult{}
	}
	avg := sum / float64(n)
	rangePct := (hi - lo) / avg * 100
	return VolatilityResult{RangePct: rangePct, High: rangePct > 3}
}

// Session names the trading session for a UTC timestamp.
func Session(nowMs int64) string {
	hour := time.UnixMilli(nowMs).UTC().Hour()
	switch {
	case hour < 7:
		return "ASIA"
	case hour < 12:
		return "LONDON"
	case hour < 16:
		return "OVERLAP"
	case hour < 21:
		return "NEW_YORK"
	default:
		return "LATE_NY"
	}
}

// CompletenessResult is the daily projection's data sufficiency check.
type CompletenessResult struct {
	Overall float64            `json:"overall"`
	Ratios  map[string]float64 `json:"ratios"`
	Band    string             `json:"band"`
}

// Completeness bands on the mean ratio.
const (
	BandWarmingUp = "WARMING_UP"
	BandLowCap    = "LOW_CAP"
	BandMediumCap = "MEDIUM_CAP"
	BandFull      = "FULL"
)

// Completeness compares point counts against a full 24 h at 5 min for
// price/OI/CVD and 30 days of 8 h periods for funding.
func Completeness(pricePts, oiPts, cvdPts, fundingPts int) CompletenessResult {
	ratio := func(have, want int) float64 {
		return clamp(float64(have)/float64(want), 0, 1)
	}
	ratios := map[string]float64{
		"price":   ratio(pricePts, 288),
		"oi":      ratio(oiPts, 288),
		"cvd":     ratio(cvdPts, 288),
		"funding": ratio(fundingPts, 720),
	}
	overall := (ratios["price"] + ratios["oi"] + ratios["cvd"] + ratios["funding"]) / 4
	band := BandFull
	switch {
	case overall < 0.25:
		band = BandWarmingUp
	case overall < 0.5:
		band = BandLowCap
	case overall < 0.75:
		band = BandMediumCap
	}
	return CompletenessResult{Overall: overall, Ratios: ratios, Band: band}
}

// FreshnessResult is the decay applied to a cached projection.
type FreshnessResult struct {
	Factor        float64 `json:"factor"`
	ShouldRefresh bool    `json:"shouldRefresh"`
	Stale         bool    `json:"stale"`
}

// Freshness decays exp(-0.025 * ageHours), floored at 0.60. Refresh is
// suggested at 4 h, stale at 8 h.
func Freshness(age time.Duration) FreshnessResult {
	hours := age.Hours()
	factor := math.Exp(-0.025 * hours)
	if factor < 0.60 {
		factor = 0.60
	}
	return FreshnessResult{
		Factor:        factor,
		ShouldRefresh: hours >= 4,
		Stale:         hours >= 8,
	}
}

// WhaleAlignment scores large-position consensus: long share around 50%
// plus a small term for positions consistently held one way. Requires
// at least three tracked positions.
func WhaleAlignment(w models.WhaleConsensus, ok bool) Result {
	if !ok || w.Positions < 3 {
		return unavailable()
	}
	score := 2*(w.LongPct-0.5) + 0.1*float64(w.ConsistentLongs-w.ConsistentShorts)
	score = clamp(score, -1, 1)
	signal := "WHALES_NEUTRAL"
	if score >= 0.2 {
		signal = "WHALES_LONG"
	} else if score <= -0.2 {
		signal = "WHALES_SHORT"
	}
	return Result{Score: score, Signal: signal, Available: true}
}
