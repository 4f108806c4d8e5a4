package winrate

import (
	"sort"
	"strings"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Stats returns the aggregate win rate for one coin.
func (t *Tracker) Stats(coin string) models.WinRateStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsForLocked(coin)
}

// AllStats aggregates per coin.
func (t *Tracker) AllStats() map[string]models.WinRateStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsLocked()
}

func (t *Tracker) statsLocked() map[string]models.WinRateStats {
	coins := make(map[string]struct{})
	for _, p := range t.predictions {
		coins[p.Coin] = struct{}{}
	}
	out := make(map[string]models.WinRateStats, len(coins))
	for coin := range coins {
		out[coin] = t.statsForLocked(coin)
	}
	return out
}

func isStrong(p models.Prediction) bool {
	return p.Strength == "STRONG" || strings.HasPrefix(p.PredictedBias, "STRONG_")
}

func (t *Tracker) statsForLocked(coin string) models.WinRateStats {
	st := models.WinRateStats{Coin: coin}
	for _, p := range t.predictions {
		if p.Coin != coin || !p.Evaluated || p.Outcome == models.OutcomeInconclusive {
			continue
		}
		st.Total++
		strong := isStrong(p)
		if strong {
			st.StrongTotal++
		}
		if p.Outcome == models.OutcomeCorrect {
			st.Correct++
			if strong {
				st.StrongCorrect++
			}
		}
	}
	if st.Total > 0 {
		st.WinRate = float64(st.Correct) / float64(st.Total) * 100
	}
	if st.StrongTotal > 0 {
		st.StrongWinRate = float64(st.StrongCorrect) / float64(st.StrongTotal) * 100
	}
	return st
}

// Filter narrows prediction queries.
type Filter struct {
	Coin       string
	Type       string
	Strength   string
	Confidence string
	Regime     string
	FromMs     int64
	ToMs       int64
	Limit      int
}

func (f Filter) matches(p models.Prediction) bool {
	if f.Coin != "" && p.Coin != f.Coin {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Strength != "" && p.Strength != f.Strength {
		return false
	}
	if f.Confidence != "" && p.ConfidenceLevel != f.Confidence {
		return false
	}
	if f.Regime != "" {
		if v, ok := p.Signals["regime"]; !ok || regimeLabel(v) != f.Regime {
			return false
		}
	}
	if f.FromMs > 0 && p.Timestamp < f.FromMs {
		return false
	}
	if f.ToMs > 0 && p.Timestamp > f.ToMs {
		return false
	}
	return true
}

func regimeLabel(score float64) string {
	switch {
	case score >= 0.3:
		return "BULLISH"
	case score <= -0.3:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// Predictions returns matching records, newest first.
func (t *Tracker) Predictions(f Filter) []models.Prediction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Prediction, 0)
	for _, p := range t.predictions {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// FilteredStats aggregates matching evaluated records.
func (t *Tracker) FilteredStats(f Filter) models.WinRateStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := models.WinRateStats{Coin: f.Coin}
	for _, p := range t.predictions {
		if !f.matches(p) || !p.Evaluated || p.Outcome == models.OutcomeInconclusive {
			continue
		}
		st.Total++
		if isStrong(p) {
			st.StrongTotal++
		}
		if p.Outcome == models.OutcomeCorrect {
			st.Correct++
			if isStrong(p) {
				st.StrongCorrect++
			}
		}
	}
	if st.Total > 0 {
		st.WinRate = float64(st.Correct) / float64(st.Total) * 100
	}
	if st.StrongTotal > 0 {
		st.StrongWinRate = float64(st.StrongCorrect) / float64(st.StrongTotal) * 100
	}
	return st
}

// EquityPoint is one step of the simulated equity curve.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
	Outcome   string  `json:"outcome"`
}

// EquityCurve applies +2% per correct and -1.5% per incorrect call in
// chronological order starting from initialCapital.
func (t *Tracker) EquityCurve(f Filter, initialCapital float64) []EquityPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	matched := make([]models.Prediction, 0)
	for _, p := range t.predictions {
		if f.matches(p) && p.Evaluated && p.Outcome != models.OutcomeInconclusive {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp < matched[j].Timestamp })

	equity := initialCapital
	curve := make([]EquityPoint, 0, len(matched))
	for _, p := range matched {
		if p.Outcome == models.OutcomeCorrect {
			equity *= 1.02
		} else {
			equity *= 0.985
		}
		curve = append(curve, EquityPoint{Timestamp: p.EvaluatedAt, Equity: equity, Outcome: string(p.Outcome)})
	}
	return curve
}

// Streaks summarises consecutive outcomes.
type Streaks struct {
	Current     int    `json:"current"` // positive wins, negative losses
	CurrentKind string `json:"currentKind"`
	LongestWin  int    `json:"longestWin"`
	LongestLoss int    `json:"longestLoss"`
}

// StreakStats walks evaluated records in order and reports the current
// and longest streaks.
func (t *Tracker) StreakStats(f Filter) Streaks {
	t.mu.RLock()
	defer t.mu.RUnlock()
	matched := make([]models.Prediction, 0)
	for _, p := range t.predictions {
		if f.matches(p) && p.Evaluated && p.Outcome != models.OutcomeInconclusive {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp < matched[j].Timestamp })

	var s Streaks
	run := 0
	var winning bool
	for _, p := range matched {
		correct := p.Outcome == models.OutcomeCorrect
		if run == 0 || correct != winning {
			run = 1
			winning = correct
		} else {
			run++
		}
		if winning && run > s.LongestWin {
			s.LongestWin = run
		}
		if !winning && run > s.LongestLoss {
			s.LongestLoss = run
		}
	}
	if run > 0 {
		if winning {
			s.Current = run
			s.CurrentKind = "win"
		} else {
			s.Current = -run
			s.CurrentKind = "loss"
		}
	}
	return s
}

// Count returns the total number of stored predictions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.predictions)
}
