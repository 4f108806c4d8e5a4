package factors

import (
	"math"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Funding z-score signals, contrarian: stretched positive funding is a
// short signal.
const (
	ExtremeLongBias   = "extreme_long_bias"
	HighLongBias      = "high_long_bias"
	ModerateLongBias  = "moderate_long_bias"
	ExtremeShortBias  = "extreme_short_bias"
	HighShortBias     = "high_short_bias"
	ModerateShortBias = "moderate_short_bias"
	FundingNormal     = "normal"
)

const minFundingSamples = 10

// zThresholds adapt to how much baseline is available: short baselines
// demand bigger deviations before firing.
func zThresholds(baseline time.Duration) (extreme, high, moderate float64) {
	days := baseline.Hours() / 24
	switch {
	case days >= 90:
		return 2.5, 2.0, 1.5
	case days >= 30:
		return 3.0, 2.5, 2.0
	default:
		return 3.5, 3.0, 2.5
	}
}

// FundingZScore compares the latest funding rate against its own
// history (up to 90 days) and scores contrarian on the deviation.
func FundingZScore(funding []models.SeriesPoint, nowMs int64) Result {
	if len(funding) < minFundingSamples {
		return unavailable()
	}
	current := funding[len(funding)-1].Value

	var sum float64
	for _, p := range funding {
		sum += p.Value
	}
	mean := sum / float64(len(funding))
	var variance float64
	for _, p := range funding {
		d := p.Value - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(funding)))
	if stddev == 0 {
		return Result{Score: 0, Signal: FundingNormal, Available: true}
	}
	z := (current - mean) / stddev

	baseline := time.Duration(funding[len(funding)-1].Timestamp-funding[0].Timestamp) * time.Millisecond
	extreme, high, moderate := zThresholds(baseline)

	switch {
	case z >= extreme:
		return Result{Score: -0.9, Signal: ExtremeLongBias, Available: true}
	case z >= high:
		return Result{Score: -0.65, Signal: HighLongBias, Available: true}
	case z >= moderate:
		return Result{Score: -0.35, Signal: ModerateLongBias, Available: true}
	case z <= -extreme:
		return Result{Score: 0.9, Signal: ExtremeShortBias, Available: true}
	case z <= -high:
		return Result{Score: 0.65, Signal: HighShortBias, Available: true}
	case z <= -moderate:
		return Result{Score: 0.35, Signal: ModerateShortBias, Available: true}
	default:
		return Result{Score: 0, Signal: FundingNormal, Available: true}
	}
}

// FundingZ returns just the z value for bonus rules (|z| >= 3 marks the
// daily projection's extreme-funding bonus).
func FundingZ(funding []models.SeriesPoint) (float64, bool) {
	if len(funding) < minFundingSamples {
		return 0, false
	}
	current := funding[len(funding)-1].Value
	var sum float64
	for _, p := range funding {
		sum += p.Value
	}
	mean := sum / float64(len(funding))
	var variance float64
	for _, p := range funding {
		d := p.Value - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(funding)))
	if stddev == 0 {
		return 0, true
	}
	return (current - mean) / stddev, true
}
