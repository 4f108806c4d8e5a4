package factors

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// SwingLevels returns the lowest and highest trades in the window.
func SwingLevels(prices []models.SeriesPoint, window time.Duration, nowMs int64) (low, high float64, ok bool) {
	start := nowMs - window.Milliseconds()
	n := 0
	for _, p := range prices {
		if p.Timestamp < start {
			continue
		}
		if n == 0 || p.Value < low {
			low = p.Value
		}
		if n == 0 || p.Value > high {
			high = p.Value
		}
		n++
	}
	return low, high, n >= 2
}

// ATR approximates the average true range over the window by slicing it
// into 14 sub-ranges and averaging their high-low spans. Works on a
// sampled price series where no OHLC bars exist.
func ATR(prices []models.SeriesPoint, window time.Duration, nowMs int64) (float64, bool) {
	const bars = 14
	start := nowMs - window.Milliseconds()
	barLen := window.Milliseconds() / bars

	type hl struct {
		lo, hi float64
		seen   bool
	}
	ranges := make([]hl, bars)
	for _, p := range prices {
		if p.Timestamp < start || p.Timestamp > nowMs {
			continue
		}
		idx := int((p.Timestamp - start) / barLen)
		if idx >= bars {
			idx = bars - 1
		}
		b := &ranges[idx]
		if !b.seen || p.Value < b.lo {
			b.lo = p.Value
		}
		if !b.seen || p.Value > b.hi {
			b.hi = p.Value
		}
		b.seen = true
	}

	var sum float64
	n := 0
	for _, b := range ranges {
		if b.seen {
			sum += b.hi - b.lo
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
