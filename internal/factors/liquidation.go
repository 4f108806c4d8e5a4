package factors

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Cascade signals. A long cascade (forced sells accelerating) is a
// bearish signal while it runs and a contrarian bullish one once spent.
const (
	BearishCascade  = "BEARISH_CASCADE"
	BullishCascade  = "BULLISH_CASCADE"
	LongExhaustion  = "LONG_EXHAUSTION"
	ShortExhaustion = "SHORT_EXHAUSTION"
	NoCascade       = "NO_CASCADE"
)

// CascadeResult is the liquidation-cascade factor output.
type CascadeResult struct {
	Result
	Accelerating  bool    `json:"accelerating"`
	LongNotional  float64 `json:"longNotional1h"`
	ShortNotional float64 `json:"shortNotional1h"`
	Total1h       float64 `json:"total1h"`
	Total2h       float64 `json:"total2h"`
	Rate5m        float64 `json:"rate5mPerMin"`
	Rate15m       float64 `json:"rate15mPerMin"`
	Rate1h        float64 `json:"rate1hPerMin"`
}

func liqWindowSums(events []models.LiquidationEvent, window time.Duration, nowMs int64) (long, short float64) {
	start := nowMs - window.Milliseconds()
	for _, ev := range events {
		if ev.Timestamp < start || ev.Timestamp > nowMs {
			continue
		}
		// Wire SELL is a long being liquidated.
		if ev.Side == models.SideSell {
			long += ev.Notional
		} else {
			short += ev.Notional
		}
	}
	return long, short
}

// LiquidationCascade detects accelerating one-sided forced flow from
// the 5 m / 15 m / 1 h per-minute liquidation rates.
func LiquidationCascade(events []models.LiquidationEvent, nowMs int64) CascadeResult {
	if len(events) == 0 {
		return CascadeResult{Result: unavailable()}
	}
	long5, short5 := liqWindowSums(events, 5*time.Minute, nowMs)
	long15, short15 := liqWindowSums(events, 15*time.Minute, nowMs)
	long1h, short1h := liqWindowSums(events, time.Hour, nowMs)
	long2h, short2h := liqWindowSums(events, 2*time.Hour, nowMs)

	rate5 := (long5 + short5) / 5
	rate15 := (long15 + short15) / 15
	rate1h := (long1h + short1h) / 60
	accelerating := rate5 > 1.5*rate15 && rate15 > 1.2*rate1h

	total1h := long1h + short1h
	total2h := long2h + short2h
	longDominant := long1h > 1.5*short1h
	shortDominant := short1h > 1.5*long1h

	res := CascadeResult{
		Result:        Result{Score: 0, Signal: NoCascade, Available: true},
		Accelerating:  accelerating,
		LongNotional:  long1h,
		ShortNotional: short1h,
		Total1h:       total1h,
		Total2h:       total2h,
		Rate5m:        rate5,
		Rate15m:       rate15,
		Rate1h:        rate1h,
	}

	magnitude := func(total float64) float64 {
		switch {
		case total >= 50_000_000:
			return 0.85
		case total >= 20_000_000:
			return 0.55
		case total >= 10_000_000:
			return 0.30
		default:
			return 0
		}
	}

	if accelerating {
		m := magnitude(total1h)
		if m > 0 {
			if longDominant {
				res.Score, res.Signal = -m, BearishCascade
			} else if shortDominant {
				res.Score, res.Signal = m, BullishCascade
			}
		}
		return res
	}

	// Exhaustion: a heavy 2 h flush that has stopped accelerating reads
	// contrarian.
	if total2h > 50_000_000 {
		if long2h > 1.5*short2h {
			res.Score, res.Signal = 0.40, LongExhaustion
		} else if short2h > 1.5*long2h {
			res.Score, res.Signal = -0.40, ShortExhaustion
		}
	}
	return res
}

// Zones output.
type ZonesResult struct {
	Price        float64 `json:"price"`
	Leverage     float64 `json:"estimatedLeverage"`
	LongZone     float64 `json:"longLiquidationZone"`
	ShortZone    float64 `json:"shortLiquidationZone"`
	OIAtRisk     float64 `json:"oiAtRisk"`
	Probability  string  `json:"probability"`
	DistancePct  float64 `json:"zoneDistancePct"`
	Available    bool    `json:"available"`
}

// LiquidationZones estimates the average leverage in the market from
// funding and OI velocity, and projects the price bands where that
// leverage gets force-closed. Zones cap at 2% from price.
func LiquidationZones(price, avgFunding, aggregatedOI, oiVelocity24hPct float64) ZonesResult {
	if price <= 0 {
		return ZonesResult{}
	}

	abs := avgFunding
	if abs < 0 {
		abs = -abs
	}
	leverage := 75.0
	switch {
	case abs >= 0.0005:
		leverage = 100
	case abs >= 0.0001:
		leverage = 85
	}
	vel := oiVelocity24hPct
	if vel < 0 {
		vel = -vel
	}
	if vel > 10 {
		leverage += 10
	} else if vel > 5 {
		leverage += 5
	}
	leverage = clamp(leverage, 50, 125)

	distPct := 100 / leverage
	if distPct > 2 {
		distPct = 2
	}
	longZone := price * (1 - distPct/100)
	shortZone := price * (1 + distPct/100)
	oiAtRisk := 0.3 * aggregatedOI

	probability := "LOW"
	switch {
	case distPct <= 1.2 && oiAtRisk >= 50_000_000:
		probability = "HIGH"
	case distPct <= 1.6 || oiAtRisk >= 20_000_000:
		probability = "MEDIUM"
	}

	return ZonesResult{
		Price:       price,
		Leverage:    leverage,
		LongZone:    longZone,
		ShortZone:   shortZone,
		OIAtRisk:    oiAtRisk,
		Probability: probability,
		DistancePct: distPct,
		Available:   true,
	}
}
