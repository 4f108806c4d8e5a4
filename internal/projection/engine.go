// Package projection composes factor scores into the 12 h, 4 h and
// daily bias projections, caches them per (coin, horizon) and records
// every ACTIVE emission with the win-rate tracker.
package projection

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/metrics"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
	"github.com/perpsignal/perpsignal/internal/winrate"
)

// TTLs per horizon; the cache serves inside these windows.
var cacheTTLs = map[models.Horizon]time.Duration{
	models.Horizon12H:   time.Hour,
	models.Horizon4H:    30 * time.Minute,
	models.HorizonDaily: 4 * time.Hour,
}

// crossExchangeSet is the fixed venue list for confluence checks.
var crossExchangeSet = []string{"hyperliquid", "binance", "bybit"}

// primaryExchanges is the preference order for factor input series.
var primaryExchanges = []string{"binance", "hyperliquid", "bybit", "okx"}

// minPricePoints gates every engine; below it the status is COLLECTING.
const minPricePoints = 10

type cacheKey struct {
	coin    string
	horizon models.Horizon
}

type cacheEntry struct {
	projection  models.Projection
	generatedAt int64
}

// Engine computes and caches projections.
type Engine struct {
	store   *store.Store
	tracker *winrate.Tracker
	metrics *metrics.Registry

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry

	now func() int64
}

// New wires the engine to its store and tracker.
func New(st *store.Store, tracker *winrate.Tracker) *Engine {
	return &Engine{
		store:   st,
		tracker: tracker,
		cache:   make(map[cacheKey]cacheEntry),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock swaps the wall clock. Test hook.
func (e *Engine) SetClock(now func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetMetrics attaches the registry for cache and recording counters.
func (e *Engine) SetMetrics(m *metrics.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Project returns the cached projection when fresh, otherwise runs the
// engine for the horizon. Only ACTIVE results populate the cache or the
// tracker. Historical performance is always read fresh.
func (e *Engine) Project(coin string, horizon models.Horizon) models.Projection {
	ttl := cacheTTLs[horizon]
	key := cacheKey{coin: coin, horizon: horizon}

	e.mu.Lock()
	nowMs := e.now()
	if entry, ok := e.cache[key]; ok && nowMs-entry.generatedAt < ttl.Milliseconds() {
		proj := entry.projection
		m := e.metrics
		e.mu.Unlock()
		if m != nil {
			m.ProjectionCacheHits.WithLabelValues(string(horizon)).Inc()
		}
		perf := e.tracker.Stats(coin)
		proj.Performance = &perf
		return proj
	}
	m := e.metrics
	e.mu.Unlock()
	if m != nil {
		m.ProjectionCacheMisses.WithLabelValues(string(horizon)).Inc()
	}

	var proj models.Projection
	switch horizon {
	case models.Horizon12H:
		proj = e.project12H(coin, nowMs)
	case models.Horizon4H:
		proj = e.project4H(coin, nowMs)
	case models.HorizonDaily:
		proj = e.projectDaily(coin, nowMs)
	default:
		return models.Projection{Status: models.StatusCollecting, Coin: coin, Horizon: horizon, Reason: "unknown horizon"}
	}

	proj.GeneratedAt = nowMs
	proj.ValidUntil = nowMs + ttl.Milliseconds()
	proj.NextRefresh = proj.ValidUntil
	perf := e.tracker.Stats(coin)
	proj.Performance = &perf

	if proj.Status == models.StatusActive {
		e.mu.Lock()
		e.cache[key] = cacheEntry{projection: proj, generatedAt: nowMs}
		e.mu.Unlock()
		e.record(coin, horizon, proj)
	} else {
		log.Debug().Str("coin", coin).Str("horizon", string(horizon)).
			Str("status", string(proj.Status)).Str("reason", proj.Reason).Msg("Projection not active")
	}
	return proj
}

// inputs bundles the store slices one projection run consumes. Copies;
// no lock is held while factors run.
type inputs struct {
	exchange string
	prices   []models.SeriesPoint
	oi       []models.SeriesPoint
	funding  []models.SeriesPoint
	perpCVD  []models.CVDPoint
	spotCVD  []models.CVDPoint
	price    float64
}

func (e *Engine) gather(coin string) (inputs, bool) {
	for _, ex := range primaryExchanges {
		prices := e.store.PriceSeries(ex, coin)
		if len(prices) < minPricePoints {
			continue
		}
		in := inputs{
			exchange: ex,
			prices:   prices,
			oi:       e.store.OISeries(ex, coin),
			funding:  e.store.FundingSeries(ex, coin),
			perpCVD:  e.store.AggregatedPerpCVDHistory(coin),
			spotCVD:  e.store.AggregatedSpotCVDHistory(coin),
		}
		in.price = prices[len(prices)-1].Value
		return in, true
	}
	return inputs{}, false
}

// crossExchangeChanges collects the fixed venue set's 1 h price moves.
func (e *Engine) crossExchangeChanges(coin string, nowMs int64) map[string]float64 {
	out := make(map[string]float64)
	for _, ex := range crossExchangeSet {
		if change, ok := priceChange(e.store.PriceSeries(ex, coin), time.Hour, nowMs); ok {
			out[ex] = change
		}
	}
	return out
}

// record writes the ACTIVE projection into the tracker. The 12 h engine
// additionally records its 4 h composite and the standalone OI and CVD
// component signals so each leg accrues its own accuracy history.
func (e *Engine) record(coin string, horizon models.Horizon, proj models.Projection) {
	if proj.Prediction == nil {
		return
	}
	typ := map[models.Horizon]string{
		models.Horizon12H:   models.Type12H,
		models.Horizon4H:    models.Type4H,
		models.HorizonDaily: models.TypeDaily,
	}[horizon]

	signals := make(map[string]float64, len(proj.Components))
	for name, c := range proj.Components {
		if c.Available {
			signals[name] = c.Score
		}
	}
	base := models.Prediction{
		Coin:               coin,
		Type:               typ,
		InitialPrice:       proj.CurrentPrice,
		PredictedBias:      proj.Prediction.Bias,
		PredictedDirection: proj.Prediction.Direction,
		Score:              proj.Prediction.Score,
		Strength:           proj.Prediction.Strength,
		Grade:              proj.Prediction.Grade,
		ConfidenceLevel:    proj.Confidence.Level,
		Signals:            signals,
	}
	if _, ok := e.tracker.Record(base); !ok {
		return
	}
	e.countRecorded(typ)

	if horizon != models.Horizon12H {
		return
	}
	nowMs := e.now()
	in, ok := e.gather(coin)
	if !ok {
		return
	}
	confluence := factors.FlowConfluence(in.prices, in.oi, in.perpCVD, coin, nowMs)
	oiRoc := factors.OIRateOfChange(in.oi, in.prices, nowMs)
	cvd := factors.CVDPersistence(in.perpCVD, coin, nowMs)

	composite := 0.0
	if confluence.Available || oiRoc.Available || cvd.Available {
		num, den := 0.0, 0.0
		for _, pair := range []struct {
			r factors.Result
			w float64
		}{{confluence.Result, 0.40}, {oiRoc, 0.35}, {cvd, 0.25}} {
			if pair.r.Available {
				num += pair.w * pair.r.Score
				den += pair.w
			}
		}
		if den > 0 {
			composite = num / den
		}
	}

	for _, derived := range []struct {
		typ   string
		score float64
		label string
	}{
		{models.Type4HComposite, composite, "composite"},
		{models.TypeOI4H, oiRoc.Score, oiRoc.Signal},
		{models.TypeCVD2H, cvd.Score, cvd.Signal},
	} {
		bias, strength := biasLabel12(derived.score)
		_, ok := e.tracker.Record(models.Prediction{
			Coin:               coin,
			Type:               derived.typ,
			InitialPrice:       in.price,
			PredictedBias:      bias,
			PredictedDirection: directionFor(derived.score, 0.1),
			Score:              derived.score,
			Strength:           strength,
			ConfidenceLevel:    proj.Confidence.Level,
			Signals:            map[string]float64{derived.label: derived.score},
		})
		if ok {
			e.countRecorded(derived.typ)
		}
	}
}

func (e *Engine) countRecorded(typ string) {
	e.mu.Lock()
	m := e.metrics
	e.mu.Unlock()
	if m != nil {
		m.PredictionsRecorded.WithLabelValues(typ).Inc()
	}
}
