// Package store owns every in-memory time series: per-exchange price,
// open interest, funding, order-book and CVD series, spot CVD windows,
// liquidations, the whale-trade ring and the ETF flow state. All
// mutation paths serialise on a single coarse mutex; reads copy out so
// factor computations never hold the lock.
package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/persistence"
)

const (
	// Retention is how long series points are kept.
	Retention = 24 * time.Hour

	// Liquidation retention and cap per coin, most-recent wins.
	liqRetention = 2 * time.Hour
	liqCap       = 1000

	// Whale-trade ring size, newest first.
	largeTradeCap = 500

	// Dedup set bound for large trades (tail-retain on overflow).
	largeSeenCap    = 2000
	largeSeenRetain = 1000
)

// CoinSeries holds all series for one (exchange, coin).
type CoinSeries struct {
	Price   []models.SeriesPoint   `json:"price"`
	OI      []models.SeriesPoint   `json:"oi"`
	Funding []models.SeriesPoint   `json:"funding"`
	Book    []models.BookPoint     `json:"orderbook"`
	CVD     []models.CVDPoint      `json:"cvd"`
	Current models.CurrentSnapshot `json:"current"`
}

// SpotCVD holds the spot CVD state for one (exchange, coin): the 24 h
// series, the cumulative scalar and a 1 h window backing the rolling
// 5 m / 15 m / 1 h sums.
type SpotCVD struct {
	Series     []models.CVDPoint `json:"series"`
	Cumulative float64           `json:"cumulative"`
	Window     []models.CVDPoint `json:"window"`
}

// FlowKey addresses an exchange-flow bucket.
type FlowKey struct {
	Coin     string `json:"coin"`
	Exchange string `json:"exchange"`
	Venue    string `json:"venue"`
	Window   int    `json:"window"` // minutes: 5, 15 or 60
}

// Store is the shared in-memory model. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	exchanges    map[string]map[string]*CoinSeries // exchange -> coin
	spotCVD      map[string]map[string]*SpotCVD    // exchange -> coin
	liquidations map[string][]models.LiquidationEvent
	largeTrades  []models.LargeTrade // newest first
	largeSeen    map[string]struct{}
	largeOrder   []string // insertion order of dedup keys, for trimming
	flows        map[FlowKey]models.ExchangeFlow
	etf          *models.ETFFlowState
	longShort    map[string]models.LongShortRatio
	vwap         map[string]models.VWAPBundle
	whale        map[string]models.WhaleConsensus

	dirty      bool
	lastUpdate int64
	startedAt  time.Time

	files persistence.Store
	now   func() int64 // wall clock in ms, swappable in tests
}

// New creates an empty store backed by the given persistence layer.
func New(files persistence.Store) *Store {
	return &Store{
		exchanges:    make(map[string]map[string]*CoinSeries),
		spotCVD:      make(map[string]map[string]*SpotCVD),
		liquidations: make(map[string][]models.LiquidationEvent),
		largeSeen:    make(map[string]struct{}),
		flows:        make(map[FlowKey]models.ExchangeFlow),
		longShort:    make(map[string]models.LongShortRatio),
		vwap:         make(map[string]models.VWAPBundle),
		whale:        make(map[string]models.WhaleConsensus),
		startedAt:    time.Now(),
		files:        files,
		now:          func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Store) series(exchange, coin string) *CoinSeries {
	byCoin, ok := s.exchanges[exchange]
	if !ok {
		byCoin = make(map[string]*CoinSeries)
		s.exchanges[exchange] = byCoin
	}
	cs, ok := byCoin[coin]
	if !ok {
		cs = &CoinSeries{}
		byCoin[coin] = cs
	}
	return cs
}

// appendPoint keeps series timestamps monotone non-decreasing: a sample
// arriving with an older clock is clamped to the last timestamp.
func appendPoint(series []models.SeriesPoint, ts int64, v float64) []models.SeriesPoint {
	if n := len(series); n > 0 && ts < series[n-1].Timestamp {
		ts = series[n-1].Timestamp
	}
	return append(series, models.SeriesPoint{Timestamp: ts, Value: v})
}

func (s *Store) touch() {
	s.dirty = true
	s.lastUpdate = s.now()
}

// AddPrice appends a price sample and refreshes the current record.
func (s *Store) AddPrice(exchange, coin string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.series(exchange, coin)
	ts := s.now()
	cs.Price = appendPoint(cs.Price, ts, price)
	cs.Current.Price = price
	cs.Current.UpdatedAt = ts
	s.touch()
}

// AddOpenInterest appends an OI sample (USD notional).
func (s *Store) AddOpenInterest(exchange, coin string, oiUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.series(exchange, coin)
	ts := s.now()
	cs.OI = appendPoint(cs.OI, ts, oiUSD)
	cs.Current.OpenInterest = oiUSD
	cs.Current.UpdatedAt = ts
	s.touch()
}

// AddFunding appends a funding-rate sample (fractional, per period).
func (s *Store) AddFunding(exchange, coin string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.series(exchange, coin)
	ts := s.now()
	cs.Funding = appendPoint(cs.Funding, ts, rate)
	cs.Current.Funding = rate
	cs.Current.UpdatedAt = ts
	s.touch()
}

// AddOrderbook appends an imbalance sample with raw depths.
func (s *Store) AddOrderbook(exchange, coin string, imbalance, bidDepth, askDepth float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.series(exchange, coin)
	ts := s.now()
	if n := len(cs.Book); n > 0 && ts < cs.Book[n-1].Timestamp {
		ts = cs.Book[n-1].Timestamp
	}
	cs.Book = append(cs.Book, models.BookPoint{Timestamp: ts, Imbalance: imbalance, BidDepth: bidDepth, AskDepth: askDepth})
	cs.Current.Imbalance = imbalance
	cs.Current.BidDepth = bidDepth
	cs.Current.AskDepth = askDepth
	cs.Current.UpdatedAt = ts
	s.touch()
}

// AddCVD appends one signed volume delta for a perp venue.
func (s *Store) AddCVD(exchange, coin string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.series(exchange, coin)
	ts := s.now()
	if n := len(cs.CVD); n > 0 && ts < cs.CVD[n-1].Time {
		ts = cs.CVD[n-1].Time
	}
	cs.CVD = append(cs.CVD, models.CVDPoint{Time: ts, Delta: delta})
	cs.Current.CVDDelta = delta
	cs.Current.UpdatedAt = ts
	s.touch()
}

// AddLiquidation enqueues a forced-order event under the coin key.
func (s *Store) AddLiquidation(ev models.LiquidationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coin := models.CoinFromSymbol(ev.Symbol)
	q := append(s.liquidations[coin], ev)
	if len(q) > liqCap {
		q = q[len(q)-liqCap:]
	}
	s.liquidations[coin] = q
	s.touch()
}

// AddLargeTrade pushes a trade onto the whale ring unless its
// (exchange, trade_id, symbol) key was already seen.
func (s *Store) AddLargeTrade(t models.LargeTrade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.DedupKey()
	if _, seen := s.largeSeen[key]; seen {
		return false
	}
	s.largeSeen[key] = struct{}{}
	s.largeOrder = append(s.largeOrder, key)
	if len(s.largeOrder) > largeSeenCap {
		drop := s.largeOrder[:len(s.largeOrder)-largeSeenRetain]
		for _, k := range drop {
			delete(s.largeSeen, k)
		}
		s.largeOrder = append([]string(nil), s.largeOrder[len(s.largeOrder)-largeSeenRetain:]...)
	}

	s.largeTrades = append([]models.LargeTrade{t}, s.largeTrades...)
	if len(s.largeTrades) > largeTradeCap {
		s.largeTrades = s.largeTrades[:largeTradeCap]
	}
	s.touch()
	return true
}

// UpdateSpotCVD appends one spot CVD delta and re-trims the rolling
// window that backs the 5 m / 15 m / 1 h sums.
func (s *Store) UpdateSpotCVD(exchange, coin string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCoin, ok := s.spotCVD[exchange]
	if !ok {
		byCoin = make(map[string]*SpotCVD)
		s.spotCVD[exchange] = byCoin
	}
	sc, ok := byCoin[coin]
	if !ok {
		sc = &SpotCVD{}
		byCoin[coin] = sc
	}
	ts := s.now()
	if n := len(sc.Series); n > 0 && ts < sc.Series[n-1].Time {
		ts = sc.Series[n-1].Time
	}
	sc.Series = append(sc.Series, models.CVDPoint{Time: ts, Delta: delta})
	sc.Cumulative += delta
	sc.Window = append(sc.Window, models.CVDPoint{Time: ts, Delta: delta})
	cutoff := ts - time.Hour.Milliseconds()
	for len(sc.Window) > 0 && sc.Window[0].Time < cutoff {
		sc.Window = sc.Window[1:]
	}
	s.touch()
}

// UpdateExchangeFlow overwrites a buy/sell flow bucket.
func (s *Store) UpdateExchangeFlow(coin, exchange, venue string, windowMinutes int, buyUSD, sellUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[FlowKey{Coin: coin, Exchange: exchange, Venue: venue, Window: windowMinutes}] = models.ExchangeFlow{
		BuyVolume:  buyUSD,
		SellVolume: sellUSD,
		Timestamp:  s.now(),
	}
	s.touch()
}

// UpdateETFFlows replaces the ETF-flow state, folding today's entry into
// the 7-day history.
func (s *Store) UpdateETFFlows(state models.ETFFlowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(state.History) > 7 {
		state.History = state.History[len(state.History)-7:]
	}
	s.etf = &state
	s.touch()
}

// UpdateLongShort replaces a coin's account long/short split.
func (s *Store) UpdateLongShort(coin string, r models.LongShortRatio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.longShort[coin] = r
	s.touch()
}

// UpdateVWAP replaces a coin's VWAP bundle.
func (s *Store) UpdateVWAP(coin string, v models.VWAPBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vwap[coin] = v
	s.touch()
}

// UpdateWhaleConsensus replaces a coin's whale-position summary.
func (s *Store) UpdateWhaleConsensus(coin string, w models.WhaleConsensus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whale[coin] = w
	s.touch()
}

// Cleanup drops series points older than the retention window and
// expired liquidations. Safe to run with no data.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now() - Retention.Milliseconds()
	for _, byCoin := range s.exchanges {
		for _, cs := range byCoin {
			cs.Price = trimSeries(cs.Price, cutoff)
			cs.OI = trimSeries(cs.OI, cutoff)
			cs.Funding = trimFunding(cs.Funding, s.now())
			cs.Book = trimBook(cs.Book, cutoff)
			cs.CVD = trimCVD(cs.CVD, cutoff)
		}
	}
	for _, byCoin := range s.spotCVD {
		for _, sc := range byCoin {
			sc.Series = trimCVD(sc.Series, cutoff)
		}
	}
	liqCutoff := s.now() - liqRetention.Milliseconds()
	for coin, q := range s.liquidations {
		i := 0
		for i < len(q) && q[i].Timestamp < liqCutoff {
			i++
		}
		if i > 0 {
			s.liquidations[coin] = append([]models.LiquidationEvent(nil), q[i:]...)
		}
	}
	log.Debug().Msg("Store cleanup completed")
}

func trimSeries(series []models.SeriesPoint, cutoff int64) []models.SeriesPoint {
	i := 0
	for i < len(series) && series[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return series
	}
	return append([]models.SeriesPoint(nil), series[i:]...)
}

// trimFunding keeps up to 90 days of funding history so the z-score
// factor has a long baseline; everything else lives under the 24 h rule.
func trimFunding(series []models.SeriesPoint, nowMs int64) []models.SeriesPoint {
	cutoff := nowMs - (90 * 24 * time.Hour).Milliseconds()
	return trimSeries(series, cutoff)
}

func trimBook(series []models.BookPoint, cutoff int64) []models.BookPoint {
	i := 0
	for i < len(series) && series[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return series
	}
	return append([]models.BookPoint(nil), series[i:]...)
}

func trimCVD(series []models.CVDPoint, cutoff int64) []models.CVDPoint {
	i := 0
	for i < len(series) && series[i].Time < cutoff {
		i++
	}
	if i == 0 {
		return series
	}
	return append([]models.CVDPoint(nil), series[i:]...)
}
