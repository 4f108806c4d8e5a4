package store

import (
	"sort"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// bucketMs is the aggregation bucket for cross-exchange CVD history.
const bucketMs = 5000

// ExchangeData returns a deep copy of every coin's series for one
// exchange, or nil when the exchange is unknown.
func (s *Store) ExchangeData(exchange string) map[string]CoinSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byCoin, ok := s.exchanges[exchange]
	if !ok {
		return nil
	}
	out := make(map[string]CoinSeries, len(byCoin))
	for coin, cs := range byCoin {
		out[coin] = copySeries(cs)
	}
	return out
}

// Exchanges lists exchanges currently holding data.
func (s *Store) Exchanges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.exchanges))
	for ex := range s.exchanges {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}

// CurrentSnapshot returns the latest values per coin for one exchange.
func (s *Store) CurrentSnapshot(exchange string) map[string]models.CurrentSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byCoin, ok := s.exchanges[exchange]
	if !ok {
		return nil
	}
	out := make(map[string]models.CurrentSnapshot, len(byCoin))
	for coin, cs := range byCoin {
		out[coin] = cs.Current
	}
	return out
}

// PriceSeries returns a copy of one price series.
func (s *Store) PriceSeries(exchange, coin string) []models.SeriesPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok {
			return append([]models.SeriesPoint(nil), cs.Price...)
		}
	}
	return nil
}

// OISeries returns a copy of one open-interest series.
func (s *Store) OISeries(exchange, coin string) []models.SeriesPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok {
			return append([]models.SeriesPoint(nil), cs.OI...)
		}
	}
	return nil
}

// FundingSeries returns a copy of one funding series.
func (s *Store) FundingSeries(exchange, coin string) []models.SeriesPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok {
			return append([]models.SeriesPoint(nil), cs.Funding...)
		}
	}
	return nil
}

// CVDSeries returns a copy of one perp CVD series.
func (s *Store) CVDSeries(exchange, coin string) []models.CVDPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok {
			return append([]models.CVDPoint(nil), cs.CVD...)
		}
	}
	return nil
}

// BookSeries returns a copy of one order-book imbalance series.
func (s *Store) BookSeries(exchange, coin string) []models.BookPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok {
			return append([]models.BookPoint(nil), cs.Book...)
		}
	}
	return nil
}

// Liquidations returns a copy of the coin's recent liquidation queue.
func (s *Store) Liquidations(coin string) []models.LiquidationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LiquidationEvent(nil), s.liquidations[coin]...)
}

// LargeTrades returns up to limit whale trades, newest first.
func (s *Store) LargeTrades(limit int) []models.LargeTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.largeTrades) {
		limit = len(s.largeTrades)
	}
	return append([]models.LargeTrade(nil), s.largeTrades[:limit]...)
}

// SpotCVDState returns a copy of one spot venue's CVD state.
func (s *Store) SpotCVDState(exchange, coin string) (SpotCVD, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.spotCVD[exchange]; ok {
		if sc, ok := byCoin[coin]; ok {
			out := SpotCVD{
				Series:     append([]models.CVDPoint(nil), sc.Series...),
				Cumulative: sc.Cumulative,
				Window:     append([]models.CVDPoint(nil), sc.Window...),
			}
			return out, true
		}
	}
	return SpotCVD{}, false
}

// SpotCVDRollingSums returns the coin's rolling spot CVD sums across all
// spot venues: 5 m, 15 m and 1 h.
func (s *Store) SpotCVDRollingSums(coin string) (sum5m, sum15m, sum1h float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for _, ex := range models.SpotCVDExchanges {
		byCoin, ok := s.spotCVD[ex]
		if !ok {
			continue
		}
		sc, ok := byCoin[coin]
		if !ok {
			continue
		}
		for _, p := range sc.Window {
			age := now - p.Time
			if age <= (5 * time.Minute).Milliseconds() {
				sum5m += p.Delta
			}
			if age <= (15 * time.Minute).Milliseconds() {
				sum15m += p.Delta
			}
			if age <= time.Hour.Milliseconds() {
				sum1h += p.Delta
			}
		}
	}
	return sum5m, sum15m, sum1h
}

// AggregatedSpotCVDHistory sums spot CVD deltas across the enumerated
// spot venues into 5 s buckets, oldest first.
func (s *Store) AggregatedSpotCVDHistory(coin string) []models.CVDPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buckets := make(map[int64]float64)
	for _, ex := range models.SpotCVDExchanges {
		if byCoin, ok := s.spotCVD[ex]; ok {
			if sc, ok := byCoin[coin]; ok {
				for _, p := range sc.Series {
					buckets[(p.Time/bucketMs)*bucketMs] += p.Delta
				}
			}
		}
	}
	return sortBuckets(buckets)
}

// AggregatedPerpCVDHistory sums perp CVD deltas across the enumerated
// perp venues into 5 s buckets, oldest first.
func (s *Store) AggregatedPerpCVDHistory(coin string) []models.CVDPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buckets := make(map[int64]float64)
	for _, ex := range models.PerpExchanges {
		byCoin, ok := s.exchanges[ex]
		if !ok {
			continue
		}
		cs, ok := byCoin[coin]
		if !ok {
			continue
		}
		for _, p := range cs.CVD {
			buckets[(p.Time/bucketMs)*bucketMs] += p.Delta
		}
	}
	return sortBuckets(buckets)
}

func sortBuckets(buckets map[int64]float64) []models.CVDPoint {
	out := make([]models.CVDPoint, 0, len(buckets))
	for ts, delta := range buckets {
		out = append(out, models.CVDPoint{Time: ts, Delta: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ExchangeFlows returns every venue's flow bucket for a coin and window.
func (s *Store) ExchangeFlows(coin string, windowMinutes int) map[string]models.ExchangeFlow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.ExchangeFlow)
	for key, flow := range s.flows {
		if key.Coin == coin && key.Window == windowMinutes {
			out[key.Exchange+":"+key.Venue] = flow
		}
	}
	return out
}

// ETFFlows returns the current ETF-flow state, or nil before first poll.
func (s *Store) ETFFlows() *models.ETFFlowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.etf == nil {
		return nil
	}
	cp := *s.etf
	cp.Breakdown = copyMap(s.etf.Breakdown)
	cp.History = append([]models.ETFDay(nil), s.etf.History...)
	return &cp
}

// LongShort returns the coin's latest long/short split.
func (s *Store) LongShort(coin string) (models.LongShortRatio, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.longShort[coin]
	return r, ok
}

// VWAP returns the coin's VWAP bundle.
func (s *Store) VWAP(coin string) (models.VWAPBundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vwap[coin]
	return v, ok
}

// WhaleConsensus returns the coin's whale summary.
func (s *Store) WhaleConsensus(coin string) (models.WhaleConsensus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.whale[coin]
	return w, ok
}

// CurrentPrice returns the newest price for a coin on one exchange.
func (s *Store) CurrentPrice(exchange, coin string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byCoin, ok := s.exchanges[exchange]; ok {
		if cs, ok := byCoin[coin]; ok && cs.Current.Price > 0 {
			return cs.Current.Price, true
		}
	}
	return 0, false
}

// PreferredPrice walks the preference order (binance, hyperliquid,
// bybit) and returns the first live price for the coin.
func (s *Store) PreferredPrice(coin string) (float64, bool) {
	for _, ex := range []string{"binance", "hyperliquid", "bybit"} {
		if p, ok := s.CurrentPrice(ex, coin); ok {
			return p, true
		}
	}
	return 0, false
}

// Stats summarises the store's footprint for the health endpoints.
type Stats struct {
	Exchanges    int   `json:"exchanges"`
	SeriesPoints int   `json:"seriesPoints"`
	Liquidations int   `json:"liquidations"`
	LargeTrades  int   `json:"largeTrades"`
	ApproxBytes  int64 `json:"approxBytes"`
	LastUpdate   int64 `json:"lastUpdate"`
	UptimeSec    int64 `json:"uptimeSec"`
}

// StoreStats counts points across every series.
func (s *Store) StoreStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Exchanges:  len(s.exchanges),
		LastUpdate: s.lastUpdate,
		UptimeSec:  int64(time.Since(s.startedAt).Seconds()),
	}
	for _, byCoin := range s.exchanges {
		for _, cs := range byCoin {
			st.SeriesPoints += len(cs.Price) + len(cs.OI) + len(cs.Funding) + len(cs.Book) + len(cs.CVD)
		}
	}
	for _, byCoin := range s.spotCVD {
		for _, sc := range byCoin {
			st.SeriesPoints += len(sc.Series)
		}
	}
	for _, q := range s.liquidations {
		st.Liquidations += len(q)
	}
	st.LargeTrades = len(s.largeTrades)
	st.ApproxBytes = int64(st.SeriesPoints)*66 + int64(st.Liquidations+st.LargeTrades)*120
	return st
}

func copySeries(cs *CoinSeries) CoinSeries {
	return CoinSeries{
		Price:   append([]models.SeriesPoint(nil), cs.Price...),
		OI:      append([]models.SeriesPoint(nil), cs.OI...),
		Funding: append([]models.SeriesPoint(nil), cs.Funding...),
		Book:    append([]models.BookPoint(nil), cs.Book...),
		CVD:     append([]models.CVDPoint(nil), cs.CVD...),
		Current: cs.Current,
	}
}

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
