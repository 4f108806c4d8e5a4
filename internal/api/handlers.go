package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/winrate"
)

// coinParam reads the {coin} path var. Routes registered without the
// coin segment fall back to BTC.
func coinParam(r *http.Request) string {
	if coin, ok := mux.Vars(r)["coin"]; ok && coin != "" {
		return coin
	}
	return "BTC"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	st := s.store.StoreStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptimeSec":    int64(time.Since(s.startedAt).Seconds()),
		"lastUpdate":   st.LastUpdate,
		"exchanges":    s.store.Exchanges(),
		"predictions":  s.tracker.Count(),
		"heapAllocMB":  float64(mem.HeapAlloc) / (1 << 20),
		"heapSysMB":    float64(mem.HeapSys) / (1 << 20),
		"numGoroutine": runtime.NumGoroutine(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.store.StoreStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"store":       st,
		"predictions": s.tracker.Count(),
	})
}

func (s *Server) handleDataAll(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any)
	for _, ex := range s.store.Exchanges() {
		out[ex] = s.store.ExchangeData(ex)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	exchange := mux.Vars(r)["exchange"]
	if !models.ValidExchange(exchange) {
		writeBadExchange(w, exchange, models.PerpExchanges)
		return
	}
	writeJSON(w, http.StatusOK, s.store.ExchangeData(exchange))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	exchange := mux.Vars(r)["exchange"]
	if !models.ValidExchange(exchange) {
		writeBadExchange(w, exchange, models.PerpExchanges)
		return
	}
	writeJSON(w, http.StatusOK, s.store.CurrentSnapshot(exchange))
}

func (s *Server) handleWhaleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": s.store.LargeTrades(limit),
	})
}

func (s *Server) handleVWAP(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	bundle, ok := s.store.VWAP(coin)
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":      coin,
		"available": ok,
		"vwap":      bundle,
	})
}

func (s *Server) handleSpotCVD(w http.ResponseWriter, r *http.Request) {
	coin := coinParam(r)
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	sum5m, sum15m, sum1h := s.store.SpotCVDRollingSums(coin)
	perVenue := make(map[string]any)
	for _, ex := range models.SpotCVDExchanges {
		if state, ok := s.store.SpotCVDState(ex, coin); ok {
			perVenue[ex] = map[string]any{
				"cumulative": state.Cumulative,
				"points":     len(state.Series),
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":      coin,
		"sum5m":     sum5m,
		"sum15m":    sum15m,
		"sum1h":     sum1h,
		"exchanges": perVenue,
		"history":   s.store.AggregatedSpotCVDHistory(coin),
	})
}

func (s *Server) handleExchangeFlow(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	window := queryInt(r, "window", 15)
	if window != 5 && window != 15 && window != 60 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":        "window must be 5, 15 or 60",
			"validWindows": []int{5, 15, 60},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":          coin,
		"windowMinutes": window,
		"flows":         s.store.ExchangeFlows(coin, window),
	})
}

func (s *Server) handleETFFlows(w http.ResponseWriter, r *http.Request) {
	state := s.store.ETFFlows()
	if state == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "flows": state})
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	coin := coinParam(r)
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	events := s.store.Liquidations(coin)
	cascade := factors.LiquidationCascade(events, time.Now().UnixMilli())
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":    coin,
		"events":  events,
		"cascade": cascade,
	})
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if coin != "BTC" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "12hr projection is only computed for BTC",
			"validCoins": []string{"BTC"},
		})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Project(coin, models.Horizon12H))
}

func (s *Server) handle4HBias(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if coin != "BTC" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "4hr bias is only computed for BTC",
			"validCoins": []string{"BTC"},
		})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Project(coin, models.Horizon4H))
}

func (s *Server) handleDailyBias(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Project(coin, models.HorizonDaily))
}

func (s *Server) handleLiquidationZones(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	price, ok := s.store.PreferredPrice(coin)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"coin": coin, "available": false})
		return
	}

	nowMs := time.Now().UnixMilli()
	var fundingSum float64
	fundingN := 0
	var aggregatedOI, oiVelocityPct float64
	for _, ex := range models.PerpExchanges {
		if funding := s.store.FundingSeries(ex, coin); len(funding) > 0 {
			fundingSum += funding[len(funding)-1].Value
			fundingN++
		}
		oi := s.store.OISeries(ex, coin)
		if len(oi) == 0 {
			continue
		}
		aggregatedOI += oi[len(oi)-1].Value
	}
	if oi := s.store.OISeries("binance", coin); len(oi) > 1 {
		start := nowMs - (24 * time.Hour).Milliseconds()
		var first float64
		for _, p := range oi {
			if p.Timestamp >= start {
				first = p.Value
				break
			}
		}
		if first > 0 {
			oiVelocityPct = (oi[len(oi)-1].Value - first) / first * 100
		}
	}
	var avgFunding float64
	if fundingN > 0 {
		avgFunding = fundingSum / float64(fundingN)
	}

	zones := factors.LiquidationZones(price, avgFunding, aggregatedOI, oiVelocityPct)
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":      coin,
		"available": zones.Available,
		"zones":     zones,
	})
}

func (s *Server) handleWinRates(w http.ResponseWriter, r *http.Request) {
	coin := coinParam(r)
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	byType := make(map[string]models.WinRateStats)
	for _, typ := range []string{
		models.Type12H, models.TypeDaily, models.Type4H,
		models.Type4HComposite, models.TypeOI4H, models.TypeCVD2H,
	} {
		byType[typ] = s.tracker.FilteredStats(winrate.Filter{Coin: coin, Type: typ})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":    coin,
		"overall": s.tracker.Stats(coin),
		"byType":  byType,
	})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	coin := mux.Vars(r)["coin"]
	if !models.ValidCoin(coin) {
		writeBadCoin(w, coin)
		return
	}
	limit := queryInt(r, "limit", 50)
	preds := s.tracker.Predictions(winrate.Filter{Coin: coin, Limit: limit})
	writeJSON(w, http.StatusOK, map[string]any{
		"coin":        coin,
		"predictions": preds,
	})
}

func (s *Server) handleBacktestPredictions(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": s.tracker.Predictions(f),
	})
}

func (s *Server) handleBacktestStats(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.FilteredStats(f))
}

func (s *Server) handleBacktestEquity(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	initial := 10_000.0
	if raw := r.URL.Query().Get("initial"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			initial = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"initialCapital": initial,
		"curve":          s.tracker.EquityCurve(f, initial),
	})
}

func (s *Server) handleBacktestStreaks(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.StreakStats(f))
}

// parseFilter reads the shared backtest query params. An invalid coin
// writes the 400 and reports ok=false.
func parseFilter(w http.ResponseWriter, r *http.Request) (winrate.Filter, bool) {
	q := r.URL.Query()
	f := winrate.Filter{
		Coin:       q.Get("coin"),
		Type:       q.Get("type"),
		Strength:   q.Get("strength"),
		Confidence: q.Get("confidence"),
		Regime:     q.Get("regime"),
		Limit:      queryInt(r, "limit", 0),
	}
	if f.Coin != "" && !models.ValidCoin(f.Coin) {
		writeBadCoin(w, f.Coin)
		return winrate.Filter{}, false
	}
	if raw := q.Get("from"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.FromMs = v
		}
	}
	if raw := q.Get("to"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ToMs = v
		}
	}
	return f, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
