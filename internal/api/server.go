// Package api exposes the HTTP surface: raw market data, derived
// signal endpoints, the win-rate ledger and operational routes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/metrics"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/projection"
	"github.com/perpsignal/perpsignal/internal/store"
	"github.com/perpsignal/perpsignal/internal/winrate"
)

// Server hosts the API over one mux router.
type Server struct {
	store   *store.Store
	tracker *winrate.Tracker
	engine  *projection.Engine
	metrics *metrics.Registry

	httpServer *http.Server
	startedAt  time.Time
}

// New wires the router and handlers.
func New(port int, st *store.Store, tr *winrate.Tracker, eng *projection.Engine, m *metrics.Registry) *Server {
	s := &Server{
		store:     st,
		tracker:   tr,
		engine:    eng,
		metrics:   m,
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(jsonMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/api/data/all", s.handleDataAll).Methods(http.MethodGet)
	r.HandleFunc("/api/data/{exchange}", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot/{exchange}", s.handleSnapshot).Methods(http.MethodGet)

	r.HandleFunc("/api/whale-trades", s.handleWhaleTrades).Methods(http.MethodGet)
	r.HandleFunc("/api/vwap/{coin}", s.handleVWAP).Methods(http.MethodGet)
	r.HandleFunc("/api/spot-cvd", s.handleSpotCVD).Methods(http.MethodGet)
	r.HandleFunc("/api/spot-cvd/{coin}", s.handleSpotCVD).Methods(http.MethodGet)
	r.HandleFunc("/api/exchange-flow/{coin}", s.handleExchangeFlow).Methods(http.MethodGet)
	r.HandleFunc("/api/etf-flows", s.handleETFFlows).Methods(http.MethodGet)
	r.HandleFunc("/api/liquidations", s.handleLiquidations).Methods(http.MethodGet)
	r.HandleFunc("/api/liquidations/{coin}", s.handleLiquidations).Methods(http.MethodGet)

	r.HandleFunc("/api/win-rates", s.handleWinRates).Methods(http.MethodGet)
	r.HandleFunc("/api/win-rates/{coin}", s.handleWinRates).Methods(http.MethodGet)
	r.HandleFunc("/api/predictions/{coin}", s.handlePredictions).Methods(http.MethodGet)
	r.HandleFunc("/api/backtest/predictions", s.handleBacktestPredictions).Methods(http.MethodGet)
	r.HandleFunc("/api/backtest/stats", s.handleBacktestStats).Methods(http.MethodGet)
	r.HandleFunc("/api/backtest/equity-curve", s.handleBacktestEquity).Methods(http.MethodGet)
	r.HandleFunc("/api/backtest/streaks", s.handleBacktestStreaks).Methods(http.MethodGet)

	// Coin-scoped signal routes come after the fixed /api prefixes so
	// they never shadow them.
	r.HandleFunc("/api/{coin}/projection", s.handleProjection).Methods(http.MethodGet)
	r.HandleFunc("/api/{coin}/4hr-bias", s.handle4HBias).Methods(http.MethodGet)
	r.HandleFunc("/api/{coin}/daily-bias", s.handleDailyBias).Methods(http.MethodGet)
	r.HandleFunc("/api/{coin}/liquidation-zones", s.handleLiquidationZones).Methods(http.MethodGet)

	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = jsonMiddleware(http.HandlerFunc(handleNotFound))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeBadCoin(w http.ResponseWriter, coin string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":      fmt.Sprintf("unknown coin %q", coin),
		"validCoins": models.Coins,
	})
}

func writeBadExchange(w http.ResponseWriter, exchange string, valid []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":          fmt.Sprintf("unknown exchange %q", exchange),
		"validExchanges": valid,
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": "Not Found",
		"path":  r.URL.Path,
	})
}
