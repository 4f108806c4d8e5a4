// Package etf polls SoSoValue for US spot bitcoin ETF flows. The
// upstream has shuffled its paths more than once, so a small list of
// candidate endpoints is tried in order and the first parseable 2xx
// wins.
package etf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

// Interval is the poll cadence.
const Interval = 30 * time.Minute

var endpoints = []string{
	"https://api.sosovalue.com/openapi/v2/etf/currentEtfDataMetrics",
	"https://api.sosovalue.xyz/openapi/v2/etf/currentEtfDataMetrics",
	"https://open-api.sosovalue.com/openapi/v2/etf/currentEtfDataMetrics",
}

// tickers are the funds summed into the breakdown.
var tickers = []string{"IBIT", "FBTC", "ARKB"}

// Poller fetches ETF flows on a fixed cadence. Disabled (with one
// warning at start) when no API key is configured.
type Poller struct {
	apiKey string
	store  *store.Store
	http   *http.Client
	now    func() time.Time
}

// New builds the poller. An empty apiKey disables it.
func New(st *store.Store, apiKey string) *Poller {
	return &Poller{
		apiKey: apiKey,
		store:  st,
		http:   &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

// Run polls immediately and then every Interval until ctx ends.
func (p *Poller) Run(ctx context.Context) {
	if p.apiKey == "" {
		log.Warn().Msg("SOSOVALUE_API_KEY not set, ETF flow polling disabled")
		return
	}
	p.poll(ctx)
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

type sosoResponse struct {
	Code int `json:"code"`
	Data struct {
		TotalNetInflow json.Number `json:"totalNetInflow"`
		List           []struct {
			Ticker    string      `json:"ticker"`
			NetInflow json.Number `json:"netInflow"`
		} `json:"list"`
		History []struct {
			Date      string      `json:"date"`
			NetInflow json.Number `json:"totalNetInflow"`
		} `json:"history"`
	} `json:"data"`
}

func (p *Poller) poll(ctx context.Context) {
	resp, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("ETF flow poll failed")
		}
		return
	}

	state := models.ETFFlowState{
		LastUpdated:  p.now().UnixMilli(),
		MarketStatus: MarketStatus(p.now()),
		Breakdown:    make(map[string]float64, len(tickers)),
	}
	state.NetFlowUSD, _ = resp.Data.TotalNetInflow.Float64()
	for _, fund := range resp.Data.List {
		for _, t := range tickers {
			if fund.Ticker == t {
				v, _ := fund.NetInflow.Float64()
				state.Breakdown[t] = v
			}
		}
	}
	for _, day := range resp.Data.History {
		v, _ := day.NetInflow.Float64()
		state.History = append(state.History, models.ETFDay{Date: day.Date, NetFlowUSD: v})
	}

	p.store.UpdateETFFlows(state)
	log.Debug().Float64("netFlowUsd", state.NetFlowUSD).Str("marketStatus", state.MarketStatus).
		Msg("ETF flows updated")
}

// fetch tries each candidate endpoint in order.
func (p *Poller) fetch(ctx context.Context) (*sosoResponse, error) {
	var lastErr error
	for _, url := range endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-soso-api-key", p.apiKey)
		req.Header.Set("User-Agent", "PerpSignal/1.0")

		resp, err := p.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("%s: status %d", url, resp.StatusCode)
			continue
		}
		var parsed sosoResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("%s: %w", url, err)
			continue
		}
		if parsed.Code != 0 {
			lastErr = fmt.Errorf("%s: upstream code %d", url, parsed.Code)
			continue
		}
		return &parsed, nil
	}
	return nil, fmt.Errorf("all endpoints failed: %w", lastErr)
}

// MarketStatus classifies the given instant against the US equity
// session in US/Eastern.
func MarketStatus(t time.Time) string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return "unknown"
	}
	et := t.In(loc)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return "weekend"
	}
	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes < 4*60:
		return "closed"
	case minutes < 9*60+30:
		return "pre-market"
	case minutes < 16*60:
		return "open"
	default:
		return "after-hours"
	}
}
