// Package stream runs the websocket drivers. Each exchange supplies a
// small Driver (URL, subscribe frames, ping cadence, parser); the
// shared Runtime handles dialing, keep-alive, reconnect backoff, trade
// dedup, rolling CVD windows and the 5 s publish into the store.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/perpsignal/perpsignal/internal/metrics"
	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const (
	userAgent        = "PerpSignal/1.0"
	handshakeTimeout = 30 * time.Second
	publishEvery     = 5 * time.Second

	initialBackoff = 5 * time.Second
	maxReconnects  = 10

	dedupCap    = 10000
	dedupRetain = 5000
)

// largeTradeThresholds is the whale-feed notional floor per coin.
var largeTradeThresholds = map[string]float64{
	"BTC": 500_000,
	"ETH": 250_000,
	"SOL": 100_000,
}

// Message is the parse result of one inbound frame. A frame may carry
// zero, one or many trades, and forced-order streams carry liquidations
// instead.
type Message struct {
	Trades       []models.Trade
	Liquidations []models.LiquidationEvent
}

// Driver is the per-exchange wire adapter.
type Driver interface {
	Exchange() string
	Venue() string // spot | perp
	URL() string
	SubscribePayloads() [][]byte
	// PingPayload returns the exchange's application-level keep-alive
	// frame, or nil to use a websocket ping frame.
	PingPayload() []byte
	PingInterval() time.Duration
	// Parse turns one frame into trades and/or liquidations. Malformed
	// frames return an empty Message; they are dropped silently.
	Parse(data []byte) Message
}

type dedupSet struct {
	seen  map[string]struct{}
	order []string
}

func (d *dedupSet) add(id string) bool {
	if d.seen == nil {
		d.seen = make(map[string]struct{})
	}
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > dedupCap {
		drop := d.order[:len(d.order)-dedupRetain]
		for _, k := range drop {
			delete(d.seen, k)
		}
		d.order = append([]string(nil), d.order[len(d.order)-dedupRetain:]...)
	}
	return true
}

type flowEntry struct {
	ts       int64
	notional float64
	buy      bool
}

type coinWindow struct {
	entries      []flowEntry
	sincePublish float64
	active       bool
}

// Runtime drives one websocket connection for the lifetime of the
// service. Each driver gets its own; mu serialises the read loop
// against the publish ticker, which run on separate goroutines.
type Runtime struct {
	driver  Driver
	store   *store.Store
	metrics *metrics.Registry

	mu      sync.Mutex
	dedup   map[string]*dedupSet
	windows map[string]*coinWindow

	now func() int64
}

// NewRuntime builds the runtime for one driver.
func NewRuntime(d Driver, st *store.Store, m *metrics.Registry) *Runtime {
	return &Runtime{
		driver:  d,
		store:   st,
		metrics: m,
		dedup:   make(map[string]*dedupSet),
		windows: make(map[string]*coinWindow),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Run connects and reads until ctx is cancelled or the reconnect budget
// is spent. Backoff starts at 5 s and doubles per consecutive failure.
func (r *Runtime) Run(ctx context.Context) {
	exchange := r.driver.Exchange()
	attempts := 0
	backoff := initialBackoff

	ticker := time.NewTicker(publishEvery)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.publish()
			}
		}
	}()

	for {
		connected, err := r.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempts = 0
			backoff = initialBackoff
		}
		attempts++
		if attempts > maxReconnects {
			r.metrics.WSDriverStopped.WithLabelValues(exchange).Inc()
			log.Error().Str("exchange", exchange).Str("venue", r.driver.Venue()).
				Int("attempts", attempts-1).Msg("Stream driver exhausted reconnect budget, stopping")
			return
		}
		r.metrics.WSReconnects.WithLabelValues(exchange).Inc()
		log.Warn().Err(err).Str("exchange", exchange).Str("venue", r.driver.Venue()).
			Dur("backoff", backoff).Int("attempt", attempts).Msg("Stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// runConnection dials, subscribes and reads until failure. connected
// reports whether the subscribe handshake completed, which resets the
// attempt counter.
func (r *Runtime) runConnection(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	headers := http.Header{"User-Agent": []string{userAgent}}

	conn, _, err := dialer.DialContext(ctx, r.driver.URL(), headers)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	for _, payload := range r.driver.SubscribePayloads() {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return false, err
		}
	}
	log.Info().Str("exchange", r.driver.Exchange()).Str("venue", r.driver.Venue()).
		Str("url", r.driver.URL()).Msg("Stream connected")

	// Close the socket when ctx ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	pinger := time.NewTicker(r.driver.PingInterval())
	defer pinger.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pinger.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if payload := r.driver.PingPayload(); payload != nil {
					_ = conn.WriteMessage(websocket.TextMessage, payload)
				} else {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		r.handle(r.driver.Parse(data))
	}
}

func (r *Runtime) handle(msg Message) {
	for _, t := range msg.Trades {
		r.processTrade(t)
	}
	for _, ev := range msg.Liquidations {
		ev.Exchange = r.driver.Exchange()
		if ev.Notional == 0 {
			ev.Notional = ev.Price * ev.Quantity
		}
		if ev.Notional <= 0 {
			continue
		}
		r.store.AddLiquidation(ev)
		r.metrics.Liquidations.WithLabelValues(ev.Exchange).Inc()
	}
}

func (r *Runtime) processTrade(t models.Trade) {
	notional := t.Notional()
	if notional <= 0 {
		return
	}
	coin := models.CoinFromSymbol(t.Symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.TradeID != "" {
		set, ok := r.dedup[coin]
		if !ok {
			set = &dedupSet{}
			r.dedup[coin] = set
		}
		if !set.add(t.TradeID) {
			r.metrics.TradesDeduped.WithLabelValues(r.driver.Exchange(), r.driver.Venue()).Inc()
			return
		}
	}
	r.metrics.TradesIngested.WithLabelValues(r.driver.Exchange(), r.driver.Venue()).Inc()

	w, ok := r.windows[coin]
	if !ok {
		w = &coinWindow{}
		r.windows[coin] = w
	}
	w.active = true
	w.entries = append(w.entries, flowEntry{ts: t.Timestamp, notional: notional, buy: t.Side == models.SideBuy})
	if t.Side == models.SideBuy {
		w.sincePublish += notional
	} else {
		w.sincePublish -= notional
	}

	if threshold, ok := largeTradeThresholds[coin]; ok && notional >= threshold {
		r.store.AddLargeTrade(models.LargeTrade{
			Exchange:   r.driver.Exchange(),
			Venue:      r.driver.Venue(),
			Symbol:     t.Symbol,
			Price:      t.Price,
			Size:       t.Size,
			Notional:   notional,
			Side:       t.Side,
			TradeID:    t.TradeID,
			Timestamp:  t.Timestamp,
			ReceivedAt: r.now(),
		})
	}
}

// publish pushes each active coin's accumulated delta into the store's
// CVD series and refreshes the 5/15/60 minute flow buckets.
func (r *Runtime) publish() {
	nowMs := r.now()
	cutoff := nowMs - time.Hour.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	for coin, w := range r.windows {
		if !w.active {
			continue
		}
		i := 0
		for i < len(w.entries) && w.entries[i].ts < cutoff {
			i++
		}
		if i > 0 {
			w.entries = append([]flowEntry(nil), w.entries[i:]...)
		}

		delta := w.sincePublish
		w.sincePublish = 0
		if r.driver.Venue() == "spot" {
			r.store.UpdateSpotCVD(r.driver.Exchange(), coin, delta)
		} else {
			r.store.AddCVD(r.driver.Exchange(), coin, delta)
		}

		for _, window := range []struct {
			minutes int
			dur     time.Duration
		}{{5, 5 * time.Minute}, {15, 15 * time.Minute}, {60, time.Hour}} {
			start := nowMs - window.dur.Milliseconds()
			var buy, sell float64
			for _, e := range w.entries {
				if e.ts < start {
					continue
				}
				if e.buy {
					buy += e.notional
				} else {
					sell += e.notional
				}
			}
			r.store.UpdateExchangeFlow(coin, r.driver.Exchange(), r.driver.Venue(), window.minutes, buy, sell)
		}
	}
}
