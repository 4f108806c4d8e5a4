// Package models holds the neutral data types shared by the ingestion
// drivers, the time-series store, the factor library and the projection
// engine. Everything here is plain data; no I/O, no locking.
package models

// Side is the taker side of a trade or the wire side of a forced order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is the neutral representation every stream driver parses into.
// A non-positive notional trade is dropped before it reaches the store.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      Side    `json:"side"`
	Timestamp int64   `json:"timestamp"`
	TradeID   string  `json:"tradeId"`
}

// Notional returns the USD notional of the trade.
func (t Trade) Notional() float64 {
	return t.Price * t.Size
}

// SeriesPoint is one sample of a value series (price, OI, funding).
type SeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// CVDPoint is one signed volume-delta sample.
type CVDPoint struct {
	Time  int64   `json:"time"`
	Delta float64 `json:"delta"`
}

// BookPoint is one order-book imbalance sample. Imbalance is the raw
// (bid-ask)/(bid+ask) ratio in [-1,1]; depths are the raw top-N sums.
type BookPoint struct {
	Timestamp int64   `json:"timestamp"`
	Imbalance float64 `json:"imbalance"`
	BidDepth  float64 `json:"bidDepth"`
	AskDepth  float64 `json:"askDepth"`
}

// LiquidationEvent is a normalised forced order. Side carries the wire
// side: SELL means a long was liquidated, BUY means a short was.
type LiquidationEvent struct {
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Notional  float64 `json:"notional"`
	Timestamp int64   `json:"timestamp"`
	Exchange  string  `json:"exchange"`
}

// LargeTrade is an entry of the whale-trade ring buffer.
type LargeTrade struct {
	Exchange   string  `json:"exchange"`
	Venue      string  `json:"venue"` // spot | perp
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Notional   float64 `json:"notional"`
	Side       Side    `json:"side"`
	TradeID    string  `json:"tradeId"`
	Timestamp  int64   `json:"timestamp"`
	ReceivedAt int64   `json:"receivedAt"`
}

// DedupKey identifies a large trade across restarts and venues.
func (t LargeTrade) DedupKey() string {
	return t.Exchange + ":" + t.TradeID + ":" + t.Symbol
}

// ExchangeFlow is the per (coin, exchange, venue) buy/sell volume bucket,
// refreshed roughly every five seconds by the stream drivers.
type ExchangeFlow struct {
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	Timestamp  int64   `json:"timestamp"`
}

// ETFDay is one day of aggregate ETF net flow.
type ETFDay struct {
	Date       string  `json:"date"`
	NetFlowUSD float64 `json:"netFlowUsd"`
}

// ETFFlowState is the current ETF-flow picture plus a short history.
type ETFFlowState struct {
	LastUpdated  int64              `json:"lastUpdated"`
	MarketStatus string             `json:"marketStatus"`
	NetFlowUSD   float64            `json:"netFlowUsd"`
	Breakdown    map[string]float64 `json:"breakdown"`
	History      []ETFDay           `json:"history"`
}

// WhaleConsensus summarises large-position data for a coin.
type WhaleConsensus struct {
	Positions        int     `json:"positions"`
	LongPct          float64 `json:"longPct"` // 0..1
	ConsistentLongs  int     `json:"consistentLongs"`
	ConsistentShorts int     `json:"consistentShorts"`
	UpdatedAt        int64   `json:"updatedAt"`
}

// LongShortRatio is the latest account long/short split for a coin.
type LongShortRatio struct {
	LongPct   float64 `json:"longPct"`
	ShortPct  float64 `json:"shortPct"`
	Ratio     float64 `json:"ratio"`
	Timestamp int64   `json:"timestamp"`
}

// VWAPBundle is the rolling 24 h VWAP for a coin with deviation bands.
type VWAPBundle struct {
	VWAP         float64 `json:"vwap"`
	UpperBand    float64 `json:"upperBand"`
	LowerBand    float64 `json:"lowerBand"`
	DeviationPct float64 `json:"deviationPct"`
	Samples      int     `json:"samples"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// CurrentSnapshot caches the latest value of every series for O(1) reads.
type CurrentSnapshot struct {
	Price        float64 `json:"price"`
	OpenInterest float64 `json:"openInterest"`
	Funding      float64 `json:"funding"`
	Imbalance    float64 `json:"imbalance"`
	BidDepth     float64 `json:"bidDepth"`
	AskDepth     float64 `json:"askDepth"`
	CVDDelta     float64 `json:"cvdDelta"`
	UpdatedAt    int64   `json:"updatedAt"`
}
