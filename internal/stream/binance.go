package stream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Binance combined streams: one connection multiplexes aggTrade (and
// forceOrder on futures) topics. isBuyerMaker=true means the taker sold.
type binanceDriver struct {
	venue   string
	symbols []string
	url     string
}

// NewBinanceSpot streams aggregated spot trades.
func NewBinanceSpot(symbols []string) Driver {
	return &binanceDriver{
		venue:   "spot",
		symbols: symbols,
		url:     "wss://stream.binance.com:9443/stream?streams=" + binanceTopics(symbols, "aggTrade"),
	}
}

// NewBinanceFutures streams aggregated perp trades.
func NewBinanceFutures(symbols []string) Driver {
	return &binanceDriver{
		venue:   "perp",
		symbols: symbols,
		url:     "wss://fstream.binance.com/stream?streams=" + binanceTopics(symbols, "aggTrade"),
	}
}

func binanceTopics(symbols []string, topic string) string {
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		parts = append(parts, strings.ToLower(s)+"@"+topic)
	}
	return strings.Join(parts, "/")
}

func (d *binanceDriver) Exchange() string             { return "binance" }
func (d *binanceDriver) Venue() string                { return d.venue }
func (d *binanceDriver) URL() string                  { return d.url }
func (d *binanceDriver) SubscribePayloads() [][]byte  { return nil } // topics ride the URL
func (d *binanceDriver) PingPayload() []byte          { return nil } // ws-level ping
func (d *binanceDriver) PingInterval() time.Duration  { return 30 * time.Second }

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceAggTrade struct {
	Event        string `json:"e"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeID      int64  `json:"a"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (d *binanceDriver) Parse(data []byte) Message {
	var env binanceEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Data == nil {
		return Message{}
	}
	var t binanceAggTrade
	if err := json.Unmarshal(env.Data, &t); err != nil || t.Event != "aggTrade" {
		return Message{}
	}
	price, err1 := strconv.ParseFloat(t.Price, 64)
	qty, err2 := strconv.ParseFloat(t.Quantity, 64)
	if err1 != nil || err2 != nil {
		return Message{}
	}
	side := models.SideBuy
	if t.IsBuyerMaker {
		side = models.SideSell
	}
	return Message{Trades: []models.Trade{{
		Symbol:    t.Symbol,
		Price:     price,
		Size:      qty,
		Side:      side,
		Timestamp: t.TradeTime,
		TradeID:   strconv.FormatInt(t.TradeID, 10),
	}}}
}

// binanceForceOrders streams futures liquidations.
type binanceForceOrders struct {
	symbols []string
	url     string
}

// NewBinanceForceOrders streams forced orders (liquidations) from the
// futures endpoint. A SELL forced order is a long being closed out.
func NewBinanceForceOrders(symbols []string) Driver {
	return &binanceForceOrders{
		symbols: symbols,
		url:     "wss://fstream.binance.com/stream?streams=" + binanceTopics(symbols, "forceOrder"),
	}
}

func (d *binanceForceOrders) Exchange() string            { return "binance" }
func (d *binanceForceOrders) Venue() string               { return "perp" }
func (d *binanceForceOrders) URL() string                 { return d.url }
func (d *binanceForceOrders) SubscribePayloads() [][]byte { return nil }
func (d *binanceForceOrders) PingPayload() []byte         { return nil }
func (d *binanceForceOrders) PingInterval() time.Duration { return 30 * time.Second }

type binanceForceOrder struct {
	Event string `json:"e"`
	Order struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		Quantity     string `json:"q"`
		AveragePrice string `json:"ap"`
		TradeTime    int64  `json:"T"`
	} `json:"o"`
}

func (d *binanceForceOrders) Parse(data []byte) Message {
	var env binanceEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Data == nil {
		return Message{}
	}
	var fo binanceForceOrder
	if err := json.Unmarshal(env.Data, &fo); err != nil || fo.Event != "forceOrder" {
		return Message{}
	}
	price, err1 := strconv.ParseFloat(fo.Order.AveragePrice, 64)
	qty, err2 := strconv.ParseFloat(fo.Order.Quantity, 64)
	if err1 != nil || err2 != nil {
		return Message{}
	}
	side := models.SideBuy
	if strings.EqualFold(fo.Order.Side, "SELL") {
		side = models.SideSell
	}
	return Message{Liquidations: []models.LiquidationEvent{{
		Symbol:    fo.Order.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Notional:  price * qty,
		Timestamp: fo.Order.TradeTime,
	}}}
}
