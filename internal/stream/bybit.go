package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Bybit v5 public streams. Linear carries perp trades plus the
// allLiquidation topic; spot carries trades only. Keep-alive is an
// application-level {"op":"ping"} frame.
type bybitDriver struct {
	venue   string
	url     string
	symbols []string
}

// NewBybitLinear streams perp trades and liquidations.
func NewBybitLinear(symbols []string) Driver {
	return &bybitDriver{venue: "perp", url: "wss://stream.bybit.com/v5/public/linear", symbols: symbols}
}

// NewBybitSpot streams spot trades.
func NewBybitSpot(symbols []string) Driver {
	return &bybitDriver{venue: "spot", url: "wss://stream.bybit.com/v5/public/spot", symbols: symbols}
}

func (d *bybitDriver) Exchange() string { return "bybit" }
func (d *bybitDriver) Venue() string    { return d.venue }
func (d *bybitDriver) URL() string      { return d.url }

func (d *bybitDriver) SubscribePayloads() [][]byte {
	args := make([]string, 0, 2*len(d.symbols))
	for _, s := range d.symbols {
		args = append(args, "publicTrade."+s)
		if d.venue == "perp" {
			args = append(args, "allLiquidation."+s)
		}
	}
	payload, _ := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	return [][]byte{payload}
}

func (d *bybitDriver) PingPayload() []byte         { return []byte(`{"op":"ping"}`) }
func (d *bybitDriver) PingInterval() time.Duration { return 20 * time.Second }

type bybitEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type bybitTrade struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
	TradeID   string `json:"i"`
}

type bybitLiquidation struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
}

func (d *bybitDriver) Parse(data []byte) Message {
	var env bybitEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Data == nil {
		return Message{}
	}
	switch {
	case hasPrefix(env.Topic, "publicTrade."):
		var trades []bybitTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return Message{}
		}
		var msg Message
		for _, t := range trades {
			price, err1 := strconv.ParseFloat(t.Price, 64)
			size, err2 := strconv.ParseFloat(t.Size, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			msg.Trades = append(msg.Trades, models.Trade{
				Symbol:    t.Symbol,
				Price:     price,
				Size:      size,
				Side:      bybitSide(t.Side),
				Timestamp: t.Timestamp,
				TradeID:   t.TradeID,
			})
		}
		return msg
	case hasPrefix(env.Topic, "allLiquidation."):
		var liqs []bybitLiquidation
		if err := json.Unmarshal(env.Data, &liqs); err != nil {
			return Message{}
		}
		var msg Message
		for _, l := range liqs {
			price, err1 := strconv.ParseFloat(l.Price, 64)
			size, err2 := strconv.ParseFloat(l.Size, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			// Side is the forced order's execution side: a liquidated
			// long is force-sold, so SELL means longs got flushed.
			msg.Liquidations = append(msg.Liquidations, models.LiquidationEvent{
				Symbol:    l.Symbol,
				Side:      bybitSide(l.Side),
				Price:     price,
				Quantity:  size,
				Notional:  price * size,
				Timestamp: l.Timestamp,
			})
		}
		return msg
	}
	return Message{}
}

func bybitSide(s string) models.Side {
	if s == "Sell" {
		return models.SideSell
	}
	return models.SideBuy
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
