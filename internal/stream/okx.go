package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// OKX public trades channel. Keep-alive is the literal text "ping";
// the server answers "pong", which Parse ignores.
type okxDriver struct {
	symbols []string
}

// NewOKX streams perp trades for instruments like BTC-USDT-SWAP.
func NewOKX(symbols []string) Driver {
	return &okxDriver{symbols: symbols}
}

func (d *okxDriver) Exchange() string { return "okx" }
func (d *okxDriver) Venue() string    { return "perp" }
func (d *okxDriver) URL() string      { return "wss://ws.okx.com:8443/ws/v5/public" }

func (d *okxDriver) SubscribePayloads() [][]byte {
	args := make([]map[string]string, 0, len(d.symbols))
	for _, s := range d.symbols {
		args = append(args, map[string]string{"channel": "trades", "instId": s})
	}
	payload, _ := json.Marshal(map[string]any{"op": "subscribe", "args": args})
	return [][]byte{payload}
}

func (d *okxDriver) PingPayload() []byte         { return []byte("ping") }
func (d *okxDriver) PingInterval() time.Duration { return 25 * time.Second }

type okxEnvelope struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		InstID  string `json:"instId"`
		TradeID string `json:"tradeId"`
		Price   string `json:"px"`
		Size    string `json:"sz"`
		Side    string `json:"side"`
		Time    string `json:"ts"`
	} `json:"data"`
}

func (d *okxDriver) Parse(data []byte) Message {
	if string(data) == "pong" {
		return Message{}
	}
	var env okxEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Arg.Channel != "trades" {
		return Message{}
	}
	var msg Message
	for _, t := range env.Data {
		price, err1 := strconv.ParseFloat(t.Price, 64)
		size, err2 := strconv.ParseFloat(t.Size, 64)
		ts, err3 := strconv.ParseInt(t.Time, 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		side := models.SideBuy
		if t.Side == "sell" {
			side = models.SideSell
		}
		msg.Trades = append(msg.Trades, models.Trade{
			Symbol:    t.InstID,
			Price:     price,
			Size:      size,
			Side:      side,
			Timestamp: ts,
			TradeID:   t.TradeID,
		})
	}
	return msg
}
