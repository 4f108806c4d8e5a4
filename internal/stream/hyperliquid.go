package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Hyperliquid trades subscription. Coins are bare symbols (BTC) and
// side is "B" (taker buy) or "A" (taker sell, hit the ask book).
type hyperliquidDriver struct {
	coins []string
}

// NewHyperliquid streams perp trades for the given coins.
func NewHyperliquid(coins []string) Driver {
	return &hyperliquidDriver{coins: coins}
}

func (d *hyperliquidDriver) Exchange() string { return "hyperliquid" }
func (d *hyperliquidDriver) Venue() string    { return "perp" }
func (d *hyperliquidDriver) URL() string      { return "wss://api.hyperliquid.xyz/ws" }

func (d *hyperliquidDriver) SubscribePayloads() [][]byte {
	payloads := make([][]byte, 0, len(d.coins))
	for _, coin := range d.coins {
		p, _ := json.Marshal(map[string]any{
			"method":       "subscribe",
			"subscription": map[string]string{"type": "trades", "coin": coin},
		})
		payloads = append(payloads, p)
	}
	return payloads
}

func (d *hyperliquidDriver) PingPayload() []byte         { return []byte(`{"method":"ping"}`) }
func (d *hyperliquidDriver) PingInterval() time.Duration { return 30 * time.Second }

type hyperliquidEnvelope struct {
	Channel string `json:"channel"`
	Data    []struct {
		Coin    string `json:"coin"`
		Side    string `json:"side"`
		Price   string `json:"px"`
		Size    string `json:"sz"`
		Time    int64  `json:"time"`
		TradeID int64  `json:"tid"`
	} `json:"data"`
}

func (d *hyperliquidDriver) Parse(data []byte) Message {
	var env hyperliquidEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Channel != "trades" {
		return Message{}
	}
	var msg Message
	for _, t := range env.Data {
		price, err1 := strconv.ParseFloat(t.Price, 64)
		size, err2 := strconv.ParseFloat(t.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		side := models.SideBuy
		if t.Side == "A" {
			side = models.SideSell
		}
		msg.Trades = append(msg.Trades, models.Trade{
			Symbol:    t.Coin,
			Price:     price,
			Size:      size,
			Side:      side,
			Timestamp: t.Time,
			TradeID:   strconv.FormatInt(t.TradeID, 10),
		})
	}
	return msg
}
