package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Kraken v1 public trade feed. Trade payloads arrive as positional
// JSON arrays: [channelID, [[price, volume, time, side, orderType,
// misc], ...], "trade", "XBT/USD"]. No native trade IDs, so one is
// synthesised from pair, timestamp, price and volume.
type krakenDriver struct {
	symbols []string
}

// NewKraken streams spot trades for pairs like XBT/USD.
func NewKraken(symbols []string) Driver {
	return &krakenDriver{symbols: symbols}
}

func (d *krakenDriver) Exchange() string { return "kraken" }
func (d *krakenDriver) Venue() string    { return "spot" }
func (d *krakenDriver) URL() string      { return "wss://ws.kraken.com" }

func (d *krakenDriver) SubscribePayloads() [][]byte {
	payload, _ := json.Marshal(map[string]any{
		"event":        "subscribe",
		"pair":         d.symbols,
		"subscription": map[string]string{"name": "trade"},
	})
	return [][]byte{payload}
}

func (d *krakenDriver) PingPayload() []byte         { return []byte(`{"event":"ping"}`) }
func (d *krakenDriver) PingInterval() time.Duration { return 30 * time.Second }

func (d *krakenDriver) Parse(data []byte) Message {
	// Event messages (heartbeat, subscriptionStatus, pong) are objects;
	// trade payloads are arrays.
	if len(data) == 0 || data[0] != '[' {
		return Message{}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 4 {
		return Message{}
	}
	var channel, pair string
	if err := json.Unmarshal(raw[2], &channel); err != nil || channel != "trade" {
		return Message{}
	}
	if err := json.Unmarshal(raw[3], &pair); err != nil {
		return Message{}
	}
	var entries [][]string
	if err := json.Unmarshal(raw[1], &entries); err != nil {
		return Message{}
	}
	var msg Message
	for _, e := range entries {
		if len(e) < 4 {
			continue
		}
		price, err1 := strconv.ParseFloat(e[0], 64)
		volume, err2 := strconv.ParseFloat(e[1], 64)
		secs, err3 := strconv.ParseFloat(e[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		side := models.SideBuy
		if e[3] == "s" {
			side = models.SideSell
		}
		ts := int64(secs * 1000)
		msg.Trades = append(msg.Trades, models.Trade{
			Symbol:    pair,
			Price:     price,
			Size:      volume,
			Side:      side,
			Timestamp: ts,
			TradeID:   fmt.Sprintf("%s-%d-%s-%s", pair, ts, e[0], e[1]),
		})
	}
	return msg
}
