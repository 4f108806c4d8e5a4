package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Coinbase Exchange matches channel. The side field is the MAKER's
// side, so a "sell" match means the taker bought.
type coinbaseDriver struct {
	symbols []string
}

// NewCoinbase streams spot matches for products like BTC-USD.
func NewCoinbase(symbols []string) Driver {
	return &coinbaseDriver{symbols: symbols}
}

func (d *coinbaseDriver) Exchange() string { return "coinbase" }
func (d *coinbaseDriver) Venue() string    { return "spot" }
func (d *coinbaseDriver) URL() string      { return "wss://ws-feed.exchange.coinbase.com" }

func (d *coinbaseDriver) SubscribePayloads() [][]byte {
	payload, _ := json.Marshal(map[string]any{
		"type":        "subscribe",
		"product_ids": d.symbols,
		"channels":    []string{"matches"},
	})
	return [][]byte{payload}
}

func (d *coinbaseDriver) PingPayload() []byte         { return nil }
func (d *coinbaseDriver) PingInterval() time.Duration { return 30 * time.Second }

type coinbaseMatch struct {
	Type      string `json:"type"`
	TradeID   int64  `json:"trade_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

func (d *coinbaseDriver) Parse(data []byte) Message {
	var m coinbaseMatch
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}
	}
	if m.Type != "match" && m.Type != "last_match" {
		return Message{}
	}
	price, err1 := strconv.ParseFloat(m.Price, 64)
	size, err2 := strconv.ParseFloat(m.Size, 64)
	if err1 != nil || err2 != nil {
		return Message{}
	}
	ts := time.Now().UnixMilli()
	if t, err := time.Parse(time.RFC3339Nano, m.Time); err == nil {
		ts = t.UnixMilli()
	}
	// Maker sold means taker bought.
	side := models.SideBuy
	if m.Side == "buy" {
		side = models.SideSell
	}
	return Message{Trades: []models.Trade{{
		Symbol:    m.ProductID,
		Price:     price,
		Size:      size,
		Side:      side,
		Timestamp: ts,
		TradeID:   strconv.FormatInt(m.TradeID, 10),
	}}}
}
