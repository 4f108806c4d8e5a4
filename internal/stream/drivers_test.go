package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpsignal/perpsignal/internal/models"
)

func TestBinanceParseAggTrade(t *testing.T) {
	d := NewBinanceSpot([]string{"BTCUSDT"})
	frame := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"65000.10","q":"0.5","a":12345,"T":1760000000000,"m":true}}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	tr := msg.Trades[0]
	assert.Equal(t, "BTCUSDT", tr.Symbol)
	assert.Equal(t, 65_000.10, tr.Price)
	assert.Equal(t, 0.5, tr.Size)
	// Buyer-was-maker means the taker sold.
	assert.Equal(t, models.SideSell, tr.Side)
	assert.Equal(t, "12345", tr.TradeID)
	assert.Equal(t, int64(1760000000000), tr.Timestamp)

	taker := d.Parse([]byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"65000","q":"1","a":1,"T":1,"m":false}}`))
	require.Len(t, taker.Trades, 1)
	assert.Equal(t, models.SideBuy, taker.Trades[0].Side)
}

func TestBinanceParseRejectsMalformed(t *testing.T) {
	d := NewBinanceSpot([]string{"BTCUSDT"})
	for _, frame := range []string{
		`not json`,
		`{"result":null,"id":1}`,
		`{"stream":"x","data":{"e":"kline"}}`,
		`{"stream":"x","data":{"e":"aggTrade","p":"oops","q":"1"}}`,
	} {
		assert.Empty(t, d.Parse([]byte(frame)).Trades, frame)
	}
}

func TestBinanceTopicsURL(t *testing.T) {
	d := NewBinanceFutures([]string{"BTCUSDT", "ETHUSDT"})
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@aggTrade/ethusdt@aggTrade", d.URL())
	assert.Empty(t, d.SubscribePayloads())
}

func TestBinanceParseForceOrder(t *testing.T) {
	d := NewBinanceForceOrders([]string{"BTCUSDT"})
	frame := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"2","ap":"64000","T":1760000000000}}}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Liquidations, 1)
	liq := msg.Liquidations[0]
	// A forced SELL closes a long.
	assert.Equal(t, models.SideSell, liq.Side)
	assert.InDelta(t, 128_000, liq.Notional, 1e-6)
	assert.Equal(t, "BTCUSDT", liq.Symbol)
}

func TestBybitParseTradeTopic(t *testing.T) {
	d := NewBybitLinear([]string{"BTCUSDT"})
	frame := []byte(`{"topic":"publicTrade.BTCUSDT","data":[{"T":1760000000000,"s":"BTCUSDT","S":"Sell","v":"0.25","p":"64950.5","i":"abc-1"}]}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	assert.Equal(t, models.SideSell, msg.Trades[0].Side)
	assert.Equal(t, "abc-1", msg.Trades[0].TradeID)

	// Op acks and pongs carry no data and parse to nothing.
	assert.Empty(t, d.Parse([]byte(`{"op":"pong","success":true}`)).Trades)
}

func TestBybitParseLiquidationTopic(t *testing.T) {
	d := NewBybitLinear([]string{"BTCUSDT"})
	frame := []byte(`{"topic":"allLiquidation.BTCUSDT","data":[{"T":1760000000000,"s":"BTCUSDT","S":"Sell","v":"3","p":"64000"}]}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Liquidations, 1)
	assert.Equal(t, models.SideSell, msg.Liquidations[0].Side)
	assert.InDelta(t, 192_000, msg.Liquidations[0].Notional, 1e-6)
}

func TestBybitSubscribeArgs(t *testing.T) {
	perp := NewBybitLinear([]string{"BTCUSDT"}).SubscribePayloads()
	require.Len(t, perp, 1)
	assert.Contains(t, string(perp[0]), "publicTrade.BTCUSDT")
	assert.Contains(t, string(perp[0]), "allLiquidation.BTCUSDT")

	spot := NewBybitSpot([]string{"BTCUSDT"}).SubscribePayloads()
	require.Len(t, spot, 1)
	assert.NotContains(t, string(spot[0]), "allLiquidation")
}

func TestOKXParse(t *testing.T) {
	d := NewOKX([]string{"BTC-USDT-SWAP"})
	frame := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","tradeId":"777","px":"65010.2","sz":"0.4","side":"sell","ts":"1760000000000"}]}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	assert.Equal(t, models.SideSell, msg.Trades[0].Side)
	assert.Equal(t, int64(1760000000000), msg.Trades[0].Timestamp)
	assert.Equal(t, "777", msg.Trades[0].TradeID)

	assert.Empty(t, d.Parse([]byte(`pong`)).Trades)
	assert.Empty(t, d.Parse([]byte(`{"event":"subscribe","arg":{"channel":"trades"}}`)).Trades)
}

func TestCoinbaseParseInvertsMakerSide(t *testing.T) {
	d := NewCoinbase([]string{"BTC-USD"})
	frame := []byte(`{"type":"match","trade_id":9001,"product_id":"BTC-USD","size":"0.1","price":"65000","side":"buy","time":"2026-03-10T12:00:00.123456Z"}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	tr := msg.Trades[0]
	// Maker bought, so the aggressor sold.
	assert.Equal(t, models.SideSell, tr.Side)
	assert.Equal(t, "9001", tr.TradeID)
	assert.Equal(t, int64(1773144000123), tr.Timestamp)

	assert.Empty(t, d.Parse([]byte(`{"type":"subscriptions","channels":[]}`)).Trades)
}

func TestKrakenParse(t *testing.T) {
	d := NewKraken([]string{"XBT/USD"})
	frame := []byte(`[337,[["65000.50000","0.10000000","1760000000.123456","s","l",""]],"trade","XBT/USD"]`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	tr := msg.Trades[0]
	assert.Equal(t, "XBT/USD", tr.Symbol)
	assert.Equal(t, models.SideSell, tr.Side)
	assert.Equal(t, int64(1760000000123), tr.Timestamp)
	// Synthesised id is stable per (pair, ts, price, volume).
	assert.Equal(t, tr.TradeID, d.Parse(frame).Trades[0].TradeID)

	// Object frames (heartbeats, status) are not trades.
	assert.Empty(t, d.Parse([]byte(`{"event":"heartbeat"}`)).Trades)
	assert.Empty(t, d.Parse([]byte(`[337,"spread","XBT/USD"]`)).Trades)
}

func TestHyperliquidParse(t *testing.T) {
	d := NewHyperliquid([]string{"BTC"})
	frame := []byte(`{"channel":"trades","data":[{"coin":"BTC","side":"A","px":"65000","sz":"0.5","time":1760000000000,"tid":424242}]}`)

	msg := d.Parse(frame)
	require.Len(t, msg.Trades, 1)
	// "A" hit the ask-side resting orders: aggressive sell.
	assert.Equal(t, models.SideSell, msg.Trades[0].Side)
	assert.Equal(t, "424242", msg.Trades[0].TradeID)

	assert.Empty(t, d.Parse([]byte(`{"channel":"pong"}`)).Trades)
	assert.Len(t, d.SubscribePayloads(), 1)
}
