package poll

import (
	"context"
	"fmt"
	"strconv"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const binanceFapiBase = "https://fapi.binance.com"

// Binance USD-M futures REST. premiumIndex covers mark price and
// funding; openInterest, depth and aggTrades are per symbol, and the
// global long/short account ratio feeds the sentiment endpoint.
type Binance struct {
	client  *Client
	store   *store.Store
	symbols []string

	// Last aggTrade id seen per symbol; trades at or below it have
	// already been counted into a CVD sample.
	lastAggTrade map[string]int64
}

// NewBinance polls the futures REST API for the given symbols.
func NewBinance(st *store.Store, symbols []string) *Binance {
	return &Binance{
		client:       NewClient("binance", 5),
		store:        st,
		symbols:      symbols,
		lastAggTrade: make(map[string]int64),
	}
}

func (b *Binance) Name() string { return "binance" }

type binancePremiumIndex struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

type binanceOpenInterest struct {
	OpenInterest string `json:"openInterest"`
}

type binanceDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

type binanceAggTrade struct {
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	Timestamp    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type binanceLongShort struct {
	LongAccount  string `json:"longAccount"`
	ShortAccount string `json:"shortAccount"`
	LongShort    string `json:"longShortRatio"`
	Timestamp    int64  `json:"timestamp"`
}

func (b *Binance) Poll(ctx context.Context) error {
	var premiums []binancePremiumIndex
	if err := b.client.GetJSON(ctx, binanceFapiBase+"/fapi/v1/premiumIndex", &premiums); err != nil {
		return err
	}
	marks := make(map[string]float64, len(b.symbols))
	for _, p := range premiums {
		coin, ok := b.wants(p.Symbol)
		if !ok {
			continue
		}
		mark, err := strconv.ParseFloat(p.MarkPrice, 64)
		if err != nil || mark <= 0 {
			continue
		}
		marks[p.Symbol] = mark
		b.store.AddPrice("binance", coin, mark)
		if funding, err := strconv.ParseFloat(p.LastFundingRate, 64); err == nil {
			b.store.AddFunding("binance", coin, funding)
		}
	}

	for _, symbol := range b.symbols {
		coin := models.CoinFromSymbol(symbol)
		mark := marks[symbol]

		var oi binanceOpenInterest
		if err := b.client.GetJSON(ctx, binanceFapiBase+"/fapi/v1/openInterest?symbol="+symbol, &oi); err != nil {
			return fmt.Errorf("openInterest %s: %w", symbol, err)
		}
		if base, err := strconv.ParseFloat(oi.OpenInterest, 64); err == nil && base > 0 && mark > 0 {
			b.store.AddOpenInterest("binance", coin, base*mark)
		}

		var depth binanceDepth
		if err := b.client.GetJSON(ctx, binanceFapiBase+"/fapi/v1/depth?limit=50&symbol="+symbol, &depth); err != nil {
			return fmt.Errorf("depth %s: %w", symbol, err)
		}
		imbalance, bidDepth, askDepth := depthImbalance(stringLevels(depth.Bids), stringLevels(depth.Asks))
		if bidDepth > 0 || askDepth > 0 {
			b.store.AddOrderbook("binance", coin, imbalance, bidDepth, askDepth)
		}

		var trades []binanceAggTrade
		if err := b.client.GetJSON(ctx, binanceFapiBase+"/fapi/v1/aggTrades?limit=100&symbol="+symbol, &trades); err != nil {
			return fmt.Errorf("aggTrades %s: %w", symbol, err)
		}
		if delta, cursor, n := aggTradesDelta(trades, b.lastAggTrade[symbol]); n > 0 {
			b.lastAggTrade[symbol] = cursor
			b.store.AddCVD("binance", coin, delta)
		}

		var ratios []binanceLongShort
		url := binanceFapiBase + "/futures/data/globalLongShortAccountRatio?period=5m&limit=1&symbol=" + symbol
		if err := b.client.GetJSON(ctx, url, &ratios); err != nil {
			return fmt.Errorf("longShortRatio %s: %w", symbol, err)
		}
		if len(ratios) > 0 {
			long, err1 := strconv.ParseFloat(ratios[0].LongAccount, 64)
			short, err2 := strconv.ParseFloat(ratios[0].ShortAccount, 64)
			ratio, err3 := strconv.ParseFloat(ratios[0].LongShort, 64)
			if err1 == nil && err2 == nil && err3 == nil {
				b.store.UpdateLongShort(coin, models.LongShortRatio{
					LongPct:   long * 100,
					ShortPct:  short * 100,
					Ratio:     ratio,
					Timestamp: ratios[0].Timestamp,
				})
			}
		}
	}
	return nil
}

func (b *Binance) wants(symbol string) (string, bool) {
	for _, s := range b.symbols {
		if s == symbol {
			return models.CoinFromSymbol(symbol), true
		}
	}
	return "", false
}

// aggTradesDelta nets the signed notional of aggregate trades past the
// id cursor. isBuyerMaker marks the taker as the seller.
func aggTradesDelta(trades []binanceAggTrade, cursor int64) (delta float64, newCursor int64, n int) {
	newCursor = cursor
	for _, tr := range trades {
		if tr.ID <= cursor {
			continue
		}
		price, err1 := strconv.ParseFloat(tr.Price, 64)
		qty, err2 := strconv.ParseFloat(tr.Quantity, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		notional := price * qty
		if tr.IsBuyerMaker {
			notional = -notional
		}
		delta += notional
		n++
		if tr.ID > newCursor {
			newCursor = tr.ID
		}
	}
	return delta, newCursor, n
}

func stringLevels(levels [][2]string) [][2]float64 {
	out := make([][2]float64, 0, len(levels))
	for _, lvl := range levels {
		px, err1 := strconv.ParseFloat(lvl[0], 64)
		sz, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, [2]float64{px, sz})
	}
	return out
}
