package poll

import (
	"context"
	"fmt"
	"strconv"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const bybitAPIBase = "https://api.bybit.com"

// Bybit v5 market REST. One tickers call covers price, funding and open
// interest value; orderbook and recent-trade are per symbol.
type Bybit struct {
	client  *Client
	store   *store.Store
	symbols []string

	// Newest trade time seen per symbol; older trades have already been
	// counted into a CVD sample.
	lastTradeTime map[string]int64
}

// NewBybit polls the linear category for the given symbols.
func NewBybit(st *store.Store, symbols []string) *Bybit {
	return &Bybit{
		client:        NewClient("bybit", 5),
		store:         st,
		symbols:       symbols,
		lastTradeTime: make(map[string]int64),
	}
}

func (b *Bybit) Name() string { return "bybit" }

type bybitTickers struct {
	RetCode int `json:"retCode"`
	Result  struct {
		List []struct {
			Symbol            string `json:"symbol"`
			LastPrice         string `json:"lastPrice"`
			FundingRate       string `json:"fundingRate"`
			OpenInterestValue string `json:"openInterestValue"`
		} `json:"list"`
	} `json:"result"`
}

type bybitTrade struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
	Time  string `json:"time"`
}

type bybitTrades struct {
	RetCode int `json:"retCode"`
	Result  struct {
		List []bybitTrade `json:"list"`
	} `json:"result"`
}

type bybitOrderbook struct {
	RetCode int `json:"retCode"`
	Result  struct {
		Bids [][2]string `json:"b"`
		Asks [][2]string `json:"a"`
	} `json:"result"`
}

func (b *Bybit) Poll(ctx context.Context) error {
	wanted := make(map[string]bool, len(b.symbols))
	for _, s := range b.symbols {
		wanted[s] = true
	}

	var tickers bybitTickers
	if err := b.client.GetJSON(ctx, bybitAPIBase+"/v5/market/tickers?category=linear", &tickers); err != nil {
		return err
	}
	if tickers.RetCode != 0 {
		return fmt.Errorf("tickers: retCode %d", tickers.RetCode)
	}
	for _, t := range tickers.Result.List {
		if !wanted[t.Symbol] {
			continue
		}
		coin := models.CoinFromSymbol(t.Symbol)
		if price, err := strconv.ParseFloat(t.LastPrice, 64); err == nil && price > 0 {
			b.store.AddPrice("bybit", coin, price)
		}
		if oiUSD, err := strconv.ParseFloat(t.OpenInterestValue, 64); err == nil && oiUSD > 0 {
			b.store.AddOpenInterest("bybit", coin, oiUSD)
		}
		if funding, err := strconv.ParseFloat(t.FundingRate, 64); err == nil {
			b.store.AddFunding("bybit", coin, funding)
		}
	}

	for _, symbol := range b.symbols {
		var book bybitOrderbook
		url := bybitAPIBase + "/v5/market/orderbook?category=linear&limit=50&symbol=" + symbol
		if err := b.client.GetJSON(ctx, url, &book); err != nil {
			return fmt.Errorf("orderbook %s: %w", symbol, err)
		}
		if book.RetCode != 0 {
			return fmt.Errorf("orderbook %s: retCode %d", symbol, book.RetCode)
		}
		imbalance, bidDepth, askDepth := depthImbalance(stringLevels(book.Result.Bids), stringLevels(book.Result.Asks))
		if bidDepth > 0 || askDepth > 0 {
			b.store.AddOrderbook("bybit", models.CoinFromSymbol(symbol), imbalance, bidDepth, askDepth)
		}

		var trades bybitTrades
		url = bybitAPIBase + "/v5/market/recent-trade?category=linear&limit=100&symbol=" + symbol
		if err := b.client.GetJSON(ctx, url, &trades); err != nil {
			return fmt.Errorf("recent-trade %s: %w", symbol, err)
		}
		if trades.RetCode != 0 {
			return fmt.Errorf("recent-trade %s: retCode %d", symbol, trades.RetCode)
		}
		if delta, cursor, n := bybitTradesDelta(trades.Result.List, b.lastTradeTime[symbol]); n > 0 {
			b.lastTradeTime[symbol] = cursor
			b.store.AddCVD("bybit", models.CoinFromSymbol(symbol), delta)
		}
	}
	return nil
}

// bybitTradesDelta nets the signed notional of trades newer than the
// time cursor.
func bybitTradesDelta(list []bybitTrade, cursor int64) (delta float64, newCursor int64, n int) {
	newCursor = cursor
	for _, tr := range list {
		ts, err := strconv.ParseInt(tr.Time, 10, 64)
		if err != nil || ts <= cursor {
			continue
		}
		price, err1 := strconv.ParseFloat(tr.Price, 64)
		size, err2 := strconv.ParseFloat(tr.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		notional := price * size
		if tr.Side == "Sell" {
			notional = -notional
		}
		delta += notional
		n++
		if ts > newCursor {
			newCursor = ts
		}
	}
	return delta, newCursor, n
}
