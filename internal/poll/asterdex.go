package poll

import (
	"context"
	"fmt"
	"strconv"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const asterdexAPIBase = "https://fapi.asterdex.com"

// AsterDex exposes a Binance-compatible futures REST surface, so the
// same premiumIndex / openInterest / depth / aggTrades set applies.
type AsterDex struct {
	client  *Client
	store   *store.Store
	symbols []string

	lastAggTrade map[string]int64
}

// NewAsterDex polls AsterDex futures for the given symbols.
func NewAsterDex(st *store.Store, symbols []string) *AsterDex {
	return &AsterDex{
		client:       NewClient("asterdex", 3),
		store:        st,
		symbols:      symbols,
		lastAggTrade: make(map[string]int64),
	}
}

func (a *AsterDex) Name() string { return "asterdex" }

func (a *AsterDex) Poll(ctx context.Context) error {
	for _, symbol := range a.symbols {
		coin := models.CoinFromSymbol(symbol)

		var premium binancePremiumIndex
		if err := a.client.GetJSON(ctx, asterdexAPIBase+"/fapi/v1/premiumIndex?symbol="+symbol, &premium); err != nil {
			return fmt.Errorf("premiumIndex %s: %w", symbol, err)
		}
		mark, err := strconv.ParseFloat(premium.MarkPrice, 64)
		if err != nil || mark <= 0 {
			continue
		}
		a.store.AddPrice("asterdex", coin, mark)
		if funding, err := strconv.ParseFloat(premium.LastFundingRate, 64); err == nil {
			a.store.AddFunding("asterdex", coin, funding)
		}

		var oi binanceOpenInterest
		if err := a.client.GetJSON(ctx, asterdexAPIBase+"/fapi/v1/openInterest?symbol="+symbol, &oi); err != nil {
			return fmt.Errorf("openInterest %s: %w", symbol, err)
		}
		if base, err := strconv.ParseFloat(oi.OpenInterest, 64); err == nil && base > 0 {
			a.store.AddOpenInterest("asterdex", coin, base*mark)
		}

		var depth binanceDepth
		if err := a.client.GetJSON(ctx, asterdexAPIBase+"/fapi/v1/depth?limit=50&symbol="+symbol, &depth); err != nil {
			return fmt.Errorf("depth %s: %w", symbol, err)
		}
		imbalance, bidDepth, askDepth := depthImbalance(stringLevels(depth.Bids), stringLevels(depth.Asks))
		if bidDepth > 0 || askDepth > 0 {
			a.store.AddOrderbook("asterdex", coin, imbalance, bidDepth, askDepth)
		}

		var trades []binanceAggTrade
		if err := a.client.GetJSON(ctx, asterdexAPIBase+"/fapi/v1/aggTrades?limit=100&symbol="+symbol, &trades); err != nil {
			return fmt.Errorf("aggTrades %s: %w", symbol, err)
		}
		if delta, cursor, n := aggTradesDelta(trades, a.lastAggTrade[symbol]); n > 0 {
			a.lastAggTrade[symbol] = cursor
			a.store.AddCVD("asterdex", coin, delta)
		}
	}
	return nil
}
