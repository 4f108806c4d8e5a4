package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const hyperliquidInfoURL = "https://api.hyperliquid.xyz/info"

// Hyperliquid info API. One metaAndAssetCtxs call covers mark price,
// funding and open interest for every asset; l2Book and recentTrades
// are fetched per coin.
type Hyperliquid struct {
	client *Client
	store  *store.Store
	coins  []string

	// Newest trade time seen per coin; older trades have already been
	// counted into a CVD sample.
	lastTradeTime map[string]int64
}

// NewHyperliquid polls the info endpoint for the given coins.
func NewHyperliquid(st *store.Store, coins []string) *Hyperliquid {
	return &Hyperliquid{
		client:        NewClient("hyperliquid", 2),
		store:         st,
		coins:         coins,
		lastTradeTime: make(map[string]int64),
	}
}

func (h *Hyperliquid) Name() string { return "hyperliquid" }

type hlMeta struct {
	Universe []struct {
		Name string `json:"name"`
	} `json:"universe"`
}

type hlAssetCtx struct {
	MarkPx       string `json:"markPx"`
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
}

type hlBook struct {
	Levels [2][]struct {
		Px string `json:"px"`
		Sz string `json:"sz"`
	} `json:"levels"`
}

func (h *Hyperliquid) Poll(ctx context.Context) error {
	// Response is a two-element array: [meta, assetCtxs].
	var resp []json.RawMessage
	if err := h.client.PostJSON(ctx, hyperliquidInfoURL, map[string]string{"type": "metaAndAssetCtxs"}, &resp); err != nil {
		return err
	}
	if len(resp) != 2 {
		return fmt.Errorf("metaAndAssetCtxs: expected 2 elements, got %d", len(resp))
	}
	var meta hlMeta
	if err := json.Unmarshal(resp[0], &meta); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}
	var ctxs []hlAssetCtx
	if err := json.Unmarshal(resp[1], &ctxs); err != nil {
		return fmt.Errorf("decode asset contexts: %w", err)
	}

	wanted := make(map[string]bool, len(h.coins))
	for _, c := range h.coins {
		wanted[c] = true
	}
	for i, asset := range meta.Universe {
		if i >= len(ctxs) || !wanted[asset.Name] {
			continue
		}
		coin := asset.Name
		c := ctxs[i]
		mark, err := strconv.ParseFloat(c.MarkPx, 64)
		if err != nil || mark <= 0 {
			continue
		}
		h.store.AddPrice("hyperliquid", coin, mark)
		if oi, err := strconv.ParseFloat(c.OpenInterest, 64); err == nil && oi > 0 {
			h.store.AddOpenInterest("hyperliquid", coin, oi*mark)
		}
		if funding, err := strconv.ParseFloat(c.Funding, 64); err == nil {
			h.store.AddFunding("hyperliquid", coin, funding)
		}
	}

	for _, coin := range h.coins {
		if err := h.pollBook(ctx, coin); err != nil {
			return fmt.Errorf("l2Book %s: %w", coin, err)
		}
		if err := h.pollTrades(ctx, coin); err != nil {
			return fmt.Errorf("recentTrades %s: %w", coin, err)
		}
	}
	return nil
}

type hlTrade struct {
	Side string `json:"side"` // B taker buy, A taker sell
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
}

func (h *Hyperliquid) pollTrades(ctx context.Context, coin string) error {
	var trades []hlTrade
	req := map[string]string{"type": "recentTrades", "coin": coin}
	if err := h.client.PostJSON(ctx, hyperliquidInfoURL, req, &trades); err != nil {
		return err
	}
	delta, cursor, n := hlTradesDelta(trades, h.lastTradeTime[coin])
	if n == 0 {
		return nil
	}
	h.lastTradeTime[coin] = cursor
	h.store.AddCVD("hyperliquid", models.CoinFromSymbol(coin), delta)
	return nil
}

// hlTradesDelta nets the signed notional of trades newer than the time
// cursor.
func hlTradesDelta(trades []hlTrade, cursor int64) (delta float64, newCursor int64, n int) {
	newCursor = cursor
	for _, tr := range trades {
		if tr.Time <= cursor {
			continue
		}
		px, err1 := strconv.ParseFloat(tr.Px, 64)
		sz, err2 := strconv.ParseFloat(tr.Sz, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		notional := px * sz
		if tr.Side == "A" {
			notional = -notional
		}
		delta += notional
		n++
		if tr.Time > newCursor {
			newCursor = tr.Time
		}
	}
	return delta, newCursor, n
}

func (h *Hyperliquid) pollBook(ctx context.Context, coin string) error {
	var book hlBook
	req := map[string]string{"type": "l2Book", "coin": coin}
	if err := h.client.PostJSON(ctx, hyperliquidInfoURL, req, &book); err != nil {
		return err
	}
	bids := hlLevels(book.Levels[0])
	asks := hlLevels(book.Levels[1])
	if len(bids) == 0 && len(asks) == 0 {
		return nil
	}
	imbalance, bidDepth, askDepth := depthImbalance(bids, asks)
	h.store.AddOrderbook("hyperliquid", models.CoinFromSymbol(coin), imbalance, bidDepth, askDepth)
	return nil
}

func hlLevels(side []struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}) [][2]float64 {
	out := make([][2]float64, 0, len(side))
	for _, lvl := range side {
		px, err1 := strconv.ParseFloat(lvl.Px, 64)
		sz, err2 := strconv.ParseFloat(lvl.Sz, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, [2]float64{px, sz})
	}
	return out
}
