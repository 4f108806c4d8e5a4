package poll

import (
	"context"
	"strconv"
	"strings"

	"github.com/perpsignal/perpsignal/internal/models"
	"github.com/perpsignal/perpsignal/internal/store"
)

const nadoArchiveURL = "https://archive.prod.nado.xyz/v1/tickers"

// Nado archive tickers. A single call returns every market keyed by
// ticker id (BTC-PERP_USDC); polled slowly since the archive lags the
// book by design.
type Nado struct {
	client *Client
	store  *store.Store
	coins  []string
}

// NewNado polls the archive for the given coins.
func NewNado(st *store.Store, coins []string) *Nado {
	return &Nado{client: NewClient("nado", 1), store: st, coins: coins}
}

func (n *Nado) Name() string { return "nado" }

type nadoTicker struct {
	LastPrice       string `json:"last_price"`
	OpenInterest    string `json:"open_interest"`
	LastFundingRate string `json:"last_funding_rate"`
}

func (n *Nado) Poll(ctx context.Context) error {
	var tickers map[string]nadoTicker
	if err := n.client.GetJSON(ctx, nadoArchiveURL, &tickers); err != nil {
		return err
	}

	wanted := make(map[string]bool, len(n.coins))
	for _, c := range n.coins {
		wanted[c] = true
	}
	for id, t := range tickers {
		base, _, _ := strings.Cut(id, "-")
		coin := models.CoinFromSymbol(base)
		if !wanted[coin] || !strings.Contains(id, "PERP") {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		n.store.AddPrice("nado", coin, price)
		if oi, err := strconv.ParseFloat(t.OpenInterest, 64); err == nil && oi > 0 {
			n.store.AddOpenInterest("nado", coin, oi*price)
		}
		if funding, err := strconv.ParseFloat(t.LastFundingRate, 64); err == nil {
			n.store.AddFunding("nado", coin, funding)
		}
	}
	return nil
}
