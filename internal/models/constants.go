package models

import "strings"

// Coins tracked by the service.
var Coins = []string{"BTC", "ETH", "SOL"}

// PerpExchanges are the perpetual venues the store enumerates when
// aggregating perp CVD and OI.
var PerpExchanges = []string{"hyperliquid", "binance", "bybit", "okx", "kraken", "asterdex", "nado"}

// SpotCVDExchanges are the spot venues feeding the spot CVD aggregate.
var SpotCVDExchanges = []string{"binance", "bybit", "coinbase"}

// ValidCoin reports whether the coin is tracked.
func ValidCoin(coin string) bool {
	for _, c := range Coins {
		if c == coin {
			return true
		}
	}
	return false
}

// ValidExchange reports whether the exchange is a known perp venue.
func ValidExchange(ex string) bool {
	for _, e := range PerpExchanges {
		if e == ex {
			return true
		}
	}
	return false
}

// CVDThreshold scales raw CVD deltas per coin. Strong saturates the
// persistence factor; Weak is the flat/trend boundary for divergence
// and confluence classification.
type CVDThreshold struct {
	Weak     float64
	Moderate float64
	Strong   float64
}

// CVDThresholds is the single per-coin scale table. Every consumer of a
// CVD magnitude goes through this table.
var CVDThresholds = map[string]CVDThreshold{
	"BTC": {Weak: 2_500_000, Moderate: 5_000_000, Strong: 10_000_000},
	"ETH": {Weak: 1_000_000, Moderate: 2_500_000, Strong: 5_000_000},
	"SOL": {Weak: 500_000, Moderate: 1_000_000, Strong: 2_500_000},
}

// CVDThresholdFor returns the coin's scale, falling back to the SOL tier
// for unknown coins.
func CVDThresholdFor(coin string) CVDThreshold {
	if t, ok := CVDThresholds[coin]; ok {
		return t
	}
	return CVDThresholds["SOL"]
}

// FundingPeriodsPerDay maps an exchange to its funding settlements per
// day. Annualised rate = rate * periods * 365. Most venues settle every
// eight hours; Hyperliquid settles hourly.
var FundingPeriodsPerDay = map[string]float64{
	"binance":     3,
	"bybit":       3,
	"okx":         3,
	"kraken":      3,
	"asterdex":    3,
	"nado":        3,
	"hyperliquid": 24,
}

// FundingPeriods returns the settlements per day for an exchange,
// defaulting to the eight-hour convention.
func FundingPeriods(exchange string) float64 {
	if p, ok := FundingPeriodsPerDay[exchange]; ok {
		return p
	}
	return 3
}

// AnnualisedFundingPct converts a per-period fractional rate into an
// annual percentage rate for the given exchange.
func AnnualisedFundingPct(rate float64, exchange string) float64 {
	return rate * FundingPeriods(exchange) * 365 * 100
}

var symbolSuffixes = []string{"-USD-SWAP", "USDT-PERP", "-USDT", "-USDC", "-USD", "USDT", "USDC", "USD", "-PERP", "PERP"}

// CoinFromSymbol normalises an exchange symbol ("BTCUSDT", "BTC-USD",
// "XBT/USD", "BTC-USD-SWAP") to a coin ticker. Unknown symbols map to
// their stripped base.
func CoinFromSymbol(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
	for _, suf := range symbolSuffixes {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSuffix(s, "-")
	if s == "XBT" {
		return "BTC"
	}
	return s
}
