// Package arbitrage detects and executes cross-DEX flash loan arbitrage:
// pair watchers feed a price cache, the evaluator scores spreads, and the
// executor submits at most one trade at a time.
package arbitrage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Opportunity is a priced cross-DEX spread worth executing.
type Opportunity struct {
	Token       common.Address  `json:"token"`
	TokenSymbol string          `json:"token_symbol"`
	BuyDEX      string          `json:"buy_dex"`
	SellDEX     string          `json:"sell_dex"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`

	SpreadPercent  decimal.Decimal `json:"spread_percent"`
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	GrossProfitUSD decimal.Decimal `json:"gross_profit_usd"`
	GasCostUSD     decimal.Decimal `json:"gas_cost_usd"`
	NetProfitUSD   decimal.Decimal `json:"net_profit_usd"`

	DetectedAt time.Time `json:"detected_at"`
}
