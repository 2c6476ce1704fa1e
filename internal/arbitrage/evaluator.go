package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gatti/dex-arbitrage-bot/internal/market"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

var oneHundred = decimal.NewFromInt(100)

// GasCoster estimates the USD cost of one arbitrage transaction.
type GasCoster interface {
	EstimateCostUSD(ctx context.Context) decimal.Decimal
}

// Evaluator scores a token's fresh venue prices and decides whether the
// widest spread clears the profitability bar.
type Evaluator struct {
	dexOrder     []string
	minSpreadPct decimal.Decimal
	maxSpreadPct decimal.Decimal
	minProfitUSD decimal.Decimal
	notionalUSD  decimal.Decimal
	gas          GasCoster
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// EvaluatorConfig holds evaluator parameters. DEXOrder fixes tie-breaking:
// when two venues quote the same price, the one listed first wins.
type EvaluatorConfig struct {
	DEXOrder         []string
	MinSpreadPercent float64
	MaxSpreadPercent float64
	MinProfitUSD     float64
	NotionalUSD      float64
	Gas              GasCoster
	Logger           *observability.Logger
	Metrics          *observability.Metrics
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if len(cfg.DEXOrder) < 2 {
		return nil, fmt.Errorf("at least two DEXes are required")
	}
	if cfg.Gas == nil {
		return nil, fmt.Errorf("gas estimator is required")
	}
	return &Evaluator{
		dexOrder:     cfg.DEXOrder,
		minSpreadPct: decimal.NewFromFloat(cfg.MinSpreadPercent),
		maxSpreadPct: decimal.NewFromFloat(cfg.MaxSpreadPercent),
		minProfitUSD: decimal.NewFromFloat(cfg.MinProfitUSD),
		notionalUSD:  decimal.NewFromFloat(cfg.NotionalUSD),
		gas:          cfg.Gas,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// Evaluate inspects the token's fresh prices and returns the best
// opportunity, if any. It needs quotes from at least two venues. The
// spread band is exclusive on both ends: a spread below the minimum is
// noise, one above the maximum is a broken pool, and neither trades.
func (e *Evaluator) Evaluate(ctx context.Context, token common.Address, symbol string, prices map[string]market.PricePoint) (*Opportunity, bool) {
	if len(prices) < 2 {
		return nil, false
	}

	buyDEX, sellDEX := "", ""
	var buyPrice, sellPrice decimal.Decimal
	for _, dexID := range e.dexOrder {
		point, ok := prices[dexID]
		if !ok {
			continue
		}
		if buyDEX == "" || point.Price.LessThan(buyPrice) {
			buyDEX, buyPrice = dexID, point.Price
		}
		if sellDEX == "" || point.Price.GreaterThan(sellPrice) {
			sellDEX, sellPrice = dexID, point.Price
		}
	}
	if buyDEX == "" || buyDEX == sellDEX {
		return nil, false
	}

	spreadPct := sellPrice.Div(buyPrice).Sub(decimal.New(1, 0)).Mul(oneHundred)
	e.metrics.RecordSpread(ctx, symbol, spreadPct.InexactFloat64())

	if spreadPct.LessThanOrEqual(e.minSpreadPct) || spreadPct.GreaterThanOrEqual(e.maxSpreadPct) {
		return nil, false
	}

	grossProfit := e.notionalUSD.Mul(spreadPct).Div(oneHundred)
	gasCost := e.gas.EstimateCostUSD(ctx)
	netProfit := grossProfit.Sub(gasCost)

	// The threshold is exclusive: net profit must clear it, not meet it.
	if netProfit.LessThanOrEqual(e.minProfitUSD) {
		e.logger.LogDebug(ctx, "spread found but not profitable",
			"token", symbol,
			"spread_pct", spreadPct.String(),
			"net_profit_usd", netProfit.String(),
		)
		return nil, false
	}

	opp := &Opportunity{
		Token:          token,
		TokenSymbol:    symbol,
		BuyDEX:         buyDEX,
		SellDEX:        sellDEX,
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		SpreadPercent:  spreadPct,
		NotionalUSD:    e.notionalUSD,
		GrossProfitUSD: grossProfit,
		GasCostUSD:     gasCost,
		NetProfitUSD:   netProfit,
		DetectedAt:     time.Now(),
	}

	e.metrics.RecordOpportunity(ctx, symbol, netProfit.InexactFloat64())
	e.logger.LogInfo(ctx, "arbitrage opportunity detected",
		"token", symbol,
		"buy_dex", buyDEX,
		"sell_dex", sellDEX,
		"spread_pct", spreadPct.StringFixed(4),
		"net_profit_usd", netProfit.StringFixed(2),
	)

	return opp, true
}
