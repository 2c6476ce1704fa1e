package market

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

// weiPerETH scales wei amounts to whole ETH.
var weiPerETH = decimal.New(1, 18)

// GasPricer is the client subset needed to read the current gas price.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// ETHPricer quotes ETH in USD.
type ETHPricer interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// GasEstimator prices a flash loan arbitrage transaction in USD using the
// current gas price and ETH/USD rate. Any upstream failure degrades to a
// configured flat estimate so evaluation never blocks on gas data.
type GasEstimator struct {
	pricer      GasPricer
	ethFeed     ETHPricer
	gasUnits    decimal.Decimal
	fallbackUSD decimal.Decimal
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewGasEstimator creates a gas estimator assuming the trade consumes
// gasUnits gas.
func NewGasEstimator(pricer GasPricer, ethFeed ETHPricer, gasUnits uint64, fallbackUSD float64, logger *observability.Logger, metrics *observability.Metrics) *GasEstimator {
	return &GasEstimator{
		pricer:      pricer,
		ethFeed:     ethFeed,
		gasUnits:    decimal.NewFromUint64(gasUnits),
		fallbackUSD: decimal.NewFromFloat(fallbackUSD),
		logger:      logger,
		metrics:     metrics,
	}
}

// EstimateCostUSD returns the estimated USD cost of one arbitrage
// transaction. It never fails; the fallback covers feed or RPC outages.
func (g *GasEstimator) EstimateCostUSD(ctx context.Context) decimal.Decimal {
	gasPrice, err := g.pricer.SuggestGasPrice(ctx)
	if err != nil {
		g.logger.LogWarn(ctx, "gas price unavailable, using fallback cost", "error", err)
		return g.fallbackUSD
	}

	ethUSD, err := g.ethFeed.Price(ctx)
	if err != nil {
		g.logger.LogWarn(ctx, "eth price unavailable, using fallback cost", "error", err)
		return g.fallbackUSD
	}

	costWei := decimal.NewFromBigInt(gasPrice, 0).Mul(g.gasUnits)
	costUSD := costWei.Div(weiPerETH).Mul(ethUSD)

	g.metrics.RecordGasCost(ctx, costUSD.InexactFloat64())
	return costUSD
}
