package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	ethchain "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/notify"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

var (
	// ErrTradeInFlight is returned when another trade holds the execution
	// slot. Opportunities are not queued; a dropped one will reappear if
	// the spread survives.
	ErrTradeInFlight = errors.New("a trade is already in flight")

	// ErrCooldown is returned while the post-trade cooldown is active.
	ErrCooldown = errors.New("trade cooldown active")

	// ErrTradeReverted is returned when the arbitrage transaction mined
	// but failed on chain.
	ErrTradeReverted = errors.New("arbitrage transaction reverted")
)

// Executor submits flash loan arbitrage transactions, at most one at a
// time, with a cooldown between trades.
type Executor struct {
	signer          *ethchain.Signer
	backend         ethchain.TransactionBackend
	contract        common.Address
	stablecoin      common.Address
	routers         map[string]common.Address
	flashLoanAmount *big.Int
	stableScale     decimal.Decimal
	margin          decimal.Decimal
	gasLimit        uint64
	receiptTimeout  time.Duration
	cooldown        time.Duration

	mu        sync.Mutex
	lastTrade time.Time

	notifier notify.Publisher
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ExecutorConfig holds executor dependencies and tuning.
type ExecutorConfig struct {
	Signer     *ethchain.Signer
	Backend    ethchain.TransactionBackend
	Contract   common.Address
	Stablecoin common.Address
	// Routers maps DEX IDs to router addresses; the contract receives the
	// routers for the buy and sell legs.
	Routers            map[string]common.Address
	FlashLoanAmountUSD float64
	StableDecimals     int
	// ProfitMargin shrinks the on-chain minProfit below the estimate so
	// small price drift between detection and execution does not revert
	// an otherwise profitable trade.
	ProfitMargin   float64
	GasLimit       uint64
	ReceiptTimeout time.Duration
	Cooldown       time.Duration
	Notifier       notify.Publisher
	Logger         *observability.Logger
	Metrics        *observability.Metrics
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("transaction backend is required")
	}
	if cfg.Contract == ethchain.ZeroAddress {
		return nil, fmt.Errorf("executor contract address is required")
	}
	if len(cfg.Routers) < 2 {
		return nil, fmt.Errorf("at least two routers are required")
	}
	if cfg.ProfitMargin <= 0 || cfg.ProfitMargin > 1 {
		return nil, fmt.Errorf("profit margin must be in (0, 1]")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewNoopPublisher()
	}

	stableScale := decimal.New(1, int32(cfg.StableDecimals))
	flashLoan := decimal.NewFromFloat(cfg.FlashLoanAmountUSD).Mul(stableScale)

	return &Executor{
		signer:          cfg.Signer,
		backend:         cfg.Backend,
		contract:        cfg.Contract,
		stablecoin:      cfg.Stablecoin,
		routers:         cfg.Routers,
		flashLoanAmount: flashLoan.BigInt(),
		stableScale:     stableScale,
		margin:          decimal.NewFromFloat(cfg.ProfitMargin),
		gasLimit:        cfg.GasLimit,
		receiptTimeout:  cfg.ReceiptTimeout,
		cooldown:        cfg.Cooldown,
		notifier:        cfg.Notifier,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}, nil
}

// Execute submits the opportunity on chain and waits for the receipt. Only
// one trade runs at a time; concurrent calls return ErrTradeInFlight
// immediately rather than queueing.
func (x *Executor) Execute(ctx context.Context, opp *Opportunity) error {
	if !x.mu.TryLock() {
		x.metrics.RecordTradeDropped(ctx)
		return ErrTradeInFlight
	}
	defer x.mu.Unlock()

	if x.cooldown > 0 && !x.lastTrade.IsZero() && time.Since(x.lastTrade) < x.cooldown {
		return fmt.Errorf("%w: %s remaining", ErrCooldown, (x.cooldown - time.Since(x.lastTrade)).Round(time.Second))
	}

	start := time.Now()
	receipt, err := x.submit(ctx, opp)
	if err != nil {
		x.metrics.RecordTrade(ctx, "failed", time.Since(start))
		return err
	}

	x.lastTrade = time.Now()

	if receipt.Status != types.ReceiptStatusSuccessful {
		x.metrics.RecordTrade(ctx, "reverted", time.Since(start))
		x.logger.LogWarn(ctx, "arbitrage transaction reverted",
			"tx_hash", receipt.TxHash.Hex(),
			"token", opp.TokenSymbol,
		)
		return fmt.Errorf("%w: %s", ErrTradeReverted, receipt.TxHash.Hex())
	}

	x.metrics.RecordTrade(ctx, "success", time.Since(start))
	x.logger.LogInfo(ctx, "arbitrage trade executed",
		"tx_hash", receipt.TxHash.Hex(),
		"token", opp.TokenSymbol,
		"buy_dex", opp.BuyDEX,
		"sell_dex", opp.SellDEX,
		"net_profit_usd", opp.NetProfitUSD.StringFixed(2),
		"gas_used", receipt.GasUsed,
	)

	if err := x.notifier.Publish(ctx, "trade_executed", struct {
		*Opportunity
		TxHash string `json:"tx_hash"`
	}{opp, receipt.TxHash.Hex()}, map[string]string{
		"token": opp.TokenSymbol,
	}); err != nil {
		x.logger.LogWarn(ctx, "trade notification failed", "error", err)
	}

	return nil
}

func (x *Executor) submit(ctx context.Context, opp *Opportunity) (*types.Receipt, error) {
	buyRouter, ok := x.routers[opp.BuyDEX]
	if !ok {
		return nil, fmt.Errorf("no router configured for dex %q", opp.BuyDEX)
	}
	sellRouter, ok := x.routers[opp.SellDEX]
	if !ok {
		return nil, fmt.Errorf("no router configured for dex %q", opp.SellDEX)
	}

	minProfit := opp.NetProfitUSD.Mul(x.stableScale).Mul(x.margin).Floor().BigInt()
	calldata, err := ethchain.ExecutorABI.Pack("executeArbitrage",
		opp.Token,
		x.stablecoin,
		new(big.Int).Set(x.flashLoanAmount),
		buyRouter,
		sellRouter,
		x.signer.Address(),
		minProfit,
	)
	if err != nil {
		return nil, fmt.Errorf("packing executeArbitrage calldata: %w", err)
	}

	tx, err := x.signer.SendContractCall(ctx, x.backend, x.contract, x.gasLimit, calldata)
	if err != nil {
		return nil, err
	}

	x.logger.LogInfo(ctx, "arbitrage transaction sent",
		"tx_hash", tx.Hash().Hex(),
		"token", opp.TokenSymbol,
		"min_profit", minProfit.String(),
	)

	return ethchain.WaitMined(ctx, x.backend, tx.Hash(), x.receiptTimeout)
}
