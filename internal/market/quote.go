package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	ethcontracts "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

// maxSanePrice rejects quotes that can only come from a broken or dust
// pool: no monitored token is worth a trillion dollars.
var maxSanePrice = decimal.NewFromInt(1_000_000_000_000)

// ErrUnusableQuote marks a quote the router answered but that fails sanity
// checks (zero, negative, or absurdly large).
var ErrUnusableQuote = errors.New("quote outside sane price range")

// QuoteClient prices one whole token in the stablecoin through a router's
// getAmountsOut. Concurrency across all venues is bounded by a semaphore so
// a burst of swap events cannot stampede the RPC endpoints.
type QuoteClient struct {
	caller         bind.ContractCaller
	stablecoin     common.Address
	stableDecimals int32
	decimals       *DecimalsCache
	sem            *semaphore.Weighted
	logger         *observability.Logger
	metrics        *observability.Metrics
}

// QuoteClientConfig holds quote client dependencies.
type QuoteClientConfig struct {
	Caller         bind.ContractCaller
	Stablecoin     common.Address
	StableDecimals int
	Decimals       *DecimalsCache
	Concurrency    int64
	Logger         *observability.Logger
	Metrics        *observability.Metrics
}

// NewQuoteClient creates a quote client.
func NewQuoteClient(cfg QuoteClientConfig) (*QuoteClient, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	if cfg.Decimals == nil {
		return nil, fmt.Errorf("decimals cache is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &QuoteClient{
		caller:         cfg.Caller,
		stablecoin:     cfg.Stablecoin,
		stableDecimals: int32(cfg.StableDecimals),
		decimals:       cfg.Decimals,
		sem:            semaphore.NewWeighted(cfg.Concurrency),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}, nil
}

// Quote returns the stablecoin price of one whole token on the given
// router. Reverts (typically a missing pool or no liquidity) and insane
// values return ErrUnusableQuote; transport failures return the underlying
// error.
func (q *QuoteClient) Quote(ctx context.Context, dexID string, router, token common.Address) (decimal.Decimal, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return decimal.Zero, err
	}
	defer q.sem.Release(1)

	start := time.Now()
	price, err := q.quote(ctx, router, token)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrUnusableQuote) {
			outcome = "unusable"
		}
	}
	q.metrics.RecordQuote(ctx, dexID, outcome, time.Since(start))

	return price, err
}

func (q *QuoteClient) quote(ctx context.Context, router, token common.Address) (decimal.Decimal, error) {
	tokenDecimals := q.decimals.Decimals(ctx, token)

	// One whole token in, quoted against the stablecoin.
	amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	path := []common.Address{token, q.stablecoin}

	contract := bind.NewBoundContract(router, ethcontracts.RouterABI, q.caller, nil, nil)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path); err != nil {
		if isRevert(err) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnusableQuote, err)
		}
		return decimal.Zero, fmt.Errorf("getAmountsOut on %s: %w", router.Hex(), err)
	}

	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return decimal.Zero, fmt.Errorf("unexpected getAmountsOut result shape")
	}

	amountOut := amounts[len(amounts)-1]
	price := decimal.NewFromBigInt(amountOut, -q.stableDecimals)
	if !price.IsPositive() || price.GreaterThanOrEqual(maxSanePrice) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnusableQuote, price)
	}
	return price, nil
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "revert")
}
