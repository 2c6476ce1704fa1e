// Package market reads DEX market data: token metadata, router quotes,
// pair discovery, the price cache, and gas cost estimation.
package market

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	ethcontracts "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

// defaultDecimals is assumed when the decimals() call fails; ERC-20 leaves
// the method optional.
const defaultDecimals = 18

// DecimalsCache resolves token decimals on chain and memoizes them.
// Decimals never change for a deployed token, so entries have no TTL.
type DecimalsCache struct {
	caller  bind.ContractCaller
	cache   *lru.Cache[common.Address, uint8]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDecimalsCache creates a decimals cache over the given chain reader.
func NewDecimalsCache(caller bind.ContractCaller, maxSize int, logger *observability.Logger, metrics *observability.Metrics) (*DecimalsCache, error) {
	if maxSize <= 0 {
		maxSize = 512
	}
	cache, err := lru.New[common.Address, uint8](maxSize)
	if err != nil {
		return nil, err
	}
	return &DecimalsCache{
		caller:  caller,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Decimals returns the token's decimals, falling back to 18 when the
// contract does not answer. The fallback is cached too: a token that fails
// once is not re-queried on every price refresh.
func (d *DecimalsCache) Decimals(ctx context.Context, token common.Address) uint8 {
	if cached, ok := d.cache.Get(token); ok {
		d.metrics.RecordCacheHit(ctx, "decimals")
		return cached
	}
	d.metrics.RecordCacheMiss(ctx, "decimals")

	contract := bind.NewBoundContract(token, ethcontracts.ERC20ABI, d.caller, nil, nil)
	var out []any
	decimals := uint8(defaultDecimals)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		d.logger.LogDebug(ctx, "decimals call failed, assuming 18", "token", token.Hex(), "error", err)
	} else if len(out) == 1 {
		if v, ok := out[0].(uint8); ok {
			decimals = v
		}
	}

	d.cache.Add(token, decimals)
	return decimals
}
