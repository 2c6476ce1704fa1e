package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	ethcontracts "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
)

// PairLocator resolves pool addresses through DEX factory contracts.
type PairLocator struct {
	caller bind.ContractCaller
}

// NewPairLocator creates a pair locator over the given chain reader.
func NewPairLocator(caller bind.ContractCaller) *PairLocator {
	return &PairLocator{caller: caller}
}

// FindPair asks the factory for the tokenA/tokenB pool. The factory
// returns the zero address when no pool exists, reported here as ok=false
// rather than an error.
func (pl *PairLocator) FindPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, bool, error) {
	contract := bind.NewBoundContract(factory, ethcontracts.FactoryABI, pl.caller, nil, nil)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPair", tokenA, tokenB); err != nil {
		return common.Address{}, false, fmt.Errorf("getPair on factory %s: %w", factory.Hex(), err)
	}

	pair, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, false, fmt.Errorf("unexpected getPair result shape")
	}
	if pair == ethcontracts.ZeroAddress {
		return common.Address{}, false, nil
	}
	return pair, true, nil
}
