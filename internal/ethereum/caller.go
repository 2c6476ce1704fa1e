package ethereum

import (
	"context"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PooledBackend adapts a ClientPool to the single-client interfaces the
// rest of the bot consumes. Every call picks a healthy endpoint, so
// long-lived components ride out endpoint failures without reconnecting.
type PooledBackend struct {
	pool *ClientPool
}

// NewPooledBackend wraps the pool.
func NewPooledBackend(pool *ClientPool) *PooledBackend {
	return &PooledBackend{pool: pool}
}

// CodeAt implements bind.ContractCaller.
func (b *PooledBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	client, err := b.pool.Client()
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, contract, blockNumber)
}

// CallContract implements bind.ContractCaller.
func (b *PooledBackend) CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := b.pool.Client()
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, call, blockNumber)
}

// PendingNonceAt implements TransactionBackend.
func (b *PooledBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	client, err := b.pool.Client()
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

// SuggestGasPrice implements TransactionBackend.
func (b *PooledBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := b.pool.Client()
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// SendTransaction implements TransactionBackend.
func (b *PooledBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := b.pool.Client()
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// TransactionReceipt implements TransactionBackend.
func (b *PooledBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := b.pool.Client()
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}
