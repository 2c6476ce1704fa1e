package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransactionBackend is the client subset needed to send a transaction and
// wait for its receipt.
type TransactionBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer holds the hot wallet key and signs contract calls.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewSigner parses a hex-encoded private key. A 0x prefix is accepted.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// Address returns the wallet address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SendContractCall builds, signs, and sends a legacy transaction calling
// the contract at to with the given calldata.
func (s *Signer) SendContractCall(ctx context.Context, backend TransactionBackend, to common.Address, gasLimit uint64, calldata []byte) (*types.Transaction, error) {
	nonce, err := backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, common.Big0, gasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}
	return signed, nil
}

// ErrReceiptTimeout is returned when a transaction is not mined in time.
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// WaitMined polls for the transaction receipt until it appears, the timeout
// elapses, or the context is cancelled.
func WaitMined(ctx context.Context, backend TransactionBackend, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		// Not-found and transient RPC errors both mean "poll again".
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
