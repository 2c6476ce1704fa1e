package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known test vector key; never funded.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeBackend struct {
	mu       sync.Mutex
	nonce    uint64
	gasPrice *big.Int
	sent     []*types.Transaction
	sendErr  error
	receipts map[common.Hash]*types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonce:    7,
		gasPrice: big.NewInt(2_000_000_000),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func TestNewSignerParsesKey(t *testing.T) {
	for _, key := range []string{testKeyHex, "0x" + testKeyHex} {
		s, err := NewSigner(key, 8453)
		if err != nil {
			t.Fatalf("NewSigner(%q) = %v", key, err)
		}
		if s.Address() == ZeroAddress {
			t.Fatal("derived address is zero")
		}
	}

	if _, err := NewSigner("nothex", 8453); err == nil {
		t.Fatal("NewSigner should reject malformed keys")
	}
}

func TestSendContractCall(t *testing.T) {
	s, err := NewSigner(testKeyHex, 8453)
	if err != nil {
		t.Fatal(err)
	}
	backend := newFakeBackend()
	to := common.HexToAddress("0x327Df1E6de05895d2ab08513aaDD9313Fe505d86")
	calldata := []byte{0xde, 0xad, 0xbe, 0xef}

	tx, err := s.SendContractCall(context.Background(), backend, to, 800000, calldata)
	if err != nil {
		t.Fatalf("SendContractCall: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(backend.sent))
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.Gas() != 800000 {
		t.Errorf("gas limit = %d, want 800000", tx.Gas())
	}
	if tx.GasPrice().Cmp(backend.gasPrice) != 0 {
		t.Errorf("gas price = %s, want %s", tx.GasPrice(), backend.gasPrice)
	}
	if *tx.To() != to {
		t.Errorf("to = %s, want %s", tx.To(), to)
	}

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(8453)), tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if sender != s.Address() {
		t.Errorf("recovered sender = %s, want %s", sender, s.Address())
	}
}

func TestSendContractCallPropagatesSendError(t *testing.T) {
	s, _ := NewSigner(testKeyHex, 8453)
	backend := newFakeBackend()
	backend.sendErr = errors.New("nonce too low")

	_, err := s.SendContractCall(context.Background(), backend, common.Address{1}, 100000, nil)
	if err == nil || !errors.Is(err, backend.sendErr) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}
}

func TestWaitMinedReturnsReceipt(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0xabc123")
	want := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}
	backend.mu.Lock()
	backend.receipts[hash] = want
	backend.mu.Unlock()

	got, err := WaitMined(context.Background(), backend, hash, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitMined: %v", err)
	}
	if got != want {
		t.Fatalf("receipt = %+v, want %+v", got, want)
	}
}

func TestWaitMinedTimesOut(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0xdef456")

	_, err := WaitMined(context.Background(), backend, hash, 50*time.Millisecond)
	if !errors.Is(err, ErrReceiptTimeout) {
		t.Fatalf("err = %v, want ErrReceiptTimeout", err)
	}
}

func TestIsFilterNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("filter not found"), true},
		{errors.New("rpc error: Filter not found"), true},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := IsFilterNotFound(tt.err); got != tt.want {
			t.Errorf("IsFilterNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExecutorCalldata(t *testing.T) {
	calldata, err := ExecutorABI.Pack("executeArbitrage",
		common.HexToAddress("0x4200000000000000000000000000000000000006"),
		common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		big.NewInt(5_000_000_000),
		common.HexToAddress("0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24"),
		common.HexToAddress("0x327Df1E6de05895d2ab08513aaDD9313Fe505d86"),
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		big.NewInt(81_000_000),
	)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	// 4-byte selector plus 7 words.
	if len(calldata) != 4+7*32 {
		t.Fatalf("calldata length = %d, want %d", len(calldata), 4+7*32)
	}
}
