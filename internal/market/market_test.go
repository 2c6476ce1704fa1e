package market

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	ethcontracts "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

var (
	testStable = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	testToken  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	testRouter = common.HexToAddress("0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24")
)

func testLogger() *observability.Logger {
	return observability.NewLogger("error", "text")
}

// callFn answers one eth_call; the fake dispatches on the 4-byte selector.
type callFn func(msg ethereum.CallMsg) ([]byte, error)

type fakeCaller struct {
	mu       sync.Mutex
	handlers map[string]callFn
	calls    []ethereum.CallMsg
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: map[string]callFn{}}
}

func (f *fakeCaller) handle(selector [4]byte, fn callFn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[string(selector[:])] = fn
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if len(msg.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	fn, ok := f.handlers[string(msg.Data[:4])]
	if !ok {
		return nil, errors.New("unexpected call")
	}
	return fn(msg)
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func selectorOf(t *testing.T, method string, abiName string) [4]byte {
	t.Helper()
	var id []byte
	switch abiName {
	case "erc20":
		id = ethcontracts.ERC20ABI.Methods[method].ID
	case "router":
		id = ethcontracts.RouterABI.Methods[method].ID
	case "factory":
		id = ethcontracts.FactoryABI.Methods[method].ID
	default:
		t.Fatalf("unknown abi %q", abiName)
	}
	var sel [4]byte
	copy(sel[:], id)
	return sel
}

func packDecimals(t *testing.T, value uint8) []byte {
	t.Helper()
	out, err := ethcontracts.ERC20ABI.Methods["decimals"].Outputs.Pack(value)
	if err != nil {
		t.Fatalf("packing decimals output: %v", err)
	}
	return out
}

func packAmounts(t *testing.T, amounts ...*big.Int) []byte {
	t.Helper()
	out, err := ethcontracts.RouterABI.Methods["getAmountsOut"].Outputs.Pack(amounts)
	if err != nil {
		t.Fatalf("packing getAmountsOut output: %v", err)
	}
	return out
}

func packPair(t *testing.T, pair common.Address) []byte {
	t.Helper()
	out, err := ethcontracts.FactoryABI.Methods["getPair"].Outputs.Pack(pair)
	if err != nil {
		t.Fatalf("packing getPair output: %v", err)
	}
	return out
}
