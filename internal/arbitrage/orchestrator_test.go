package arbitrage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gatti/dex-arbitrage-bot/internal/market"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/config"
)

// mapPoolFinder resolves pools per factory so each DEX can behave
// differently during discovery.
type mapPoolFinder struct {
	pools map[common.Address]common.Address
	errs  map[common.Address]error
}

func (f *mapPoolFinder) FindPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, bool, error) {
	if err := f.errs[factory]; err != nil {
		return common.Address{}, false, err
	}
	pool, ok := f.pools[factory]
	return pool, ok, nil
}

func testOrchestratorConfig(t *testing.T, pools PoolFinder) OrchestratorConfig {
	t.Helper()
	return OrchestratorConfig{
		Tokens: []config.TokenInfo{
			{Address: testToken.Hex(), Symbol: "WETH", Name: "Wrapped Ether"},
		},
		DEXes: []config.DEXConfig{
			{ID: "uniswap_v2", Name: "Uniswap V2", Router: testRouters["uniswap_v2"].Hex(), Factory: "0x8909dc15e40173ff4699343b6eb8132c65e18ec6"},
			{ID: "baseswap", Name: "BaseSwap", Router: testRouters["baseswap"].Hex(), Factory: "0xfda619b6d20975be80a10332cd39b9a4b0faa8bb"},
			{ID: "pancake", Name: "PancakeSwap", Router: "0x8cFe327CEc66d1C090Dd72bd0FF11d690C33a2Eb", Factory: "0x02a84c1b3bbd7401a5f7fa98a384ebc70bb5749e"},
		},
		Stablecoin:   testStable,
		Pools:        pools,
		Quotes:       &fakeQuoter{price: decimal.NewFromInt(100)},
		Prices:       market.NewPriceCache(time.Minute),
		Logs:         &fakeLogSource{},
		Evaluator:    newTestEvaluator(t, 10),
		PollInterval: 10 * time.Millisecond,
		Logger:       testLogger(),
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	base := testOrchestratorConfig(t, &fakePoolFinder{})

	tests := []struct {
		name   string
		mutate func(*OrchestratorConfig)
	}{
		{"no tokens", func(c *OrchestratorConfig) { c.Tokens = nil }},
		{"single dex", func(c *OrchestratorConfig) { c.DEXes = c.DEXes[:1] }},
		{"missing evaluator", func(c *OrchestratorConfig) { c.Evaluator = nil }},
		{"missing log source", func(c *OrchestratorConfig) { c.Logs = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewOrchestrator(cfg); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}

	if _, err := NewOrchestrator(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestDiscoverPoolsSkipsMissingAndFailing(t *testing.T) {
	uniFactory := common.HexToAddress("0x8909dc15e40173ff4699343b6eb8132c65e18ec6")
	pancakeFactory := common.HexToAddress("0x02a84c1b3bbd7401a5f7fa98a384ebc70bb5749e")

	finder := &mapPoolFinder{
		pools: map[common.Address]common.Address{
			uniFactory:     testPool,
			pancakeFactory: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		},
		errs: map[common.Address]error{
			pancakeFactory: errors.New("factory call reverted"),
		},
	}

	o, err := NewOrchestrator(testOrchestratorConfig(t, finder))
	if err != nil {
		t.Fatal(err)
	}

	pools, err := o.discoverPools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// baseswap has no pool, pancake errors out; only uniswap survives.
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}
	if pools[0].dex.ID != "uniswap_v2" || pools[0].pool != testPool {
		t.Fatalf("unexpected pool: %+v", pools[0])
	}
}

func TestDiscoverPoolsHonorsCancellation(t *testing.T) {
	o, err := NewOrchestrator(testOrchestratorConfig(t, &fakePoolFinder{pool: testPool, ok: true}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.discoverPools(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunFailsWithoutAnyPool(t *testing.T) {
	o, err := NewOrchestrator(testOrchestratorConfig(t, &fakePoolFinder{ok: false}))
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err == nil {
		t.Fatal("expected error when no pool exists")
	}
}
