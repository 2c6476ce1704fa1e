package arbitrage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	ethchain "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/market"
)

var testPool = common.HexToAddress("0x88A43bbDF9D098eEC7bCEda4e2494615dfD9bB9C")

type fakePoolFinder struct {
	pool common.Address
	ok   bool
	err  error
}

func (f *fakePoolFinder) FindPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, bool, error) {
	return f.pool, f.ok, f.err
}

type fakeQuoter struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeQuoter) Quote(ctx context.Context, dexID string, router, token common.Address) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.price, f.err
}

func (f *fakeQuoter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// pollResult scripts one GetNewEntries answer.
type pollResult struct {
	logs []types.Log
	err  error
}

type fakeFilter struct {
	mu      sync.Mutex
	script  []pollResult
	noMore  pollResult
	uninsts atomic.Int32
}

func (f *fakeFilter) GetNewEntries(ctx context.Context) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return f.noMore.logs, f.noMore.err
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next.logs, next.err
}

func (f *fakeFilter) Uninstall(ctx context.Context) error {
	f.uninsts.Add(1)
	return nil
}

type fakeLogSource struct {
	mu          sync.Mutex
	filters     []*fakeFilter
	installErrs []error // consumed one per NewSwapFilter call
}

func (f *fakeLogSource) NewSwapFilter(ctx context.Context, pair common.Address) (ethchain.LogFilter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.installErrs) > 0 {
		err := f.installErrs[0]
		f.installErrs = f.installErrs[1:]
		return nil, err
	}
	filter := &fakeFilter{}
	f.filters = append(f.filters, filter)
	return filter, nil
}

func (f *fakeLogSource) installCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters)
}

func newTestWatcher(t *testing.T, pools *fakePoolFinder, quotes *fakeQuoter, logs *fakeLogSource, onUpdate func(context.Context, common.Address, string)) (*Watcher, *market.PriceCache) {
	t.Helper()
	prices := market.NewPriceCache(time.Minute)
	w, err := NewWatcher(WatcherConfig{
		Token:        testToken,
		Symbol:       "WETH",
		DEXID:        "uniswap_v2",
		Router:       testRouters["uniswap_v2"],
		Factory:      common.HexToAddress("0x8909dc15e40173ff4699343b6eb8132c65e18ec6"),
		Stablecoin:   testStable,
		Pools:        pools,
		Quotes:       quotes,
		Prices:       prices,
		Logs:         logs,
		OnUpdate:     onUpdate,
		PollInterval: 10 * time.Millisecond,
		MaxBackoff:   50 * time.Millisecond,
		Logger:       testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return w, prices
}

func swapLog() types.Log {
	return types.Log{Address: testPool, Topics: []common.Hash{ethchain.SwapEventTopic}}
}

func TestWatcherStopsWhenPoolMissing(t *testing.T) {
	pools := &fakePoolFinder{ok: false}
	logs := &fakeLogSource{}
	w, _ := newTestWatcher(t, pools, &fakeQuoter{price: decimal.NewFromInt(100)}, logs, nil)

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want clean exit for missing pool", err)
	}
	if w.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", w.State())
	}
	if logs.installCount() != 0 {
		t.Fatal("no filter should be installed without a pool")
	}
}

func TestWatcherSeedsPriceAndReactsToSwaps(t *testing.T) {
	pools := &fakePoolFinder{pool: testPool, ok: true}
	quotes := &fakeQuoter{price: decimal.NewFromInt(100)}
	logs := &fakeLogSource{}

	var updates atomic.Int32
	w, prices := newTestWatcher(t, pools, quotes, logs, func(ctx context.Context, token common.Address, symbol string) {
		updates.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the seed price.
	waitFor(t, func() bool {
		_, ok := prices.Get(testToken, "uniswap_v2")
		return ok
	})
	if updates.Load() < 1 {
		t.Fatal("seed refresh should fire the update callback")
	}

	// Script a swap burst on the live filter.
	logs.mu.Lock()
	filter := logs.filters[0]
	logs.mu.Unlock()
	filter.mu.Lock()
	filter.script = []pollResult{{logs: []types.Log{swapLog(), swapLog()}}}
	filter.mu.Unlock()

	before := quotes.callCount()
	waitFor(t, func() bool { return quotes.callCount() > before })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if filter.uninsts.Load() != 1 {
		t.Fatal("filter should be uninstalled on shutdown")
	}
}

func TestWatcherRecreatesExpiredFilterWithoutBackoff(t *testing.T) {
	pools := &fakePoolFinder{pool: testPool, ok: true}
	quotes := &fakeQuoter{price: decimal.NewFromInt(100)}
	logs := &fakeLogSource{}

	w, _ := newTestWatcher(t, pools, quotes, logs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return logs.installCount() == 1 })
	logs.mu.Lock()
	first := logs.filters[0]
	logs.mu.Unlock()
	first.mu.Lock()
	first.noMore = pollResult{err: errors.New("filter not found")}
	first.mu.Unlock()

	// Expiry is routine: a fresh filter appears and the watcher never
	// enters backoff.
	waitFor(t, func() bool { return logs.installCount() >= 2 })
	if w.State() == StateBackoff {
		t.Fatal("filter expiry must not trigger backoff")
	}

	cancel()
	<-done
}

func TestWatcherRetriesInitialFilterInstall(t *testing.T) {
	pools := &fakePoolFinder{pool: testPool, ok: true}
	quotes := &fakeQuoter{price: decimal.NewFromInt(100)}
	logs := &fakeLogSource{installErrs: []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}

	w, prices := newTestWatcher(t, pools, quotes, logs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// A flaky endpoint at startup delays the watcher; it never exits.
	waitFor(t, func() bool { return logs.installCount() == 1 })
	waitFor(t, func() bool {
		_, ok := prices.Get(testToken, "uniswap_v2")
		return ok
	})
	waitFor(t, func() bool { return w.State() == StateActive })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWatcherSurvivesFailedFilterReinstall(t *testing.T) {
	pools := &fakePoolFinder{pool: testPool, ok: true}
	quotes := &fakeQuoter{price: decimal.NewFromInt(100)}
	logs := &fakeLogSource{}

	w, _ := newTestWatcher(t, pools, quotes, logs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return logs.installCount() == 1 })
	logs.mu.Lock()
	first := logs.filters[0]
	logs.installErrs = []error{errors.New("connection refused")}
	logs.mu.Unlock()
	first.mu.Lock()
	first.noMore = pollResult{err: errors.New("filter not found")}
	first.mu.Unlock()

	// The first reinstall attempt fails; the watcher backs off and keeps
	// trying until a fresh filter is in place, then polls it again.
	waitFor(t, func() bool { return logs.installCount() == 2 })
	waitFor(t, func() bool { return w.State() == StateActive })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWatcherBacksOffOnPollErrors(t *testing.T) {
	pools := &fakePoolFinder{pool: testPool, ok: true}
	quotes := &fakeQuoter{price: decimal.NewFromInt(100)}
	logs := &fakeLogSource{}

	w, _ := newTestWatcher(t, pools, quotes, logs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return logs.installCount() == 1 })
	logs.mu.Lock()
	filter := logs.filters[0]
	logs.mu.Unlock()
	filter.mu.Lock()
	filter.noMore = pollResult{err: errors.New("connection refused")}
	filter.mu.Unlock()

	waitFor(t, func() bool { return w.State() == StateBackoff })

	// Recovery resets the error streak and the state.
	filter.mu.Lock()
	filter.noMore = pollResult{}
	filter.mu.Unlock()
	waitFor(t, func() bool { return w.State() == StateActive })

	cancel()
	<-done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never satisfied")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
