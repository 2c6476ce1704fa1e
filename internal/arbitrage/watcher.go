package arbitrage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	ethchain "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/market"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

// WatcherState is the lifecycle state of a pair watcher.
type WatcherState int32

const (
	// StateResolvingPool means the watcher is looking up the pool address.
	StateResolvingPool WatcherState = iota
	// StateActive means the watcher is polling for swap events.
	StateActive
	// StateBackoff means consecutive poll errors have paused the watcher.
	StateBackoff
	// StateStopped means the watcher exited: no pool, or shutdown.
	StateStopped
)

func (s WatcherState) String() string {
	switch s {
	case StateResolvingPool:
		return "resolving_pool"
	case StateActive:
		return "active"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PoolFinder resolves a pool address through a DEX factory.
type PoolFinder interface {
	FindPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, bool, error)
}

// Quoter prices one whole token in the stablecoin on a router.
type Quoter interface {
	Quote(ctx context.Context, dexID string, router, token common.Address) (decimal.Decimal, error)
}

// Watcher follows one (token, DEX) pool: it resolves the pool address,
// installs a swap log filter, and refreshes the price cache whenever the
// pool trades. Each refresh triggers the update callback so the evaluator
// can look across venues.
type Watcher struct {
	pool    common.Address
	token   common.Address
	symbol  string
	dexID   string
	router  common.Address
	factory common.Address
	stable  common.Address

	pools    PoolFinder
	quotes   Quoter
	prices   *market.PriceCache
	logs     ethchain.LogSource
	onUpdate func(ctx context.Context, token common.Address, symbol string)

	pollInterval time.Duration
	maxBackoff   time.Duration

	state   atomic.Int32
	logger  *observability.Logger
	metrics *observability.Metrics
}

// WatcherConfig holds watcher dependencies.
type WatcherConfig struct {
	Token      common.Address
	Symbol     string
	DEXID      string
	Router     common.Address
	Factory    common.Address
	Stablecoin common.Address
	// Pool, when already resolved, skips the factory lookup at startup.
	Pool common.Address

	Pools  PoolFinder
	Quotes Quoter
	Prices *market.PriceCache
	Logs   ethchain.LogSource
	// OnUpdate fires after every price refresh. Optional.
	OnUpdate func(ctx context.Context, token common.Address, symbol string)

	PollInterval time.Duration
	MaxBackoff   time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewWatcher creates a pair watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Pools == nil || cfg.Quotes == nil || cfg.Prices == nil || cfg.Logs == nil {
		return nil, fmt.Errorf("pools, quotes, prices, and logs are all required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}

	w := &Watcher{
		pool:         cfg.Pool,
		token:        cfg.Token,
		symbol:       cfg.Symbol,
		dexID:        cfg.DEXID,
		router:       cfg.Router,
		factory:      cfg.Factory,
		stable:       cfg.Stablecoin,
		pools:        cfg.Pools,
		quotes:       cfg.Quotes,
		prices:       cfg.Prices,
		logs:         cfg.Logs,
		onUpdate:     cfg.OnUpdate,
		pollInterval: cfg.PollInterval,
		maxBackoff:   cfg.MaxBackoff,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
	w.state.Store(int32(StateResolvingPool))
	return w, nil
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() WatcherState {
	return WatcherState(w.state.Load())
}

// Run drives the watcher until the context is cancelled or the pair has no
// pool on this DEX. A missing pool is a clean exit, not an error: the
// token simply is not traded on this venue.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.state.Store(int32(StateStopped))

	pool := w.pool
	if pool == ethchain.ZeroAddress {
		resolved, ok, err := w.pools.FindPair(ctx, w.factory, w.token, w.stable)
		if err != nil {
			return fmt.Errorf("resolving pool for %s on %s: %w", w.symbol, w.dexID, err)
		}
		if !ok {
			w.logger.LogInfo(ctx, "no pool for pair, watcher exiting",
				"token", w.symbol, "dex", w.dexID)
			return nil
		}
		pool = resolved
	}

	w.logger.LogInfo(ctx, "watching pool",
		"token", w.symbol, "dex", w.dexID, "pool", pool.Hex())

	filter := w.installFilter(ctx, pool)
	if filter == nil {
		return nil
	}
	defer func() {
		uninstallCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = filter.Uninstall(uninstallCtx)
	}()

	// Seed the cache so the evaluator has a price before the first swap.
	w.refreshPrice(ctx)
	w.state.Store(int32(StateActive))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		entries, err := filter.GetNewEntries(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Idle filters expire node-side. Reinstalling is routine
			// maintenance, not a failure.
			if ethchain.IsFilterNotFound(err) {
				w.metrics.RecordFilterRecreated(ctx, w.dexID)
				if fresh := w.installFilter(ctx, pool); fresh != nil {
					filter = fresh
					consecutiveErrors = 0
					w.state.Store(int32(StateActive))
				}
				continue
			}

			consecutiveErrors++
			w.metrics.RecordWatcherError(ctx, w.dexID)
			w.logger.LogWarn(ctx, "poll failed",
				"token", w.symbol, "dex", w.dexID,
				"consecutive_errors", consecutiveErrors, "error", err)
			w.backoff(ctx, consecutiveErrors)
			continue
		}

		if consecutiveErrors > 0 {
			consecutiveErrors = 0
			w.state.Store(int32(StateActive))
		}

		for range entries {
			w.metrics.RecordSwapEvent(ctx, w.symbol, w.dexID)
			w.refreshPrice(ctx)
		}
	}
}

// installFilter keeps retrying until the node accepts a swap filter for
// the pool. A flaky endpoint at startup delays the watcher, it does not
// kill it. Returns nil only when the context is cancelled.
func (w *Watcher) installFilter(ctx context.Context, pool common.Address) ethchain.LogFilter {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		filter, err := w.logs.NewSwapFilter(ctx, pool)
		if err == nil {
			return filter
		}

		attempts++
		w.metrics.RecordWatcherError(ctx, w.dexID)
		w.logger.LogWarn(ctx, "installing swap filter failed",
			"token", w.symbol, "dex", w.dexID,
			"consecutive_errors", attempts, "error", err)
		w.backoff(ctx, attempts)
	}
}

func (w *Watcher) refreshPrice(ctx context.Context) {
	price, err := w.quotes.Quote(ctx, w.dexID, w.router, w.token)
	if err != nil {
		w.logger.LogDebug(ctx, "no usable quote",
			"token", w.symbol, "dex", w.dexID, "error", err)
		return
	}

	w.prices.Set(w.token, w.dexID, price)
	w.metrics.RecordPriceUpdate(ctx, w.dexID)

	if w.onUpdate != nil {
		w.onUpdate(ctx, w.token, w.symbol)
	}
}

// backoff sleeps 5s per consecutive error, capped at the configured
// maximum, or returns early on shutdown.
func (w *Watcher) backoff(ctx context.Context, consecutiveErrors int) {
	w.state.Store(int32(StateBackoff))

	delay := time.Duration(consecutiveErrors) * 5 * time.Second
	if delay > w.maxBackoff {
		delay = w.maxBackoff
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
