package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	ethchain "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/market"
	"github.com/gatti/dex-arbitrage-bot/internal/notify"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/config"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/worker"
)

// Orchestrator wires the monitoring pipeline: it discovers which
// (token, DEX) pools exist, runs a watcher per pool, and routes price
// updates through the evaluator into the executor.
type Orchestrator struct {
	cfg OrchestratorConfig
}

// OrchestratorConfig holds orchestrator dependencies.
type OrchestratorConfig struct {
	Tokens     []config.TokenInfo
	DEXes      []config.DEXConfig
	Stablecoin common.Address

	Pools     PoolFinder
	Quotes    Quoter
	Prices    *market.PriceCache
	Logs      ethchain.LogSource
	Evaluator *Evaluator
	// Executor is optional; without it opportunities are only logged.
	Executor *Executor
	// Notifier receives detected opportunities. Optional.
	Notifier notify.Publisher

	PollInterval  time.Duration
	MaxBackoff    time.Duration
	VerifyWorkers int

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("at least one token is required")
	}
	if len(cfg.DEXes) < 2 {
		return nil, fmt.Errorf("at least two DEXes are required")
	}
	if cfg.Pools == nil || cfg.Quotes == nil || cfg.Prices == nil || cfg.Logs == nil || cfg.Evaluator == nil {
		return nil, fmt.Errorf("pools, quotes, prices, logs, and evaluator are all required")
	}
	if cfg.VerifyWorkers <= 0 {
		cfg.VerifyWorkers = 4
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewNoopPublisher()
	}
	return &Orchestrator{cfg: cfg}, nil
}

// verifiedPool is one existing pool found during startup discovery.
type verifiedPool struct {
	token config.TokenInfo
	dex   config.DEXConfig
	pool  common.Address
}

// Run discovers pools and drives all watchers until the context is
// cancelled. It returns an error only when startup discovery finds no
// tradable pool at all.
func (o *Orchestrator) Run(ctx context.Context) error {
	pools, err := o.discoverPools(ctx)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("no tradable pools found for any configured pair")
	}

	o.cfg.Logger.LogInfo(ctx, "starting pair watchers",
		"pools", len(pools),
		"tokens", len(o.cfg.Tokens),
		"dexes", len(o.cfg.DEXes),
	)
	o.cfg.Metrics.SetWatchersActive(ctx, int64(len(pools)))
	defer o.cfg.Metrics.SetWatchersActive(context.Background(), 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, vp := range pools {
		watcher, err := NewWatcher(WatcherConfig{
			Token:        common.HexToAddress(vp.token.Address),
			Symbol:       vp.token.Symbol,
			DEXID:        vp.dex.ID,
			Router:       common.HexToAddress(vp.dex.Router),
			Factory:      common.HexToAddress(vp.dex.Factory),
			Stablecoin:   o.cfg.Stablecoin,
			Pool:         vp.pool,
			Pools:        o.cfg.Pools,
			Quotes:       o.cfg.Quotes,
			Prices:       o.cfg.Prices,
			Logs:         o.cfg.Logs,
			OnUpdate:     o.onPriceUpdate,
			PollInterval: o.cfg.PollInterval,
			MaxBackoff:   o.cfg.MaxBackoff,
			Logger:       o.cfg.Logger,
			Metrics:      o.cfg.Metrics,
		})
		if err != nil {
			return fmt.Errorf("creating watcher for %s on %s: %w", vp.token.Symbol, vp.dex.ID, err)
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	return g.Wait()
}

// discoverPools fans pool lookups out over a bounded worker pool. Lookup
// failures degrade to "pool missing" so one flaky factory call cannot keep
// the monitor from starting.
func (o *Orchestrator) discoverPools(ctx context.Context) ([]verifiedPool, error) {
	var tasks []worker.Task[verifiedPool]
	for _, token := range o.cfg.Tokens {
		for _, dex := range o.cfg.DEXes {
			token, dex := token, dex
			tasks = append(tasks, worker.Task[verifiedPool]{
				ID: fmt.Sprintf("%s/%s", token.Symbol, dex.ID),
				Run: func(ctx context.Context) (verifiedPool, error) {
					pool, ok, err := o.cfg.Pools.FindPair(ctx,
						common.HexToAddress(dex.Factory),
						common.HexToAddress(token.Address),
						o.cfg.Stablecoin,
					)
					if err != nil {
						return verifiedPool{}, err
					}
					if !ok {
						return verifiedPool{}, errNoPool
					}
					return verifiedPool{token: token, dex: dex, pool: pool}, nil
				},
			})
		}
	}

	outcomes := worker.Run(ctx, o.cfg.VerifyWorkers, tasks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pools []verifiedPool
	for _, outcome := range outcomes {
		switch {
		case outcome.Err == nil:
			pools = append(pools, outcome.Value)
		case errors.Is(outcome.Err, errNoPool):
			o.cfg.Logger.LogDebug(ctx, "pair has no pool", "pair", outcome.ID)
		default:
			o.cfg.Logger.LogWarn(ctx, "pool discovery failed, skipping pair",
				"pair", outcome.ID, "error", outcome.Err)
		}
	}
	return pools, nil
}

var errNoPool = fmt.Errorf("no pool for pair")

// onPriceUpdate runs in the updating watcher's goroutine. Evaluation is a
// cache read; execution holds the trade lock, so concurrent updates that
// find the same spread drop out cheaply with ErrTradeInFlight.
func (o *Orchestrator) onPriceUpdate(ctx context.Context, token common.Address, symbol string) {
	snapshot := o.cfg.Prices.Snapshot(token)
	opp, ok := o.cfg.Evaluator.Evaluate(ctx, token, symbol, snapshot)
	if !ok {
		return
	}

	if err := o.cfg.Notifier.Publish(ctx, "opportunity_detected", opp, map[string]string{"token": symbol}); err != nil {
		o.cfg.Logger.LogWarn(ctx, "opportunity notification failed", "token", symbol, "error", err)
	}

	if o.cfg.Executor == nil {
		return
	}

	err := o.cfg.Executor.Execute(ctx, opp)
	switch {
	case err == nil:
	case errors.Is(err, ErrTradeInFlight), errors.Is(err, ErrCooldown):
		o.cfg.Logger.LogDebug(ctx, "opportunity dropped", "token", symbol, "reason", err)
	default:
		o.cfg.Logger.LogError(ctx, "trade execution failed", err,
			"token", symbol,
			"buy_dex", opp.BuyDEX,
			"sell_dex", opp.SellDEX,
		)
	}
}
