package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/gatti/dex-arbitrage-bot/internal/arbitrage"
	ethchain "github.com/gatti/dex-arbitrage-bot/internal/ethereum"
	"github.com/gatti/dex-arbitrage-bot/internal/market"
	"github.com/gatti/dex-arbitrage-bot/internal/notify"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/awsutil"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/cache"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/config"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad(*configPath)

	// Setup observability (foundational - must be first)
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("dex-arbitrage-monitor", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "dex-arbitrage-monitor", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	logger.LogInfo(ctx, "observability setup complete")

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.LogError(ctx, "monitor stopped with error", err)
		os.Exit(1)
	}
	logger.LogInfo(context.Background(), "monitor stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) error {
	// Token universe
	tokens, err := cfg.LoadTokens()
	if err != nil {
		return fmt.Errorf("loading token selection: %w", err)
	}
	logger.LogInfo(ctx, "token selection loaded", "tokens", len(tokens))

	// Ethereum client pool
	logger.LogInfo(ctx, "connecting to Base RPC endpoints...")
	endpoints := make([]ethchain.EndpointConfig, len(cfg.Ethereum.RPCEndpoints))
	for i, ep := range cfg.Ethereum.RPCEndpoints {
		endpoints[i] = ethchain.EndpointConfig{URL: ep.URL, Weight: ep.Weight}
	}
	clientPool, err := ethchain.NewClientPool(ctx, ethchain.ClientPoolConfig{
		Endpoints: endpoints,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return fmt.Errorf("creating client pool: %w", err)
	}
	defer clientPool.Close()
	backend := ethchain.NewPooledBackend(clientPool)

	// Swap event filters are node-side state, so they stay pinned to the
	// primary endpoint rather than rotating through the pool.
	rpcClient, err := rpc.DialContext(ctx, cfg.Ethereum.RPCEndpoints[0].URL)
	if err != nil {
		return fmt.Errorf("dialing primary RPC endpoint: %w", err)
	}
	defer rpcClient.Close()
	logSource := ethchain.NewRPCLogSource(rpcClient)

	// Layered cache: in-process LRU, optionally backed by Redis
	memCache, err := cache.NewMemoryCache(cfg.Cache.L1MaxSize)
	if err != nil {
		return fmt.Errorf("creating memory cache: %w", err)
	}
	var l2 cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisCache.Close()
		l2 = redisCache
	}
	layered := cache.NewLayeredCache(memCache, l2)

	// Market data plumbing
	stablecoin := common.HexToAddress(cfg.Tokens.Stablecoin)

	decimalsCache, err := market.NewDecimalsCache(backend, cfg.Cache.L1MaxSize, logger.WithComponent("decimals"), metrics)
	if err != nil {
		return fmt.Errorf("creating decimals cache: %w", err)
	}

	quoteClient, err := market.NewQuoteClient(market.QuoteClientConfig{
		Caller:         backend,
		Stablecoin:     stablecoin,
		StableDecimals: cfg.Tokens.StablecoinDecimals,
		Decimals:       decimalsCache,
		Concurrency:    cfg.Arbitrage.QuoteConcurrency,
		Logger:         logger.WithComponent("quotes"),
		Metrics:        metrics,
	})
	if err != nil {
		return fmt.Errorf("creating quote client: %w", err)
	}

	ethFeed, err := market.NewETHPriceFeed(market.ETHPriceFeedConfig{
		URL:          cfg.Gas.PriceFeedURL,
		Timeout:      cfg.Gas.PriceFeedTimeout,
		Cache:        layered,
		TTL:          cfg.Gas.PriceTTL,
		RateLimitRPM: cfg.Gas.FeedRateLimitRPM,
		Logger:       logger.WithComponent("ethfeed"),
		Metrics:      metrics,
	})
	if err != nil {
		return fmt.Errorf("creating ETH price feed: %w", err)
	}

	gasEstimator := market.NewGasEstimator(backend, ethFeed,
		cfg.Gas.EstimateGasUnits, cfg.Gas.FallbackCostUSD,
		logger.WithComponent("gas"), metrics)

	// Detection
	dexOrder := make([]string, len(cfg.DEXes))
	for i, dex := range cfg.DEXes {
		dexOrder[i] = dex.ID
	}
	evaluator, err := arbitrage.NewEvaluator(arbitrage.EvaluatorConfig{
		DEXOrder:         dexOrder,
		MinSpreadPercent: cfg.Arbitrage.MinSpreadPercent,
		MaxSpreadPercent: cfg.Arbitrage.MaxSpreadPercent,
		MinProfitUSD:     cfg.Arbitrage.MinProfitUSD,
		NotionalUSD:      cfg.Arbitrage.FlashLoanAmountUSD,
		Gas:              gasEstimator,
		Logger:           logger.WithComponent("evaluator"),
		Metrics:          metrics,
	})
	if err != nil {
		return fmt.Errorf("creating evaluator: %w", err)
	}

	notifier, err := buildNotifier(ctx, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}

	// Execution is opt-in; without it the monitor only reports.
	var executor *arbitrage.Executor
	if cfg.Execution.Enabled {
		executor, err = buildExecutor(cfg, backend, notifier, logger, metrics)
		if err != nil {
			return fmt.Errorf("creating executor: %w", err)
		}
		logger.LogInfo(ctx, "trade execution enabled",
			"contract", cfg.Execution.ContractAddress,
			"cooldown", cfg.Execution.Cooldown.String(),
		)
	} else {
		logger.LogInfo(ctx, "running in detection-only mode")
	}

	orchestrator, err := arbitrage.NewOrchestrator(arbitrage.OrchestratorConfig{
		Tokens:       tokens,
		DEXes:        cfg.DEXes,
		Stablecoin:   stablecoin,
		Pools:        market.NewPairLocator(backend),
		Quotes:       quoteClient,
		Prices:       market.NewPriceCache(cfg.Arbitrage.PriceMaxAge),
		Logs:         logSource,
		Evaluator:    evaluator,
		Executor:     executor,
		Notifier:     notifier,
		PollInterval: cfg.Arbitrage.PollInterval,
		MaxBackoff:   cfg.Arbitrage.MaxBackoff,
		Logger:       logger.WithComponent("orchestrator"),
		Metrics:      metrics,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	server := newHTTPServer(cfg.HTTP.Port, clientPool, metrics)
	g.Go(func() error {
		logger.LogInfo(gctx, "HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.LogInfo(gctx, "starting arbitrage monitor",
			"tokens", len(tokens),
			"dexes", len(cfg.DEXes),
			"chain_id", cfg.Ethereum.ChainID,
		)
		return orchestrator.Run(gctx)
	})

	return g.Wait()
}

// buildNotifier returns the SNS publisher when AWS is enabled, a noop
// publisher otherwise.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (notify.Publisher, error) {
	if !cfg.AWS.Enabled {
		return notify.NewNoopPublisher(), nil
	}
	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	snsClient := awsutil.NewSNSClient(awsutil.SNSClientConfig{
		AWSConfig: awsCfg,
		Logger:    logger.WithComponent("sns"),
		Metrics:   metrics,
	})
	return notify.NewSNSPublisher(snsClient, cfg.AWS.SNSTopicARN), nil
}

// buildExecutor wires the signer and per-DEX routers.
func buildExecutor(cfg *config.Config, backend ethchain.TransactionBackend, notifier notify.Publisher, logger *observability.Logger, metrics *observability.Metrics) (*arbitrage.Executor, error) {
	signer, err := ethchain.NewSigner(cfg.Execution.PrivateKey, cfg.Ethereum.ChainID)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	routers := make(map[string]common.Address, len(cfg.DEXes))
	for _, dex := range cfg.DEXes {
		routers[dex.ID] = common.HexToAddress(dex.Router)
	}

	return arbitrage.NewExecutor(arbitrage.ExecutorConfig{
		Signer:             signer,
		Backend:            backend,
		Contract:           common.HexToAddress(cfg.Execution.ContractAddress),
		Stablecoin:         common.HexToAddress(cfg.Tokens.Stablecoin),
		Routers:            routers,
		FlashLoanAmountUSD: cfg.Arbitrage.FlashLoanAmountUSD,
		StableDecimals:     cfg.Tokens.StablecoinDecimals,
		ProfitMargin:       cfg.Execution.ProfitMargin,
		GasLimit:           cfg.Execution.GasLimit,
		ReceiptTimeout:     cfg.Execution.ReceiptTimeout,
		Cooldown:           cfg.Execution.Cooldown,
		Notifier:           notifier,
		Logger:             logger.WithComponent("executor"),
		Metrics:            metrics,
	})
}

// newHTTPServer serves health, readiness, and metrics endpoints.
func newHTTPServer(port int, pool *ethchain.ClientPool, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready only while at least one RPC endpoint answers probes.
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool.HealthyCount() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"no healthy rpc endpoints"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Handle("/metrics", metrics.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
