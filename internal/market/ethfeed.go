package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gatti/dex-arbitrage-bot/internal/platform/cache"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
	"github.com/gatti/dex-arbitrage-bot/internal/platform/resilience"
)

const ethPriceCacheKey = "eth_price_usd"

// ETHPriceFeed fetches the ETH/USD price from an external HTTP feed,
// caching results and guarding the upstream with a rate limiter and
// circuit breaker.
type ETHPriceFeed struct {
	url     string
	client  *http.Client
	cache   cache.Cache
	ttl     time.Duration
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ETHPriceFeedConfig holds feed construction parameters.
type ETHPriceFeedConfig struct {
	URL          string
	Timeout      time.Duration
	Cache        cache.Cache
	TTL          time.Duration
	RateLimitRPM int
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// NewETHPriceFeed creates the feed client.
func NewETHPriceFeed(cfg ETHPriceFeedConfig) (*ETHPriceFeed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("price feed URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.RateLimitRPM <= 0 {
		cfg.RateLimitRPM = 30
	}

	feed := &ETHPriceFeed{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
		limiter: resilience.NewRateLimiterFromRPM(cfg.RateLimitRPM),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	feed.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "eth-price-feed",
		FailureThreshold: 5,
		OpenTimeout:      2 * time.Minute,
		OnStateChange: func(from, to resilience.State) {
			cfg.Metrics.SetCircuitBreakerState(context.Background(), "eth_price_feed", int64(to))
		},
	})
	return feed, nil
}

// Price returns the current ETH/USD price, served from cache when fresh.
func (f *ETHPriceFeed) Price(ctx context.Context) (decimal.Decimal, error) {
	if f.cache != nil {
		if cached, err := f.cache.Get(ctx, ethPriceCacheKey); err == nil {
			f.metrics.RecordCacheHit(ctx, "eth_price")
			if price, ok := cachedPrice(cached); ok {
				return price, nil
			}
		} else if errors.Is(err, cache.ErrNotFound) {
			f.metrics.RecordCacheMiss(ctx, "eth_price")
		}
	}

	if !f.limiter.Allow() {
		return decimal.Zero, fmt.Errorf("eth price feed rate limit exceeded")
	}

	price, err := resilience.ExecuteWithResult(f.breaker, ctx, f.fetch)
	if err != nil {
		return decimal.Zero, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, ethPriceCacheKey, price.InexactFloat64(), f.ttl); err != nil {
			f.logger.LogDebug(ctx, "caching eth price failed", "error", err)
		}
	}
	f.metrics.RecordETHPrice(ctx, price.InexactFloat64())

	return price, nil
}

func (f *ETHPriceFeed) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building price feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching eth price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("eth price feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading price feed response: %w", err)
	}

	var payload struct {
		Ethereum struct {
			USD float64 `json:"usd"`
		} `json:"ethereum"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("decoding price feed response: %w", err)
	}
	if payload.Ethereum.USD <= 0 {
		return decimal.Zero, fmt.Errorf("eth price feed returned %v", payload.Ethereum.USD)
	}

	return decimal.NewFromFloat(payload.Ethereum.USD), nil
}

// cachedPrice tolerates both float and string cache encodings; the Redis
// tier round-trips through JSON.
func cachedPrice(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case float64:
		if val > 0 {
			return decimal.NewFromFloat(val), true
		}
	case string:
		if price, err := decimal.NewFromString(val); err == nil && price.IsPositive() {
			return price, true
		}
	}
	return decimal.Zero, false
}
