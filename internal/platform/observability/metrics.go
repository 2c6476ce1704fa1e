package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics.
type Metrics struct {
	meter metric.Meter

	// Watcher metrics
	SwapEventsObserved metric.Int64Counter
	WatcherErrors      metric.Int64Counter
	FilterRecreations  metric.Int64Counter
	WatchersActive     metric.Int64Gauge

	// Price metrics
	PriceUpdates  metric.Int64Counter
	QuoteCalls    metric.Int64Counter
	QuoteDuration metric.Float64Histogram
	ETHPriceUSD   metric.Float64Gauge

	// Opportunity metrics
	OpportunitiesDetected metric.Int64Counter
	SpreadObserved        metric.Float64Histogram

	// Execution metrics
	TradesExecuted metric.Int64Counter
	TradesDropped  metric.Int64Counter
	TradeDuration  metric.Float64Histogram
	GasCostUSD     metric.Float64Gauge

	// Infrastructure metrics
	RPCEndpointHealth   metric.Int64Gauge
	CircuitBreakerState metric.Int64Gauge
	CacheHits           metric.Int64Counter
	CacheMisses         metric.Int64Counter

	// Prometheus exporter for the HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance. When disabled, all recorders
// are no-ops and Handler returns a handler serving an empty registry.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	meter := provider.Meter(serviceName)

	m := &Metrics{meter: meter, exporter: exporter}

	if m.SwapEventsObserved, err = meter.Int64Counter("swap_events_observed_total",
		metric.WithDescription("Swap log entries observed across all watched pools")); err != nil {
		return nil, err
	}
	if m.WatcherErrors, err = meter.Int64Counter("watcher_errors_total",
		metric.WithDescription("Watcher poll errors that triggered backoff")); err != nil {
		return nil, err
	}
	if m.FilterRecreations, err = meter.Int64Counter("filter_recreations_total",
		metric.WithDescription("Expired log filters recreated without backoff")); err != nil {
		return nil, err
	}
	if m.WatchersActive, err = meter.Int64Gauge("watchers_active",
		metric.WithDescription("Watchers currently in the polling state")); err != nil {
		return nil, err
	}
	if m.PriceUpdates, err = meter.Int64Counter("price_updates_total",
		metric.WithDescription("Price cache writes")); err != nil {
		return nil, err
	}
	if m.QuoteCalls, err = meter.Int64Counter("quote_calls_total",
		metric.WithDescription("Router quote calls by DEX and outcome")); err != nil {
		return nil, err
	}
	if m.QuoteDuration, err = meter.Float64Histogram("quote_duration_seconds",
		metric.WithDescription("Router quote call latency")); err != nil {
		return nil, err
	}
	if m.ETHPriceUSD, err = meter.Float64Gauge("eth_price_usd",
		metric.WithDescription("Last ETH/USD price from the external feed")); err != nil {
		return nil, err
	}
	if m.OpportunitiesDetected, err = meter.Int64Counter("opportunities_detected_total",
		metric.WithDescription("Profitable opportunities produced by the evaluator")); err != nil {
		return nil, err
	}
	if m.SpreadObserved, err = meter.Float64Histogram("spread_percent",
		metric.WithDescription("Cross-DEX spread percentages observed during evaluation")); err != nil {
		return nil, err
	}
	if m.TradesExecuted, err = meter.Int64Counter("trades_executed_total",
		metric.WithDescription("Arbitrage transactions by outcome")); err != nil {
		return nil, err
	}
	if m.TradesDropped, err = meter.Int64Counter("trades_dropped_total",
		metric.WithDescription("Opportunities dropped because a trade was in flight")); err != nil {
		return nil, err
	}
	if m.TradeDuration, err = meter.Float64Histogram("trade_duration_seconds",
		metric.WithDescription("Submit-to-receipt latency of arbitrage transactions")); err != nil {
		return nil, err
	}
	if m.GasCostUSD, err = meter.Float64Gauge("gas_cost_usd",
		metric.WithDescription("Last estimated arbitrage gas cost in USD")); err != nil {
		return nil, err
	}
	if m.RPCEndpointHealth, err = meter.Int64Gauge("rpc_endpoint_healthy",
		metric.WithDescription("Health of each RPC endpoint (1 healthy, 0 unhealthy)")); err != nil {
		return nil, err
	}
	if m.CircuitBreakerState, err = meter.Int64Gauge("circuit_breaker_state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)")); err != nil {
		return nil, err
	}
	if m.CacheHits, err = meter.Int64Counter("cache_hits_total",
		metric.WithDescription("Cache hits by cache name")); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter("cache_misses_total",
		metric.WithDescription("Cache misses by cache name")); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler returns the HTTP handler serving Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) enabled() bool {
	return m != nil && m.meter != nil
}

// RecordSwapEvent records an observed swap log entry.
func (m *Metrics) RecordSwapEvent(ctx context.Context, token, dex string) {
	if !m.enabled() {
		return
	}
	m.SwapEventsObserved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token", token),
		attribute.String("dex", dex),
	))
}

// RecordWatcherError records a poll error that triggered backoff.
func (m *Metrics) RecordWatcherError(ctx context.Context, dex string) {
	if !m.enabled() {
		return
	}
	m.WatcherErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("dex", dex)))
}

// RecordFilterRecreated records a transparent filter recreation.
func (m *Metrics) RecordFilterRecreated(ctx context.Context, dex string) {
	if !m.enabled() {
		return
	}
	m.FilterRecreations.Add(ctx, 1, metric.WithAttributes(attribute.String("dex", dex)))
}

// SetWatchersActive records the number of watchers currently polling.
func (m *Metrics) SetWatchersActive(ctx context.Context, n int64) {
	if !m.enabled() {
		return
	}
	m.WatchersActive.Record(ctx, n)
}

// RecordPriceUpdate records a price cache write.
func (m *Metrics) RecordPriceUpdate(ctx context.Context, dex string) {
	if !m.enabled() {
		return
	}
	m.PriceUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("dex", dex)))
}

// RecordQuote records a router quote call and its latency.
func (m *Metrics) RecordQuote(ctx context.Context, dex, outcome string, d time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("dex", dex),
		attribute.String("outcome", outcome),
	)
	m.QuoteCalls.Add(ctx, 1, attrs)
	m.QuoteDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordETHPrice records the latest feed price.
func (m *Metrics) RecordETHPrice(ctx context.Context, usd float64) {
	if !m.enabled() {
		return
	}
	m.ETHPriceUSD.Record(ctx, usd)
}

// RecordOpportunity records a detected opportunity.
func (m *Metrics) RecordOpportunity(ctx context.Context, token string, netProfitUSD float64) {
	if !m.enabled() {
		return
	}
	m.OpportunitiesDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("token", token)))
}

// RecordSpread records an observed spread percentage.
func (m *Metrics) RecordSpread(ctx context.Context, token string, spreadPct float64) {
	if !m.enabled() {
		return
	}
	m.SpreadObserved.Record(ctx, spreadPct, metric.WithAttributes(attribute.String("token", token)))
}

// RecordTrade records a completed trade attempt by outcome.
func (m *Metrics) RecordTrade(ctx context.Context, outcome string, d time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TradesExecuted.Add(ctx, 1, attrs)
	m.TradeDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTradeDropped records an opportunity dropped due to the trade lock.
func (m *Metrics) RecordTradeDropped(ctx context.Context) {
	if !m.enabled() {
		return
	}
	m.TradesDropped.Add(ctx, 1)
}

// RecordGasCost records the latest gas cost estimate.
func (m *Metrics) RecordGasCost(ctx context.Context, usd float64) {
	if !m.enabled() {
		return
	}
	m.GasCostUSD.Record(ctx, usd)
}

// SetRPCEndpointHealth records an endpoint's health status.
func (m *Metrics) SetRPCEndpointHealth(ctx context.Context, url string, healthy bool) {
	if !m.enabled() {
		return
	}
	v := int64(0)
	if healthy {
		v = 1
	}
	m.RPCEndpointHealth.Record(ctx, v, metric.WithAttributes(attribute.String("endpoint", url)))
}

// SetCircuitBreakerState records a circuit breaker state change.
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, name string, state int64) {
	if !m.enabled() {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker", name)))
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context, name string) {
	if !m.enabled() {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", name)))
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context, name string) {
	if !m.enabled() {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", name)))
}
