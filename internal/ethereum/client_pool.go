// Package ethereum manages JSON-RPC connectivity: a health-tracked client
// pool, contract ABI bindings, swap log polling, and transaction sending.
package ethereum

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gatti/dex-arbitrage-bot/internal/platform/observability"
)

// Endpoint is one RPC endpoint held by the pool.
type Endpoint struct {
	URL    string
	Weight int

	mu      sync.Mutex
	client  *ethclient.Client
	healthy atomic.Bool
}

// ClientPool rotates over multiple RPC endpoints, skipping ones that fail
// their periodic health probe.
type ClientPool struct {
	endpoints []*Endpoint
	next      atomic.Uint64
	logger    *observability.Logger
	metrics   *observability.Metrics
	probeTTL  time.Duration
	stop      context.CancelFunc
	done      chan struct{}
}

// ClientPoolConfig holds pool construction parameters.
type ClientPoolConfig struct {
	Endpoints []EndpointConfig
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	ProbeTTL  time.Duration
}

// EndpointConfig names one endpoint to dial.
type EndpointConfig struct {
	URL    string
	Weight int
}

// NewClientPool dials all configured endpoints and starts background health
// probes. It fails only if no endpoint is reachable at startup.
func NewClientPool(ctx context.Context, cfg ClientPoolConfig) (*ClientPool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = 30 * time.Second
	}

	endpoints := make([]*Endpoint, 0, len(cfg.Endpoints))
	reachable := 0
	for _, epCfg := range cfg.Endpoints {
		ep := &Endpoint{URL: epCfg.URL, Weight: epCfg.Weight}
		client, err := ethclient.DialContext(ctx, epCfg.URL)
		if err != nil {
			cfg.Logger.LogWarn(ctx, "rpc endpoint unreachable at startup", "url", epCfg.URL, "error", err)
		} else {
			ep.client = client
			ep.healthy.Store(true)
			reachable++
			cfg.Logger.LogInfo(ctx, "connected to rpc endpoint", "url", epCfg.URL, "weight", epCfg.Weight)
		}
		endpoints = append(endpoints, ep)
	}
	if reachable == 0 {
		return nil, fmt.Errorf("no reachable RPC endpoints")
	}

	probeCtx, cancel := context.WithCancel(context.Background())
	pool := &ClientPool{
		endpoints: endpoints,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		probeTTL:  cfg.ProbeTTL,
		stop:      cancel,
		done:      make(chan struct{}),
	}
	go pool.probeLoop(probeCtx)

	return pool, nil
}

// Client returns the next healthy client, round-robin.
func (p *ClientPool) Client() (*ethclient.Client, error) {
	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := int(p.next.Add(1)-1) % n
		ep := p.endpoints[idx]
		if !ep.healthy.Load() {
			continue
		}
		ep.mu.Lock()
		client := ep.client
		ep.mu.Unlock()
		if client != nil {
			return client, nil
		}
	}
	return nil, fmt.Errorf("no healthy RPC endpoints available")
}

// MarkUnhealthy flags an endpoint so the pool stops handing it out until a
// probe succeeds again.
func (p *ClientPool) MarkUnhealthy(url string) {
	for _, ep := range p.endpoints {
		if ep.URL != url {
			continue
		}
		if ep.healthy.Swap(false) {
			p.logger.LogWarn(context.Background(), "marking rpc endpoint unhealthy", "url", url)
			p.metrics.SetRPCEndpointHealth(context.Background(), url, false)
		}
		return
	}
}

// HealthyCount returns how many endpoints currently pass health checks.
func (p *ClientPool) HealthyCount() int {
	count := 0
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// Status reports per-endpoint health, keyed by URL.
func (p *ClientPool) Status() map[string]bool {
	status := make(map[string]bool, len(p.endpoints))
	for _, ep := range p.endpoints {
		status[ep.URL] = ep.healthy.Load()
	}
	return status
}

// Close stops health probes and closes all connections.
func (p *ClientPool) Close() {
	p.stop()
	<-p.done
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
	}
}

func (p *ClientPool) probeLoop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.probeTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var wg sync.WaitGroup
			for _, ep := range p.endpoints {
				wg.Add(1)
				go func(ep *Endpoint) {
					defer wg.Done()
					p.probe(ctx, ep)
				}(ep)
			}
			wg.Wait()
		}
	}
}

func (p *ClientPool) probe(ctx context.Context, ep *Endpoint) {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ep.mu.Lock()
	client := ep.client
	ep.mu.Unlock()

	if client == nil {
		dialed, err := ethclient.DialContext(probeCtx, ep.URL)
		if err != nil {
			ep.healthy.Store(false)
			p.metrics.SetRPCEndpointHealth(probeCtx, ep.URL, false)
			return
		}
		ep.mu.Lock()
		ep.client = dialed
		ep.mu.Unlock()
		client = dialed
		p.logger.LogInfo(probeCtx, "reconnected to rpc endpoint", "url", ep.URL)
	}

	if _, err := client.BlockNumber(probeCtx); err != nil {
		// A cancelled probe says nothing about the endpoint.
		if probeCtx.Err() != nil {
			return
		}
		if ep.healthy.Swap(false) {
			p.logger.LogError(probeCtx, "rpc endpoint health check failed", err, "url", ep.URL)
		}
		p.metrics.SetRPCEndpointHealth(probeCtx, ep.URL, false)
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
		return
	}

	if !ep.healthy.Swap(true) {
		p.logger.LogInfo(probeCtx, "rpc endpoint recovered", "url", ep.URL)
	}
	p.metrics.SetRPCEndpointHealth(probeCtx, ep.URL, true)
}
