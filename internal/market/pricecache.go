package market

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PricePoint is one venue's last observed price for a token.
type PricePoint struct {
	Price     decimal.Decimal
	UpdatedAt time.Time
}

type priceKey struct {
	token common.Address
	dex   string
}

// PriceCache holds the latest price per (token, DEX). It is written by the
// pair watchers and read by the evaluator; prices older than the staleness
// bound are invisible to readers.
type PriceCache struct {
	mu     sync.RWMutex
	points map[priceKey]PricePoint
	maxAge time.Duration // 0 disables staleness filtering
	now    func() time.Time
}

// NewPriceCache creates a price cache with the given staleness bound.
func NewPriceCache(maxAge time.Duration) *PriceCache {
	return &PriceCache{
		points: make(map[priceKey]PricePoint),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Set records a fresh price for the token on the given venue.
func (pc *PriceCache) Set(token common.Address, dexID string, price decimal.Decimal) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.points[priceKey{token: token, dex: dexID}] = PricePoint{
		Price:     price,
		UpdatedAt: pc.now(),
	}
}

// Get returns the venue's price for the token if present and fresh.
func (pc *PriceCache) Get(token common.Address, dexID string) (PricePoint, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	point, ok := pc.points[priceKey{token: token, dex: dexID}]
	if !ok || pc.stale(point) {
		return PricePoint{}, false
	}
	return point, true
}

// Snapshot returns all fresh prices for a token, keyed by DEX ID.
func (pc *PriceCache) Snapshot(token common.Address) map[string]PricePoint {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	snapshot := make(map[string]PricePoint)
	for key, point := range pc.points {
		if key.token != token || pc.stale(point) {
			continue
		}
		snapshot[key.dex] = point
	}
	return snapshot
}

// Len returns the number of entries, including stale ones.
func (pc *PriceCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.points)
}

func (pc *PriceCache) stale(point PricePoint) bool {
	if pc.maxAge <= 0 {
		return false
	}
	return pc.now().Sub(point.UpdatedAt) > pc.maxAge
}
