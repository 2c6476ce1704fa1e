package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceCacheSetGet(t *testing.T) {
	pc := NewPriceCache(5 * time.Minute)
	price := decimal.RequireFromString("101.5")

	pc.Set(testToken, "uniswap_v2", price)

	point, ok := pc.Get(testToken, "uniswap_v2")
	if !ok || !point.Price.Equal(price) {
		t.Fatalf("Get = (%+v, %v), want price 101.5", point, ok)
	}
	if _, ok := pc.Get(testToken, "baseswap"); ok {
		t.Fatal("Get for unset venue should miss")
	}
}

func TestPriceCacheStaleness(t *testing.T) {
	pc := NewPriceCache(time.Minute)
	now := time.Now()
	pc.now = func() time.Time { return now }

	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(100))

	now = now.Add(59 * time.Second)
	if _, ok := pc.Get(testToken, "uniswap_v2"); !ok {
		t.Fatal("price within max age should be visible")
	}

	now = now.Add(2 * time.Second)
	if _, ok := pc.Get(testToken, "uniswap_v2"); ok {
		t.Fatal("stale price should be invisible")
	}
}

func TestPriceCacheZeroMaxAgeDisablesStaleness(t *testing.T) {
	pc := NewPriceCache(0)
	now := time.Now()
	pc.now = func() time.Time { return now }

	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(100))

	now = now.Add(24 * time.Hour)
	if _, ok := pc.Get(testToken, "uniswap_v2"); !ok {
		t.Fatal("staleness disabled, old price should still be visible")
	}
}

func TestPriceCacheSnapshot(t *testing.T) {
	pc := NewPriceCache(time.Minute)
	now := time.Now()
	pc.now = func() time.Time { return now }

	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(100))
	pc.Set(testToken, "baseswap", decimal.NewFromInt(102))
	pc.Set(testStable, "uniswap_v2", decimal.NewFromInt(1))

	// Age out only the baseswap entry.
	now = now.Add(30 * time.Second)
	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(101))
	now = now.Add(45 * time.Second)

	snapshot := pc.Snapshot(testToken)
	if len(snapshot) != 1 {
		t.Fatalf("snapshot has %d entries, want 1 (stale and other-token entries excluded): %+v", len(snapshot), snapshot)
	}
	if point, ok := snapshot["uniswap_v2"]; !ok || !point.Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("snapshot[uniswap_v2] = %+v, want fresh 101", point)
	}
}

func TestPriceCacheOverwriteRefreshesTimestamp(t *testing.T) {
	pc := NewPriceCache(time.Minute)
	now := time.Now()
	pc.now = func() time.Time { return now }

	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(100))
	now = now.Add(50 * time.Second)
	pc.Set(testToken, "uniswap_v2", decimal.NewFromInt(105))
	now = now.Add(30 * time.Second)

	point, ok := pc.Get(testToken, "uniswap_v2")
	if !ok || !point.Price.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("Get = (%+v, %v), want refreshed 105", point, ok)
	}
}
