package market

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func TestFindPairReturnsAddress(t *testing.T) {
	pairAddr := common.HexToAddress("0x88A43bbDF9D098eEC7bCEda4e2494615dfD9bB9C")
	caller := newFakeCaller()
	caller.handle(selectorOf(t, "getPair", "factory"), func(msg ethereum.CallMsg) ([]byte, error) {
		return packPair(t, pairAddr), nil
	})

	pl := NewPairLocator(caller)
	got, ok, err := pl.FindPair(context.Background(), testRouter, testToken, testStable)
	if err != nil {
		t.Fatalf("FindPair: %v", err)
	}
	if !ok || got != pairAddr {
		t.Fatalf("FindPair = (%s, %v), want (%s, true)", got, ok, pairAddr)
	}
}

func TestFindPairZeroAddressMeansNoPool(t *testing.T) {
	caller := newFakeCaller()
	caller.handle(selectorOf(t, "getPair", "factory"), func(msg ethereum.CallMsg) ([]byte, error) {
		return packPair(t, common.Address{}), nil
	})

	pl := NewPairLocator(caller)
	_, ok, err := pl.FindPair(context.Background(), testRouter, testToken, testStable)
	if err != nil {
		t.Fatalf("FindPair: %v", err)
	}
	if ok {
		t.Fatal("zero address must report no pool, not a valid pair")
	}
}

func TestFindPairPropagatesCallError(t *testing.T) {
	caller := newFakeCaller()
	caller.handle(selectorOf(t, "getPair", "factory"), func(msg ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("connection reset")
	})

	pl := NewPairLocator(caller)
	if _, _, err := pl.FindPair(context.Background(), testRouter, testToken, testStable); err == nil {
		t.Fatal("expected error")
	}
}
