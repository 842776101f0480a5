package pool_test

import (
	"testing"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/pool"
)

func TestAmountHistory_AppendClonesLatest(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	near := mustSlot(t, reg, "NEAR")
	h := pool.NewAmountHistory()
	var totals [coin.NumCoins]uint256.Int

	if err := h.Append(usdt, amt(100), true, &totals, 10); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append(near, amt(7), true, &totals, 20); err != nil {
		t.Fatalf("append: %v", err)
	}

	latest, ok := h.Latest()
	if !ok {
		t.Fatal("history should have samples")
	}
	// The second sample carries the first sample's USDT total forward.
	if latest.Amounts[usdt].Uint64() != 100 {
		t.Errorf("usdt total = %d, want 100 carried forward", latest.Amounts[usdt].Uint64())
	}
	if latest.Amounts[near].Uint64() != 7 {
		t.Errorf("near total = %d, want 7", latest.Amounts[near].Uint64())
	}
	if latest.Time != 20 {
		t.Errorf("time = %d, want 20", latest.Time)
	}
}

func TestAmountHistory_SubtractBelowZeroFails(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	h := pool.NewAmountHistory()
	var totals [coin.NumCoins]uint256.Int

	if err := h.Append(usdt, amt(50), true, &totals, 10); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := h.Append(usdt, amt(60), false, &totals, 20); err == nil {
		t.Error("subtracting below zero should fail")
	}
	if h.Len() != 1 {
		t.Errorf("failed append must not push a sample, len = %d", h.Len())
	}
}

func TestAmountHistory_EvictsOldestAtCap(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	h := pool.NewAmountHistory()
	var totals [coin.NumCoins]uint256.Int

	for i := 0; i < pool.MaxAmountSamples+9; i++ {
		if err := h.Append(usdt, amt(1), true, &totals, int64(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if h.Len() != pool.MaxAmountSamples {
		t.Fatalf("len = %d, want %d", h.Len(), pool.MaxAmountSamples)
	}
	samples := h.Samples()
	if samples[0].Time != 9 {
		t.Errorf("oldest sample time = %d, want 9 (first nine evicted)", samples[0].Time)
	}
	latest, _ := h.Latest()
	if latest.Amounts[usdt].Uint64() != uint64(pool.MaxAmountSamples+9) {
		t.Errorf("running total = %d, want %d", latest.Amounts[usdt].Uint64(), pool.MaxAmountSamples+9)
	}
}

func TestAmountHistory_AppendRewardsKeepsAmounts(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	h := pool.NewAmountHistory()
	var totals [coin.NumCoins]uint256.Int

	if err := h.Append(usdt, amt(100), true, &totals, 10); err != nil {
		t.Fatalf("append: %v", err)
	}

	totals[usdt] = *amt(42)
	h.AppendRewards(&totals, 20)

	latest, _ := h.Latest()
	if latest.Amounts[usdt].Uint64() != 100 {
		t.Errorf("amount = %d, want 100 unchanged", latest.Amounts[usdt].Uint64())
	}
	if latest.Rewards[usdt].Uint64() != 42 {
		t.Errorf("reward = %d, want 42 restamped", latest.Rewards[usdt].Uint64())
	}
	if h.Len() != 2 {
		t.Errorf("len = %d, want 2", h.Len())
	}
}

func TestAprHistory_EvictsOldestAtCap(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	h := pool.NewAprHistory()

	for i := 0; i < pool.MaxAprSamples+3; i++ {
		h.Append(usdt, uint16(100+i), int64(i))
	}

	series := h.Series(usdt)
	if len(series) != pool.MaxAprSamples {
		t.Fatalf("len = %d, want %d", len(series), pool.MaxAprSamples)
	}
	if series[0].Time != 3 {
		t.Errorf("oldest sample time = %d, want 3", series[0].Time)
	}
	if series[len(series)-1].AprBps != uint16(100+pool.MaxAprSamples+2) {
		t.Errorf("newest apr = %d, want %d", series[len(series)-1].AprBps, 100+pool.MaxAprSamples+2)
	}
}

func TestAprHistory_SeriesIndependentPerCoin(t *testing.T) {
	reg := coin.MustDefaultRegistry()
	usdt := mustSlot(t, reg, "USDT")
	near := mustSlot(t, reg, "NEAR")
	h := pool.NewAprHistory()

	h.Append(usdt, 1487, 10)

	if got := len(h.Series(near)); got != 0 {
		t.Errorf("near series len = %d, want 0", got)
	}
	if got := len(h.Series(usdt)); got != 1 {
		t.Errorf("usdt series len = %d, want 1", got)
	}
}
