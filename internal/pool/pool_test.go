package pool_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/pool"
)

const (
	ownerID    = pool.AccountID("owner.near")
	treasuryID = pool.AccountID("treasury.near")
	aliceID    = pool.AccountID("alice.near")

	rewardWindow = int64(86_400)
)

// newTestPool builds a pool with a flat APR and a campaign that never
// activates, so withdrawal paths stay price-independent.
func newTestPool(t *testing.T, now int64) (*pool.Pool, *coin.Registry) {
	t.Helper()
	reg := coin.MustDefaultRegistry()

	params := pool.Params{
		Owner:        ownerID,
		Treasury:     treasuryID,
		RewardWindow: rewardWindow,
		Campaign: pool.CampaignConfig{
			StartTime:     1 << 40,
			Duration:      1,
			TotalEmission: uint256.NewInt(0),
			BasePrice:     25,
			GrowthFactor:  13,
			TierSize:      uint256.NewInt(20_000_000),
		},
	}
	for slot := range params.AprBps {
		params.AprBps[slot] = 1487
	}
	return pool.New(reg, params, now), reg
}

// newFarmingPool builds a pool whose campaign window is open.
func newFarmingPool(t *testing.T, now int64) (*pool.Pool, *coin.Registry) {
	t.Helper()
	reg := coin.MustDefaultRegistry()

	params := pool.Params{
		Owner:        ownerID,
		Treasury:     treasuryID,
		RewardWindow: rewardWindow,
		Campaign:     testCampaign(),
	}
	for slot := range params.AprBps {
		params.AprBps[slot] = 1487
	}
	return pool.New(reg, params, now), reg
}

// ============================================================================
// Test: Deposit
// ============================================================================

func TestPool_DepositEmitsTreasuryTransfer(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	applied, err := p.Deposit(aliceID, "USDT", amt(1_000_000), false, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if len(applied.Effects) != 1 {
		t.Fatalf("effects = %d, want 1", len(applied.Effects))
	}
	e := applied.Effects[0]
	if e.Type != pool.EffectTransfer {
		t.Errorf("effect type = %v, want transfer", e.Type)
	}
	if e.To != treasuryID {
		t.Errorf("effect to = %s, want treasury", e.To)
	}
	if e.Amount.Uint64() != 1_000_000 {
		t.Errorf("effect amount = %d, want 1000000", e.Amount.Uint64())
	}

	if len(applied.Changes.Users) != 1 {
		t.Fatalf("user deltas = %d, want 1", len(applied.Changes.Users))
	}
	if applied.Changes.Users[0].Principal != "1000000" {
		t.Errorf("principal delta = %s, want 1000000", applied.Changes.Users[0].Principal)
	}
	if len(applied.Changes.History) != 1 {
		t.Errorf("history deltas = %d, want 1", len(applied.Changes.History))
	}
}

func TestPool_DepositWithTokenAddressEmitsTokenCall(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.SetTokenAddress(ownerID, "USDT", "vusdt.token.near"); err != nil {
		t.Fatalf("set token address: %v", err)
	}

	applied, err := p.Deposit(aliceID, "USDT", amt(500), false, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(applied.Effects) != 2 {
		t.Fatalf("effects = %d, want transfer + token call", len(applied.Effects))
	}
	call := applied.Effects[1]
	if call.Type != pool.EffectTokenCall {
		t.Errorf("effect type = %v, want token call", call.Type)
	}
	if call.TokenAddress != "vusdt.token.near" || call.Method != "mint" {
		t.Errorf("token call = %s.%s, want vusdt.token.near.mint", call.TokenAddress, call.Method)
	}
	if call.To != aliceID {
		t.Errorf("token call to = %s, want depositor", call.To)
	}
}

func TestPool_DepositUnknownCoin(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	_, err := p.Deposit(aliceID, "DOGE", amt(100), false, 1000)
	if !errors.Is(err, coin.ErrUnknownCoin) {
		t.Errorf("got %v, want ErrUnknownCoin", err)
	}
}

func TestPool_DepositZeroAmount(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	_, err := p.Deposit(aliceID, "USDT", new(uint256.Int), false, 1000)
	if !errors.Is(err, pool.ErrZeroAmount) {
		t.Errorf("got %v, want ErrZeroAmount", err)
	}
}

// ============================================================================
// Test: Reserve + Withdraw
// ============================================================================

func TestPool_WithdrawRequiresTreasury(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(100), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := p.ReserveWithdraw(aliceID, "USDT", amt(100)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := p.Withdraw(aliceID, aliceID, "USDT", amt(100), &pool.PriceVector{}, 2000)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestPool_WithdrawWithoutReservation(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(100), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := p.Withdraw(treasuryID, aliceID, "USDT", amt(100), &pool.PriceVector{}, 2000)
	if !errors.Is(err, pool.ErrReservationTooSmall) {
		t.Errorf("got %v, want ErrReservationTooSmall", err)
	}
}

func TestPool_DepositAccrueWithdrawFlow(t *testing.T) {
	p, reg := newTestPool(t, 1000)
	usdt := mustSlot(t, reg, "USDT")

	if _, err := p.Deposit(aliceID, "USDT", amt(1_000_000), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// One reward window later: 1_000_000 * 1487bps / 365 days = 407.
	accrueNow := int64(1000 + rewardWindow)
	applied, err := p.AccrueRewards(treasuryID, accrueNow)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if len(applied.Changes.Users) != 1 {
		t.Fatalf("accrual deltas = %d, want 1", len(applied.Changes.Users))
	}
	if applied.Changes.Users[0].Reward != "407" {
		t.Errorf("reward delta = %s, want 407", applied.Changes.Users[0].Reward)
	}
	if got := p.TotalReward(usdt).Uint64(); got != 407 {
		t.Errorf("total reward = %d, want 407", got)
	}

	// Withdraw principal plus part of the reward.
	if _, err := p.ReserveWithdraw(aliceID, "USDT", amt(1_000_100)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	applied, err = p.Withdraw(treasuryID, aliceID, "USDT", amt(1_000_100), &pool.PriceVector{}, accrueNow+10)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	st := p.Status(aliceID)
	var bal pool.BalanceInfo
	for _, b := range st.Balances {
		if b.Symbol == "USDT" {
			bal = b
		}
	}
	if bal.Principal != "0" {
		t.Errorf("principal = %s, want 0", bal.Principal)
	}
	if bal.Reward != "307" {
		t.Errorf("reward = %s, want 307 (100 drawn after principal)", bal.Reward)
	}
	if got := p.TotalReward(usdt).Uint64(); got != 307 {
		t.Errorf("total reward = %d, want 307", got)
	}
	if len(applied.Changes.RewardTotals) != 1 || applied.Changes.RewardTotals[0].Total != "307" {
		t.Errorf("reward total delta = %+v, want 307", applied.Changes.RewardTotals)
	}

	// Aggregate history reflects only the principal leg of the draw.
	samples := p.AmountHistorySamples()
	latest := samples[len(samples)-1]
	if !latest.Amounts[usdt].IsZero() {
		t.Errorf("aggregate amount = %s, want 0", latest.Amounts[usdt].Dec())
	}
}

// ============================================================================
// Test: AccrueRewards
// ============================================================================

func TestPool_AccrueRequiresTreasury(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	_, err := p.AccrueRewards(aliceID, 2000)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestPool_AccrueIsThrottledPerWindow(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(1_000_000), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	now := int64(1000 + rewardWindow)
	if _, err := p.AccrueRewards(treasuryID, now); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	applied, err := p.AccrueRewards(treasuryID, now)
	if err != nil {
		t.Fatalf("second accrue: %v", err)
	}
	if len(applied.Changes.Users) != 0 {
		t.Errorf("second sweep in the same window touched %d rows, want 0", len(applied.Changes.Users))
	}
}

// ============================================================================
// Test: Farm epoch
// ============================================================================

func TestPool_RunFarmEpochDistributes(t *testing.T) {
	p, _ := newFarmingPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(50_000_000), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	reg := p.Registry()
	applied, err := p.RunFarmEpoch(treasuryID, usdtPrices(t, reg, 2), 5000)
	if err != nil {
		t.Fatalf("farm epoch: %v", err)
	}
	if len(applied.Changes.Farms) != 1 || applied.Changes.Farms[0].Amount != "4" {
		t.Errorf("farm deltas = %+v, want alice at 4", applied.Changes.Farms)
	}
	if applied.Changes.Campaign == nil {
		t.Fatal("campaign delta missing")
	}
	if applied.Changes.Campaign.LastRun != 5000 {
		t.Errorf("campaign last run = %d, want 5000", applied.Changes.Campaign.LastRun)
	}

	fi := p.FarmInfo(aliceID)
	if fi.Amount != "4" {
		t.Errorf("farm amount = %s, want 4", fi.Amount)
	}
}

func TestPool_RunFarmEpochOutsideWindow(t *testing.T) {
	p, reg := newFarmingPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(50_000_000), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	applied, err := p.RunFarmEpoch(treasuryID, usdtPrices(t, reg, 2), 999)
	if err != nil {
		t.Fatalf("farm epoch: %v", err)
	}
	if len(applied.Changes.Farms) != 0 || applied.Changes.Campaign != nil {
		t.Errorf("epoch outside window produced changes: %+v", applied.Changes)
	}
}

func TestPool_RunFarmEpochRequiresTreasury(t *testing.T) {
	p, reg := newFarmingPool(t, 1000)

	_, err := p.RunFarmEpoch(aliceID, usdtPrices(t, reg, 2), 5000)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: Pot epoch
// ============================================================================

func TestPool_ProcessPotEpochPromotes(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.Deposit(aliceID, "USDT", amt(500), false, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := p.ProcessPotEpoch(treasuryID); err != nil {
		t.Fatalf("pot epoch: %v", err)
	}

	infos := p.PotInfo(aliceID)
	if infos == nil {
		t.Fatal("pot info missing")
	}
	for _, info := range infos {
		if info.Symbol != "USDT" {
			continue
		}
		if info.QualifiedAmount != "500" || info.Amount != "0" {
			t.Errorf("pot = %+v, want qualified 500, unqualified 0", info)
		}
	}
}

func TestPool_ProcessPotEpochRequiresTreasury(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	_, err := p.ProcessPotEpoch(ownerID)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

// ============================================================================
// Test: Admin
// ============================================================================

func TestPool_SetConfigRequiresOwner(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	next := pool.AccountID("vault.near")
	_, err := p.SetConfig(treasuryID, nil, &next)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestPool_SetConfigRotatesTreasury(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	next := pool.AccountID("vault.near")
	if _, err := p.SetConfig(ownerID, nil, &next); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if p.Treasury() != next {
		t.Errorf("treasury = %s, want vault.near", p.Treasury())
	}

	// The old treasury loses its privileges immediately.
	if _, err := p.AccrueRewards(treasuryID, 2000); !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized for rotated-out treasury", err)
	}
	if _, err := p.AccrueRewards(next, 2000); err != nil {
		t.Errorf("new treasury rejected: %v", err)
	}
}

func TestPool_SetAprAppendsHistory(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	if _, err := p.SetApr(ownerID, "USDT", 900, 2000); err != nil {
		t.Fatalf("set apr: %v", err)
	}

	st := p.Status(aliceID)
	series := st.AprHistory["USDT"]
	if len(series) != 2 {
		t.Fatalf("apr series len = %d, want seed + update", len(series))
	}
	if series[1].AprBps != 900 || series[1].Time != 2000 {
		t.Errorf("latest apr sample = %+v, want 900@2000", series[1])
	}
}

func TestPool_SetAprRequiresOwner(t *testing.T) {
	p, _ := newTestPool(t, 1000)

	_, err := p.SetApr(treasuryID, "USDT", 900, 2000)
	if !errors.Is(err, pool.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}
