package pool

import (
	"sort"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

// PriceVector is an ordered array of unsigned fixed-point USD prices,
// one per coin slot, supplied by the treasury caller. The core never
// fetches prices itself.
type PriceVector [coin.NumCoins]uint256.Int

// CampaignConfig fixes the farming campaign parameters at construction.
type CampaignConfig struct {
	StartTime     int64
	Duration      int64
	TotalEmission *uint256.Int
	BasePrice     uint64
	GrowthFactor  uint64
	TierSize      *uint256.Int
}

// FarmCampaign is the singleton campaign state: a fixed-duration,
// fixed-emission reward program whose unit price follows a step
// bonding curve keyed to cumulative USD value farmed.
type FarmCampaign struct {
	StartTime     int64
	Duration      int64
	TotalEmission uint256.Int
	TotalFarmed   uint256.Int
	UnitPrice     uint256.Int
	CumulativeUSD uint256.Int
	BasePrice     uint64
	GrowthFactor  uint64
	TierSize      uint256.Int
	LastRun       int64
}

// Active reports whether the campaign window covers now and emission
// headroom remains.
func (c *FarmCampaign) Active(now int64) bool {
	if now < c.StartTime || now > c.StartTime+c.Duration {
		return false
	}
	return !c.TotalFarmed.Gt(&c.TotalEmission)
}

// FarmLedger tracks each account's provisional farm-reward balance and
// the campaign parameters.
type FarmLedger struct {
	accounts map[AccountID]*uint256.Int
	campaign FarmCampaign
}

func NewFarmLedger(cfg CampaignConfig) *FarmLedger {
	c := FarmCampaign{
		StartTime:    cfg.StartTime,
		Duration:     cfg.Duration,
		BasePrice:    cfg.BasePrice,
		GrowthFactor: cfg.GrowthFactor,
		UnitPrice:    *uint256.NewInt(cfg.BasePrice),
	}
	if cfg.TotalEmission != nil {
		c.TotalEmission = *cfg.TotalEmission
	}
	if cfg.TierSize != nil {
		c.TierSize = *cfg.TierSize
	}
	return &FarmLedger{
		accounts: make(map[AccountID]*uint256.Int),
		campaign: c,
	}
}

// Campaign returns a copy of the campaign state.
func (f *FarmLedger) Campaign() FarmCampaign {
	return f.campaign
}

// Amount returns the account's farm balance (zero for unseen accounts).
func (f *FarmLedger) Amount(account AccountID) *uint256.Int {
	if v, ok := f.accounts[account]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Accounts returns all accounts with farm balances in deterministic order.
func (f *FarmLedger) Accounts() []AccountID {
	out := make([]AccountID, 0, len(f.accounts))
	for a := range f.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type farmShare struct {
	account AccountID
	share   *uint256.Int
	usd     *uint256.Int
}

// RunEpoch distributes one epoch of USD-weighted farm rewards across
// all accounts and then re-prices the campaign on the bonding curve.
// Outside the campaign window, or once emission is exhausted, it is a
// silent no-op. Shares are computed for every account first and only
// then applied, so a failed computation leaves no partial sweep.
func (f *FarmLedger) RunEpoch(users *UserLedger, reg *coin.Registry, prices *PriceVector, now int64) (touched []AccountID, ran bool, err error) {
	if !f.campaign.Active(now) {
		return nil, false, nil
	}

	elapsed := f.elapsedSince(now)

	shares := make([]farmShare, 0, len(users.rows))
	for _, account := range users.Accounts() {
		row, _ := users.Row(account)

		share := new(uint256.Int)
		usd := new(uint256.Int)
		for slot := 0; slot < coin.NumCoins; slot++ {
			principal := &row.Balances[slot].Principal
			if principal.IsZero() {
				continue
			}

			s, err := umath.FarmShare(principal, &prices[slot], reg.DecimalsOf(coin.Slot(slot)), elapsed)
			if err != nil {
				return nil, false, err
			}
			share, err = umath.Add(share, s)
			if err != nil {
				return nil, false, err
			}

			v, err := umath.USDValue(principal, &prices[slot], reg.DecimalsOf(coin.Slot(slot)))
			if err != nil {
				return nil, false, err
			}
			usd, err = umath.Add(usd, v)
			if err != nil {
				return nil, false, err
			}
		}

		if share.IsZero() && usd.IsZero() {
			continue
		}
		shares = append(shares, farmShare{account: account, share: share, usd: usd})
	}

	for _, s := range shares {
		if !s.share.IsZero() {
			balance := f.accounts[s.account]
			if balance == nil {
				balance = new(uint256.Int)
				f.accounts[s.account] = balance
			}
			balance.Add(balance, s.share)
			f.campaign.TotalFarmed.Add(&f.campaign.TotalFarmed, s.share)
			touched = append(touched, s.account)
		}
		f.campaign.CumulativeUSD.Add(&f.campaign.CumulativeUSD, s.usd)
	}

	multiple := umath.CurveMultiple(&f.campaign.CumulativeUSD, &f.campaign.TierSize)
	price, err := umath.StepUnitPrice(f.campaign.BasePrice, f.campaign.GrowthFactor, multiple)
	if err != nil {
		return nil, false, err
	}
	f.campaign.UnitPrice = *price
	f.campaign.LastRun = now

	return touched, true, nil
}

// OnWithdraw claws back farm reward proportionally to the fraction of
// the account's USD value that left the pool. Farm rewards are
// provisional and partially forfeited on early exit. No-op when the
// campaign is inactive or the account holds no farm balance.
func (f *FarmLedger) OnWithdraw(users *UserLedger, reg *coin.Registry, account AccountID, slot coin.Slot, fromPrincipal *uint256.Int, prices *PriceVector, now int64) (bool, error) {
	if !f.campaign.Active(now) {
		return false, nil
	}
	balance, ok := f.accounts[account]
	if !ok {
		return false, nil
	}

	row, ok := users.Row(account)
	if !ok {
		return false, nil
	}

	totalUSD := new(uint256.Int)
	for s := 0; s < coin.NumCoins; s++ {
		principal := &row.Balances[s].Principal
		if principal.IsZero() {
			continue
		}
		v, err := umath.USDValue(principal, &prices[s], reg.DecimalsOf(coin.Slot(s)))
		if err != nil {
			return false, err
		}
		totalUSD, err = umath.Add(totalUSD, v)
		if err != nil {
			return false, err
		}
	}
	if totalUSD.IsZero() {
		return false, nil
	}

	withdrawUSD, err := umath.USDValue(fromPrincipal, &prices[slot], reg.DecimalsOf(slot))
	if err != nil {
		return false, err
	}
	if withdrawUSD.Gt(totalUSD) {
		withdrawUSD = totalUSD.Clone()
	}

	clawback, err := umath.MulDiv(balance, withdrawUSD, totalUSD)
	if err != nil {
		return false, err
	}

	balance.Set(umath.SubFloor(balance, clawback))
	f.campaign.TotalFarmed = *umath.SubFloor(&f.campaign.TotalFarmed, clawback)
	return true, nil
}

func (f *FarmLedger) elapsedSince(now int64) uint64 {
	last := f.campaign.LastRun
	if last == 0 {
		last = f.campaign.StartTime
	}
	if now <= last {
		return 0
	}
	return uint64(now - last)
}
