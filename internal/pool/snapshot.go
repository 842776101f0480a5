package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

// Snapshot is the full serializable pool state. Amounts travel as
// decimal strings so the JSON form is exact and portable.
type Snapshot struct {
	Owner    AccountID `json:"owner"`
	Treasury AccountID `json:"treasury"`

	AprBps         [coin.NumCoins]uint16 `json:"apr_bps"`
	TokenAddresses [coin.NumCoins]string `json:"token_addresses"`
	TotalRewards   [coin.NumCoins]string `json:"total_rewards"`
	RewardWindow   int64                 `json:"reward_window"`

	Users    []SnapshotUser         `json:"users"`
	Pots     []SnapshotPot          `json:"pots"`
	Farms    []SnapshotFarm         `json:"farms"`
	Campaign SnapshotCampaign       `json:"campaign"`
	History  []SnapshotSample       `json:"history"`
	Aprs     [coin.NumCoins][]AprSample `json:"apr_history"`
}

type SnapshotUser struct {
	Account  AccountID                       `json:"account"`
	Balances [coin.NumCoins]SnapshotBalance  `json:"balances"`
}

type SnapshotBalance struct {
	Principal       string `json:"principal"`
	Reward          string `json:"reward"`
	WithdrawReserve string `json:"withdraw_reserve"`
	DepositTime     int64  `json:"deposit_time"`
}

type SnapshotPot struct {
	Account AccountID                      `json:"account"`
	Entries [coin.NumCoins]SnapshotPotEntry `json:"entries"`
}

type SnapshotPotEntry struct {
	Amount          string `json:"amount"`
	QualifiedAmount string `json:"qualified_amount"`
}

type SnapshotFarm struct {
	Account AccountID `json:"account"`
	Amount  string    `json:"amount"`
}

type SnapshotCampaign struct {
	StartTime     int64  `json:"start_time"`
	Duration      int64  `json:"duration"`
	TotalEmission string `json:"total_emission"`
	TotalFarmed   string `json:"total_farmed"`
	UnitPrice     string `json:"unit_price"`
	CumulativeUSD string `json:"cumulative_usd"`
	BasePrice     uint64 `json:"base_price"`
	GrowthFactor  uint64 `json:"growth_factor"`
	TierSize      string `json:"tier_size"`
	LastRun       int64  `json:"last_run"`
}

type SnapshotSample struct {
	Amounts [coin.NumCoins]string `json:"amounts"`
	Rewards [coin.NumCoins]string `json:"rewards"`
	Time    int64                 `json:"time"`
}

// Snapshot captures the complete pool state in deterministic order.
func (p *Pool) Snapshot() *Snapshot {
	s := &Snapshot{
		Owner:          p.owner,
		Treasury:       p.treasury,
		AprBps:         p.aprBps,
		TokenAddresses: p.tokenAddrs,
		RewardWindow:   p.rewardWindow,
	}
	for slot := 0; slot < coin.NumCoins; slot++ {
		s.TotalRewards[slot] = p.totalRewards[slot].Dec()
		s.Aprs[slot] = p.aprs.Series(coin.Slot(slot))
	}

	for _, account := range p.users.Accounts() {
		row, _ := p.users.Row(account)
		u := SnapshotUser{Account: account}
		for slot := 0; slot < coin.NumCoins; slot++ {
			b := &row.Balances[slot]
			u.Balances[slot] = SnapshotBalance{
				Principal:       b.Principal.Dec(),
				Reward:          b.Reward.Dec(),
				WithdrawReserve: b.WithdrawReserve.Dec(),
				DepositTime:     b.DepositTime,
			}
		}
		s.Users = append(s.Users, u)
	}

	for _, account := range p.pots.Accounts() {
		row, _ := p.pots.Row(account)
		pr := SnapshotPot{Account: account}
		for slot := 0; slot < coin.NumCoins; slot++ {
			e := &row.Entries[slot]
			pr.Entries[slot] = SnapshotPotEntry{
				Amount:          e.Amount.Dec(),
				QualifiedAmount: e.QualifiedAmount.Dec(),
			}
		}
		s.Pots = append(s.Pots, pr)
	}

	for _, account := range p.farm.Accounts() {
		s.Farms = append(s.Farms, SnapshotFarm{
			Account: account,
			Amount:  p.farm.Amount(account).Dec(),
		})
	}

	c := p.farm.Campaign()
	s.Campaign = SnapshotCampaign{
		StartTime:     c.StartTime,
		Duration:      c.Duration,
		TotalEmission: c.TotalEmission.Dec(),
		TotalFarmed:   c.TotalFarmed.Dec(),
		UnitPrice:     c.UnitPrice.Dec(),
		CumulativeUSD: c.CumulativeUSD.Dec(),
		BasePrice:     c.BasePrice,
		GrowthFactor:  c.GrowthFactor,
		TierSize:      c.TierSize.Dec(),
		LastRun:       c.LastRun,
	}

	for _, sample := range p.history.Samples() {
		var rec SnapshotSample
		for slot := 0; slot < coin.NumCoins; slot++ {
			rec.Amounts[slot] = sample.Amounts[slot].Dec()
			rec.Rewards[slot] = sample.Rewards[slot].Dec()
		}
		rec.Time = sample.Time
		s.History = append(s.History, rec)
	}

	return s
}

// Restore rebuilds a pool from a snapshot. The registry must match the
// one the snapshot was taken under.
func Restore(registry *coin.Registry, s *Snapshot) (*Pool, error) {
	p := &Pool{
		owner:        s.Owner,
		treasury:     s.Treasury,
		registry:     registry,
		users:        NewUserLedger(),
		pots:         NewPotLedger(),
		history:      NewAmountHistory(),
		aprs:         NewAprHistory(),
		aprBps:       s.AprBps,
		tokenAddrs:   s.TokenAddresses,
		rewardWindow: s.RewardWindow,
	}

	for slot := 0; slot < coin.NumCoins; slot++ {
		total, err := umath.ParseAmount(s.TotalRewards[slot])
		if err != nil {
			return nil, fmt.Errorf("restore total rewards: %w", err)
		}
		p.totalRewards[slot] = *total
		for _, sample := range s.Aprs[slot] {
			p.aprs.Append(coin.Slot(slot), sample.AprBps, sample.Time)
		}
	}

	for _, u := range s.Users {
		row := &UserRow{}
		for slot := 0; slot < coin.NumCoins; slot++ {
			sb := &u.Balances[slot]
			principal, err := umath.ParseAmount(sb.Principal)
			if err != nil {
				return nil, fmt.Errorf("restore user %s: %w", u.Account, err)
			}
			reward, err := umath.ParseAmount(sb.Reward)
			if err != nil {
				return nil, fmt.Errorf("restore user %s: %w", u.Account, err)
			}
			reserve, err := umath.ParseAmount(sb.WithdrawReserve)
			if err != nil {
				return nil, fmt.Errorf("restore user %s: %w", u.Account, err)
			}
			row.Balances[slot] = UserBalance{
				Principal:       *principal,
				Reward:          *reward,
				WithdrawReserve: *reserve,
				DepositTime:     sb.DepositTime,
			}
		}
		p.users.rows[u.Account] = row
	}

	for _, pr := range s.Pots {
		row := &PotRow{}
		for slot := 0; slot < coin.NumCoins; slot++ {
			amount, err := umath.ParseAmount(pr.Entries[slot].Amount)
			if err != nil {
				return nil, fmt.Errorf("restore pot %s: %w", pr.Account, err)
			}
			qualified, err := umath.ParseAmount(pr.Entries[slot].QualifiedAmount)
			if err != nil {
				return nil, fmt.Errorf("restore pot %s: %w", pr.Account, err)
			}
			row.Entries[slot] = PotEntry{Amount: *amount, QualifiedAmount: *qualified}
		}
		p.pots.rows[pr.Account] = row
	}

	campaign, err := restoreCampaign(&s.Campaign)
	if err != nil {
		return nil, err
	}
	p.farm = &FarmLedger{
		accounts: make(map[AccountID]*uint256.Int, len(s.Farms)),
		campaign: *campaign,
	}
	for _, f := range s.Farms {
		amount, err := umath.ParseAmount(f.Amount)
		if err != nil {
			return nil, fmt.Errorf("restore farm %s: %w", f.Account, err)
		}
		p.farm.accounts[f.Account] = amount
	}

	for _, rec := range s.History {
		var sample HistorySample
		for slot := 0; slot < coin.NumCoins; slot++ {
			amount, err := umath.ParseAmount(rec.Amounts[slot])
			if err != nil {
				return nil, fmt.Errorf("restore history: %w", err)
			}
			reward, err := umath.ParseAmount(rec.Rewards[slot])
			if err != nil {
				return nil, fmt.Errorf("restore history: %w", err)
			}
			sample.Amounts[slot] = *amount
			sample.Rewards[slot] = *reward
		}
		sample.Time = rec.Time
		p.history.push(sample)
	}

	return p, nil
}

func restoreCampaign(s *SnapshotCampaign) (*FarmCampaign, error) {
	emission, err := umath.ParseAmount(s.TotalEmission)
	if err != nil {
		return nil, fmt.Errorf("restore campaign: %w", err)
	}
	farmed, err := umath.ParseAmount(s.TotalFarmed)
	if err != nil {
		return nil, fmt.Errorf("restore campaign: %w", err)
	}
	price, err := umath.ParseAmount(s.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("restore campaign: %w", err)
	}
	cum, err := umath.ParseAmount(s.CumulativeUSD)
	if err != nil {
		return nil, fmt.Errorf("restore campaign: %w", err)
	}
	tier, err := umath.ParseAmount(s.TierSize)
	if err != nil {
		return nil, fmt.Errorf("restore campaign: %w", err)
	}
	return &FarmCampaign{
		StartTime:     s.StartTime,
		Duration:      s.Duration,
		TotalEmission: *emission,
		TotalFarmed:   *farmed,
		UnitPrice:     *price,
		CumulativeUSD: *cum,
		BasePrice:     s.BasePrice,
		GrowthFactor:  s.GrowthFactor,
		TierSize:      *tier,
		LastRun:       s.LastRun,
	}, nil
}
