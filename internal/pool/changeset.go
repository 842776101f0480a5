package pool

import (
	"StakePool/internal/coin"
)

// ChangeSet enumerates the rows an operation touched, with amounts as
// decimal strings. It feeds the projection workers and the state
// digest; entries are appended in deterministic order.
type ChangeSet struct {
	Users        []UserDelta
	Pots         []PotDelta
	PotRemovals  []AccountID
	Farms        []FarmDelta
	Campaign     *CampaignDelta
	RewardTotals []RewardTotalDelta
	History      []HistoryDelta
}

// UserDelta is the post-operation state of one user balance row.
type UserDelta struct {
	Account         AccountID `json:"account"`
	Symbol          string    `json:"symbol"`
	Principal       string    `json:"principal"`
	Reward          string    `json:"reward"`
	WithdrawReserve string    `json:"withdraw_reserve"`
	DepositTime     int64     `json:"deposit_time"`
}

// PotDelta is the post-operation state of one pot entry.
type PotDelta struct {
	Account         AccountID `json:"account"`
	Symbol          string    `json:"symbol"`
	Amount          string    `json:"amount"`
	QualifiedAmount string    `json:"qualified_amount"`
}

// FarmDelta is the post-operation state of one farm account.
type FarmDelta struct {
	Account AccountID `json:"account"`
	Amount  string    `json:"amount"`
}

// CampaignDelta is the post-operation campaign state.
type CampaignDelta struct {
	StartTime     int64  `json:"start_time"`
	Duration      int64  `json:"duration"`
	TotalEmission string `json:"total_emission"`
	TotalFarmed   string `json:"total_farmed"`
	UnitPrice     string `json:"unit_price"`
	CumulativeUSD string `json:"cumulative_usd"`
	LastRun       int64  `json:"last_run"`
}

// RewardTotalDelta is the post-operation pool-wide cumulative reward
// for one coin.
type RewardTotalDelta struct {
	Symbol string `json:"symbol"`
	Total  string `json:"total"`
}

// HistoryDelta is an appended history sample in wire form.
type HistoryDelta struct {
	Amounts [coin.NumCoins]string `json:"amounts"`
	Rewards [coin.NumCoins]string `json:"rewards"`
	Time    int64                 `json:"time"`
}

func (c *ChangeSet) addUser(reg *coin.Registry, account AccountID, slot coin.Slot, b *UserBalance) {
	c.Users = append(c.Users, UserDelta{
		Account:         account,
		Symbol:          reg.SymbolOf(slot),
		Principal:       b.Principal.Dec(),
		Reward:          b.Reward.Dec(),
		WithdrawReserve: b.WithdrawReserve.Dec(),
		DepositTime:     b.DepositTime,
	})
}

func (c *ChangeSet) addPot(reg *coin.Registry, account AccountID, slot coin.Slot, e *PotEntry) {
	c.Pots = append(c.Pots, PotDelta{
		Account:         account,
		Symbol:          reg.SymbolOf(slot),
		Amount:          e.Amount.Dec(),
		QualifiedAmount: e.QualifiedAmount.Dec(),
	})
}

func (c *ChangeSet) addHistory(s HistorySample) {
	var d HistoryDelta
	for i := 0; i < coin.NumCoins; i++ {
		d.Amounts[i] = s.Amounts[i].Dec()
		d.Rewards[i] = s.Rewards[i].Dec()
	}
	d.Time = s.Time
	c.History = append(c.History, d)
}

func campaignDelta(c FarmCampaign) *CampaignDelta {
	return &CampaignDelta{
		StartTime:     c.StartTime,
		Duration:      c.Duration,
		TotalEmission: c.TotalEmission.Dec(),
		TotalFarmed:   c.TotalFarmed.Dec(),
		UnitPrice:     c.UnitPrice.Dec(),
		CumulativeUSD: c.CumulativeUSD.Dec(),
		LastRun:       c.LastRun,
	}
}
