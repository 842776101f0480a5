package query

// BalanceEntry is one coin's balance row for API queries. Amounts are
// decimal strings because they can exceed 64 bits.
type BalanceEntry struct {
	Symbol          string `json:"symbol"`
	Principal       string `json:"principal"`
	Reward          string `json:"reward"`
	WithdrawReserve string `json:"withdraw_reserve"`
	DepositTime     int64  `json:"deposit_time"`
}

// StatusResponse is the full per-account view.
type StatusResponse struct {
	Account      string         `json:"account"`
	Balances     []BalanceEntry `json:"balances"`
	FarmAmount   string         `json:"farm_amount"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// PotEntryResponse is one pot row for an account.
type PotEntryResponse struct {
	Symbol          string `json:"symbol"`
	Amount          string `json:"amount"`
	QualifiedAmount string `json:"qualified_amount"`
}

// PotResponse lists an account's pot entries.
type PotResponse struct {
	Account      string             `json:"account"`
	Entries      []PotEntryResponse `json:"entries"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// FarmResponse is the campaign state plus the account's farm balance.
type FarmResponse struct {
	Account       string `json:"account"`
	Amount        string `json:"amount"`
	StartTime     int64  `json:"start_time"`
	Duration      int64  `json:"duration"`
	TotalEmission string `json:"total_emission"`
	TotalFarmed   string `json:"total_farmed"`
	UnitPrice     string `json:"unit_price"`
	CumulativeUSD string `json:"cumulative_usd"`
	LastRun       int64  `json:"last_run"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// HistorySample is one pool-wide history point.
type HistorySample struct {
	Time    int64    `json:"time"`
	Amounts []string `json:"amounts"`
	Rewards []string `json:"rewards"`
}

// HistoryResponse is the pool-wide amount history, newest first.
type HistoryResponse struct {
	Samples      []HistorySample `json:"samples"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// RewardTotalEntry is the pool-wide cumulative reward for one coin.
type RewardTotalEntry struct {
	Symbol string `json:"symbol"`
	Total  string `json:"total"`
}

// RewardTotalsResponse lists cumulative rewards per coin.
type RewardTotalsResponse struct {
	Totals       []RewardTotalEntry `json:"totals"`
	AsOfSequence int64              `json:"as_of_sequence"`
}

// IntegrityReport is the result of a hash chain verification pass.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	LatestSequence  int64   `json:"latest_sequence"`
}
