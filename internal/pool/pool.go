package pool

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

// Params configures a new pool.
type Params struct {
	Owner          AccountID
	Treasury       AccountID
	AprBps         [coin.NumCoins]uint16
	TokenAddresses [coin.NumCoins]string
	RewardWindow   int64 // seconds between reward accruals per account
	Campaign       CampaignConfig
}

// Applied pairs the state update with the outbound effects to emit.
// Effects are descriptors only; the host executes them.
type Applied struct {
	Effects []Effect
	Changes *ChangeSet
}

// Pool is the root aggregate. It owns every ledger exclusively and is
// driven as a single-writer state machine: each operation runs to
// completion before the next begins, and either applies fully or
// returns an error with no state touched.
type Pool struct {
	owner    AccountID
	treasury AccountID

	registry *coin.Registry
	users    *UserLedger
	pots     *PotLedger
	farm     *FarmLedger
	history  *AmountHistory
	aprs     *AprHistory

	aprBps       [coin.NumCoins]uint16
	tokenAddrs   [coin.NumCoins]string
	totalRewards [coin.NumCoins]uint256.Int
	rewardWindow int64
}

// New constructs an initialized pool. There is no implicit default:
// the host performs this explicit initialization step exactly once.
func New(registry *coin.Registry, params Params, now int64) *Pool {
	p := &Pool{
		owner:        params.Owner,
		treasury:     params.Treasury,
		registry:     registry,
		users:        NewUserLedger(),
		pots:         NewPotLedger(),
		farm:         NewFarmLedger(params.Campaign),
		history:      NewAmountHistory(),
		aprs:         NewAprHistory(),
		aprBps:       params.AprBps,
		tokenAddrs:   params.TokenAddresses,
		rewardWindow: params.RewardWindow,
	}
	for slot := 0; slot < coin.NumCoins; slot++ {
		p.aprs.Append(coin.Slot(slot), p.aprBps[slot], now)
	}
	return p
}

// Registry exposes the coin registry for read-side consumers.
func (p *Pool) Registry() *coin.Registry {
	return p.registry
}

// Owner returns the configured owner identity.
func (p *Pool) Owner() AccountID { return p.owner }

// Treasury returns the configured treasury identity.
func (p *Pool) Treasury() AccountID { return p.treasury }

func (p *Pool) checkOwner(caller AccountID) error {
	if caller != p.owner {
		return fmt.Errorf("%w: caller %q is not the owner", ErrUnauthorized, caller)
	}
	return nil
}

func (p *Pool) checkTreasury(caller AccountID) error {
	if caller != p.treasury {
		return fmt.Errorf("%w: caller %q is not the treasury", ErrUnauthorized, caller)
	}
	return nil
}

// Deposit adds principal for the caller, extends the amount history,
// records the pot entry, and emits the transfer instruction moving the
// funds to the treasury. One state transition; validation runs before
// any ledger is touched.
func (p *Pool) Deposit(caller AccountID, symbol string, amount *uint256.Int, qualified bool, now int64) (*Applied, error) {
	slot, err := p.registry.SlotOf(symbol)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: deposit of %s", ErrZeroAmount, symbol)
	}

	if err := p.users.Deposit(caller, slot, amount, now); err != nil {
		return nil, err
	}
	if err := p.history.Append(slot, amount, true, &p.totalRewards, now); err != nil {
		// The aggregate series cannot overflow before the per-account
		// balance does; a failure here is a broken invariant.
		panic(fmt.Sprintf("FATAL: history append after deposit: %v", err))
	}
	if err := p.pots.Deposit(caller, slot, amount, qualified); err != nil {
		panic(fmt.Sprintf("FATAL: pot deposit after user deposit: %v", err))
	}

	effects := []Effect{{
		EffectID: uuid.New(),
		Type:     EffectTransfer,
		To:       p.treasury,
		Symbol:   symbol,
		Amount:   *amount,
	}}
	if addr := p.tokenAddrs[slot]; addr != "" {
		effects = append(effects, Effect{
			EffectID:     uuid.New(),
			Type:         EffectTokenCall,
			To:           caller,
			Symbol:       symbol,
			TokenAddress: addr,
			Method:       "mint",
			Amount:       *amount,
		})
	}

	changes := &ChangeSet{}
	row, _ := p.users.Row(caller)
	changes.addUser(p.registry, caller, slot, &row.Balances[slot])
	potRow, _ := p.pots.Row(caller)
	changes.addPot(p.registry, caller, slot, &potRow.Entries[slot])
	if latest, ok := p.history.Latest(); ok {
		changes.addHistory(latest)
	}

	return &Applied{Effects: effects, Changes: changes}, nil
}

// ReserveWithdraw lets the account owner pre-authorize the next
// executed withdrawal. The reservation overwrites any previous one.
func (p *Pool) ReserveWithdraw(caller AccountID, symbol string, amount *uint256.Int) (*Applied, error) {
	slot, err := p.registry.SlotOf(symbol)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: reservation for %s", ErrZeroAmount, symbol)
	}

	if err := p.users.ReserveWithdraw(caller, slot, amount); err != nil {
		return nil, err
	}

	changes := &ChangeSet{}
	row, _ := p.users.Row(caller)
	changes.addUser(p.registry, caller, slot, &row.Balances[slot])
	return &Applied{Changes: changes}, nil
}

// Withdraw executes a previously reserved withdrawal for an account.
// Treasury only — the treasury supplies oracle prices and performs the
// actual outbound transfer. Draws principal first, then reward; the
// reward portion comes out of the pool-wide rewards accumulator. The
// whole operation fails with no state touched if the reservation or
// balance check fails.
func (p *Pool) Withdraw(caller, account AccountID, symbol string, amount *uint256.Int, prices *PriceVector, now int64) (*Applied, error) {
	if err := p.checkTreasury(caller); err != nil {
		return nil, err
	}
	slot, err := p.registry.SlotOf(symbol)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: withdrawal of %s", ErrZeroAmount, symbol)
	}

	fromPrincipal, fromReward, err := p.users.ExecuteWithdraw(account, slot, amount)
	if err != nil {
		return nil, err
	}

	// Everything below operates on quantities already proven in range;
	// a failure past this point is a broken invariant, not bad input.
	if !fromReward.IsZero() {
		next, err := umath.Sub(&p.totalRewards[slot], fromReward)
		if err != nil {
			panic(fmt.Sprintf("FATAL: reward accumulator underflow for %s: %v", symbol, err))
		}
		p.totalRewards[slot] = *next
	}
	if err := p.history.Append(slot, fromPrincipal, false, &p.totalRewards, now); err != nil {
		panic(fmt.Sprintf("FATAL: history append after withdraw: %v", err))
	}
	p.pots.Withdraw(account, slot, fromPrincipal)
	farmTouched, err := p.farm.OnWithdraw(p.users, p.registry, account, slot, fromPrincipal, prices, now)
	if err != nil {
		panic(fmt.Sprintf("FATAL: farm clawback after withdraw: %v", err))
	}

	changes := &ChangeSet{}
	row, _ := p.users.Row(account)
	changes.addUser(p.registry, account, slot, &row.Balances[slot])
	if potRow, ok := p.pots.Row(account); ok {
		changes.addPot(p.registry, account, slot, &potRow.Entries[slot])
	}
	if farmTouched {
		changes.Farms = append(changes.Farms, FarmDelta{Account: account, Amount: p.farm.Amount(account).Dec()})
		changes.Campaign = campaignDelta(p.farm.Campaign())
	}
	changes.RewardTotals = append(changes.RewardTotals, RewardTotalDelta{
		Symbol: symbol,
		Total:  p.totalRewards[slot].Dec(),
	})
	if latest, ok := p.history.Latest(); ok {
		changes.addHistory(latest)
	}

	return &Applied{Changes: changes}, nil
}

// AccrueRewards sweeps every account × coin through interest accrual.
// Treasury only. Accounts inside their reward window are untouched, so
// re-running within the window is a no-op. One history sample is
// appended when any reward was added anywhere.
func (p *Pool) AccrueRewards(caller AccountID, now int64) (*Applied, error) {
	if err := p.checkTreasury(caller); err != nil {
		return nil, err
	}

	changes := &ChangeSet{}
	anyAccrued := false
	touchedTotals := make(map[coin.Slot]bool)

	for _, account := range p.users.Accounts() {
		row, _ := p.users.Row(account)
		for slot := 0; slot < coin.NumCoins; slot++ {
			delta, err := p.users.Accrue(account, coin.Slot(slot), p.aprBps[slot], now, p.rewardWindow)
			if err != nil {
				return nil, err
			}
			if delta == nil {
				continue
			}

			total, err := umath.Add(&p.totalRewards[slot], delta)
			if err != nil {
				return nil, err
			}
			p.totalRewards[slot] = *total

			anyAccrued = true
			touchedTotals[coin.Slot(slot)] = true
			changes.addUser(p.registry, account, coin.Slot(slot), &row.Balances[slot])
		}
	}

	if anyAccrued {
		p.history.AppendRewards(&p.totalRewards, now)
		if latest, ok := p.history.Latest(); ok {
			changes.addHistory(latest)
		}
		for slot := 0; slot < coin.NumCoins; slot++ {
			if touchedTotals[coin.Slot(slot)] {
				changes.RewardTotals = append(changes.RewardTotals, RewardTotalDelta{
					Symbol: p.registry.SymbolOf(coin.Slot(slot)),
					Total:  p.totalRewards[slot].Dec(),
				})
			}
		}
	}

	return &Applied{Changes: changes}, nil
}

// RunFarmEpoch distributes one farming epoch. Treasury only. Outside
// the campaign window it applies nothing and reports no changes.
func (p *Pool) RunFarmEpoch(caller AccountID, prices *PriceVector, now int64) (*Applied, error) {
	if err := p.checkTreasury(caller); err != nil {
		return nil, err
	}

	touched, ran, err := p.farm.RunEpoch(p.users, p.registry, prices, now)
	if err != nil {
		return nil, err
	}

	changes := &ChangeSet{}
	if ran {
		for _, account := range touched {
			changes.Farms = append(changes.Farms, FarmDelta{Account: account, Amount: p.farm.Amount(account).Dec()})
		}
		changes.Campaign = campaignDelta(p.farm.Campaign())
	}
	return &Applied{Changes: changes}, nil
}

// ProcessPotEpoch promotes unqualified pot amounts and garbage
// collects fully-zero pot rows. Treasury only.
func (p *Pool) ProcessPotEpoch(caller AccountID) (*Applied, error) {
	if err := p.checkTreasury(caller); err != nil {
		return nil, err
	}

	changes := &ChangeSet{}
	removed := p.pots.ProcessEpoch()
	changes.PotRemovals = removed

	for _, account := range p.pots.Accounts() {
		row, _ := p.pots.Row(account)
		for slot := 0; slot < coin.NumCoins; slot++ {
			changes.addPot(p.registry, account, coin.Slot(slot), &row.Entries[slot])
		}
	}
	return &Applied{Changes: changes}, nil
}

// SetConfig updates the owner and/or treasury identity. Owner only.
func (p *Pool) SetConfig(caller AccountID, owner, treasury *AccountID) (*Applied, error) {
	if err := p.checkOwner(caller); err != nil {
		return nil, err
	}
	if owner != nil {
		p.owner = *owner
	}
	if treasury != nil {
		p.treasury = *treasury
	}
	return &Applied{Changes: &ChangeSet{}}, nil
}

// SetApr updates a coin's APR and appends to its APR history. Owner only.
func (p *Pool) SetApr(caller AccountID, symbol string, aprBps uint16, now int64) (*Applied, error) {
	if err := p.checkOwner(caller); err != nil {
		return nil, err
	}
	slot, err := p.registry.SlotOf(symbol)
	if err != nil {
		return nil, err
	}

	p.aprBps[slot] = aprBps
	p.aprs.Append(slot, aprBps, now)
	return &Applied{Changes: &ChangeSet{}}, nil
}

// SetTokenAddress registers a coin's external token contract. Owner only.
func (p *Pool) SetTokenAddress(caller AccountID, symbol, address string) (*Applied, error) {
	if err := p.checkOwner(caller); err != nil {
		return nil, err
	}
	slot, err := p.registry.SlotOf(symbol)
	if err != nil {
		return nil, err
	}

	p.tokenAddrs[slot] = address
	return &Applied{Changes: &ChangeSet{}}, nil
}

// --- Read model: pure projections of committed state ---

// BalanceInfo is the read form of one user balance.
type BalanceInfo struct {
	Symbol          string `json:"symbol"`
	Principal       string `json:"principal"`
	Reward          string `json:"reward"`
	WithdrawReserve string `json:"withdraw_reserve"`
	DepositTime     int64  `json:"deposit_time"`
}

// Status is the caller-facing account view.
type Status struct {
	Account       AccountID              `json:"account"`
	Balances      []BalanceInfo          `json:"balances"`
	AprHistory    map[string][]AprSample `json:"apr_history"`
	FarmUnitPrice string                 `json:"farm_unit_price"`
	FarmStartTime int64                  `json:"farm_start_time"`
}

// Status returns the account's balances plus pool-level campaign and
// APR information.
func (p *Pool) Status(account AccountID) Status {
	st := Status{
		Account:       account,
		AprHistory:    make(map[string][]AprSample, coin.NumCoins),
		FarmUnitPrice: p.farm.campaign.UnitPrice.Dec(),
		FarmStartTime: p.farm.campaign.StartTime,
	}
	for slot := 0; slot < coin.NumCoins; slot++ {
		st.AprHistory[p.registry.SymbolOf(coin.Slot(slot))] = p.aprs.Series(coin.Slot(slot))
	}
	if row, ok := p.users.Row(account); ok {
		for slot := 0; slot < coin.NumCoins; slot++ {
			b := &row.Balances[slot]
			st.Balances = append(st.Balances, BalanceInfo{
				Symbol:          p.registry.SymbolOf(coin.Slot(slot)),
				Principal:       b.Principal.Dec(),
				Reward:          b.Reward.Dec(),
				WithdrawReserve: b.WithdrawReserve.Dec(),
				DepositTime:     b.DepositTime,
			})
		}
	}
	return st
}

// PotInfo is the read form of one pot entry.
type PotInfo struct {
	Symbol          string `json:"symbol"`
	Amount          string `json:"amount"`
	QualifiedAmount string `json:"qualified_amount"`
}

// PotInfo returns the account's qualification pot entries.
func (p *Pool) PotInfo(account AccountID) []PotInfo {
	row, ok := p.pots.Row(account)
	if !ok {
		return nil
	}
	out := make([]PotInfo, 0, coin.NumCoins)
	for slot := 0; slot < coin.NumCoins; slot++ {
		e := &row.Entries[slot]
		out = append(out, PotInfo{
			Symbol:          p.registry.SymbolOf(coin.Slot(slot)),
			Amount:          e.Amount.Dec(),
			QualifiedAmount: e.QualifiedAmount.Dec(),
		})
	}
	return out
}

// FarmInfo is the read form of the account's farm position plus the
// campaign state.
type FarmInfo struct {
	Account       AccountID `json:"account"`
	Amount        string    `json:"amount"`
	TotalFarmed   string    `json:"total_farmed"`
	TotalEmission string    `json:"total_emission"`
	UnitPrice     string    `json:"unit_price"`
	StartTime     int64     `json:"start_time"`
	Duration      int64     `json:"duration"`
}

// FarmInfo returns the account's farm balance and campaign parameters.
func (p *Pool) FarmInfo(account AccountID) FarmInfo {
	c := p.farm.Campaign()
	return FarmInfo{
		Account:       account,
		Amount:        p.farm.Amount(account).Dec(),
		TotalFarmed:   c.TotalFarmed.Dec(),
		TotalEmission: c.TotalEmission.Dec(),
		UnitPrice:     c.UnitPrice.Dec(),
		StartTime:     c.StartTime,
		Duration:      c.Duration,
	}
}

// AmountHistorySamples returns the bounded aggregate series.
func (p *Pool) AmountHistorySamples() []HistorySample {
	return p.history.Samples()
}

// TotalReward returns the pool-wide cumulative reward for one slot.
func (p *Pool) TotalReward(slot coin.Slot) *uint256.Int {
	return p.totalRewards[slot].Clone()
}
