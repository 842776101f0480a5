package pool

import (
	"sort"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

// AccountID is the opaque external identity supplied by the host. The
// pool treats it as an equality-comparable key only.
type AccountID string

// UserBalance is one account's position in one coin slot.
type UserBalance struct {
	Principal       uint256.Int
	Reward          uint256.Int
	WithdrawReserve uint256.Int

	// DepositTime is the last time principal was added. It doubles as
	// the reward-accrual clock: accrual only fires once a full reward
	// window has elapsed, and advances the clock when it does.
	DepositTime int64
}

// Spendable returns principal + reward.
func (b *UserBalance) Spendable() (*uint256.Int, error) {
	return umath.Add(&b.Principal, &b.Reward)
}

// UserRow holds one account's balances across all coin slots.
type UserRow struct {
	Balances [coin.NumCoins]UserBalance
}

// UserLedger tracks per-account, per-coin principal, accrued reward
// and the outstanding withdrawal reservation. Rows are keyed so point
// operations never enumerate the whole set; only epoch sweeps do.
type UserLedger struct {
	rows map[AccountID]*UserRow
}

func NewUserLedger() *UserLedger {
	return &UserLedger{rows: make(map[AccountID]*UserRow)}
}

// Row returns the account's row, if any.
func (l *UserLedger) Row(account AccountID) (*UserRow, bool) {
	row, ok := l.rows[account]
	return row, ok
}

// Accounts returns all known accounts in deterministic order.
func (l *UserLedger) Accounts() []AccountID {
	out := make([]AccountID, 0, len(l.rows))
	for a := range l.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deposit adds principal and stamps the deposit time. A zeroed row set
// is created lazily for unseen accounts, but only once the new balance
// is known to be representable.
func (l *UserLedger) Deposit(account AccountID, slot coin.Slot, amount *uint256.Int, now int64) error {
	row, ok := l.rows[account]
	if !ok {
		row = &UserRow{}
	}

	b := &row.Balances[slot]
	next, err := umath.Add(&b.Principal, amount)
	if err != nil {
		return err
	}

	b.Principal = *next
	b.DepositTime = now
	l.rows[account] = row
	return nil
}

// ReserveWithdraw pre-authorizes a withdrawal. The reservation
// overwrites any previous one; only a single reservation per
// account/coin is outstanding at a time.
func (l *UserLedger) ReserveWithdraw(account AccountID, slot coin.Slot, amount *uint256.Int) error {
	row, ok := l.rows[account]
	if !ok {
		return ErrInsufficientBalance
	}

	b := &row.Balances[slot]
	spendable, err := b.Spendable()
	if err != nil {
		return err
	}
	if amount.Gt(spendable) {
		return ErrInsufficientBalance
	}

	b.WithdrawReserve = *amount
	return nil
}

// ExecuteWithdraw consumes a prior reservation, drawing from principal
// first and then from reward. All checks run before any mutation; on
// success the reservation is cleared unconditionally. Returns the
// portions drawn from principal and from reward — callers track
// principal movement for history and pot bookkeeping, and reward
// movement for the pool-wide rewards accumulator.
func (l *UserLedger) ExecuteWithdraw(account AccountID, slot coin.Slot, amount *uint256.Int) (fromPrincipal, fromReward *uint256.Int, err error) {
	row, ok := l.rows[account]
	if !ok {
		return nil, nil, ErrInsufficientBalance
	}

	b := &row.Balances[slot]
	if amount.Gt(&b.WithdrawReserve) {
		return nil, nil, ErrReservationTooSmall
	}

	spendable, err := b.Spendable()
	if err != nil {
		return nil, nil, err
	}
	if amount.Gt(spendable) {
		return nil, nil, ErrInsufficientBalance
	}

	if amount.Gt(&b.Principal) {
		fromPrincipal = b.Principal.Clone()
		fromReward = new(uint256.Int).Sub(amount, fromPrincipal)
	} else {
		fromPrincipal = amount.Clone()
		fromReward = new(uint256.Int)
	}

	newPrincipal, err := umath.Sub(&b.Principal, fromPrincipal)
	if err != nil {
		return nil, nil, err
	}
	newReward, err := umath.Sub(&b.Reward, fromReward)
	if err != nil {
		return nil, nil, err
	}

	b.Principal = *newPrincipal
	b.Reward = *newReward
	b.WithdrawReserve = uint256.Int{}
	return fromPrincipal, fromReward, nil
}

// Accrue adds one reward window of simple interest to the account's
// balance in the given slot. Accrual is throttled: it is a no-op until
// a full window has elapsed since the accrual clock, and advances the
// clock when it fires. Returns the reward added (nil when throttled).
func (l *UserLedger) Accrue(account AccountID, slot coin.Slot, aprBps uint16, now, window int64) (*uint256.Int, error) {
	row, ok := l.rows[account]
	if !ok {
		return nil, nil
	}

	b := &row.Balances[slot]
	if now-b.DepositTime < window {
		return nil, nil
	}

	spendable, err := b.Spendable()
	if err != nil {
		return nil, err
	}
	if spendable.IsZero() {
		return nil, nil
	}

	delta := umath.InterestDelta(spendable, aprBps)
	if delta.IsZero() {
		return nil, nil
	}

	next, err := umath.Add(&b.Reward, delta)
	if err != nil {
		return nil, err
	}

	b.Reward = *next
	b.DepositTime = now
	return delta, nil
}
