package pool

import (
	"sort"

	"github.com/holiman/uint256"

	"StakePool/internal/coin"
	"StakePool/internal/umath"
)

// PotEntry tracks one account's qualification pot for one coin slot.
type PotEntry struct {
	// Amount is the unqualified cumulative deposit since the last
	// epoch reset.
	Amount uint256.Int

	// QualifiedAmount is the portion promoted to qualified status.
	QualifiedAmount uint256.Int
}

// PotRow holds one account's pot entries across all coin slots.
type PotRow struct {
	Entries [coin.NumCoins]PotEntry
}

func (r *PotRow) isZero() bool {
	for i := range r.Entries {
		if !r.Entries[i].Amount.IsZero() || !r.Entries[i].QualifiedAmount.IsZero() {
			return false
		}
	}
	return true
}

// PotLedger is the qualification-tracking ledger, independent of the
// user ledger. Entries are created lazily on first deposit and garbage
// collected by the epoch sweep once fully zero.
type PotLedger struct {
	rows map[AccountID]*PotRow
}

func NewPotLedger() *PotLedger {
	return &PotLedger{rows: make(map[AccountID]*PotRow)}
}

// Row returns the account's pot row, if any.
func (l *PotLedger) Row(account AccountID) (*PotRow, bool) {
	row, ok := l.rows[account]
	return row, ok
}

// Accounts returns all accounts with pot entries in deterministic order.
func (l *PotLedger) Accounts() []AccountID {
	out := make([]AccountID, 0, len(l.rows))
	for a := range l.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deposit records a deposit into the qualified or unqualified bucket.
func (l *PotLedger) Deposit(account AccountID, slot coin.Slot, amount *uint256.Int, qualified bool) error {
	row, ok := l.rows[account]
	if !ok {
		row = &PotRow{}
	}

	e := &row.Entries[slot]
	if qualified {
		next, err := umath.Add(&e.QualifiedAmount, amount)
		if err != nil {
			return err
		}
		e.QualifiedAmount = *next
	} else {
		next, err := umath.Add(&e.Amount, amount)
		if err != nil {
			return err
		}
		e.Amount = *next
	}
	l.rows[account] = row
	return nil
}

// Withdraw debits the qualified bucket, floored at zero. When the
// qualified bucket cannot cover the full debit the shortfall is
// dropped; the unqualified bucket is deliberately left untouched.
// Accounts without a pot row are a no-op.
func (l *PotLedger) Withdraw(account AccountID, slot coin.Slot, amount *uint256.Int) {
	row, ok := l.rows[account]
	if !ok {
		return
	}

	e := &row.Entries[slot]
	e.QualifiedAmount = *umath.SubFloor(&e.QualifiedAmount, amount)
}

// ProcessEpoch promotes every unqualified amount to qualified status
// and deletes rows that end up fully zero. Returns the accounts whose
// rows were removed. Full-ledger sweep, O(accounts × coins).
func (l *PotLedger) ProcessEpoch() (removed []AccountID) {
	for _, account := range l.Accounts() {
		row := l.rows[account]
		for i := range row.Entries {
			e := &row.Entries[i]
			e.QualifiedAmount = e.Amount
			e.Amount = uint256.Int{}
		}
		if row.isZero() {
			delete(l.rows, account)
			removed = append(removed, account)
		}
	}
	return removed
}
