package command

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StakePool/internal/pool"
)

// Deposit adds principal for an account.
type Deposit struct {
	DepositID uuid.UUID
	Account   pool.AccountID
	Symbol    string
	Amount    *uint256.Int
	Qualified bool
	Sequence  int64
	Timestamp int64
}

func (d *Deposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *Deposit) CommandType() Type {
	return TypeDeposit
}

func (d *Deposit) AccountKey() *string {
	s := string(d.Account)
	return &s
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

func (d *Deposit) UnixTime() int64 {
	return d.Timestamp
}
