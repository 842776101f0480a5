package command

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StakePool/internal/pool"
)

// WithdrawReserve pre-authorizes the account's next executed
// withdrawal.
type WithdrawReserve struct {
	RequestID uuid.UUID
	Account   pool.AccountID
	Symbol    string
	Amount    *uint256.Int
	Sequence  int64
	Timestamp int64
}

func (w *WithdrawReserve) IdempotencyKey() string {
	return w.RequestID.String()
}

func (w *WithdrawReserve) CommandType() Type {
	return TypeWithdrawReserve
}

func (w *WithdrawReserve) AccountKey() *string {
	s := string(w.Account)
	return &s
}

func (w *WithdrawReserve) SourceSequence() int64 {
	return w.Sequence
}

func (w *WithdrawReserve) UnixTime() int64 {
	return w.Timestamp
}

// WithdrawExecute is the treasury-driven execution of a reserved
// withdrawal. Prices accompany the command so the farm clawback is
// deterministic on replay.
type WithdrawExecute struct {
	RequestID uuid.UUID
	Caller    pool.AccountID
	Account   pool.AccountID
	Symbol    string
	Amount    *uint256.Int
	Prices    *pool.PriceVector
	Sequence  int64
	Timestamp int64
}

func (w *WithdrawExecute) IdempotencyKey() string {
	return w.RequestID.String()
}

func (w *WithdrawExecute) CommandType() Type {
	return TypeWithdrawExecute
}

func (w *WithdrawExecute) AccountKey() *string {
	s := string(w.Account)
	return &s
}

func (w *WithdrawExecute) SourceSequence() int64 {
	return w.Sequence
}

func (w *WithdrawExecute) UnixTime() int64 {
	return w.Timestamp
}
