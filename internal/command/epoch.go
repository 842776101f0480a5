package command

import (
	"github.com/google/uuid"

	"StakePool/internal/pool"
)

// RewardAccrual sweeps every account through interest accrual. Emitted
// on a schedule; source sequence is the tick's unix time, so gaps
// between ticks are expected and tolerated.
type RewardAccrual struct {
	TickID    uuid.UUID
	Caller    pool.AccountID
	Sequence  int64
	Timestamp int64
}

func (r *RewardAccrual) IdempotencyKey() string {
	return r.TickID.String()
}

func (r *RewardAccrual) CommandType() Type {
	return TypeRewardAccrual
}

func (r *RewardAccrual) AccountKey() *string {
	return nil // pool-wide
}

func (r *RewardAccrual) SourceSequence() int64 {
	return r.Sequence
}

func (r *RewardAccrual) UnixTime() int64 {
	return r.Timestamp
}

// FarmEpoch distributes one farming epoch at the supplied prices.
type FarmEpoch struct {
	EpochID   uuid.UUID
	Caller    pool.AccountID
	Prices    *pool.PriceVector
	Sequence  int64
	Timestamp int64
}

func (f *FarmEpoch) IdempotencyKey() string {
	return f.EpochID.String()
}

func (f *FarmEpoch) CommandType() Type {
	return TypeFarmEpoch
}

func (f *FarmEpoch) AccountKey() *string {
	return nil
}

func (f *FarmEpoch) SourceSequence() int64 {
	return f.Sequence
}

func (f *FarmEpoch) UnixTime() int64 {
	return f.Timestamp
}

// PotEpoch promotes unqualified pot amounts to qualified status.
type PotEpoch struct {
	EpochID   uuid.UUID
	Caller    pool.AccountID
	Sequence  int64
	Timestamp int64
}

func (p *PotEpoch) IdempotencyKey() string {
	return p.EpochID.String()
}

func (p *PotEpoch) CommandType() Type {
	return TypePotEpoch
}

func (p *PotEpoch) AccountKey() *string {
	return nil
}

func (p *PotEpoch) SourceSequence() int64 {
	return p.Sequence
}

func (p *PotEpoch) UnixTime() int64 {
	return p.Timestamp
}
