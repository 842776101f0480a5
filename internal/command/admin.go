package command

import (
	"github.com/google/uuid"

	"StakePool/internal/pool"
)

// ConfigUpdate rotates the owner and/or treasury identity.
type ConfigUpdate struct {
	UpdateID  uuid.UUID
	Caller    pool.AccountID
	Owner     *pool.AccountID
	Treasury  *pool.AccountID
	Sequence  int64
	Timestamp int64
}

func (c *ConfigUpdate) IdempotencyKey() string {
	return c.UpdateID.String()
}

func (c *ConfigUpdate) CommandType() Type {
	return TypeConfigUpdate
}

func (c *ConfigUpdate) AccountKey() *string {
	return nil
}

func (c *ConfigUpdate) SourceSequence() int64 {
	return c.Sequence
}

func (c *ConfigUpdate) UnixTime() int64 {
	return c.Timestamp
}

// AprUpdate sets a coin's APR in basis points.
type AprUpdate struct {
	UpdateID  uuid.UUID
	Caller    pool.AccountID
	Symbol    string
	AprBps    uint16
	Sequence  int64
	Timestamp int64
}

func (a *AprUpdate) IdempotencyKey() string {
	return a.UpdateID.String()
}

func (a *AprUpdate) CommandType() Type {
	return TypeAprUpdate
}

func (a *AprUpdate) AccountKey() *string {
	return nil
}

func (a *AprUpdate) SourceSequence() int64 {
	return a.Sequence
}

func (a *AprUpdate) UnixTime() int64 {
	return a.Timestamp
}

// TokenAddressUpdate registers a coin's external token contract.
type TokenAddressUpdate struct {
	UpdateID  uuid.UUID
	Caller    pool.AccountID
	Symbol    string
	Address   string
	Sequence  int64
	Timestamp int64
}

func (t *TokenAddressUpdate) IdempotencyKey() string {
	return t.UpdateID.String()
}

func (t *TokenAddressUpdate) CommandType() Type {
	return TypeTokenAddressUpdate
}

func (t *TokenAddressUpdate) AccountKey() *string {
	return nil
}

func (t *TokenAddressUpdate) SourceSequence() int64 {
	return t.Sequence
}

func (t *TokenAddressUpdate) UnixTime() int64 {
	return t.Timestamp
}
