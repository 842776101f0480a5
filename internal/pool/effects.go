package pool

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EffectType discriminates outbound side-effect instructions.
type EffectType int32

const (
	// EffectTransfer moves deposited value to the treasury account.
	EffectTransfer EffectType = iota

	// EffectTokenCall invokes the coin's registered token contract
	// (e.g. minting a voucher token to the depositor).
	EffectTokenCall
)

// Effect is an outbound transfer-of-value instruction. The core never
// executes effects; it returns them paired with the state update so
// the host can perform (and test) them separately.
type Effect struct {
	EffectID     uuid.UUID
	Type         EffectType
	To           AccountID
	Symbol       string
	TokenAddress string
	Method       string
	Amount       uint256.Int
}

func (e EffectType) String() string {
	switch e {
	case EffectTransfer:
		return "Transfer"
	case EffectTokenCall:
		return "TokenCall"
	default:
		return "Unknown"
	}
}
