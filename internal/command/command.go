package command

import "fmt"

// Type discriminator for command payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeDeposit
	TypeWithdrawReserve
	TypeWithdrawExecute
	TypeRewardAccrual
	TypeFarmEpoch
	TypePotEpoch
	TypeConfigUpdate
	TypeAprUpdate
	TypeTokenAddressUpdate
)

func (t Type) String() string {
	switch t {
	case TypeDeposit:
		return "Deposit"
	case TypeWithdrawReserve:
		return "WithdrawReserve"
	case TypeWithdrawExecute:
		return "WithdrawExecute"
	case TypeRewardAccrual:
		return "RewardAccrual"
	case TypeFarmEpoch:
		return "FarmEpoch"
	case TypePotEpoch:
		return "PotEpoch"
	case TypeConfigUpdate:
		return "ConfigUpdate"
	case TypeAprUpdate:
		return "AprUpdate"
	case TypeTokenAddressUpdate:
		return "TokenAddressUpdate"
	default:
		return "Unknown"
	}
}

// ParseType resolves a type name back to its discriminator.
func ParseType(name string) (Type, error) {
	for t := TypeDeposit; t <= TypeTokenAddressUpdate; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown command type: %s", name)
}

// NewByType returns an empty command of the given type, ready for
// json.Unmarshal. Used when replaying the command log.
func NewByType(t Type) (Command, error) {
	switch t {
	case TypeDeposit:
		return &Deposit{}, nil
	case TypeWithdrawReserve:
		return &WithdrawReserve{}, nil
	case TypeWithdrawExecute:
		return &WithdrawExecute{}, nil
	case TypeRewardAccrual:
		return &RewardAccrual{}, nil
	case TypeFarmEpoch:
		return &FarmEpoch{}, nil
	case TypePotEpoch:
		return &PotEpoch{}, nil
	case TypeConfigUpdate:
		return &ConfigUpdate{}, nil
	case TypeAprUpdate:
		return &AprUpdate{}, nil
	case TypeTokenAddressUpdate:
		return &TokenAddressUpdate{}, nil
	default:
		return nil, fmt.Errorf("no payload for command type %d", t)
	}
}

// Command is the interface all pool commands implement.
type Command interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	// CommandType returns the discriminator.
	CommandType() Type

	// AccountKey returns the account the command is scoped to, nil for
	// pool-wide commands (epochs, sweeps, admin).
	AccountKey() *string

	// SourceSequence returns the upstream ordering key.
	SourceSequence() int64

	// UnixTime returns the versioned input timestamp in unix seconds.
	// The core never reads the wall clock; every command carries its
	// own time.
	UnixTime() int64
}

// Envelope wraps every applied command in the log.
type Envelope struct {
	// Global monotonic sequence assigned by the core.
	Sequence int64

	// Stable idempotency key from upstream.
	IdempotencyKey string

	// Command type discriminator.
	CommandType Type

	// Account context (nil for pool-wide commands).
	Account *string

	// Versioned input timestamp in unix seconds (NOT wall-clock).
	Timestamp int64

	// Upstream sequence for ordering validation.
	SourceSequence int64

	// SHA-256 of state AFTER applying this command.
	StateHash [32]byte

	// Previous command's state hash (chain integrity).
	PrevHash [32]byte
}
