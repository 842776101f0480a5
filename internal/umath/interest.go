package umath

import "github.com/holiman/uint256"

const (
	// BpsDenominator converts basis points to a fraction.
	BpsDenominator = 10_000

	// DaysPerYear turns an annual rate into the per-window daily rate.
	DaysPerYear = 365
)

// InterestDelta computes one reward-window of simple interest:
// balance * aprBps / 10_000 / 365, floor division at each step
// (matches the accrual order used on-chain).
func InterestDelta(balance *uint256.Int, aprBps uint16) *uint256.Int {
	out := new(uint256.Int).Mul(balance, uint256.NewInt(uint64(aprBps)))
	out.Div(out, uint256.NewInt(BpsDenominator))
	out.Div(out, uint256.NewInt(DaysPerYear))
	return out
}
