package umath

import "github.com/holiman/uint256"

// FarmScaleDivisor normalizes raw price units into the reward scale
// for farm-share weighting.
const FarmScaleDivisor = 100_000

// USDValue converts a raw coin amount to its USD-scale value:
// amount * price / 10^decimals.
func USDValue(amount, price *uint256.Int, decimals uint32) (*uint256.Int, error) {
	return MulDiv(amount, price, Pow10(decimals))
}

// FarmShare computes the farm reward earned by one coin balance over
// an epoch: principal * price * elapsed / 10^decimals / 10^5. The
// elapsed factor weights USD value by time held.
func FarmShare(principal, price *uint256.Int, decimals uint32, elapsed uint64) (*uint256.Int, error) {
	weighted, err := MulDiv(principal, price, Pow10(decimals))
	if err != nil {
		return nil, err
	}
	return MulDiv(weighted, uint256.NewInt(elapsed), uint256.NewInt(FarmScaleDivisor))
}

// StepUnitPrice evaluates the step bonding curve:
// base * growth^multiple / 10^multiple, integer power, floor division.
// The price rises in discrete steps as cumulative USD value is farmed,
// never smoothly.
func StepUnitPrice(basePrice, growthFactor, multiple uint64) (*uint256.Int, error) {
	num, err := IntPow(growthFactor, multiple)
	if err != nil {
		return nil, err
	}
	var overflow bool
	num, overflow = new(uint256.Int).MulOverflow(num, uint256.NewInt(basePrice))
	if overflow {
		return nil, ErrOverflow
	}
	denom, err := IntPow(10, multiple)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(num, denom), nil
}

// CurveMultiple returns how many full tiers of cumulative USD value
// have been farmed.
func CurveMultiple(cumulativeUSD, tierSize *uint256.Int) uint64 {
	if tierSize.IsZero() {
		return 0
	}
	m := new(uint256.Int).Div(cumulativeUSD, tierSize)
	if !m.IsUint64() {
		return 0
	}
	return m.Uint64()
}
