package umath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Balance quantities are 128-bit unsigned amounts carried in 256-bit
// integers so that intermediate products (amount × price × time) never
// wrap. Any subtraction that would go negative fails closed: wrapping
// would silently fabricate balance.

var (
	ErrUnderflow = errors.New("amount underflow")
	ErrOverflow  = errors.New("amount overflow")
)

// Add returns a+b, failing on overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, carry := new(uint256.Int).AddOverflow(a, b)
	if carry {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return sum, nil
}

// Sub returns a-b, failing closed when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, borrow := new(uint256.Int).SubOverflow(a, b)
	if borrow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, a.Dec(), b.Dec())
	}
	return diff, nil
}

// SubFloor returns a-b floored at zero. Used only where the ledger
// semantics explicitly drop the deficit rather than abort.
func SubFloor(a, b *uint256.Int) *uint256.Int {
	if b.Gt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// MulDiv returns a*b/d with a full-width intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	q, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, a.Dec(), b.Dec(), d.Dec())
	}
	return q, nil
}

// Pow10 returns 10^n.
func Pow10(n uint32) *uint256.Int {
	ten := uint256.NewInt(10)
	out := uint256.NewInt(1)
	for i := uint32(0); i < n; i++ {
		out.Mul(out, ten)
	}
	return out
}

// IntPow returns base^exp with overflow checking.
func IntPow(base, exp uint64) (*uint256.Int, error) {
	b := uint256.NewInt(base)
	out := uint256.NewInt(1)
	for i := uint64(0); i < exp; i++ {
		var overflow bool
		out, overflow = new(uint256.Int).MulOverflow(out, b)
		if overflow {
			return nil, fmt.Errorf("%w: %d^%d", ErrOverflow, base, exp)
		}
	}
	return out, nil
}

// ParseAmount parses a non-negative decimal amount string.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
