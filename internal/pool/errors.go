package pool

import "errors"

// Error taxonomy for pool operations. Every mutating operation either
// applies fully or returns one of these with no state touched.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReservationTooSmall = errors.New("withdraw amount exceeds reservation")
	ErrZeroAmount          = errors.New("zero amount")
)
