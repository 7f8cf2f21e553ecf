package balance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrBucketNotFound         = errors.New("balance bucket not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrConcurrentModification = errors.New("balance bucket modified concurrently")
	ErrInvalidHours           = errors.New("hours must be positive")
)

type InsufficientBalanceError struct {
	Key       Key
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: remaining %s, requested %s", e.Key, e.Remaining, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
