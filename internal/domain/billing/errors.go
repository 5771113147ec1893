package billing

import (
	"errors"
	"fmt"
)

// Domain errors for the credit ledger.
var (
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrIllegalTransition   = errors.New("illegal task status transition")
)

// InsufficientCreditsError carries the amounts behind a rejection so the edge
// can surface them to the caller.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

// Error implements the error interface.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Unwrap makes errors.Is(err, ErrInsufficientCredits) hold.
func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
