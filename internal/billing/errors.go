package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for fatal charge and refund failures.
var (
	// ErrUserNotFound is returned when the charged user does not exist.
	ErrUserNotFound = errors.New("billing: user not found")
	// ErrUsageRecordNotFound is returned when a refund target does not exist.
	ErrUsageRecordNotFound = errors.New("billing: usage record not found")
)

// InsufficientCreditsError is returned when a user's balance cannot cover
// a computed cost. The balance is left untouched.
type InsufficientCreditsError struct {
	Required  int64 // Credits the operation costs.
	Available int64 // Credits the user currently holds.
}

// Error implements the error interface.
func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("billing: insufficient credits: required %d, available %d", e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}
