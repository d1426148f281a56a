package billing

import "errors"

// Domain errors for billing.
var (
	ErrInvalidAmount = errors.New("credit amount must be positive")
	ErrInvalidUser   = errors.New("user id is required")
)
