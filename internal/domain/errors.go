package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrLockHeld              = errors.New("lock already held")
	ErrNotConnected          = errors.New("no validated chain endpoint")
	ErrConnectivity          = errors.New("chain endpoint unreachable")
	ErrChainMismatch         = errors.New("chain identity mismatch")
	ErrEndpointIndex         = errors.New("endpoint index out of range")
	ErrConfiguration         = errors.New("missing configuration")
	ErrFinancingInsufficient = errors.New("insufficient margin over financing cost")
	ErrGasPriceTooHigh       = errors.New("gas price above ceiling")
	ErrSigningFailed         = errors.New("signing failed")
)
