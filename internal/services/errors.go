package services

import (
	"errors"
	"fmt"
	"time"
)

// Business-rule and validation errors returned by the economy services.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientItems = errors.New("insufficient items")
	ErrInvalidTarget     = errors.New("cannot transfer to the same account")
	ErrAlreadyClaimed    = errors.New("level reward already claimed")
	ErrLevelNotReached   = errors.New("level not reached")
	ErrPersistence       = errors.New("ledger storage failure")

	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidQuantity = errors.New("quantity must not be zero")
	ErrInvalidAccount  = errors.New("account id is required")
	ErrUnknownItem     = errors.New("unknown item")
	ErrUnknownJob      = errors.New("unknown job")
	ErrUnknownLevel    = errors.New("no reward exists for that level")
	ErrLevelNotRaised  = errors.New("level can only be raised")
	ErrOnCooldown      = errors.New("action is on cooldown")
	ErrForbidden       = errors.New("not allowed")
	ErrRequestNotFound = errors.New("payment request not found or expired")
	ErrUnavailable     = errors.New("feature unavailable")
)

// CooldownError reports how long an action stays blocked.
type CooldownError struct {
	Action    string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s is on cooldown for another %s", e.Action, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}

// IsRejection reports whether err is an expected outcome of a business rule rather
// than an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInsufficientFunds, ErrInsufficientItems, ErrInvalidTarget, ErrAlreadyClaimed,
		ErrLevelNotReached, ErrInvalidAmount, ErrInvalidQuantity, ErrInvalidAccount,
		ErrUnknownItem, ErrUnknownJob, ErrUnknownLevel, ErrLevelNotRaised, ErrOnCooldown, ErrForbidden,
		ErrRequestNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
