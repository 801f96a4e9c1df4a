// Package domain provides shared domain-level sentinel errors and validation.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity or ledger account does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a duplicate key or a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource already exists or was modified")

// ErrValidation indicates a string length, identity format or numeric bound violation.
var ErrValidation = errors.New("validation error")

// ErrUnauthorized indicates the caller is not the identity the operation requires.
var ErrUnauthorized = errors.New("unauthorized")

// ErrWrongAgent indicates a task is being paid to an agent other than the assigned one.
var ErrWrongAgent = fmt.Errorf("wrong agent: %w", ErrUnauthorized)

// ErrWrongHuman indicates a signer does not match the human captured on the agreement.
var ErrWrongHuman = fmt.Errorf("wrong human: %w", ErrUnauthorized)

// ErrInvalidState indicates the entity's status does not permit the operation.
var ErrInvalidState = errors.New("invalid status")

// ErrInsufficientFunds indicates a balance or escrowed amount is too low.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrExpired indicates a time window elapsed before the operation.
var ErrExpired = errors.New("expired")

// ErrBanned indicates the trust registry reports the human as banned.
var ErrBanned = errors.New("human is banned")

// Error kinds surfaced verbatim to API callers.
const (
	KindAuthorization     = "authorization"
	KindInvalidState      = "invalid_state"
	KindInsufficientFunds = "insufficient_funds"
	KindExpired           = "expired"
	KindValidation        = "validation"
	KindBanned            = "banned"
	KindNotFound          = "not_found"
	KindConflict          = "conflict"
	KindInternal          = "internal"
)

// Kind classifies err into one of the error kinds above.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrBanned):
		return KindBanned
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Validationf returns an ErrValidation wrapping the formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
