package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Every failed action wraps exactly one of these kinds. Callers classify with
// errors.Is or Kind; the message carries the detail.

var (
	// ErrInvalidState: the action is illegal for the current ballot/registry state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound: missing ballot, registry, receipt, account, or worker.
	ErrNotFound = errors.New("not found")

	// ErrPolicyViolation: access control, option limits, lock flags, balances.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrExpired: operating on a lapsed receipt or archive window.
	ErrExpired = errors.New("expired")

	// ErrArithmetic: supply bound overflow or a negative amount.
	ErrArithmetic = errors.New("arithmetic error")
)

// ErrorKind names the sentinel an error wraps.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindInvalidState    ErrorKind = "invalid_state"
	KindNotFound        ErrorKind = "not_found"
	KindPolicyViolation ErrorKind = "policy_violation"
	KindExpired         ErrorKind = "expired"
	KindArithmetic      ErrorKind = "arithmetic"
	KindInternal        ErrorKind = "internal"
)

// Kind classifies err by the sentinel it wraps. Errors that wrap none of the
// domain sentinels (I/O, storage) report KindInternal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPolicyViolation):
		return KindPolicyViolation
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrArithmetic):
		return KindArithmetic
	default:
		return KindInternal
	}
}
