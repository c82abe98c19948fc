package auth

import "fmt"

// Reason explains why a credential or login was refused.
type Reason string

const (
	ReasonMissing         Reason = "missing"
	ReasonMalformed       Reason = "malformed"
	ReasonExpired         Reason = "expired"
	ReasonSignature       Reason = "signature"
	ReasonInvalid         Reason = "invalid"
	ReasonUnknownAccount  Reason = "unknown_account"
	ReasonDisabledAccount Reason = "disabled_account"
)

// Error is returned for every authentication failure. It is terminal for the
// request and maps to HTTP 401.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return fmt.Sprintf("unauthorized: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}
