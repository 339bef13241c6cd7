package domain

import "errors"

// Failure kinds surfaced by the linking and signing flows. Concrete errors wrap
// one of these so callers can branch with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrCredentialDerivation = errors.New("credential derivation failed")
	ErrPrecondition         = errors.New("precondition not met")
	ErrTransport            = errors.New("transport failure")
	ErrRejected             = errors.New("rejected by collaborator")
	ErrInconsistentEnvelope = errors.New("inconsistent success envelope")
	ErrEmptyResult          = errors.New("empty result")
	ErrUnsuccessfulCancel   = errors.New("unsuccessful cancellation")
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid exchange credentials")
	ErrInvalidClaim       = errors.New("invalid claim request")
	ErrSigningFailed      = errors.New("signing failed")
	ErrLockHeld           = errors.New("lock already held")
)
