package linker

import (
	"fmt"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// StepError reports the state in which a link flow stopped.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("linker: %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CredentialError is returned when both deriving and creating exchange
// credentials fail. The message names the create failure; the derive failure
// is kept for inspection.
type CredentialError struct {
	DeriveErr error
	CreateErr error
}

func (e *CredentialError) Error() string {
	if e.DeriveErr == nil {
		return fmt.Sprintf("create credentials: %v", e.CreateErr)
	}
	return fmt.Sprintf("create credentials: %v (after derive failed: %v)", e.CreateErr, e.DeriveErr)
}

// Unwrap exposes both the failure kind and the create error to errors.Is and
// errors.As.
func (e *CredentialError) Unwrap() []error {
	return []error{domain.ErrCredentialDerivation, e.CreateErr}
}
