package backend

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

// TransportError is a network failure or a non-2xx response.
type TransportError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: transport failure: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("backend: %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == domain.ErrTransport }

// ApplicationError is a well-formed error envelope returned with a 2xx status.
type ApplicationError struct {
	Path    string
	Code    any
	Message string
	Data    json.RawMessage
}

func (e *ApplicationError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("backend: %s: rejected (code %v): %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: %s: rejected: %s", e.Path, e.Message)
}

func (e *ApplicationError) Is(target error) bool { return target == domain.ErrRejected }

// InconsistentEnvelopeError is a 2xx success envelope whose embedded status
// echoes an upstream HTTP failure.
type InconsistentEnvelopeError struct {
	Path   string
	Status int
	Detail string
}

func (e *InconsistentEnvelopeError) Error() string {
	msg := fmt.Sprintf("backend: %s: success envelope carries status %d", e.Path, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InconsistentEnvelopeError) Is(target error) bool {
	return target == domain.ErrInconsistentEnvelope || target == domain.ErrRejected
}
