package integration

import (
	"errors"
	"fmt"
	"net/http"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

var (
	// ErrConfiguration means the organization has no usable remote endpoint or credentials.
	// Never retried automatically.
	ErrConfiguration = errors.New("integration: remote catalog not configured")
	// ErrRemoteUnavailable covers network failures, timeouts and 5xx responses.
	ErrRemoteUnavailable = errors.New("integration: remote catalog unavailable")
	// ErrRemoteRejected covers 4xx responses (validation, unknown id, permission).
	ErrRemoteRejected = errors.New("integration: remote catalog rejected request")
	// ErrLocalStore covers failures of the local mirror store.
	ErrLocalStore = errors.New("integration: local store failure")
	// ErrInvalidRemoteResponse means the remote answered with a body that could not be decoded.
	ErrInvalidRemoteResponse = errors.New("integration: invalid remote response")
	// ErrUnknownEntityType is returned for entity kinds outside the supported set.
	ErrUnknownEntityType = errors.New("integration: unknown entity type")
	// ErrIntegrationNotFound is returned when an organization has no remote integration.
	ErrIntegrationNotFound = errors.New("integration: remote integration not found")
	// ErrIntegrationDisabled is returned when the organization's integration is switched off.
	ErrIntegrationDisabled = errors.New("integration: remote integration disabled")
	// ErrInvalidWebhookSignature is returned when a webhook body does not match its signature.
	ErrInvalidWebhookSignature = errors.New("integration: invalid webhook signature")
)

// RemoteError is a classified failure of a single remote call.
type RemoteError struct {
	// StatusCode is the HTTP status, 0 when the request never got a response
	StatusCode int
	// Code is the platform error code from the response body, if any
	Code string
	// Message is a human readable description
	Message string
	// Err is the transport error for network failures
	Err error
}

// NewRemoteError builds a RemoteError from an HTTP status and the decoded error body.
func NewRemoteError(statusCode int, code, message string) *RemoteError {
	return &RemoteError{StatusCode: statusCode, Code: code, Message: message}
}

// NewTransportError wraps a network level failure.
func NewTransportError(err error) *RemoteError {
	return &RemoteError{Err: err, Message: err.Error()}
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote request failed: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the failure onto the error taxonomy so callers can use errors.Is.
func (e *RemoteError) Unwrap() []error {
	errs := []error{e.classify()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *RemoteError) classify() error {
	if e.IsClientError() {
		return ErrRemoteRejected
	}
	return ErrRemoteUnavailable
}

// IsClientError reports a 4xx response.
func (e *RemoteError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsNotFound reports a 404 response.
func (e *RemoteError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRejected reports whether err was a 4xx rejection by the remote catalog.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}

// IsNotFound reports whether err was a remote 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.IsNotFound()
	}
	return false
}
