package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for flow outcomes. Wrapped errors carry context;
// callers match with errors.Is.
var (
	// ErrSecurityRejection covers CSRF state mismatches and redirect
	// origin mismatches. Always fatal for the attempt, never downgraded.
	ErrSecurityRejection = errors.New("security rejection")

	// ErrUserCancelled is returned when the operator explicitly declines
	// an authentication prompt in either flow.
	ErrUserCancelled = errors.New("user cancelled authentication")

	// ErrDeviceCodeExpired is returned when device-flow polling exceeds
	// the lifetime the authorization server granted the device code.
	ErrDeviceCodeExpired = errors.New("device code expired before approval")

	// ErrAccessDenied is returned when the authorization server rejects
	// the device grant (access_denied or invalid_grant).
	ErrAccessDenied = errors.New("authorization denied")

	// ErrStorage wraps token store write failures that happen after a
	// successful authentication. The token is usable in memory but did
	// not persist; the caller decides whether that is fatal.
	ErrStorage = errors.New("token storage failed")
)

// TransportError is a non-2xx response from an OAuth endpoint. The body
// is truncated before storage so a misbehaving server cannot bloat logs.
type TransportError struct {
	Endpoint string
	Status   int
	Body     string
}

const transportBodyMax = 512

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// newTransportError builds a TransportError with a truncated body.
func newTransportError(endpoint string, status int, body []byte) *TransportError {
	s := string(body)
	if len(s) > transportBodyMax {
		s = s[:transportBodyMax] + "..."
	}

	return &TransportError{Endpoint: endpoint, Status: status, Body: s}
}
