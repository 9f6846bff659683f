package remote

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Errors returned by Source implementations. Check them with errors.Is.
var (
	// ErrNetwork means the service could not be reached: connection refused,
	// DNS failure, reset, or the request timed out.
	ErrNetwork = errors.New("remote unreachable")

	// ErrInvalidPayload means the response could not be decoded or an item
	// failed validation. Nothing from such a response is used.
	ErrInvalidPayload = errors.New("invalid remote payload")

	// ErrNotFound means the service does not know the shipment. For deletes
	// this counts as success.
	ErrNotFound = errors.New("shipment not found on remote")

	// ErrServer means the service answered with an unexpected status.
	ErrServer = errors.New("remote server error")
)

// StatusError carries the HTTP status of a failed request.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// Unwrap classifies the status: 404 is ErrNotFound, anything else ErrServer.
func (e *StatusError) Unwrap() error {
	if e.Code == 404 {
		return ErrNotFound
	}
	return ErrServer
}

// classifyTransport wraps a transport-level failure from http.Client.Do.
func classifyTransport(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: timed out: %w: %w", op, ErrNetwork, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%s: connection failed: %w: %w", op, ErrNetwork, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}
