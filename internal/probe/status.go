package probe

import "errors"

// Probe errors.
// A probe never fails the batch; these errors only classify a dead candidate.
var (
	// ErrTimeout is returned when the beacon did not answer in time.
	ErrTimeout = errors.New("probe timed out")

	// ErrRefused is returned when the local proxy endpoint refused the connection.
	ErrRefused = errors.New("proxy endpoint refused connection")

	// ErrBadStatus is returned when the beacon answered with an unexpected status.
	ErrBadStatus = errors.New("unexpected beacon status")

	// ErrProxy is returned when the proxy failed to relay the request.
	ErrProxy = errors.New("proxy failed to relay request")

	// ErrInvalidAddress is returned for a malformed proxy address.
	ErrInvalidAddress = errors.New("invalid proxy address format: expected host:port")
)

// Status classifies a probe outcome.
type Status int

const (
	// StatusOK means the beacon returned the expected status in time.
	StatusOK Status = iota

	// StatusTimeout means the connect or total timeout elapsed.
	StatusTimeout

	// StatusRefused means nothing accepted connections on the local endpoint.
	StatusRefused

	// StatusBadStatus means the beacon was reached but answered unexpectedly.
	StatusBadStatus

	// StatusProxyError means the proxy broke the request in any other way:
	// a SOCKS failure reply, a reset, or a non-SOCKS listener.
	StatusProxyError
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "timeout"
	case StatusRefused:
		return "refused"
	case StatusBadStatus:
		return "bad status"
	case StatusProxyError:
		return "proxy error"
	default:
		return "unknown"
	}
}

// Err returns the error for this status, or nil if OK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusTimeout:
		return ErrTimeout
	case StatusRefused:
		return ErrRefused
	case StatusBadStatus:
		return ErrBadStatus
	case StatusProxyError:
		return ErrProxy
	default:
		return errors.New("unknown probe status")
	}
}
