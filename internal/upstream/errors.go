package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoCredential is returned by Send when the client has no API key.
var ErrNoCredential = errors.New("upstream: no API key configured")

// Kind classifies transport failures.
type Kind int

const (
	// KindNetwork means the upstream could not be reached at all.
	KindNetwork Kind = iota + 1
	// KindTimeout means the call was aborted by a deadline or cancellation.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// StatusError is returned when the upstream answers with a non-2xx status.
// Body is the upstream response body, unmodified.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d", e.StatusCode)
}

// HTTPStatus returns the upstream status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// TransportError wraps a failure that happened before any upstream response
// was received.
type TransportError struct {
	Kind Kind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is returned when a 2xx upstream body is not valid JSON.
type DecodeError struct {
	Err  error
	Body []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("upstream: decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// classify maps an error from the HTTP client to a transport Kind. Deadlines,
// cancellations and net.Error timeouts are KindTimeout; every other client
// failure (refused connections, DNS, TLS, resets) is KindNetwork.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
