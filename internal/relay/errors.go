package relay

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nulpointcorp/prompt-relay/internal/upstream"
	"github.com/nulpointcorp/prompt-relay/pkg/apierr"
)

var (
	ErrMethodNotAllowed  = errors.New("relay: method not allowed")
	ErrInvalidJSON       = errors.New("relay: invalid JSON body")
	ErrMissingPrompt     = errors.New("relay: prompt is required")
	ErrMissingCredential = errors.New("relay: upstream credential not configured")
	ErrMarkerNotFound    = errors.New("relay: prompt marker not found")
	ErrRateLimited       = errors.New("relay: rate limit exceeded")
)

// credentialHint is shown to callers when no credential is configured.
const credentialHint = "Please set MINIMAX_API_KEY in the environment"

// toEnvelope maps any error produced while serving a request to the status
// code and body returned to the client.
func toEnvelope(err error, marker string) (int, apierr.Envelope) {
	var (
		se *upstream.StatusError
		te *upstream.TransportError
		de *upstream.DecodeError
		be *BodyError
	)

	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, apierr.Envelope{Error: apierr.MsgMethodNotAllowed}

	case errors.As(err, &be):
		return http.StatusBadRequest, apierr.Envelope{Error: apierr.MsgInvalidJSON, Message: be.Err.Error()}

	case errors.Is(err, ErrMissingPrompt):
		return http.StatusBadRequest, apierr.Envelope{Error: apierr.MsgPromptRequired}

	case errors.Is(err, ErrMarkerNotFound):
		return http.StatusBadRequest, apierr.Envelope{
			Error:   apierr.MsgMarkerNotFound,
			Message: fmt.Sprintf("The prompt must contain %q", marker),
		}

	case errors.Is(err, ErrMissingCredential), errors.Is(err, upstream.ErrNoCredential):
		return http.StatusInternalServerError, apierr.Envelope{Error: apierr.MsgKeyNotConfigured, Message: credentialHint}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, apierr.Envelope{Error: apierr.MsgRateLimited}

	case errors.As(err, &se):
		return se.HTTPStatus(), apierr.Envelope{Error: apierr.MsgUpstreamFailed, Details: apierr.Details(se.Body)}

	case errors.As(err, &te):
		if te.Kind == upstream.KindTimeout {
			return http.StatusGatewayTimeout, apierr.Envelope{Error: apierr.MsgTimeout, Message: apierr.MsgTimeoutHint}
		}
		return http.StatusBadGateway, apierr.Envelope{Error: apierr.MsgUpstreamDown, Message: "Could not reach the upstream API. Please try again."}

	case errors.As(err, &de):
		return http.StatusInternalServerError, apierr.Envelope{Error: de.Error(), Type: "decode_error"}

	default:
		return http.StatusInternalServerError, apierr.Envelope{Error: err.Error(), Type: "internal_error"}
	}
}

// BodyError reports an inbound body that could not be decoded. It matches
// ErrInvalidJSON with errors.Is.
type BodyError struct {
	Err error
}

func (e *BodyError) Error() string { return fmt.Sprintf("%v: %v", ErrInvalidJSON, e.Err) }

func (e *BodyError) Unwrap() error { return e.Err }

func (e *BodyError) Is(target error) bool { return target == ErrInvalidJSON }
