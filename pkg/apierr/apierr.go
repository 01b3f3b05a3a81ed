// Package apierr provides the JSON envelope returned to relay clients and
// helpers to write it.
//
// Success bodies are {"response": "..."}; failures are
// {"error": "...", "message": "...", "details": ..., "type": "..."} with every
// field but "error" optional.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// Error strings shared by every entry point.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgInvalidJSON      = "Invalid JSON body"
	MsgBodyTooLarge     = "Request body too large"
	MsgPromptRequired   = "Prompt is required"
	MsgMarkerNotFound   = "Prompt marker not found"
	MsgKeyNotConfigured = "API key not configured"
	MsgRateLimited      = "Rate limit exceeded"
	MsgUpstreamFailed   = "API request failed"
	MsgUpstreamDown     = "Upstream unreachable"
	MsgTimeout          = "Request timeout"
	MsgInternal         = "Internal server error"
	MsgTimeoutHint      = "The request took too long. Please try again."
)

type (
	// Envelope is the error body returned to clients.
	Envelope struct {
		Error   string          `json:"error"`
		Message string          `json:"message,omitempty"`
		Details json.RawMessage `json:"details,omitempty"`
		Type    string          `json:"type,omitempty"`
	}

	// Success is the body returned when the upstream produced a reply.
	Success struct {
		Response string `json:"response"`
	}
)

// Marshal encodes e. Encoding an Envelope cannot fail unless Details holds
// invalid JSON, in which case Details is dropped.
func Marshal(e Envelope) []byte {
	body, err := json.Marshal(e)
	if err != nil {
		e.Details = nil
		body, _ = json.Marshal(e)
	}
	return body
}

// MarshalSuccess encodes the success envelope for text.
func MarshalSuccess(text string) []byte {
	body, _ := json.Marshal(Success{Response: text})
	return body
}

// Details converts an upstream error body into a value suitable for
// Envelope.Details: JSON bodies are embedded verbatim, anything else becomes a
// JSON string, and an empty body becomes {}.
func Details(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	s, _ := json.Marshal(string(body))
	return s
}

// Write writes the envelope as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, e Envelope) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(Marshal(e))
}

