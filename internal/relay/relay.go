// Package relay is the prompt relay: it takes one inbound request carrying a
// combined prompt, splits it into a system instruction and user content,
// makes exactly one upstream call and wraps the reply text in the JSON
// envelope the front-end expects.
//
// The handler is transport-agnostic. The fasthttp server, the Lambda entry
// point and the Vercel function all translate their native request into a
// Request and write back the Response.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nulpointcorp/prompt-relay/internal/logger"
	"github.com/nulpointcorp/prompt-relay/internal/metrics"
	"github.com/nulpointcorp/prompt-relay/internal/ratelimit"
	"github.com/nulpointcorp/prompt-relay/internal/upstream"
	"github.com/nulpointcorp/prompt-relay/pkg/apierr"
)

// logBodyLimit caps how much of a reply is echoed into debug logs.
const logBodyLimit = 200

// Request is one inbound invocation.
type Request struct {
	Method    string
	Body      []byte
	Headers   map[string]string
	RequestID string
}

// Header returns the value of the named header, matched case-insensitively.
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Response is what the entry point writes back. Body is empty for preflight
// and JSON otherwise.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

func (r *Response) set(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 6)
	}
	r.Headers[key] = value
}

// Sender performs the upstream call.
type Sender interface {
	Configured() bool
	Send(ctx context.Context, req *upstream.MessagesRequest) (*upstream.Reply, error)
}

// Limiter decides whether a request may proceed. An error with allowed=true
// means the limiter itself failed and the request is let through.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// Recorder receives one entry per served request.
type Recorder interface {
	Log(entry logger.RequestLog)
}

// Config holds the handler settings. Zero values take the defaults.
type Config struct {
	Model         string
	MaxTokens     int
	Marker        string
	RequireMarker bool
	CORS          CORS
}

// Options are the optional collaborators. All are nil-safe.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	Limiter  Limiter
	Recorder Recorder
}

// Handler serves relay requests. It is safe for concurrent use.
type Handler struct {
	cfg      Config
	sender   Sender
	log      *slog.Logger
	metrics  *metrics.Registry
	limiter  Limiter
	recorder Recorder
	validate *validator.Validate
}

// inbound is the accepted request body.
type inbound struct {
	Prompt string `json:"prompt" validate:"required"`
}

// New creates a Handler. sender must not be nil.
func New(cfg Config, sender Sender, opts Options) *Handler {
	if sender == nil {
		panic("relay: sender must not be nil")
	}
	if cfg.Model == "" {
		cfg.Model = upstream.DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = upstream.DefaultMaxTokens
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.CORS.Methods == "" && cfg.CORS.Headers == "" && len(cfg.CORS.Origins) == 0 {
		cfg.CORS = DefaultCORS()
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		cfg:      cfg,
		sender:   sender,
		log:      log,
		metrics:  opts.Metrics,
		limiter:  opts.Limiter,
		recorder: opts.Recorder,
		validate: validator.New(),
	}
}

// CORS returns the policy the handler applies.
func (h *Handler) CORS() CORS { return h.cfg.CORS }

// trace collects what the request log and metrics need about one call.
type trace struct {
	promptChars   int
	markerFound   bool
	shape         string
	responseChars int
}

// Serve handles one request. It never panics on bad input and always returns
// a Response carrying the CORS headers.
func (h *Handler) Serve(ctx context.Context, req *Request) *Response {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	log := h.log.With(slog.String("request_id", req.RequestID))

	var tr trace
	resp := h.serve(ctx, log, req, &tr)
	h.cfg.CORS.Apply(req.Header("Origin"), resp.set)

	if req.Method != http.MethodOptions {
		h.finish(req, resp, &tr, time.Since(start))
	}
	return resp
}

func (h *Handler) serve(ctx context.Context, log *slog.Logger, req *Request, tr *trace) *Response {
	if req.Method == http.MethodOptions {
		return &Response{StatusCode: http.StatusOK}
	}

	log.DebugContext(ctx, "relay_request",
		slog.String("method", req.Method),
		slog.Any("headers", redactHeaders(req.Headers)),
		slog.Int("body_bytes", len(req.Body)),
	)

	text, err := h.relay(ctx, log, req, tr)
	if err != nil {
		status, env := toEnvelope(err, h.cfg.Marker)
		h.logFailure(ctx, log, err, status)

		resp := &Response{StatusCode: status, Body: apierr.Marshal(env)}
		resp.set("Content-Type", "application/json")
		switch {
		case errors.Is(err, ErrMethodNotAllowed):
			resp.set("Allow", "POST, OPTIONS")
		case errors.Is(err, ErrRateLimited):
			resp.set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds))
		}
		return resp
	}

	resp := &Response{StatusCode: http.StatusOK, Body: apierr.MarshalSuccess(text)}
	resp.set("Content-Type", "application/json")
	return resp
}

// relay runs the POST path and returns the reply text.
func (h *Handler) relay(ctx context.Context, log *slog.Logger, req *Request, tr *trace) (string, error) {
	if req.Method != http.MethodPost {
		return "", ErrMethodNotAllowed
	}

	prompt, err := h.decode(req.Body)
	if err != nil {
		return "", err
	}
	tr.promptChars = len(prompt)

	if !h.sender.Configured() {
		return "", ErrMissingCredential
	}

	if err := h.admit(ctx, log); err != nil {
		return "", err
	}

	split, found := SplitPrompt(prompt, h.cfg.Marker)
	tr.markerFound = found
	if h.metrics != nil {
		h.metrics.RecordPromptSplit(found)
	}
	if !found {
		if h.cfg.RequireMarker {
			return "", ErrMarkerNotFound
		}
		log.WarnContext(ctx, "prompt_marker_missing",
			slog.String("marker", h.cfg.Marker),
			slog.Int("prompt_chars", len(prompt)),
		)
	}

	log.InfoContext(ctx, "upstream_call",
		slog.String("model", h.cfg.Model),
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("system_chars", len(split.System)),
		slog.Int("user_chars", len(split.User)),
	)

	payload := upstream.NewMessagesRequest(h.cfg.Model, h.cfg.MaxTokens, split.System, split.User)

	callStart := time.Now()
	reply, err := h.sender.Send(ctx, payload)
	h.observeUpstream(err, time.Since(callStart))
	if err != nil {
		return "", fmt.Errorf("relay: upstream call: %w", err)
	}

	tr.shape = reply.Shape.String()
	if h.metrics != nil {
		h.metrics.RecordReplyShape(tr.shape)
	}

	text := reply.TextOrRaw()
	tr.responseChars = len(text)

	log.DebugContext(ctx, "upstream_reply",
		slog.String("shape", tr.shape),
		slog.Bool("raw_fallback", reply.Text() == ""),
		slog.String("body", truncate(reply.Raw, logBodyLimit)),
	)

	return text, nil
}

// decode parses and validates the inbound body, returning the prompt.
func (h *Handler) decode(body []byte) (string, error) {
	var in inbound
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return "", &BodyError{Err: err}
		}
	}
	if err := h.validate.Struct(in); err != nil {
		return "", ErrMissingPrompt
	}
	return in.Prompt, nil
}

// admit consults the limiter. Limiter failures let the request through.
func (h *Handler) admit(ctx context.Context, log *slog.Logger) error {
	if h.limiter == nil {
		return nil
	}

	allowed, err := h.limiter.Allow(ctx)
	result := "allowed"
	switch {
	case err != nil:
		result = "error"
		log.WarnContext(ctx, "ratelimit_unavailable", slog.String("error", err.Error()))
	case !allowed:
		result = "limited"
	}
	if h.metrics != nil {
		h.metrics.RecordRateLimit(result)
	}

	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (h *Handler) observeUpstream(err error, dur time.Duration) {
	if h.metrics == nil {
		return
	}

	outcome := "ok"
	var (
		se *upstream.StatusError
		te *upstream.TransportError
		de *upstream.DecodeError
	)
	switch {
	case err == nil:
	case errors.As(err, &se):
		outcome = "status"
	case errors.As(err, &te):
		outcome = te.Kind.String()
	case errors.As(err, &de):
		outcome = "decode"
	default:
		outcome = "error"
	}

	h.metrics.ObserveUpstream(outcome, dur)
	if err != nil {
		h.metrics.RecordUpstreamError(outcome)
	}
}

func (h *Handler) logFailure(ctx context.Context, log *slog.Logger, err error, status int) {
	attrs := []any{
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}

	var se *upstream.StatusError
	if errors.As(err, &se) {
		attrs = append(attrs, slog.String("upstream_body", truncate(se.Body, logBodyLimit)))
	}

	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "relay_failed", attrs...)
		return
	}
	log.InfoContext(ctx, "relay_rejected", attrs...)
}

func (h *Handler) finish(req *Request, resp *Response, tr *trace, elapsed time.Duration) {
	if h.metrics != nil {
		h.metrics.RecordOutcome(resp.StatusCode)
	}
	if h.recorder == nil {
		return
	}

	id, err := uuid.Parse(req.RequestID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.RequestID))
	}

	h.recorder.Log(logger.RequestLog{
		ID:            id,
		Model:         h.cfg.Model,
		Shape:         tr.shape,
		Status:        resp.StatusCode,
		LatencyMs:     elapsed.Milliseconds(),
		PromptChars:   tr.promptChars,
		ResponseChars: tr.responseChars,
		MarkerFound:   tr.markerFound,
		CreatedAt:     time.Now(),
	})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
