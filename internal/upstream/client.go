// Package upstream is the client for the Anthropic-dialect Messages endpoint
// the relay forwards prompts to (MiniMax by default).
//
// The client issues exactly one request per call. It never retries and
// applies no timeout of its own unless one is configured; cancellation is
// driven by the caller's context.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL    = "https://api.minimax.io/anthropic"
	DefaultModel      = "MiniMax-M2.5"
	DefaultMaxTokens  = 4096
	DefaultAPIVersion = "2023-06-01"

	messagesPath = "/v1/messages"

	// logBodyLimit caps how much of an upstream body is written to debug logs.
	logBodyLimit = 200
)

// Client sends MessagesRequests to the upstream API.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
	log        *slog.Logger

	rc *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. "/v1/messages" is appended to it.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithAPIVersion overrides the anthropic-version header value.
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithTimeout bounds each call. Zero leaves the transport default in place.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying *http.Client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client. An empty apiKey is accepted; Configured reports false
// and Send refuses to call out.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}

	if c.httpClient != nil {
		c.rc = resty.NewWithClient(c.httpClient)
	} else {
		c.rc = resty.New()
	}
	c.rc.SetRetryCount(0)
	if c.timeout > 0 {
		c.rc.SetTimeout(c.timeout)
	}

	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// URL returns the full messages endpoint.
func (c *Client) URL() string {
	return strings.TrimRight(c.baseURL, "/") + messagesPath
}

// Send posts req and decodes the reply.
//
// A non-2xx answer yields *StatusError carrying the upstream body; a failure
// before any answer yields *TransportError; an undecodable 2xx body yields
// *DecodeError.
func (c *Client) Send(ctx context.Context, req *MessagesRequest) (*Reply, error) {
	if !c.Configured() {
		return nil, ErrNoCredential
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode request: %w", err)
	}

	c.log.DebugContext(ctx, "upstream_request",
		slog.String("url", c.URL()),
		slog.String("model", req.Model),
		slog.Int("max_tokens", req.MaxTokens),
		slog.Int("system_chars", len(req.System)),
		slog.Int("user_chars", len(req.UserText())),
	)

	start := time.Now()
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", c.apiVersion).
		SetBody(body).
		Post(c.URL())
	if err != nil {
		kind := classify(err)
		c.log.ErrorContext(ctx, "upstream_transport_error",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, &TransportError{Kind: kind, Err: err}
	}

	raw := resp.Body()
	c.log.InfoContext(ctx, "upstream_response",
		slog.Int("status", resp.StatusCode()),
		slog.Int("bytes", len(raw)),
		slog.Duration("elapsed", time.Since(start)),
	)
	c.log.DebugContext(ctx, "upstream_body", slog.String("body", truncate(raw, logBodyLimit)))

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: raw}
	}

	return ParseReply(raw)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
