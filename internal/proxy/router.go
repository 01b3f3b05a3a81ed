// Package proxy is the long-running HTTP front of the relay: a fasthttp
// server that mounts the relay handler on one route next to health,
// readiness and metrics endpoints.
package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/fasthttp/router"
	"github.com/nulpointcorp/prompt-relay/internal/metrics"
	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/valyala/fasthttp"
)

const (
	DefaultRelayPath = "/api/ai"

	probeTimeout = 2 * time.Second
)

// Probe is a readiness check. Check returns nil when the dependency is usable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ServerOptions configures a Server. Zero values take the defaults.
type ServerOptions struct {
	// Path is where the relay is mounted. Default: /api/ai.
	Path    string
	Version string

	// Configured reports whether the upstream credential is set.
	Configured func() bool

	// Probes run on GET /readiness in addition to the credential check.
	Probes []Probe

	Metrics *metrics.Registry
	Logger  *slog.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the relay over fasthttp.
type Server struct {
	relay *relay.Handler
	opts  ServerOptions
	log   *slog.Logger
	srv   *fasthttp.Server
}

// NewServer builds the router and middleware chain around h.
func NewServer(h *relay.Handler, opts ServerOptions) *Server {
	if opts.Path == "" {
		opts.Path = DefaultRelayPath
	}
	if opts.Configured == nil {
		opts.Configured = func() bool { return true }
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{relay: h, opts: opts, log: log}
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		Name:         "prompt-relay",
	}
	return s
}

// Handler returns the full handler: routes wrapped in the middleware chain.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.ANY(s.opts.Path, s.handleRelay)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)
	if s.opts.Metrics != nil {
		r.GET("/metrics", s.opts.Metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		instrument(s.opts.Metrics, s.routeLabel),
		corsHandler(s.relay.CORS()),
		securityHeaders,
	)
}

// ListenAndServe serves on addr (e.g. ":8080") until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) routeLabel(path string) string {
	switch path {
	case s.opts.Path:
		return "relay"
	case "/health", "/readiness", "/metrics":
		return path[1:]
	default:
		return "other"
	}
}

func (s *Server) handleRelay(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("request_id").(string)

	headers := make(map[string]string)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	req := &relay.Request{
		Method:    string(ctx.Method()),
		Body:      append([]byte(nil), ctx.PostBody()...),
		Headers:   headers,
		RequestID: id,
	}

	resp := s.relay.Serve(ctx, req)

	for k, v := range resp.Headers {
		ctx.Response.Header.Set(k, v)
	}
	ctx.SetStatusCode(resp.StatusCode)
	ctx.SetBody(resp.Body)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"status":              "ok",
		"version":             s.opts.Version,
		"upstream_configured": s.opts.Configured(),
	})
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	checks := map[string]string{}
	ready := true

	if s.opts.Configured() {
		checks["upstream_credential"] = "ok"
	} else {
		checks["upstream_credential"] = "missing"
		ready = false
	}

	for _, p := range s.opts.Probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			s.log.Warn("readiness_probe_failed", slog.String("probe", p.Name), slog.String("error", err.Error()))
			checks[p.Name] = "unavailable"
			ready = false
			continue
		}
		checks[p.Name] = "ok"
	}

	status := "ok"
	if !ready {
		status = "unavailable"
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}
	writeJSON(ctx, map[string]any{"status": status, "checks": checks})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
