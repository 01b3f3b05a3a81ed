// Package handler is the Vercel serverless entry point for the relay,
// served at /api/ai.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nulpointcorp/prompt-relay/internal/app"
	"github.com/nulpointcorp/prompt-relay/internal/config"
	"github.com/nulpointcorp/prompt-relay/internal/logger"
	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/nulpointcorp/prompt-relay/pkg/apierr"
)

// maxBody bounds the prompt body read from the client.
const maxBody = 4 << 20

var (
	initOnce sync.Once
	fn       *app.Function
	initErr  error
)

func coldStart() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	lg := logger.Build(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(lg)

	fn, initErr = app.NewFunction(context.Background(), cfg, lg)
}

// Handler serves one relay invocation.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(coldStart)
	if initErr != nil {
		slog.Error("relay init failed", slog.String("error", initErr.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(apierr.Marshal(apierr.Envelope{Error: apierr.MsgInternal, Type: "init_error"}))
		return
	}
	serve(fn.Handler, w, r)
}

func serve(h *relay.Handler, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeBodyError(h, w, r, err)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp := h.Serve(r.Context(), &relay.Request{
		Method:    r.Method,
		Body:      body,
		Headers:   headers,
		RequestID: r.Header.Get("X-Vercel-Id"),
	})

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// writeBodyError answers a request whose body could not be read in full.
func writeBodyError(h *relay.Handler, w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	env := apierr.Envelope{Error: apierr.MsgInvalidJSON, Message: "Request body could not be read"}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		env = apierr.Envelope{
			Error:   apierr.MsgBodyTooLarge,
			Message: fmt.Sprintf("Request body must not exceed %d bytes", tooLarge.Limit),
		}
	}

	slog.Warn("relay_body_unreadable", slog.Int("status", status), slog.String("error", err.Error()))

	h.CORS().Apply(r.Header.Get("Origin"), w.Header().Set)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(apierr.Marshal(env))
}
