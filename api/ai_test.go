package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/nulpointcorp/prompt-relay/internal/upstream"
)

type staticSender struct {
	configured bool
	raw        string
	calls      *atomic.Int32
}

func (s staticSender) Configured() bool { return s.configured }

func (s staticSender) Send(context.Context, *upstream.MessagesRequest) (*upstream.Reply, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	return upstream.ParseReply([]byte(s.raw))
}

// failingReader errors on the first read.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func testRelay(s staticSender) *relay.Handler {
	return relay.New(relay.Config{}, s, relay.Options{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func TestServe_Post(t *testing.T) {
	h := testRelay(staticSender{configured: true, raw: `{"choices":[{"message":{"content":"hello"}}]}`})

	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("X-Vercel-Id", "iad1::abc")
	rec := httptest.NewRecorder()
	serve(h, rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"hello"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_MissingCredential(t *testing.T) {
	h := testRelay(staticSender{configured: false})

	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(`{"prompt":"x"}`))
	rec := httptest.NewRecorder()
	serve(h, rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "API key not configured")
}

func TestServe_Preflight(t *testing.T) {
	h := testRelay(staticSender{})

	req := httptest.NewRequest(http.MethodOptions, "/api/ai", nil)
	rec := httptest.NewRecorder()
	serve(h, rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServe_BodyTooLarge(t *testing.T) {
	calls := &atomic.Int32{}
	h := testRelay(staticSender{configured: true, raw: `{"content":[]}`, calls: calls})

	big := `{"prompt":"` + strings.Repeat("a", maxBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(big))
	rec := httptest.NewRecorder()
	serve(h, rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Request body too large"`)
	assert.Contains(t, rec.Body.String(), `"message":"Request body must not exceed 4194304 bytes"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, calls.Load())
}

func TestServe_BodyReadError(t *testing.T) {
	calls := &atomic.Int32{}
	h := testRelay(staticSender{configured: true, raw: `{"content":[]}`, calls: calls})

	req := httptest.NewRequest(http.MethodPost, "/api/ai", failingReader{})
	rec := httptest.NewRecorder()
	serve(h, rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Invalid JSON body"`)
	assert.Contains(t, rec.Body.String(), `"message":"Request body could not be read"`)
	assert.NotContains(t, rec.Body.String(), "Prompt is required")
	assert.Zero(t, calls.Load())
}
