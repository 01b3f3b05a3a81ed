package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nulpointcorp/prompt-relay/internal/upstream"
)

const validBody = `{"model":"MiniMax-M2.5","max_tokens":16,"messages":[{"role":"user","content":[{"type":"text","text":"hi"}]}]}`

func post(t *testing.T, h http.Handler, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("anthropic-version", "2023-06-01")
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMessages_ShapesParseToExpectedKind(t *testing.T) {
	tests := []struct {
		shape string
		want  upstream.Shape
	}{
		{shapeContent, upstream.ShapeContentBlocks},
		{shapeThinking, upstream.ShapeContentBlocks},
		{shapeChoices, upstream.ShapeChoices},
		{shapeText, upstream.ShapeChoices},
		{shapeUnknown, upstream.ShapeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.shape, func(t *testing.T) {
			h := newMessagesHandler(Config{Shape: tc.shape, Words: 3}, quiet())
			rec := post(t, h, "/anthropic/v1/messages", "k", validBody)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
			}
			rep, err := upstream.ParseReply(rec.Body.Bytes())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if rep.Shape != tc.want {
				t.Errorf("expected shape %v, got %v", tc.want, rep.Shape)
			}
			if tc.want != upstream.ShapeUnknown && rep.Text() == "" {
				t.Error("expected non-empty reply text")
			}
		})
	}
}

func TestMessages_AcceptsRelayPayload(t *testing.T) {
	payload, err := json.Marshal(upstream.NewMessagesRequest("MiniMax-M2.5", 4096, "sys", "USER INPUTS: hi"))
	if err != nil {
		t.Fatal(err)
	}
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3}, quiet())

	rec := post(t, h, "/anthropic/v1/messages", "k", string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rep, err := upstream.ParseReply(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rep.Text() == "" {
		t.Error("expected reply text")
	}
}

func TestMessages_UserChars(t *testing.T) {
	var req messagesRequest
	if err := json.Unmarshal([]byte(validBody), &req); err != nil {
		t.Fatal(err)
	}
	if got := req.userChars(); got != 2 {
		t.Errorf("expected 2 user chars, got %d", got)
	}
	if got := (&messagesRequest{}).userChars(); got != 0 {
		t.Errorf("expected 0 for empty request, got %d", got)
	}
}

func TestMessages_RequiresKeyWhenConfigured(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3, APIKey: "k"}, quiet())

	if rec := post(t, h, "/v1/messages", "wrong", validBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := post(t, h, "/v1/messages", "k", validBody); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMessages_RequiresKeyPresence(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3}, quiet())

	if rec := post(t, h, "/v1/messages", "", validBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without x-api-key, got %d", rec.Code)
	}
}

func TestMessages_ErrorRate(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3, ErrorRate: 1}, quiet())

	if rec := post(t, h, "/v1/messages", "k", validBody); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestMessages_ForcedStatus(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3, Status: 429}, quiet())

	rec := post(t, h, "/v1/messages", "k", validBody)
	if rec.Code != 429 {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Errorf("expected error envelope, got %s", rec.Body)
	}
}

func TestMessages_RejectsEmptyMessages(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3}, quiet())

	rec := post(t, h, "/v1/messages", "k", `{"model":"m","max_tokens":1,"messages":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMessages_UnknownPath(t *testing.T) {
	h := newMessagesHandler(Config{Shape: shapeContent, Words: 3}, quiet())

	if rec := post(t, h, "/v1/models", "k", validBody); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
