package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
)

// Reply shapes the mock can produce.
const (
	shapeContent  = "content"
	shapeThinking = "thinking"
	shapeChoices  = "choices"
	shapeText     = "text"
	shapeUnknown  = "unknown"
	shapeEmpty    = "empty"
)

type messagesRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    string `json:"system"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

// userChars is the length of the first text block of the first message.
func (r *messagesRequest) userChars() int {
	if len(r.Messages) == 0 || len(r.Messages[0].Content) == 0 {
		return 0
	}
	return len(r.Messages[0].Content[0].Text)
}

// newMessagesHandler simulates POST {base}/v1/messages. Both the bare
// /v1/messages path and the /anthropic-prefixed one are served.
func newMessagesHandler(cfg Config, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	h := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
			return
		}
		key := r.Header.Get("x-api-key")
		if key == "" || (cfg.APIKey != "" && key != cfg.APIKey) {
			writeError(w, http.StatusUnauthorized, "invalid x-api-key", "authentication_error")
			return
		}
		if r.Header.Get("anthropic-version") == "" {
			writeError(w, http.StatusBadRequest, "anthropic-version header is required", "invalid_request_error")
			return
		}

		applyLatency(cfg)
		if cfg.Status != 0 {
			writeError(w, cfg.Status, "mock forced status", "api_error")
			return
		}
		if shouldError(cfg) {
			writeError(w, http.StatusInternalServerError, "mock internal error", "api_error")
			return
		}

		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
			return
		}
		if len(req.Messages) == 0 || req.MaxTokens <= 0 {
			writeError(w, http.StatusBadRequest, "messages and max_tokens are required", "invalid_request_error")
			return
		}

		log.Debug("mock request",
			slog.String("model", req.Model),
			slog.Int("system_chars", len(req.System)),
			slog.Int("user_chars", req.userChars()),
		)

		writeJSON(w, http.StatusOK, reply(cfg.Shape, req.Model, fakeSentence(cfg.Words)))
	}

	mux.HandleFunc("/v1/messages", h)
	mux.HandleFunc("/anthropic/v1/messages", h)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path), "not_found_error")
	})

	return mux
}

// reply builds a response body in the requested shape.
func reply(shape, model, text string) map[string]any {
	id := fmt.Sprintf("msg_%x", rand.Int64())

	switch shape {
	case shapeChoices:
		return map[string]any{
			"id":    id,
			"model": model,
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": text}},
			},
		}
	case shapeText:
		return map[string]any{
			"id":      id,
			"choices": []map[string]any{{"index": 0, "text": text}},
		}
	case shapeUnknown:
		return map[string]any{"id": id, "output": text}
	case shapeEmpty:
		return map[string]any{"id": id, "type": "message", "content": []any{}}
	}

	content := []map[string]string{{"type": "text", "text": text}}
	if shape == shapeThinking {
		content = append([]map[string]string{{"type": "thinking", "thinking": "mock reasoning"}}, content...)
	}
	return map[string]any{
		"id":            id,
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       content,
		"usage": map[string]int{
			"input_tokens":  15,
			"output_tokens": len(text) / 4,
		},
	}
}
