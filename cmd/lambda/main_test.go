package main

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulpointcorp/prompt-relay/internal/relay"
	"github.com/nulpointcorp/prompt-relay/internal/upstream"
)

type echoSender struct {
	last *upstream.MessagesRequest
}

func (s *echoSender) Configured() bool { return true }

func (s *echoSender) Send(_ context.Context, req *upstream.MessagesRequest) (*upstream.Reply, error) {
	s.last = req
	return upstream.ParseReply([]byte(`{"content":[{"type":"text","text":"pong"}]}`))
}

func newTestHandler(s *echoSender) handlerFunc {
	h := relay.New(relay.Config{}, s, relay.Options{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	return newHandler(h)
}

func TestHandler_Post(t *testing.T) {
	s := &echoSender{}
	resp, err := newTestHandler(s)(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       `{"prompt":"be brief USER INPUTS: ping"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"response":"pong"}`, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	require.NotNil(t, s.last)
	assert.Equal(t, "be brief", s.last.System)
}

func TestHandler_Base64Body(t *testing.T) {
	s := &echoSender{}
	resp, err := newTestHandler(s)(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      "POST",
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"prompt":"hi"}`)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	require.NotNil(t, s.last)
}

func TestHandler_BadBase64(t *testing.T) {
	s := &echoSender{}
	resp, err := newTestHandler(s)(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      "POST",
		Body:            "%%%not-base64",
		IsBase64Encoded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 400, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid JSON body"}`, resp.Body)
	assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
	assert.Nil(t, s.last)
}

func TestHandler_Preflight(t *testing.T) {
	resp, err := newTestHandler(&echoSender{})(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "OPTIONS",
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "POST, OPTIONS", resp.Headers["Access-Control-Allow-Methods"])
}

func TestHandler_WrongMethod(t *testing.T) {
	resp, err := newTestHandler(&echoSender{})(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
	})
	require.NoError(t, err)

	assert.Equal(t, 405, resp.StatusCode)
	assert.Contains(t, resp.Body, "Method not allowed")
}
