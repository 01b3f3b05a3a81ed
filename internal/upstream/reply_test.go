package upstream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply_ContentBlocksConcatenatesTextOnly(t *testing.T) {
	raw := []byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"content": [
			{"type": "text", "text": "A"},
			{"type": "image", "source": {"type": "base64", "media_type": "image/png", "data": "AAAA"}},
			{"type": "text", "text": "B"}
		]
	}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, ShapeContentBlocks, r.Shape)
	assert.Equal(t, "AB", r.Text())
	assert.Equal(t, "AB", r.TextOrRaw())
}

func TestParseReply_ContentBlocksSkipsThinking(t *testing.T) {
	raw := []byte(`{"content":[
		{"type":"thinking","thinking":"let me see","signature":"sig"},
		{"type":"text","text":"final answer"}
	]}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, "final answer", r.Text())
}

func TestParseReply_ChoiceMessageContent(t *testing.T) {
	r, err := ParseReply([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeChoices, r.Shape)
	assert.Equal(t, "hello", r.Text())
}

func TestParseReply_ChoiceLegacyText(t *testing.T) {
	r, err := ParseReply([]byte(`{"choices":[{"text":"legacy completion","index":0}]}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeChoices, r.Shape)
	assert.Equal(t, "legacy completion", r.Text())
}

func TestParseReply_ChoicesWinOverContent(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"content":"from choices"}}],"content":[{"type":"text","text":"from blocks"}]}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, ShapeChoices, r.Shape)
	assert.Equal(t, "from choices", r.Text())
}

func TestParseReply_EmptyChoicesFallsThroughToContent(t *testing.T) {
	raw := []byte(`{"choices":[],"content":[{"type":"text","text":"blocks"}]}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, ShapeContentBlocks, r.Shape)
	assert.Equal(t, "blocks", r.Text())
}

func TestParseReply_NullFirstChoiceIsIgnored(t *testing.T) {
	r, err := ParseReply([]byte(`{"choices":[null]}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeUnknown, r.Shape)
}

func TestParseReply_UnknownShapeFallsBackToRaw(t *testing.T) {
	raw := []byte(`{"output":"something else"}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, ShapeUnknown, r.Shape)
	assert.Empty(t, r.Text())
	assert.Equal(t, string(raw), r.TextOrRaw())
}

func TestParseReply_NoTextBlocksFallsBackToRaw(t *testing.T) {
	raw := []byte(`{"content":[{"type":"tool_use","id":"t1","name":"x","input":{}}]}`)

	r, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, ShapeContentBlocks, r.Shape)
	assert.Equal(t, string(raw), r.TextOrRaw())
}

func TestParseReply_NonObjectJSON(t *testing.T) {
	r, err := ParseReply([]byte(`"just a string"`))
	require.NoError(t, err)
	assert.Equal(t, ShapeUnknown, r.Shape)
	assert.Equal(t, `"just a string"`, r.TextOrRaw())
}

func TestParseReply_InvalidJSON(t *testing.T) {
	_, err := ParseReply([]byte(`<html>bad gateway</html>`))
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "<html>bad gateway</html>", string(de.Body))
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "content_blocks", ShapeContentBlocks.String())
	assert.Equal(t, "choices", ShapeChoices.String())
	assert.Equal(t, "unknown", ShapeUnknown.String())
}
