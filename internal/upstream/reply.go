package upstream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// Shape identifies which reply dialect the upstream answered in.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeContentBlocks is the Anthropic Messages form: {"content": [{type, text}, ...]}.
	ShapeContentBlocks
	// ShapeChoices is the OpenAI form: {"choices": [{message: {content}} | {text}]}.
	ShapeChoices
)

func (s Shape) String() string {
	switch s {
	case ShapeContentBlocks:
		return "content_blocks"
	case ShapeChoices:
		return "choices"
	default:
		return "unknown"
	}
}

// Reply is a decoded 2xx upstream body. Exactly one of Blocks or Choice is
// meaningful, selected by Shape. Raw always holds the body as received.
type Reply struct {
	Shape  Shape
	Blocks []anthropic.ContentBlockUnion
	Choice string
	Raw    []byte
}

// probe detects which known top-level field is present.
type probe struct {
	Choices json.RawMessage `json:"choices"`
	Content json.RawMessage `json:"content"`
}

// ParseReply decodes a successful upstream body into a Reply. It fails only
// when the body is not valid JSON; valid JSON of no known shape yields
// ShapeUnknown.
func ParseReply(raw []byte) (*Reply, error) {
	if !json.Valid(raw) {
		var v any
		err := json.Unmarshal(raw, &v)
		return nil, &DecodeError{Err: err, Body: raw}
	}

	r := &Reply{Raw: raw}

	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		// Not an object.
		return r, nil
	}

	if choices := rawElements(p.Choices); len(choices) > 0 && !isNull(choices[0]) {
		r.Shape = ShapeChoices
		r.Choice = choiceText(choices[0])
		return r, nil
	}

	if isArray(p.Content) {
		r.Shape = ShapeContentBlocks
		for _, elem := range rawElements(p.Content) {
			var b anthropic.ContentBlockUnion
			if err := json.Unmarshal(elem, &b); err != nil {
				continue
			}
			r.Blocks = append(r.Blocks, b)
		}
	}

	return r, nil
}

func rawElements(raw json.RawMessage) []json.RawMessage {
	if !isArray(raw) {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	return elems
}

// choiceText returns the first choice's message content, falling back to the
// legacy completions "text" field.
func choiceText(raw json.RawMessage) string {
	var chat openai.ChatCompletionChoice
	if err := json.Unmarshal(raw, &chat); err == nil && chat.Message.Content != "" {
		return chat.Message.Content
	}
	var legacy openai.CompletionChoice
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return legacy.Text
	}
	return ""
}

// Text returns the reply text: the concatenation of all text blocks in order
// for content-block replies, the first choice's text for choice replies and
// "" otherwise.
func (r *Reply) Text() string {
	switch r.Shape {
	case ShapeContentBlocks:
		var sb strings.Builder
		for _, b := range r.Blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	case ShapeChoices:
		return r.Choice
	default:
		return ""
	}
}

// TextOrRaw returns Text, or the raw body when no text could be extracted.
func (r *Reply) TextOrRaw() string {
	if t := r.Text(); t != "" {
		return t
	}
	return string(r.Raw)
}

func isArray(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

func isNull(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
