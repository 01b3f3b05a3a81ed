package upstream

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewMessagesRequest builds the single-turn payload the relay sends: one user
// message carrying one text block, with an optional system instruction.
func NewMessagesRequest(model string, maxTokens int, system, user string) *MessagesRequest {
	return &MessagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []apiMessage{
			{
				Role:    "user",
				Content: []textBlock{{Type: "text", Text: user}},
			},
		},
	}
}

// UserText returns the text of the first user message, or "".
func (r *MessagesRequest) UserText() string {
	if len(r.Messages) == 0 || len(r.Messages[0].Content) == 0 {
		return ""
	}
	return r.Messages[0].Content[0].Text
}
