package domain

import (
	"encoding/json"
	"time"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is the canonical chat message shape used by the handler and
// LLM integrations. Content is always a plain string after normalization.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IncomingMessage is an untrusted message as received in the request body.
// Content may be a string, an array of content blocks, or anything else the
// frontend SDK decides to send; the normalizer flattens it.
type IncomingMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentBlock is one element of array-form message content. Only blocks
// with Type "text" contribute to the normalized content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ContactHint is a best-effort parse of contact fields from the latest user
// message, used only to seed agent context.
type ContactHint struct {
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// IsZero reports whether no contact field was extracted.
func (h ContactHint) IsZero() bool {
	return h.Company == "" && h.Email == "" && h.Phone == ""
}

// Usage carries token accounting for one exchange.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// StreamSession correlates one request/response exchange. It is created per
// HTTP request and not shared across concurrent requests.
type StreamSession struct {
	SessionID string
	UserID    string
	StartedAt time.Time
	Metadata  map[string]string
}
