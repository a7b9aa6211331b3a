package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"repair-agent/internal/domain"
)

// NormalizeMessages converts loosely-typed incoming messages into the
// canonical role/content form. It never fails: malformed content degrades to
// best-effort text, and normalizing an already-canonical list is a no-op.
func NormalizeMessages(raw []domain.IncomingMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, m := range raw {
		role := m.Role
		if role == "" {
			role = domain.RoleUser
		}
		out = append(out, domain.ChatMessage{
			Role:    role,
			Content: normalizeContent(m.Content),
		})
	}
	return out
}

// normalizeContent flattens any content shape to a plain string.
func normalizeContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []domain.ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, " ")
	}

	var obj struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Text != "" {
			return obj.Text
		}
		if obj.Content != "" {
			return obj.Content
		}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if compact, err := json.Marshal(v); err == nil {
			return string(compact)
		}
		return fmt.Sprint(v)
	}
	return string(raw)
}
