package agent

import (
	"context"
	"errors"
	"strings"

	"repair-agent/internal/domain"
)

// Provider produces a token stream for a model invocation. System
// instructions travel separately from the conversation turns because the
// Anthropic message API keeps them out of the message list.
type Provider interface {
	Stream(ctx context.Context, modelID, system string, messages []domain.ChatMessage) (TokenStream, error)
}

// Agent is one configured conversational unit: a model binding plus its
// instruction text. Agents are built once at startup and shared across
// requests; they hold no per-request state.
type Agent struct {
	ID           string
	Name         string
	ModelID      string
	Instructions string

	provider Provider
}

// New creates an Agent bound to the given provider.
func New(id, name, modelID, instructions string, provider Provider) (*Agent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("agent: id must not be empty")
	}
	if provider == nil {
		return nil, errors.New("agent: provider must not be nil")
	}
	return &Agent{
		ID:           id,
		Name:         name,
		ModelID:      modelID,
		Instructions: instructions,
		provider:     provider,
	}, nil
}

// Stream starts a generation for the given messages. System-role entries are
// folded into the instruction text; consecutive same-role turns are merged so
// the conversation alternates the way the model API expects.
func (a *Agent) Stream(ctx context.Context, messages []domain.ChatMessage) (TokenStream, error) {
	system := a.Instructions
	conv := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == domain.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
			continue
		}
		if n := len(conv); n > 0 && conv[n-1].Role == m.Role {
			conv[n-1].Content += "\n\n" + m.Content
			continue
		}
		conv = append(conv, m)
	}
	return a.provider.Stream(ctx, a.ModelID, system, conv)
}
