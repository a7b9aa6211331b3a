package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"repair-agent/internal/agent"
	"repair-agent/internal/domain"
	"repair-agent/internal/logging"
)

const (
	defaultMaxHistoryTurns = 10
	statusComplete         = "complete"
)

// Tracer brackets a request with the tracing collaborator. Implementations
// must be safe to call when disabled and must never fail into the request
// path.
type Tracer interface {
	StartTrace(name string, metadata map[string]any) string
	EndTrace(traceID string, metadata map[string]any)
	LogToolExecution(traceID, tool string, input, output any, metadata map[string]any)
}

// MemoryStore persists session turns. The chat service treats it as
// best-effort: read failures skip history, write failures are logged only.
type MemoryStore interface {
	GetRecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	GetSessionTurnCount(ctx context.Context, sessionID string) (int, error)
	SaveTurn(ctx context.Context, sessionID, userText, assistantText string, turns int) error
}

// AutomationDispatcher forwards a hidden data block to the automation
// connector. Failures are observed only via logs and trace events.
type AutomationDispatcher interface {
	Dispatch(ctx context.Context, kind, payload string) (string, error)
}

// ChatService orchestrates one chat exchange: normalize, invoke, post-process.
type ChatService struct {
	registry   *agent.Registry
	tracer     Tracer
	memory     MemoryStore
	dispatcher AutomationDispatcher
	logger     logging.Logger

	maxHistoryTurns int
}

// StreamInput is one chat request after HTTP decoding.
type StreamInput struct {
	Messages []domain.IncomingMessage
	Session  domain.StreamSession
}

// StreamResult is the fully processed outcome handed to the wire encoder.
type StreamResult struct {
	Text     string
	Usage    domain.Usage
	TraceID  string
	UserText string
	Degraded bool
}

type Option func(*ChatService)

// WithMemory attaches a session memory store.
func WithMemory(m MemoryStore) Option {
	return func(s *ChatService) { s.memory = m }
}

// WithDispatcher attaches the automation connector.
func WithDispatcher(d AutomationDispatcher) Option {
	return func(s *ChatService) { s.dispatcher = d }
}

// WithMaxHistoryTurns bounds how many persisted turns seed the prompt.
func WithMaxHistoryTurns(n int) Option {
	return func(s *ChatService) { s.maxHistoryTurns = n }
}

func NewChatService(registry *agent.Registry, tracer Tracer, logger logging.Logger, opts ...Option) (*ChatService, error) {
	if registry == nil {
		return nil, errors.New("usecase: agent registry must not be nil")
	}
	if tracer == nil {
		return nil, errors.New("usecase: tracer must not be nil")
	}
	if logger == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	s := &ChatService{
		registry:        registry,
		tracer:          tracer,
		logger:          logger,
		maxHistoryTurns: defaultMaxHistoryTurns,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxHistoryTurns <= 0 {
		s.maxHistoryTurns = defaultMaxHistoryTurns
	}
	return s, nil
}

// Resolve looks up an agent by id. An unknown id is a terminal,
// user-visible condition; no frames may be written after it.
func (s *ChatService) Resolve(agentID string) (*agent.Agent, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, newError(ErrorInvalidInput, "empty_agent_id", nil)
	}
	ag := s.registry.Get(agentID)
	if ag == nil {
		return nil, newError(ErrorAgentNotFound, "unknown_agent", nil)
	}
	return ag, nil
}

// Run executes one exchange against a resolved agent. It has no error path:
// upstream failures degrade to the fixed fallback text because the wire
// protocol is typically mid-stream by the time they occur.
func (s *ChatService) Run(ctx context.Context, ag *agent.Agent, in StreamInput) StreamResult {
	messages := NormalizeMessages(in.Messages)
	userText := latestUserText(messages)

	traceID := s.tracer.StartTrace("agent-stream", map[string]any{
		"agentId":      ag.ID,
		"endpoint":     "/api/agents/" + ag.ID + "/stream",
		"messageCount": len(messages),
		"sessionId":    in.Session.SessionID,
		"userId":       in.Session.UserID,
	})

	prompt := s.buildPromptMessages(ctx, in.Session.SessionID, userText, messages)

	raw, degraded := s.invoke(ctx, ag, prompt)
	text, blocks := ProcessResponse(raw)

	if len(blocks) > 0 {
		go s.dispatchBlocks(context.WithoutCancel(ctx), traceID, in.Session.SessionID, blocks)
	}

	return StreamResult{
		Text: text,
		Usage: domain.Usage{
			PromptTokens:     promptRunes(prompt),
			CompletionTokens: utf8.RuneCountInString(text),
		},
		TraceID:  traceID,
		UserText: userText,
		Degraded: degraded,
	}
}

// Finalize closes out an exchange after the response has been written:
// best-effort turn persistence, then the trace end. Nothing here can fail
// the request.
func (s *ChatService) Finalize(ctx context.Context, in StreamInput, result StreamResult) {
	if s.memory != nil && in.Session.SessionID != "" && result.UserText != "" {
		turns, err := s.memory.GetSessionTurnCount(ctx, in.Session.SessionID)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read session turn count")
			turns = 0
		}
		if err := s.memory.SaveTurn(ctx, in.Session.SessionID, result.UserText, result.Text, turns+1); err != nil {
			s.logger.WithError(err).Warn("Failed to persist session turn")
		}
	}

	s.tracer.EndTrace(result.TraceID, map[string]any{
		"responseLength":   len(result.Text),
		"promptTokens":     result.Usage.PromptTokens,
		"completionTokens": result.Usage.CompletionTokens,
		"success":          !result.Degraded,
	})
}

// buildPromptMessages assembles the message list for the agent call:
// optional contact-hint system message, persisted history, then the
// normalized request messages.
func (s *ChatService) buildPromptMessages(ctx context.Context, sessionID, userText string, messages []domain.ChatMessage) []domain.ChatMessage {
	var prompt []domain.ChatMessage

	if hint := ExtractContactHint(userText); !hint.IsZero() {
		if blob, err := json.Marshal(hint); err == nil {
			prompt = append(prompt, domain.ChatMessage{
				Role:    domain.RoleSystem,
				Content: "抽出された連絡先情報: " + string(blob),
			})
		}
	}

	if s.memory != nil && sessionID != "" {
		turns, err := s.memory.GetRecentTurns(ctx, sessionID, s.maxHistoryTurns)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to load session history")
		} else {
			for _, t := range turns {
				prompt = append(prompt, turnToPromptMessages(t)...)
			}
		}
	}

	return append(prompt, messages...)
}

func (s *ChatService) invoke(ctx context.Context, ag *agent.Agent, prompt []domain.ChatMessage) (string, bool) {
	stream, err := ag.Stream(ctx, prompt)
	if err != nil {
		s.logger.WithError(err).WithField("agent_id", ag.ID).Warn("Agent invocation failed")
		return "", true
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.WithError(err).Debug("Failed to close token stream")
		}
	}()
	return CollectResponse(stream), false
}

func (s *ChatService) dispatchBlocks(ctx context.Context, traceID, sessionID string, blocks []HiddenBlock) {
	for _, block := range blocks {
		tool := "record_" + strings.ToLower(block.Kind)
		meta := map[string]any{"sessionId": sessionID}
		if s.dispatcher == nil {
			s.tracer.LogToolExecution(traceID, tool, block.Payload, "dispatcher disabled", meta)
			continue
		}
		out, err := s.dispatcher.Dispatch(ctx, block.Kind, block.Payload)
		if err != nil {
			s.logger.WithError(err).WithField("tool", tool).Warn("Automation dispatch failed")
			s.tracer.LogToolExecution(traceID, tool, block.Payload, "error: "+err.Error(), meta)
			continue
		}
		s.tracer.LogToolExecution(traceID, tool, block.Payload, out, meta)
	}
}

func turnToPromptMessages(t domain.Turn) []domain.ChatMessage {
	if t.Status != statusComplete {
		return nil
	}
	question := strings.TrimSpace(t.UserText)
	answer := strings.TrimSpace(t.AssistantText)
	if question == "" || answer == "" {
		return nil
	}
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: question},
		{Role: domain.RoleAssistant, Content: answer},
	}
}

func latestUserText(messages []domain.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func promptRunes(messages []domain.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += utf8.RuneCountInString(m.Content)
	}
	return total
}
