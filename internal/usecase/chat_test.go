package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"repair-agent/internal/agent"
	"repair-agent/internal/domain"
)

type fakeProvider struct {
	stream    *fakeStream
	streamErr error

	gotSystem   string
	gotMessages []domain.ChatMessage
}

func (p *fakeProvider) Stream(_ context.Context, _ string, system string, messages []domain.ChatMessage) (agent.TokenStream, error) {
	p.gotSystem = system
	p.gotMessages = messages
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	return p.stream, nil
}

type fakeTracer struct {
	mu       sync.Mutex
	started  []string
	ended    []string
	tools    []string
	startMD  map[string]any
	endMD    map[string]any
	toolOuts []any
}

func (f *fakeTracer) StartTrace(name string, md map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	f.startMD = md
	return "trace-1"
}

func (f *fakeTracer) EndTrace(traceID string, md map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, traceID)
	f.endMD = md
}

func (f *fakeTracer) LogToolExecution(_, tool string, _, output any, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, tool)
	f.toolOuts = append(f.toolOuts, output)
}

func (f *fakeTracer) toolCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tools...)
}

type fakeMemory struct {
	turns     []domain.Turn
	turnCount int
	readErr   error

	savedSession string
	savedUser    string
	savedAnswer  string
	savedTurns   int
	saveErr      error
}

func (f *fakeMemory) GetRecentTurns(_ context.Context, _ string, _ int) ([]domain.Turn, error) {
	return f.turns, f.readErr
}

func (f *fakeMemory) GetSessionTurnCount(_ context.Context, _ string) (int, error) {
	return f.turnCount, f.readErr
}

func (f *fakeMemory) SaveTurn(_ context.Context, sessionID, userText, assistantText string, turns int) error {
	f.savedSession = sessionID
	f.savedUser = userText
	f.savedAnswer = assistantText
	f.savedTurns = turns
	return f.saveErr
}

type fakeDispatcher struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, kind, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return "ok", f.err
}

func (f *fakeDispatcher) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kinds...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, provider agent.Provider, tracer Tracer, opts ...Option) (*ChatService, *agent.Agent) {
	t.Helper()
	ag, err := agent.New("supportAgent", "サポート", "model-1", "instructions", provider)
	require.NoError(t, err)
	svc, err := NewChatService(agent.NewRegistry(ag), tracer, quietLogger(), opts...)
	require.NoError(t, err)
	return svc, ag
}

func userInput(text string) StreamInput {
	return StreamInput{
		Messages: []domain.IncomingMessage{
			{Role: "user", Content: json.RawMessage(`"` + text + `"`)},
		},
		Session: domain.StreamSession{SessionID: "session_1_abc", StartedAt: time.Now()},
	}
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, &fakeTracer{}, quietLogger())
	require.Error(t, err)
	_, err = NewChatService(agent.NewRegistry(), nil, quietLogger())
	require.Error(t, err)
	_, err = NewChatService(agent.NewRegistry(), &fakeTracer{}, nil)
	require.Error(t, err)
}

func TestResolve_UnknownAgent(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{stream: &fakeStream{}}, &fakeTracer{})

	_, err := svc.Resolve("nope")
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorAgentNotFound, ucErr.Code)

	_, err = svc.Resolve("  ")
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestRun_HappyPath(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"お答え", "します"}}}
	tracer := &fakeTracer{}
	svc, ag := newTestService(t, provider, tracer)

	result := svc.Run(context.Background(), ag, userInput("修理"))

	require.Equal(t, "お答えします", result.Text)
	require.False(t, result.Degraded)
	require.Equal(t, "trace-1", result.TraceID)
	require.Equal(t, "修理", result.UserText)
	require.Equal(t, utf8.RuneCountInString("お答えします"), result.Usage.CompletionTokens)
	require.Equal(t, utf8.RuneCountInString("修理"), result.Usage.PromptTokens)
	require.Equal(t, []string{"agent-stream"}, tracer.started)
	require.True(t, provider.stream.closed)
}

func TestRun_ProviderFailureDegradesToFallback(t *testing.T) {
	provider := &fakeProvider{streamErr: errors.New("quota exceeded")}
	svc, ag := newTestService(t, provider, &fakeTracer{})

	result := svc.Run(context.Background(), ag, userInput("修理"))

	require.True(t, result.Degraded)
	require.Equal(t, ResponseFallback, result.Text)
}

func TestRun_EmptyStreamDegradesToFallback(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{}}
	svc, ag := newTestService(t, provider, &fakeTracer{})

	result := svc.Run(context.Background(), ag, userInput("修理"))

	require.False(t, result.Degraded)
	require.Equal(t, ResponseFallback, result.Text)
}

func TestRun_ContactHintPrependedAsSystemMessage(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"了解"}}}
	svc, ag := newTestService(t, provider, &fakeTracer{})

	svc.Run(context.Background(), ag, userInput("メールは taro@example.jp です"))

	require.Contains(t, provider.gotSystem, "taro@example.jp")
	require.Contains(t, provider.gotSystem, `"email"`)
}

func TestRun_HistoryPrependedFromMemory(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"はい"}}}
	memory := &fakeMemory{turns: []domain.Turn{
		{UserText: "前の質問", AssistantText: "前の回答", Status: "complete"},
		{UserText: "skipped", AssistantText: "", Status: "complete"},
		{UserText: "pending", AssistantText: "x", Status: "pending"},
	}}
	svc, ag := newTestService(t, provider, &fakeTracer{}, WithMemory(memory))

	svc.Run(context.Background(), ag, userInput("次の質問"))

	require.Equal(t, []domain.ChatMessage{
		{Role: "user", Content: "前の質問"},
		{Role: "assistant", Content: "前の回答"},
		{Role: "user", Content: "次の質問"},
	}, provider.gotMessages)
}

func TestRun_MemoryReadFailureSkipsHistory(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{"はい"}}}
	memory := &fakeMemory{readErr: errors.New("table offline")}
	svc, ag := newTestService(t, provider, &fakeTracer{}, WithMemory(memory))

	result := svc.Run(context.Background(), ag, userInput("質問"))

	require.False(t, result.Degraded)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "質問"}}, provider.gotMessages)
}

func TestRun_DispatchesHiddenBlocks(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{chunks: []string{
		`承知しました CUSTOMER_DATA_START{"name":"山田"}CUSTOMER_DATA_END`,
	}}}
	tracer := &fakeTracer{}
	dispatcher := &fakeDispatcher{}
	svc, ag := newTestService(t, provider, tracer, WithDispatcher(dispatcher))

	result := svc.Run(context.Background(), ag, userInput("登録お願いします"))
	require.Equal(t, "承知しました", result.Text)

	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) == 1 && len(tracer.toolCalls()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"CUSTOMER"}, dispatcher.dispatched())
	require.Equal(t, []string{"record_customer"}, tracer.toolCalls())
}

func TestFinalize_SavesTurnAndEndsTrace(t *testing.T) {
	tracer := &fakeTracer{}
	memory := &fakeMemory{turnCount: 2}
	svc, _ := newTestService(t, &fakeProvider{stream: &fakeStream{}}, tracer, WithMemory(memory))

	in := userInput("質問")
	svc.Finalize(context.Background(), in, StreamResult{
		Text:     "回答",
		TraceID:  "trace-1",
		UserText: "質問",
		Usage:    domain.Usage{PromptTokens: 2, CompletionTokens: 2},
	})

	require.Equal(t, "session_1_abc", memory.savedSession)
	require.Equal(t, "質問", memory.savedUser)
	require.Equal(t, "回答", memory.savedAnswer)
	require.Equal(t, 3, memory.savedTurns)
	require.Equal(t, []string{"trace-1"}, tracer.ended)
	require.Equal(t, true, tracer.endMD["success"])
}

func TestFinalize_SaveFailureIsSwallowed(t *testing.T) {
	tracer := &fakeTracer{}
	memory := &fakeMemory{saveErr: errors.New("write throttled")}
	svc, _ := newTestService(t, &fakeProvider{stream: &fakeStream{}}, tracer, WithMemory(memory))

	in := userInput("質問")
	svc.Finalize(context.Background(), in, StreamResult{Text: "回答", UserText: "質問", TraceID: "trace-1"})

	require.Equal(t, []string{"trace-1"}, tracer.ended)
}
