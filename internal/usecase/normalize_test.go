package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"repair-agent/internal/domain"
)

func msg(role, rawContent string) domain.IncomingMessage {
	return domain.IncomingMessage{Role: role, Content: json.RawMessage(rawContent)}
}

func TestNormalizeMessages_EmptyList(t *testing.T) {
	require.Empty(t, NormalizeMessages(nil))
	require.Empty(t, NormalizeMessages([]domain.IncomingMessage{}))
}

func TestNormalizeMessages_StringContentPassesThrough(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("user", `"冷蔵庫が壊れました"`)})
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "冷蔵庫が壊れました"}}, out)
}

func TestNormalizeMessages_Idempotent(t *testing.T) {
	first := NormalizeMessages([]domain.IncomingMessage{
		msg("user", `"hello"`),
		msg("assistant", `"hi"`),
	})

	raw := make([]domain.IncomingMessage, 0, len(first))
	for _, m := range first {
		content, err := json.Marshal(m.Content)
		require.NoError(t, err)
		raw = append(raw, domain.IncomingMessage{Role: m.Role, Content: content})
	}
	second := NormalizeMessages(raw)
	require.Equal(t, first, second)
}

func TestNormalizeMessages_FlattensContentBlocks(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{
		msg("user", `[{"type":"text","text":"A"},{"type":"image","url":"x"},{"type":"text","text":"B"}]`),
	})
	require.Equal(t, "A B", out[0].Content)
}

func TestNormalizeMessages_BlockListWithoutTextBecomesEmpty(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{
		msg("user", `[{"type":"image","url":"x"}]`),
	})
	require.Equal(t, "", out[0].Content)
}

func TestNormalizeMessages_ObjectContentReadsTextField(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("user", `{"text":"from text"}`)})
	require.Equal(t, "from text", out[0].Content)

	out = NormalizeMessages([]domain.IncomingMessage{msg("user", `{"content":"from content"}`)})
	require.Equal(t, "from content", out[0].Content)
}

func TestNormalizeMessages_UnknownObjectStringifies(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("user", `{"foo":1}`)})
	require.Equal(t, `{"foo":1}`, out[0].Content)
}

func TestNormalizeMessages_ScalarContent(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("user", `42`)})
	require.Equal(t, "42", out[0].Content)
}

func TestNormalizeMessages_InvalidJSONNeverFails(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("user", `{broken`)})
	require.Equal(t, `{broken`, out[0].Content)
}

func TestNormalizeMessages_NullAndMissingContent(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{
		msg("user", `null`),
		{Role: "assistant"},
	})
	require.Equal(t, "", out[0].Content)
	require.Equal(t, "", out[1].Content)
}

func TestNormalizeMessages_MissingRoleDefaultsToUser(t *testing.T) {
	out := NormalizeMessages([]domain.IncomingMessage{msg("", `"hi"`)})
	require.Equal(t, domain.RoleUser, out[0].Role)
}
