package usecase

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	chunks   []string
	pos      int
	recvErr  error
	fallback string
	closed   bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.recvErr != nil {
		return "", s.recvErr
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) FallbackText() string { return s.fallback }

func TestCollectResponse_DrainsAllChunks(t *testing.T) {
	s := &fakeStream{chunks: []string{"こんに", "ちは"}}
	require.Equal(t, "こんにちは", CollectResponse(s))
}

func TestCollectResponse_MidStreamErrorUsesFallbackText(t *testing.T) {
	s := &fakeStream{chunks: []string{"partial"}, recvErr: errors.New("boom"), fallback: "complete text"}
	require.Equal(t, "complete text", CollectResponse(s))
}

func TestCollectResponse_MidStreamErrorWithoutFallbackDiscardsPartial(t *testing.T) {
	s := &fakeStream{chunks: []string{"partial"}, recvErr: errors.New("boom")}
	require.Equal(t, "", CollectResponse(s))
}

func TestStripHiddenBlocks_RemovesPairedMarkers(t *testing.T) {
	text, blocks := StripHiddenBlocks(`Hello CUSTOMER_DATA_START{"id":1}CUSTOMER_DATA_END world`)
	require.Equal(t, "Hello world", text)
	require.Len(t, blocks, 1)
	require.Equal(t, "CUSTOMER", blocks[0].Kind)
	require.Equal(t, `{"id":1}`, blocks[0].Payload)
}

func TestStripHiddenBlocks_AllKindsAcrossNewlines(t *testing.T) {
	in := strings.Join([]string{
		"了解しました。",
		`PRODUCT_DATA_START{"model":`,
		`"RX-100"}PRODUCT_DATA_END`,
		`ISSUE_DATA_START{"symptom":"異音"}ISSUE_DATA_END`,
		`REPAIR_DATA_START{"part":"fan"}REPAIR_DATA_END`,
		"手配します。",
	}, "\n")
	text, blocks := StripHiddenBlocks(in)
	require.Equal(t, "了解しました。 手配します。", text)
	require.Len(t, blocks, 3)
}

func TestStripHiddenBlocks_UnmatchedMarkerLeftLiteral(t *testing.T) {
	text, blocks := StripHiddenBlocks("before CUSTOMER_DATA_START{half after")
	require.Empty(t, blocks)
	require.Equal(t, "before CUSTOMER_DATA_START{half after", text)
}

func TestStripHiddenBlocks_CollapsesWhitespace(t *testing.T) {
	text, _ := StripHiddenBlocks("a  b\n\nc\t d")
	require.Equal(t, "a b c d", text)
}

func TestReformatMenu_SingleOptionPassesThrough(t *testing.T) {
	in := "one option only: 1. 修理を依頼する それだけです"
	require.Equal(t, in, ReformatMenu(in))
}

func TestReformatMenu_TwoOptionsSplitIntoParagraphs(t *testing.T) {
	out := ReformatMenu("どちらにしますか 1. 点検を依頼する 2. キャンセルする")
	require.Equal(t, "どちらにしますか\n\n1. 点検を依頼する\n\n2. キャンセルする", out)
}

func TestReformatMenu_CanonicalMainMenuOverride(t *testing.T) {
	in := "お問い合わせありがとうございます。 1. 修理のご依頼 2. 修理状況の確認 3. よくあるご質問 からお選びください"
	require.Equal(t, CanonicalMainMenu, ReformatMenu(in))
}

func TestReformatMenu_OverrideIgnoresSurroundingPhrasing(t *testing.T) {
	in := "ご用件はこちら: 1) まず 1. 修理のご依頼 、つぎに 2. 修理状況の確認 、さいごに 3. よくあるご質問 です!"
	require.Equal(t, CanonicalMainMenu, ReformatMenu(in))
}

func TestProcessResponse_EmptyInputYieldsFallback(t *testing.T) {
	text, blocks := ProcessResponse("")
	require.Equal(t, ResponseFallback, text)
	require.Empty(t, blocks)
}

func TestProcessResponse_OnlyHiddenBlocksYieldsFallback(t *testing.T) {
	text, blocks := ProcessResponse(`CUSTOMER_DATA_START{"id":1}CUSTOMER_DATA_END`)
	require.Equal(t, ResponseFallback, text)
	require.Len(t, blocks, 1)
}

func TestProcessResponse_FullPipeline(t *testing.T) {
	in := `承知しました。CUSTOMER_DATA_START{"name":"山田"}CUSTOMER_DATA_END  次を選んでください 1. 続ける 2. やめる`
	text, blocks := ProcessResponse(in)
	require.Equal(t, "承知しました。 次を選んでください\n\n1. 続ける\n\n2. やめる", text)
	require.Len(t, blocks, 1)
}
