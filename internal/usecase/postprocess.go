package usecase

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"repair-agent/internal/agent"
)

// ResponseFallback is shown when post-processing ends with nothing to say.
const ResponseFallback = "申し訳ありませんが、応答を処理できませんでした。"

// Main-menu phrases. When the agent's text carries all three, the response
// is replaced with the canonical menu block so the UI always renders the
// primary menu identically, no matter how the model phrased it.
const (
	menuPhraseRepairRequest = "修理のご依頼"
	menuPhraseRepairStatus  = "修理状況の確認"
	menuPhraseFAQ           = "よくあるご質問"
)

// CanonicalMainMenu is the fixed rendering of the primary menu.
var CanonicalMainMenu = strings.Join([]string{
	"ご用件をお選びください。",
	"",
	"1. " + menuPhraseRepairRequest,
	"2. " + menuPhraseRepairStatus,
	"3. " + menuPhraseFAQ,
	"",
	"番号でお答えください。",
}, "\n")

// Hidden data block kinds the agent may embed for the orchestrator.
var hiddenBlockKinds = []string{"CUSTOMER", "PRODUCT", "ISSUE", "REPAIR"}

var hiddenBlockPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(hiddenBlockKinds))
	for _, kind := range hiddenBlockKinds {
		m[kind] = regexp.MustCompile(kind + `_DATA_START([\s\S]*?)` + kind + `_DATA_END`)
	}
	return m
}()

var menuOptionPattern = regexp.MustCompile(`\d+\.\s`)

// HiddenBlock is one structured-data payload stripped from agent output.
type HiddenBlock struct {
	Kind    string
	Payload string
}

// CollectResponse drains the token stream into a single string. A mid-stream
// failure falls back to the stream's own response text when it offers one;
// otherwise the partial text is discarded and the caller's empty-response
// fallback applies. It never returns an error.
func CollectResponse(stream agent.TokenStream) string {
	if stream == nil {
		return ""
	}
	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String()
			}
			if fb, ok := stream.(agent.Fallbacker); ok {
				if text := fb.FallbackText(); text != "" {
					return text
				}
			}
			return ""
		}
		b.WriteString(chunk)
	}
}

// StripHiddenBlocks removes every paired marker block from text and returns
// the stripped payloads. Unmatched or partial markers are left as literal
// text. The remaining text has whitespace runs collapsed to single spaces.
func StripHiddenBlocks(text string) (string, []HiddenBlock) {
	var blocks []HiddenBlock
	for _, kind := range hiddenBlockKinds {
		re := hiddenBlockPatterns[kind]
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			blocks = append(blocks, HiddenBlock{
				Kind:    kind,
				Payload: strings.TrimSpace(m[1]),
			})
		}
		text = re.ReplaceAllString(text, " ")
	}
	return collapseWhitespace(text), blocks
}

// ReformatMenu restructures numbered-option lists into one paragraph per
// option. Texts with fewer than two options pass through unmodified; texts
// carrying all three main-menu phrases collapse to the canonical menu.
func ReformatMenu(text string) string {
	locs := menuOptionPattern.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return text
	}
	if strings.Contains(text, menuPhraseRepairRequest) &&
		strings.Contains(text, menuPhraseRepairStatus) &&
		strings.Contains(text, menuPhraseFAQ) {
		return CanonicalMainMenu
	}

	var parts []string
	if lead := strings.TrimSpace(text[:locs[0][0]]); lead != "" {
		parts = append(parts, lead)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if option := collapseWhitespace(text[loc[0]:end]); option != "" {
			parts = append(parts, option)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ProcessResponse runs the full post-processing pipeline over accumulated
// agent output. It always returns a non-empty user-facing string.
func ProcessResponse(text string) (string, []HiddenBlock) {
	text, blocks := StripHiddenBlocks(text)
	text = ReformatMenu(text)
	if strings.TrimSpace(text) == "" {
		text = ResponseFallback
	}
	return text, blocks
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
