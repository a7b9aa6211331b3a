package main

import (
	"context"
	"strings"

	"repair-agent/internal/agent"
	"repair-agent/internal/config"
	"repair-agent/internal/logging"
)

// promptSource resolves agent instruction text by name and label. Consumed
// only here, at construction time, never in the request path.
type promptSource interface {
	GetPrompt(ctx context.Context, name, label string) (string, error)
}

type agentSpec struct {
	id                  string
	name                string
	promptName          string
	defaultInstructions string
}

var agentSpecs = []agentSpec{
	{
		id:                  "supportAgent",
		name:                "修理サポート",
		promptName:          "support-agent-system",
		defaultInstructions: defaultSupportInstructions,
	},
	{
		id:                  "faqAgent",
		name:                "よくあるご質問",
		promptName:          "faq-agent-system",
		defaultInstructions: defaultFAQInstructions,
	},
}

// buildAgents constructs every configured agent, preferring managed prompt
// text and falling back to the compiled-in instructions so startup never
// depends on the prompt SaaS being reachable.
func buildAgents(ctx context.Context, prompts promptSource, provider agent.Provider, cfg config.Config, logger logging.Logger) []*agent.Agent {
	agents := make([]*agent.Agent, 0, len(agentSpecs))
	for _, spec := range agentSpecs {
		instructions := spec.defaultInstructions
		if text, err := prompts.GetPrompt(ctx, spec.promptName, cfg.PromptLabel); err != nil {
			logger.WithError(err).WithField("prompt", spec.promptName).Warn("Using default instructions")
		} else {
			instructions = text
		}

		a, err := agent.New(spec.id, spec.name, cfg.BedrockModelID, instructions, provider)
		if err != nil {
			logger.WithError(err).WithField("agent_id", spec.id).Error("Failed to build agent, skipping")
			continue
		}
		agents = append(agents, a)
	}
	return agents
}

var defaultSupportInstructions = strings.Join([]string{
	"あなたは家電修理店のカスタマーサポート担当です。丁寧な日本語で応対してください。",
	"",
	"最初の案内では必ず次の3つの選択肢を番号付きで提示してください:",
	"1. 修理のご依頼",
	"2. 修理状況の確認",
	"3. よくあるご質問",
	"",
	"お客様情報・製品情報・症状・修理内容を聞き取れた場合は、本文とは別に",
	"CUSTOMER_DATA_START{...}CUSTOMER_DATA_END、PRODUCT_DATA_START{...}PRODUCT_DATA_END、",
	"ISSUE_DATA_START{...}ISSUE_DATA_END、REPAIR_DATA_START{...}REPAIR_DATA_END",
	"の形式でJSONを埋め込んでください。これらはお客様には表示されません。",
}, "\n")

var defaultFAQInstructions = strings.Join([]string{
	"あなたは家電修理店のFAQ担当です。よくあるご質問に簡潔な日本語で答えてください。",
	"回答できない質問には、サポート窓口への問い合わせを案内してください。",
}, "\n")
