package config

// Config is the full service configuration, read once at startup.
type Config struct {
	Port           string
	AllowedOrigins []string

	BedrockModelID string
	MaxTokens      int

	SessionTable    string
	MaxHistoryTurns int

	LangfuseHost        string
	LangfusePublicKey   string
	LangfuseSecretKey   string
	LangfuseSecretParam string
	PromptLabel         string

	ZapierMCPURL string
	ZapierAPIKey string
}

// FromEnv builds the configuration from environment variables. Optional
// integrations (session table, Langfuse, Zapier) stay disabled when their
// variables are unset.
func FromEnv() Config {
	return Config{
		Port: GetEnv("PORT", "8080"),
		AllowedOrigins: GetEnvList("ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"https://*.repair-support.jp",
		}),
		BedrockModelID:      GetEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		MaxTokens:           GetEnvInt("BEDROCK_MAX_TOKENS", 1024),
		SessionTable:        GetEnv("SESSION_TABLE", ""),
		MaxHistoryTurns:     GetEnvInt("MAX_HISTORY_TURNS", 10),
		LangfuseHost:        GetEnv("LANGFUSE_HOST", ""),
		LangfusePublicKey:   GetEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:   GetEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseSecretParam: GetEnv("LANGFUSE_SECRET_PARAM", ""),
		PromptLabel:         GetEnv("PROMPT_LABEL", "production"),
		ZapierMCPURL:        GetEnv("ZAPIER_MCP_URL", ""),
		ZapierAPIKey:        GetEnv("ZAPIER_MCP_API_KEY", ""),
	}
}
