package llm

import "context"

// geminiProvider talks to Google's OpenAI-compatible Gemini endpoint
// directly, bypassing OpenRouter. Gemini uses a different path prefix than
// standard OpenAI providers (no /v1), so model ids are bare ("gemini-2.5-pro")
// rather than vendor-prefixed.
type geminiProvider struct {
	base openAICompatClient
}

// NewGemini creates a provider for Google Gemini.
func NewGemini(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	return &geminiProvider{base: newOpenAICompatClientPrefix(cfg, "")}
}

func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *geminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
