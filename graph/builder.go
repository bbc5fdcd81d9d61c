package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/brunobiangulo/papergraph/llm"
)

// estimateTokens approximates token count using a word-based heuristic.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// Extractor sends a paper to the chat model and returns the raw answer.
type Extractor struct {
	chat llm.Provider
}

// NewExtractor creates an extractor over a chat provider.
func NewExtractor(chat llm.Provider) *Extractor {
	return &Extractor{chat: chat}
}

// Extraction is the raw model answer for one paper.
type Extraction struct {
	Raw              string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Elapsed          time.Duration
}

// Extract makes exactly one chat call: the fixed system prompt plus the paper
// text as the user message. The first choice's content is returned verbatim.
func (e *Extractor) Extract(ctx context.Context, model, text string) (*Extraction, error) {
	slog.Info("graph: requesting method graph",
		"model", model,
		"chars", len(text),
		"est_tokens", estimateTokens(text))

	start := time.Now()
	resp, err := e.chat.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt},
			{Role: llm.RoleUser, Content: UserMessage(text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("method graph llm chat: %w", err)
	}

	x := &Extraction{
		Raw:              resp.Content,
		Model:            resp.Model,
		FinishReason:     resp.FinishReason,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
		Elapsed:          time.Since(start),
	}
	if x.Model == "" {
		x.Model = model
	}

	slog.Info("graph: model answered",
		"model", x.Model,
		"finish_reason", x.FinishReason,
		"total_tokens", x.TotalTokens,
		"elapsed", x.Elapsed.Round(time.Millisecond))

	return x, nil
}
