package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/sashabaranov/go-openai"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIAnalyzer calls an OpenAI-compatible chat completions endpoint with a
// JSON-schema response format.
type OpenAIAnalyzer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIAnalyzer(cfg Config) *OpenAIAnalyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	return &OpenAIAnalyzer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, transcript string) (*analysis.Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	schema := resultSchema()
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(transcript)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "sales_call_analysis",
				Schema: &schema,
			},
		},
	}

	slog.Info("requesting transcript analysis", "model", a.model, "transcript_chars", len(transcript))
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", analysis.ErrMalformedResponse)
	}

	res, err := analysis.ParseResult([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	slog.Info("transcript analysis received", "turns", len(res.DiarizedTranscript), "points", len(res.SentimentAnalysis))
	return res, nil
}
