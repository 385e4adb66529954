package summarizer

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"studylog/internal/domain"
)

const (
	// maxPromptChars bounds cost and latency, not correctness.
	maxPromptChars  = 4000
	ellipsis        = "..."
	maxOutputTokens = 1000
	temperature     = 0.7

	systemPrompt = "당신은 블로그 포스트를 명확하고 간결하게 요약하는 전문가입니다."
)

// OpenAISummarizer calls OpenAI's Chat Completions API to produce summaries.
type OpenAISummarizer struct {
	client openai.Client
}

// NewOpenAISummarizer builds a new summarizer instance. Extra options are
// applied after the API key, so tests can point the client elsewhere.
func NewOpenAISummarizer(apiKey string, opts ...option.RequestOption) (*OpenAISummarizer, error) {
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &OpenAISummarizer{
		client: openai.NewClient(options...),
	}, nil
}

// Summarize sends the prompt, truncated to the configured bound, and returns
// the first completion choice.
func (s *OpenAISummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	truncated := truncate(prompt, maxPromptChars)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(truncated),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxOutputTokens),
	})
	if err != nil {
		return "", &domain.SummarizationError{Err: err}
	}

	if len(resp.Choices) == 0 {
		return FallbackSummary, nil
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return FallbackSummary, nil
	}

	return summary, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return string(runes[:maxChars]) + ellipsis
}
