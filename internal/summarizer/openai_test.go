package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"

	"studylog/internal/domain"
)

func TestTruncatePreservesShortInput(t *testing.T) {
	if got := truncate("short prompt", maxPromptChars); got != "short prompt" {
		t.Fatalf("unexpected truncation of short input: %q", got)
	}
}

func TestTruncateBoundsLongInput(t *testing.T) {
	long := strings.Repeat("가", maxPromptChars+100)

	got := truncate(long, maxPromptChars)

	if !strings.HasSuffix(got, ellipsis) {
		t.Fatalf("expected truncated text to end with %q", ellipsis)
	}

	if runeCount := len([]rune(got)); runeCount != maxPromptChars+len(ellipsis) {
		t.Fatalf("unexpected truncated length: %d runes", runeCount)
	}
}

type chatCompletionRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestSummarizer(t *testing.T, handler http.HandlerFunc) *OpenAISummarizer {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewOpenAISummarizer("test-key",
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return s
}

func TestSummarizeSendsTruncatedPrompt(t *testing.T) {
	var gotUserPrompt string

	s := newTestSummarizer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		for _, m := range req.Messages {
			if m.Role == "user" {
				gotUserPrompt = m.Content
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"짧은 요약"}}]}`))
	})

	long := strings.Repeat("a", maxPromptChars+500)

	summary, err := s.Summarize(context.Background(), long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary != "짧은 요약" {
		t.Fatalf("unexpected summary: %q", summary)
	}

	if !strings.HasSuffix(gotUserPrompt, ellipsis) {
		t.Fatal("expected the sent prompt to end with the ellipsis marker")
	}

	if runeCount := len([]rune(gotUserPrompt)); runeCount != maxPromptChars+len(ellipsis) {
		t.Fatalf("expected the sent prompt to be truncated, got %d runes", runeCount)
	}
}

func TestSummarizeEmptyCompletionReturnsFallback(t *testing.T) {
	s := newTestSummarizer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	})

	summary, err := s.Summarize(context.Background(), "some prompt")
	if err != nil {
		t.Fatalf("expected sentinel instead of error, got %v", err)
	}

	if summary != FallbackSummary {
		t.Fatalf("expected fallback summary, got %q", summary)
	}
}

func TestSummarizeTransportFailure(t *testing.T) {
	s := newTestSummarizer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := s.Summarize(context.Background(), "some prompt")

	var sumErr *domain.SummarizationError
	if !errors.As(err, &sumErr) {
		t.Fatalf("expected SummarizationError, got %v", err)
	}
}
