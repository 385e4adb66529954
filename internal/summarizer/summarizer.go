package summarizer

import (
	"context"
)

// FallbackSummary is returned on an empty completion instead of an error,
// keeping the pipeline moving. Callers must treat it as a soft failure, not
// text to publish uncritically.
const FallbackSummary = "요약을 생성할 수 없습니다."

// Summarizer produces a prose summary for a rendered prompt.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}
