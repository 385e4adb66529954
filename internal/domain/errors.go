package domain

import (
	"errors"
	"fmt"
)

// FeedError reports an unreachable, unparseable, or empty feed.
type FeedError struct {
	FeedURL string
	Err     error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %q: %v", e.FeedURL, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// DuplicatePostError reports a guid that was already ingested.
// Batch callers treat it as a benign "nothing to do" outcome.
type DuplicatePostError struct {
	GUID string
}

func (e *DuplicatePostError) Error() string {
	return fmt.Sprintf("post %q is already processed", e.GUID)
}

// SummarizationError reports a transport failure to the completion endpoint.
// An empty completion is not an error; the summarizer returns a sentinel text.
type SummarizationError struct {
	Err error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// PublishTimeoutError reports a fork that never became ready within the
// polling budget.
type PublishTimeoutError struct {
	Repo     string
	Attempts int
}

func (e *PublishTimeoutError) Error() string {
	return fmt.Sprintf("fork of %q is not ready after %d attempts", e.Repo, e.Attempts)
}

// ProviderErrorKind discriminates version-control provider failures.
type ProviderErrorKind string

const (
	ProviderUnauthorized ProviderErrorKind = "unauthorized"
	ProviderNotFound     ProviderErrorKind = "not_found"
	ProviderValidation   ProviderErrorKind = "validation"
	ProviderRateLimited  ProviderErrorKind = "rate_limited"
)

// ProviderError is a typed provider failure. Callers discriminate with
// errors.As, never by probing for a status field.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

// PublishError wraps a failure of the fork/branch/commit/PR sequence with a
// human-readable message for surfacing upstream.
type PublishError struct {
	Message string
	Err     error
}

func (e *PublishError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsDuplicatePost reports whether err is a benign already-processed outcome.
func IsDuplicatePost(err error) bool {
	var dup *DuplicatePostError
	return errors.As(err, &dup)
}
