package domain

import "time"

type Member struct {
	ID      int64
	Name    string
	Email   string
	BlogURL string
}

type Study struct {
	ID         int64
	Title      string
	GitHubRepo string
	Branch     string
	Directory  string
}

// ParsedPost is a feed entry as fetched. It is never persisted directly;
// GUID carries the entry's canonical link and is the dedup key.
type ParsedPost struct {
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
	GUID        string
}

type BlogPost struct {
	ID          int64
	MemberID    int64
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
	GUID        string
	CreatedAt   time.Time
}

// PostSummary transitions once from empty to summarized and is never reverted.
type PostSummary struct {
	BlogPostID   int64
	Summary      string
	IsSummarized bool
}

// PullRequest transitions once from pending to opened and is never reverted.
type PullRequest struct {
	BlogPostID int64
	StudyID    int64
	PRURL      string
	IsOpened   bool
}

// RunStatus is the authoritative state of one pipeline run.
type RunStatus string

const (
	RunParsed     RunStatus = "parsed"
	RunPersisted  RunStatus = "persisted"
	RunSummarized RunStatus = "summarized"
	RunPublished  RunStatus = "published"
	RunFailed     RunStatus = "failed"
)

type PipelineRun struct {
	ID            int64
	BlogPostID    int64
	StudyID       int64
	Status        RunStatus
	FailureReason string
}

// MemberResult reports one member's outcome within a batch check.
// A failure here never aborts the sibling members.
type MemberResult struct {
	MemberID int64
	Success  bool
	Post     *BlogPost
	Err      error
}
