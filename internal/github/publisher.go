package github

import (
	"context"

	"studylog/internal/domain"
)

// Publisher drives the fork, branch, commit, pull request sequence for one
// summary document and returns the pull request's web URL.
type Publisher interface {
	Publish(
		ctx context.Context,
		post *domain.ParsedPost,
		study *domain.Study,
		member *domain.Member,
		document string,
	) (string, error)
}
