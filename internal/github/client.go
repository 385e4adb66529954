package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v69/github"

	"studylog/internal/domain"
)

const (
	forkPollAttempts = 10
	forkPollInterval = time.Second

	branchPrefix = "blog-post"
)

// Filesystem-unsafe characters stripped from post titles before they become
// part of a committed file name.
var unsafeTitleChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", `"`, "", "/", "", `\`, "", "|", "", "?", "", "*", "",
)

// Client publishes summary documents through the GitHub REST API.
type Client struct {
	gh  *gogithub.Client
	log *slog.Logger

	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time
}

// New builds a Client from a bearer token. A missing token is a fatal
// configuration error for this component.
func New(token string, log *slog.Logger) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("GitHub access token is not set")
	}

	return newWithGitHub(gogithub.NewClient(nil).WithAuthToken(token), log), nil
}

func newWithGitHub(gh *gogithub.Client, log *slog.Logger) *Client {
	return &Client{
		gh:           gh,
		log:          log,
		pollAttempts: forkPollAttempts,
		pollInterval: forkPollInterval,
		now:          time.Now,
	}
}

// Publish forks the study repository, creates a branch, commits the document,
// opens a pull request, and best-effort requests the member as reviewer. No
// compensating rollback happens on a later-step failure; a fork or branch
// created before the failure stays in place.
func (c *Client) Publish(
	ctx context.Context,
	post *domain.ParsedPost,
	study *domain.Study,
	member *domain.Member,
	document string,
) (string, error) {
	owner, repo, err := splitRepo(study.GitHubRepo)
	if err != nil {
		return "", &domain.PublishError{
			Message: fmt.Sprintf("잘못된 GitHub 레포지토리 형식입니다: %s", study.GitHubRepo),
			Err:     err,
		}
	}

	fork, err := c.createFork(ctx, owner, repo)
	if err != nil {
		return "", c.wrapProviderError("레포지토리 fork에 실패했습니다", study.GitHubRepo, err)
	}

	forkOwner := fork.GetOwner().GetLogin()
	forkRepo := fork.GetName()

	if err = c.awaitForkReady(ctx, forkOwner, forkRepo, study.GitHubRepo); err != nil {
		return "", err
	}

	forkInfo, _, err := c.gh.Repositories.Get(ctx, forkOwner, forkRepo)
	if err != nil {
		return "", c.wrapProviderError("fork 레포지토리 조회에 실패했습니다", study.GitHubRepo, err)
	}
	defaultBranch := forkInfo.GetDefaultBranch()

	ref, _, err := c.gh.Git.GetRef(ctx, forkOwner, forkRepo, "heads/"+defaultBranch)
	if err != nil {
		return "", c.wrapProviderError("기준 브랜치 조회에 실패했습니다", study.GitHubRepo, err)
	}
	headSHA := ref.GetObject().GetSHA()

	branchName := fmt.Sprintf("%s/%s/%d", branchPrefix, member.Name, c.now().UnixMilli())

	_, _, err = c.gh.Git.CreateRef(ctx, forkOwner, forkRepo, &gogithub.Reference{
		Ref:    gogithub.Ptr("refs/heads/" + branchName),
		Object: &gogithub.GitObject{SHA: gogithub.Ptr(headSHA)},
	})
	if err != nil {
		return "", c.wrapProviderError("브랜치 생성에 실패했습니다", study.GitHubRepo, err)
	}

	filePath := DocumentPath(study.Directory, member.Name, post.Title, post.PublishedAt)

	// No prior SHA is supplied: the document is committed as a brand-new
	// file, and this step fails if one of that exact name already exists.
	_, _, err = c.gh.Repositories.CreateFile(ctx, forkOwner, forkRepo, filePath,
		&gogithub.RepositoryContentFileOptions{
			Message: gogithub.Ptr("Add blog post: " + post.Title),
			Content: []byte(document),
			Branch:  gogithub.Ptr(branchName),
		})
	if err != nil {
		return "", c.wrapProviderError("요약 문서 커밋에 실패했습니다", study.GitHubRepo, err)
	}

	base := strings.TrimSpace(study.Branch)
	if base == "" {
		base = defaultBranch
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(post.Title),
		Head:  gogithub.Ptr(forkOwner + ":" + branchName),
		Base:  gogithub.Ptr(base),
		Body:  gogithub.Ptr(document),
	})
	if err != nil {
		return "", c.wrapProviderError("PR 생성에 실패했습니다", study.GitHubRepo, err)
	}

	// Review assignment is a convenience, not a correctness requirement;
	// a failure here is logged and swallowed.
	_, _, err = c.gh.PullRequests.RequestReviewers(ctx, owner, repo, pr.GetNumber(),
		gogithub.ReviewersRequest{Reviewers: []string{member.Name}})
	if err != nil {
		c.log.WarnContext(ctx, "Failed to request reviewer",
			"error", err,
			"repo", study.GitHubRepo,
			"prNumber", pr.GetNumber(),
			"reviewer", member.Name)
	}

	return pr.GetHTMLURL(), nil
}

func (c *Client) createFork(
	ctx context.Context,
	owner string,
	repo string,
) (*gogithub.Repository, error) {
	fork, _, err := c.gh.Repositories.CreateFork(ctx, owner, repo, nil)

	// A 202 means the fork is being computed in the background; the
	// repository value is still returned. An existing fork comes back
	// as-is, which makes this step idempotent.
	var accepted *gogithub.AcceptedError
	if err != nil && !errors.As(err, &accepted) {
		return nil, err
	}
	if fork == nil {
		return nil, errors.New("fork response is empty")
	}

	return fork, nil
}

func (c *Client) awaitForkReady(
	ctx context.Context,
	forkOwner string,
	forkRepo string,
	sourceRepo string,
) error {
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		_, _, err := c.gh.Repositories.Get(ctx, forkOwner, forkRepo)
		if err == nil {
			return nil
		}

		if attempt == c.pollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return &domain.PublishTimeoutError{Repo: sourceRepo, Attempts: c.pollAttempts}
}

func (c *Client) wrapProviderError(message string, repo string, err error) error {
	providerErr := toProviderError(err)

	var msg string
	switch providerErr.Kind {
	case domain.ProviderUnauthorized:
		msg = "GitHub 인증에 실패했습니다. GITHUB_ACCESS_TOKEN이 올바르게 설정되어 있는지 확인해주세요."
	case domain.ProviderNotFound:
		msg = fmt.Sprintf("GitHub 레포지토리를 찾을 수 없습니다: %s", repo)
	case domain.ProviderRateLimited:
		msg = "GitHub API 호출 한도를 초과했습니다. 잠시 후 다시 시도해주세요."
	default:
		msg = message
	}

	return &domain.PublishError{Message: msg, Err: providerErr}
}

// toProviderError converts a go-github failure into the typed taxonomy,
// discriminating on the response status instead of probing error structure.
func toProviderError(err error) *domain.ProviderError {
	var rateLimitErr *gogithub.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &domain.ProviderError{
			Kind:    domain.ProviderRateLimited,
			Message: rateLimitErr.Message,
		}
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &domain.ProviderError{
			Kind:    domain.ProviderRateLimited,
			Message: abuseErr.Message,
		}
	}

	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		kind := domain.ProviderValidation
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = domain.ProviderUnauthorized
		case http.StatusNotFound:
			kind = domain.ProviderNotFound
		case http.StatusUnprocessableEntity:
			kind = domain.ProviderValidation
		}

		return &domain.ProviderError{Kind: kind, Message: respErr.Message}
	}

	return &domain.ProviderError{
		Kind:    domain.ProviderValidation,
		Message: err.Error(),
	}
}

func splitRepo(repo string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", repo)
	}

	return parts[0], parts[1], nil
}

// DocumentPath builds the committed file's path from the study directory,
// member name, sanitized post title, and publish date.
func DocumentPath(directory string, memberName string, title string, publishedAt time.Time) string {
	fileName := fmt.Sprintf("[요약] %s - %s (%s).md",
		memberName,
		unsafeTitleChars.Replace(title),
		publishedAt.Format("2006-01-02"),
	)

	return path.Join(directory, fileName)
}
