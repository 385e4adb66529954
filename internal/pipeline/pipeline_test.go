package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studylog/internal/database"
	"studylog/internal/domain"
	"studylog/internal/feed"
)

type stubSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	return s.summary, s.err
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type stubPublisher struct {
	mu           sync.Mutex
	calls        int
	prURL        string
	err          error
	lastDocument string
}

func (p *stubPublisher) Publish(
	_ context.Context,
	_ *domain.ParsedPost,
	_ *domain.Study,
	_ *domain.Member,
	document string,
) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastDocument = document

	return p.prURL, p.err
}

func (p *stubPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(
		context.Background(),
		filepath.Join(t.TempDir(), "test.sqlite"),
		slog.Default(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func seedMemberAndStudy(t *testing.T, db *database.Database, blogURL string) (*domain.Member, *domain.Study) {
	t.Helper()
	ctx := context.Background()

	member := &domain.Member{Name: "Alice", Email: "alice@example.com", BlogURL: blogURL}
	require.NoError(t, db.CreateMember(ctx, member))

	study := &domain.Study{
		Title:      "study",
		GitHubRepo: "org/repo",
		Branch:     "main",
		Directory:  "posts",
	}
	require.NoError(t, db.CreateStudy(ctx, study))
	require.NoError(t, db.AddStudyMember(ctx, study.ID, member.ID))

	return member, study
}

func parsedPostFixture() *domain.ParsedPost {
	return &domain.ParsedPost{
		Title:       "Post A",
		URL:         "https://blog.example/a",
		Content:     "body",
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		GUID:        "https://blog.example/a",
	}
}

func TestProcessParsedPostEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	summarizer := &stubSummarizer{summary: "short summary"}
	publisher := &stubPublisher{prURL: "https://github.com/org/repo/pull/42"}

	svc, err := NewService(db, feed.NewParser(slog.Default()), summarizer, publisher, slog.Default())
	require.NoError(t, err)

	post, err := svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)
	require.NoError(t, err)

	require.NotZero(t, post.ID)
	assert.Equal(t, "https://blog.example/a", post.GUID)

	stored, err := db.GetBlogPostByGUID(ctx, "https://blog.example/a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, post.ID, stored.ID)

	summary, err := db.GetPostSummary(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.IsSummarized)
	assert.Equal(t, "short summary", summary.Summary)

	pr, err := db.GetPullRequest(ctx, post.ID, study.ID)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.True(t, pr.IsOpened)
	assert.Equal(t, "https://github.com/org/repo/pull/42", pr.PRURL)

	assert.Contains(t, publisher.lastDocument, "short summary")
	assert.Contains(t, publisher.lastDocument, "Alice")
	assert.Contains(t, publisher.lastDocument, "https://blog.example/a")
	assert.NotContains(t, publisher.lastDocument, "{{")
}

func TestProcessParsedPostIsIdempotentPerGUID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	svc, err := NewService(
		db,
		feed.NewParser(slog.Default()),
		&stubSummarizer{summary: "s"},
		&stubPublisher{prURL: "https://github.com/org/repo/pull/1"},
		slog.Default(),
	)
	require.NoError(t, err)

	first, err := svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)
	require.NoError(t, err)

	_, err = svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)

	var dup *domain.DuplicatePostError
	require.ErrorAs(t, err, &dup)

	stored, err := db.GetBlogPostByGUID(ctx, first.GUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID, "exactly one row per guid")
}

func TestPublishFailureLeavesDurableIncompleteState(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	summarizer := &stubSummarizer{summary: "short summary"}
	publisher := &stubPublisher{err: errors.New("provider is down")}

	svc, err := NewService(db, feed.NewParser(slog.Default()), summarizer, publisher, slog.Default())
	require.NoError(t, err)

	_, err = svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)
	require.Error(t, err)

	stored, err := db.GetBlogPostByGUID(ctx, "https://blog.example/a")
	require.NoError(t, err)
	require.NotNil(t, stored, "blog post stays durable after a publish failure")

	summary, err := db.GetPostSummary(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.IsSummarized)

	pr, err := db.GetPullRequest(ctx, stored.ID, study.ID)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.False(t, pr.IsOpened, "pull request row stays incomplete")

	run, err := db.GetPipelineRun(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.NotEmpty(t, run.FailureReason)
}

func TestResumeRetriesOnlyTheMissingSteps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	summarizer := &stubSummarizer{summary: "short summary"}
	failing := &stubPublisher{err: errors.New("provider is down")}

	svc, err := NewService(db, feed.NewParser(slog.Default()), summarizer, failing, slog.Default())
	require.NoError(t, err)

	_, err = svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)
	require.Error(t, err)
	require.Equal(t, 1, summarizer.callCount())

	recovered := &stubPublisher{prURL: "https://github.com/org/repo/pull/7"}
	svc.publisher = recovered

	post, err := svc.Resume(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, summarizer.callCount(), "completed summary must be reused, not regenerated")
	assert.Equal(t, 1, recovered.callCount())

	pr, err := db.GetPullRequest(ctx, post.ID, study.ID)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.True(t, pr.IsOpened)
	assert.Equal(t, "https://github.com/org/repo/pull/7", pr.PRURL)

	run, err := db.GetPipelineRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RunPublished, run.Status)

	// Resuming a published run is a no-op.
	_, err = svc.Resume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered.callCount())
}

func TestResumeRegeneratesIncompleteSummary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	failing := &stubSummarizer{err: errors.New("completion endpoint is down")}
	publisher := &stubPublisher{prURL: "https://github.com/org/repo/pull/9"}

	svc, err := NewService(db, feed.NewParser(slog.Default()), failing, publisher, slog.Default())
	require.NoError(t, err)

	_, err = svc.ProcessParsedPost(ctx, parsedPostFixture(), member, study)
	require.Error(t, err)
	require.Equal(t, 0, publisher.callCount(), "publish must not run after a summarize failure")

	stored, err := db.GetBlogPostByGUID(ctx, "https://blog.example/a")
	require.NoError(t, err)
	require.NotNil(t, stored)

	summary, err := db.GetPostSummary(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	require.False(t, summary.IsSummarized, "summary row stays incomplete")

	run, err := db.GetPipelineRun(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.RunFailed, run.Status)

	recovered := &stubSummarizer{summary: "late summary"}
	svc.summarizer = recovered

	post, err := svc.Resume(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, recovered.callCount())
	assert.Equal(t, 1, publisher.callCount())

	summary, err = db.GetPostSummary(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.IsSummarized)
	assert.Equal(t, "late summary", summary.Summary)

	run, err = db.GetPipelineRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RunPublished, run.Status)
}

func TestResumeCompletesRunStrandedBeforeChildRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "https://blog.example")

	fixture := parsedPostFixture()
	blogPost := &domain.BlogPost{
		MemberID:    member.ID,
		Title:       fixture.Title,
		URL:         fixture.URL,
		Content:     fixture.Content,
		PublishedAt: fixture.PublishedAt,
		GUID:        fixture.GUID,
	}
	require.NoError(t, db.InsertBlogPost(ctx, blogPost))

	run := &domain.PipelineRun{
		BlogPostID: blogPost.ID,
		StudyID:    study.ID,
		Status:     domain.RunParsed,
	}
	require.NoError(t, db.InsertPipelineRun(ctx, run))

	summarizer := &stubSummarizer{summary: "short summary"}
	publisher := &stubPublisher{prURL: "https://github.com/org/repo/pull/3"}

	svc, err := NewService(db, feed.NewParser(slog.Default()), summarizer, publisher, slog.Default())
	require.NoError(t, err)

	post, err := svc.Resume(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, blogPost.ID, post.ID)

	summary, err := db.GetPostSummary(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.IsSummarized)

	pr, err := db.GetPullRequest(ctx, post.ID, study.ID)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.True(t, pr.IsOpened)
	assert.Equal(t, "https://github.com/org/repo/pull/3", pr.PRURL)

	got, err := db.GetPipelineRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunPublished, got.Status)
}

func TestProcessNewPostFetchesFeed(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rss", r.URL.Path)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Blog</title>
<item><title>Post A</title><link>https://blog.example/a</link>
<pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate>
<description>body</description></item>
</channel></rss>`))
	}))
	defer srv.Close()

	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, srv.URL)

	svc, err := NewService(
		db,
		feed.NewParser(slog.Default()),
		&stubSummarizer{summary: "s"},
		&stubPublisher{prURL: "https://github.com/org/repo/pull/1"},
		slog.Default(),
	)
	require.NoError(t, err)

	post, err := svc.ProcessNewPost(ctx, member, study)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example/a", post.GUID)
}

func TestProcessNewPostWithoutRegisteredBlog(t *testing.T) {
	db := newTestDB(t)
	member, study := seedMemberAndStudy(t, db, "")

	svc, err := NewService(
		db,
		feed.NewParser(slog.Default()),
		&stubSummarizer{summary: "s"},
		&stubPublisher{},
		slog.Default(),
	)
	require.NoError(t, err)

	_, err = svc.ProcessNewPost(context.Background(), member, study)
	require.ErrorIs(t, err, errNoRegisteredBlog)
}
