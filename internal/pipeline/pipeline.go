package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"studylog/internal/database"
	"studylog/internal/domain"
	"studylog/internal/feed"
	"studylog/internal/github"
	"studylog/internal/summarizer"
	"studylog/internal/templates"
)

// Service coordinates one blog post's journey from feed entry to opened pull
// request: parse, dedup, persist, summarize, publish, each step reconciled
// with the persisted run state.
type Service struct {
	db         *database.Database
	parser     *feed.Parser
	summarizer summarizer.Summarizer
	publisher  github.Publisher

	summaryPrompt *templates.SummaryPrompt
	prTemplate    *templates.PRTemplate

	log *slog.Logger
}

func NewService(
	db *database.Database,
	parser *feed.Parser,
	s summarizer.Summarizer,
	publisher github.Publisher,
	log *slog.Logger,
) (*Service, error) {
	summaryPrompt, err := templates.LoadSummaryPrompt()
	if err != nil {
		return nil, fmt.Errorf("load summary prompt template: %w", err)
	}

	prTemplate, err := templates.LoadPRTemplate()
	if err != nil {
		return nil, fmt.Errorf("load PR template: %w", err)
	}

	return &Service{
		db:            db,
		parser:        parser,
		summarizer:    s,
		publisher:     publisher,
		summaryPrompt: summaryPrompt,
		prTemplate:    prTemplate,
		log:           log,
	}, nil
}

// ProcessNewPost fetches the member's latest post and runs the pipeline on it.
func (s *Service) ProcessNewPost(
	ctx context.Context,
	member *domain.Member,
	study *domain.Study,
) (*domain.BlogPost, error) {
	blogURL := feed.NormalizeBlogURL(member.BlogURL)
	if blogURL == "" {
		return nil, errNoRegisteredBlog
	}

	post, err := s.parser.FetchLatest(ctx, blogURL)
	if err != nil {
		return nil, err
	}

	return s.ProcessParsedPost(ctx, post, member, study)
}

// ProcessParsedPost runs the pipeline for an already-fetched post. The blog
// post row is durable as soon as step 3 completes; a failure in a later step
// leaves the summary and pull request rows incomplete but never loses the
// source content.
func (s *Service) ProcessParsedPost(
	ctx context.Context,
	post *domain.ParsedPost,
	member *domain.Member,
	study *domain.Study,
) (*domain.BlogPost, error) {
	existing, err := s.db.GetBlogPostByGUID(ctx, post.GUID)
	if err != nil {
		return nil, fmt.Errorf("look up post by guid: %w", err)
	}
	if existing != nil {
		return nil, &domain.DuplicatePostError{GUID: post.GUID}
	}

	blogPost := &domain.BlogPost{
		MemberID:    member.ID,
		Title:       post.Title,
		URL:         post.URL,
		Content:     post.Content,
		PublishedAt: post.PublishedAt,
		GUID:        post.GUID,
	}

	// The unique guid constraint closes the race two concurrent runs for
	// the same entry would otherwise have on the lookup above.
	if err = s.db.InsertBlogPost(ctx, blogPost); err != nil {
		return nil, err
	}

	run := &domain.PipelineRun{
		BlogPostID: blogPost.ID,
		StudyID:    study.ID,
		Status:     domain.RunParsed,
	}
	if err = s.db.InsertPipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("insert pipeline run: %w", err)
	}

	if err = s.persistStep(ctx, run, blogPost, study); err != nil {
		return nil, err
	}

	summary, err := s.summarizeStep(ctx, run, blogPost)
	if err != nil {
		return nil, err
	}

	if err = s.publishStep(ctx, run, blogPost, member, study, summary); err != nil {
		return nil, err
	}

	return blogPost, nil
}

// Resume re-drives an incomplete run from its recorded state, reusing the
// stored blog post. The dedup check does not apply; the post is already ours.
func (s *Service) Resume(ctx context.Context, runID int64) (*domain.BlogPost, error) {
	run, err := s.db.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("look up pipeline run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("pipeline run %d is not found", runID)
	}

	blogPost, err := s.db.GetBlogPost(ctx, run.BlogPostID)
	if err != nil {
		return nil, fmt.Errorf("look up blog post: %w", err)
	}
	if blogPost == nil {
		return nil, fmt.Errorf("blog post %d is not found", run.BlogPostID)
	}

	if run.Status == domain.RunPublished {
		return blogPost, nil
	}

	member, err := s.db.GetMember(ctx, blogPost.MemberID)
	if err != nil {
		return nil, fmt.Errorf("look up member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("member %d is not found", blogPost.MemberID)
	}

	study, err := s.db.GetStudy(ctx, run.StudyID)
	if err != nil {
		return nil, fmt.Errorf("look up study: %w", err)
	}
	if study == nil {
		return nil, fmt.Errorf("study %d is not found", run.StudyID)
	}

	// A run stranded before its child rows landed still resumes; the
	// placeholder inserts are idempotent.
	if err = s.persistStep(ctx, run, blogPost, study); err != nil {
		return nil, err
	}

	summaryRow, err := s.db.GetPostSummary(ctx, blogPost.ID)
	if err != nil {
		return nil, fmt.Errorf("look up post summary: %w", err)
	}

	var summary string
	if summaryRow != nil && summaryRow.IsSummarized {
		summary = summaryRow.Summary
	} else {
		summary, err = s.summarizeStep(ctx, run, blogPost)
		if err != nil {
			return nil, err
		}
	}

	prRow, err := s.db.GetPullRequest(ctx, blogPost.ID, study.ID)
	if err != nil {
		return nil, fmt.Errorf("look up pull request: %w", err)
	}
	if prRow != nil && prRow.IsOpened {
		if err = s.db.UpdateRunStatus(ctx, run.ID, domain.RunPublished); err != nil {
			return nil, fmt.Errorf("update run status: %w", err)
		}

		return blogPost, nil
	}

	if err = s.publishStep(ctx, run, blogPost, member, study, summary); err != nil {
		return nil, err
	}

	return blogPost, nil
}

func (s *Service) persistStep(
	ctx context.Context,
	run *domain.PipelineRun,
	blogPost *domain.BlogPost,
	study *domain.Study,
) error {
	if err := s.db.InsertPostSummary(ctx, blogPost.ID); err != nil {
		s.failRun(ctx, run, err)
		return fmt.Errorf("insert summary placeholder: %w", err)
	}

	if err := s.db.InsertPullRequest(ctx, blogPost.ID, study.ID); err != nil {
		s.failRun(ctx, run, err)
		return fmt.Errorf("insert pull request placeholder: %w", err)
	}

	// A run that already progressed past this step keeps its status.
	if run.Status != domain.RunParsed {
		return nil
	}

	if err := s.db.UpdateRunStatus(ctx, run.ID, domain.RunPersisted); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	run.Status = domain.RunPersisted

	return nil
}

func (s *Service) summarizeStep(
	ctx context.Context,
	run *domain.PipelineRun,
	blogPost *domain.BlogPost,
) (string, error) {
	prompt := templates.Render(s.summaryPrompt.Template, map[string]string{
		"title":   blogPost.Title,
		"content": feed.PlainText(blogPost.Content),
	})

	summary := summarizer.FallbackSummary
	if s.summarizer != nil {
		var err error
		summary, err = s.summarizer.Summarize(ctx, prompt)
		if err != nil {
			s.failRun(ctx, run, err)
			return "", err
		}
	}

	if err := s.db.MarkSummarized(ctx, blogPost.ID, summary); err != nil {
		s.failRun(ctx, run, err)
		return "", fmt.Errorf("mark post summarized: %w", err)
	}

	if err := s.db.UpdateRunStatus(ctx, run.ID, domain.RunSummarized); err != nil {
		return "", fmt.Errorf("update run status: %w", err)
	}
	run.Status = domain.RunSummarized

	return summary, nil
}

func (s *Service) publishStep(
	ctx context.Context,
	run *domain.PipelineRun,
	blogPost *domain.BlogPost,
	member *domain.Member,
	study *domain.Study,
	summary string,
) error {
	document := templates.RenderSections(s.prTemplate.Body, map[string]string{
		"member_name":  member.Name,
		"post_title":   blogPost.Title,
		"published_at": blogPost.PublishedAt.Format("2006-01-02 15:04:05"),
		"post_url":     blogPost.URL,
		"summary":      summary,
	})

	parsed := &domain.ParsedPost{
		Title:       blogPost.Title,
		URL:         blogPost.URL,
		Content:     blogPost.Content,
		PublishedAt: blogPost.PublishedAt,
		GUID:        blogPost.GUID,
	}

	prURL, err := s.publisher.Publish(ctx, parsed, study, member, document)
	if err != nil {
		s.failRun(ctx, run, err)
		return err
	}

	if err = s.db.MarkPullRequestOpened(ctx, blogPost.ID, study.ID, prURL); err != nil {
		s.failRun(ctx, run, err)
		return fmt.Errorf("mark pull request opened: %w", err)
	}

	if err = s.db.UpdateRunStatus(ctx, run.ID, domain.RunPublished); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	run.Status = domain.RunPublished

	return nil
}

func (s *Service) failRun(ctx context.Context, run *domain.PipelineRun, cause error) {
	if err := s.db.MarkRunFailed(ctx, run.ID, cause.Error()); err != nil {
		s.log.ErrorContext(ctx, "Failed to mark pipeline run failed",
			"error", err,
			"runID", run.ID,
			"cause", cause)
	}
	run.Status = domain.RunFailed
}

var errNoRegisteredBlog = errors.New("등록된 블로그가 없습니다")
