package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"studylog/internal/domain"
)

func (d *Database) GetMember(ctx context.Context, memberID int64) (*domain.Member, error) {
	query := "select id, name, email, blog_url from members where id = ?"

	var m domain.Member
	err := d.db.QueryRowContext(ctx, query, memberID).
		Scan(&m.ID, &m.Name, &m.Email, &m.BlogURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	m.BlogURL = strings.TrimSpace(m.BlogURL)

	return &m, nil
}

func (d *Database) GetStudy(ctx context.Context, studyID int64) (*domain.Study, error) {
	query := "select id, title, github_repo, branch, directory from studies where id = ?"

	var s domain.Study
	err := d.db.QueryRowContext(ctx, query, studyID).
		Scan(&s.ID, &s.Title, &s.GitHubRepo, &s.Branch, &s.Directory)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &s, nil
}

func (d *Database) GetStudyMembers(ctx context.Context, studyID int64) ([]domain.Member, error) {
	query := `select m.id, m.name, m.email, m.blog_url
	from members as m
	join study_members as sm
	on sm.member_id = m.id
	where sm.study_id = ?`

	rows, err := d.db.QueryContext(ctx, query, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"studyID", studyID,
				"operation", "GetStudyMembers")
		}
	}()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err = rows.Scan(&m.ID, &m.Name, &m.Email, &m.BlogURL); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.BlogURL = strings.TrimSpace(m.BlogURL)

		members = append(members, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return members, nil
}

func (d *Database) GetStudies(ctx context.Context) ([]domain.Study, error) {
	query := "select id, title, github_repo, branch, directory from studies"

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "GetStudies")
		}
	}()

	var studies []domain.Study
	for rows.Next() {
		var s domain.Study
		if err = rows.Scan(&s.ID, &s.Title, &s.GitHubRepo, &s.Branch, &s.Directory); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		studies = append(studies, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return studies, nil
}

func (d *Database) GetBlogPostByGUID(ctx context.Context, guid string) (*domain.BlogPost, error) {
	query := `select id, member_id, title, url, content, published_at, guid, created_at
	from blog_posts
	where guid = ?`

	return d.scanBlogPost(d.db.QueryRowContext(ctx, query, guid))
}

func (d *Database) GetBlogPost(ctx context.Context, blogPostID int64) (*domain.BlogPost, error) {
	query := `select id, member_id, title, url, content, published_at, guid, created_at
	from blog_posts
	where id = ?`

	return d.scanBlogPost(d.db.QueryRowContext(ctx, query, blogPostID))
}

func (d *Database) scanBlogPost(row *sql.Row) (*domain.BlogPost, error) {
	var p domain.BlogPost
	err := row.Scan(
		&p.ID,
		&p.MemberID,
		&p.Title,
		&p.URL,
		&p.Content,
		&p.PublishedAt,
		&p.GUID,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &p, nil
}

// InsertBlogPost persists a new post. The unique constraint on guid is the
// dedup authority; a violation is surfaced as DuplicatePostError so that two
// concurrent runs for the same guid cannot both insert.
func (d *Database) InsertBlogPost(ctx context.Context, post *domain.BlogPost) error {
	guid := strings.TrimSpace(post.GUID)
	if guid == "" {
		return errors.New("post guid is empty")
	}

	query := `insert into blog_posts (member_id, title, url, content, published_at, guid)
	values (?, ?, ?, ?, ?, ?)`

	res, err := d.db.ExecContext(ctx, query,
		post.MemberID,
		post.Title,
		post.URL,
		post.Content,
		post.PublishedAt,
		guid,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return &domain.DuplicatePostError{GUID: guid}
		}

		return fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to fetch inserted ID: %w", err)
	}

	post.ID = id
	post.GUID = guid

	return nil
}

func (d *Database) InsertPostSummary(ctx context.Context, blogPostID int64) error {
	query := `insert or ignore into post_summaries (blog_post_id, summary, is_summarized)
	values (?, '', 0)`

	_, err := d.db.ExecContext(ctx, query, blogPostID)

	return err
}

func (d *Database) GetPostSummary(ctx context.Context, blogPostID int64) (*domain.PostSummary, error) {
	query := `select blog_post_id, summary, is_summarized
	from post_summaries
	where blog_post_id = ?`

	var s domain.PostSummary
	err := d.db.QueryRowContext(ctx, query, blogPostID).
		Scan(&s.BlogPostID, &s.Summary, &s.IsSummarized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &s, nil
}

// MarkSummarized completes the summary row. The guard on is_summarized keeps
// a completed row from ever being reverted or overwritten.
func (d *Database) MarkSummarized(ctx context.Context, blogPostID int64, summary string) error {
	query := `update post_summaries
	set summary = ?, is_summarized = 1
	where blog_post_id = ? and is_summarized = 0`

	_, err := d.db.ExecContext(ctx, query, summary, blogPostID)

	return err
}

func (d *Database) InsertPullRequest(ctx context.Context, blogPostID int64, studyID int64) error {
	query := `insert or ignore into pull_requests (blog_post_id, study_id, pr_url, is_opened)
	values (?, ?, '', 0)`

	_, err := d.db.ExecContext(ctx, query, blogPostID, studyID)

	return err
}

func (d *Database) GetPullRequest(
	ctx context.Context,
	blogPostID int64,
	studyID int64,
) (*domain.PullRequest, error) {
	query := `select blog_post_id, study_id, pr_url, is_opened
	from pull_requests
	where blog_post_id = ? and study_id = ?`

	var pr domain.PullRequest
	err := d.db.QueryRowContext(ctx, query, blogPostID, studyID).
		Scan(&pr.BlogPostID, &pr.StudyID, &pr.PRURL, &pr.IsOpened)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &pr, nil
}

// MarkPullRequestOpened completes the PR row, guarded the same way as
// MarkSummarized.
func (d *Database) MarkPullRequestOpened(
	ctx context.Context,
	blogPostID int64,
	studyID int64,
	prURL string,
) error {
	query := `update pull_requests
	set pr_url = ?, is_opened = 1
	where blog_post_id = ? and study_id = ? and is_opened = 0`

	_, err := d.db.ExecContext(ctx, query, prURL, blogPostID, studyID)

	return err
}

func (d *Database) InsertPipelineRun(ctx context.Context, run *domain.PipelineRun) error {
	query := `insert into pipeline_runs (blog_post_id, study_id, status, failure_reason)
	values (?, ?, ?, ?)`

	res, err := d.db.ExecContext(ctx, query,
		run.BlogPostID,
		run.StudyID,
		string(run.Status),
		run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to fetch inserted ID: %w", err)
	}

	run.ID = id

	return nil
}

func (d *Database) GetPipelineRun(ctx context.Context, runID int64) (*domain.PipelineRun, error) {
	query := `select id, blog_post_id, study_id, status, failure_reason
	from pipeline_runs
	where id = ?`

	var r domain.PipelineRun
	var status string
	err := d.db.QueryRowContext(ctx, query, runID).
		Scan(&r.ID, &r.BlogPostID, &r.StudyID, &status, &r.FailureReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	r.Status = domain.RunStatus(status)

	return &r, nil
}

func (d *Database) UpdateRunStatus(
	ctx context.Context,
	runID int64,
	status domain.RunStatus,
) error {
	query := `update pipeline_runs
	set status = ?, failure_reason = ''
	where id = ?`

	_, err := d.db.ExecContext(ctx, query, string(status), runID)

	return err
}

func (d *Database) MarkRunFailed(ctx context.Context, runID int64, reason string) error {
	query := `update pipeline_runs
	set status = ?, failure_reason = ?
	where id = ?`

	_, err := d.db.ExecContext(ctx, query, string(domain.RunFailed), reason, runID)

	return err
}
