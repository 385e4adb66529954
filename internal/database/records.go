package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studylog/internal/domain"
)

// Member and study rows are external collaborator records. The pipeline only
// reads them; these writers exist for seeding and tests.

func (d *Database) CreateMember(ctx context.Context, member *domain.Member) error {
	email := strings.TrimSpace(member.Email)
	if email == "" {
		return errors.New("member email is empty")
	}

	query := "insert into members (name, email, blog_url) values (?, ?, ?)"

	res, err := d.db.ExecContext(ctx, query, member.Name, email, member.BlogURL)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to fetch inserted ID: %w", err)
	}

	member.ID = id
	member.Email = email

	return nil
}

func (d *Database) CreateStudy(ctx context.Context, study *domain.Study) error {
	repo := strings.TrimSpace(study.GitHubRepo)
	if repo == "" {
		return errors.New("study repository is empty")
	}

	query := "insert into studies (title, github_repo, branch, directory) values (?, ?, ?, ?)"

	res, err := d.db.ExecContext(ctx, query, study.Title, repo, study.Branch, study.Directory)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to fetch inserted ID: %w", err)
	}

	study.ID = id
	study.GitHubRepo = repo

	return nil
}

func (d *Database) AddStudyMember(ctx context.Context, studyID int64, memberID int64) error {
	query := "insert or ignore into study_members (study_id, member_id) values (?, ?)"

	_, err := d.db.ExecContext(ctx, query, studyID, memberID)

	return err
}
