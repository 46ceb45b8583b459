package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HistoryStore = (*HistoryRepo)(nil)

// HistoryRepo is the SQLite implementation of the HistoryStore port.
// Insertion order is the history order: "most recent" means highest row id.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a HistoryRepo backed by the given DB.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// RecordBuild appends a build report to the history.
func (r *HistoryRepo) RecordBuild(ctx context.Context, report model.BuildReport) error {
	const query = `
		INSERT INTO build_reports (name, branch, commit_hash, build_number, status, job_name, url, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		report.Name, report.Branch, report.Commit, report.BuildNumber,
		string(report.Status), report.JobName, report.URL,
		report.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert build report for %s on %s: %w", model.ShortCommit(report.Commit), report.Branch, err)
	}
	return nil
}

// RecordMerge appends a merged PR event to the history.
func (r *HistoryRepo) RecordMerge(ctx context.Context, event model.PullRequestMergedEvent) error {
	const query = `
		INSERT INTO merged_pull_requests (pr_id, title, author, source_branch, target_branch, merge_commit, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		event.ID, event.Title, event.Author, event.SourceBranch, event.TargetBranch,
		event.MergeCommit, event.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert merged PR #%d: %w", event.ID, err)
	}
	return nil
}

// LastBuild returns the most recent report for the branch, or nil.
func (r *HistoryRepo) LastBuild(ctx context.Context, branch string) (*model.BuildReport, error) {
	const query = `
		SELECT name, branch, commit_hash, build_number, status, job_name, url, received_at
		FROM build_reports
		WHERE branch = ?
		ORDER BY id DESC
		LIMIT 1
	`

	report, err := scanBuildReport(r.db.Reader.QueryRowContext(ctx, query, branch))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last build for branch %s: %w", branch, err)
	}
	return report, nil
}

// BuildsForBranch returns all reports for the branch, most recent first.
func (r *HistoryRepo) BuildsForBranch(ctx context.Context, branch string) ([]model.BuildReport, error) {
	const query = `
		SELECT name, branch, commit_hash, build_number, status, job_name, url, received_at
		FROM build_reports
		WHERE branch = ?
		ORDER BY id DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, branch)
	if err != nil {
		return nil, fmt.Errorf("query builds for branch %s: %w", branch, err)
	}
	defer rows.Close()

	var reports []model.BuildReport
	for rows.Next() {
		report, err := scanBuildReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build report: %w", err)
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build reports: %w", err)
	}
	return reports, nil
}

// HasEverSucceeded reports whether the commit has a PASSED report on any
// branch.
func (r *HistoryRepo) HasEverSucceeded(ctx context.Context, commit string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM build_reports WHERE commit_hash = ? AND status = ?)`

	var exists int
	err := r.db.Reader.QueryRowContext(ctx, query, commit, string(model.BuildPassed)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check commit %s ever succeeded: %w", model.ShortCommit(commit), err)
	}
	return exists != 0, nil
}

// LastPassingBuild returns the most recent PASSED report for the branch,
// or nil.
func (r *HistoryRepo) LastPassingBuild(ctx context.Context, branch string) (*model.BuildReport, error) {
	const query = `
		SELECT name, branch, commit_hash, build_number, status, job_name, url, received_at
		FROM build_reports
		WHERE branch = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`

	report, err := scanBuildReport(r.db.Reader.QueryRowContext(ctx, query, branch, string(model.BuildPassed)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last passing build for branch %s: %w", branch, err)
	}
	return report, nil
}

// CountFailuresForCommitOnBranch counts FAILED reports for the commit on
// the branch.
func (r *HistoryRepo) CountFailuresForCommitOnBranch(ctx context.Context, commit, branch string) (int, error) {
	const query = `SELECT COUNT(*) FROM build_reports WHERE commit_hash = ? AND branch = ? AND status = ?`

	var count int
	err := r.db.Reader.QueryRowContext(ctx, query, commit, branch, string(model.BuildFailed)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures for commit %s on branch %s: %w", model.ShortCommit(commit), branch, err)
	}
	return count, nil
}

// LastMerge returns the most recent merged PR, optionally filtered by
// target branch (empty branch means any).
func (r *HistoryRepo) LastMerge(ctx context.Context, branch string) (*model.PullRequestMergedEvent, error) {
	query := `
		SELECT pr_id, title, author, source_branch, target_branch, merge_commit, received_at
		FROM merged_pull_requests
	`
	args := []any{}
	if branch != "" {
		query += ` WHERE target_branch = ?`
		args = append(args, branch)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	event, err := scanMergedPR(r.db.Reader.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last merge for branch %q: %w", branch, err)
	}
	return event, nil
}

// FindMergeByCommit returns the merged PR whose merge commit matches, or nil.
func (r *HistoryRepo) FindMergeByCommit(ctx context.Context, commit string) (*model.PullRequestMergedEvent, error) {
	const query = `
		SELECT pr_id, title, author, source_branch, target_branch, merge_commit, received_at
		FROM merged_pull_requests
		WHERE merge_commit = ?
		ORDER BY id DESC
		LIMIT 1
	`

	event, err := scanMergedPR(r.db.Reader.QueryRowContext(ctx, query, commit))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find merge by commit %s: %w", model.ShortCommit(commit), err)
	}
	return event, nil
}

func scanBuildReport(s scanner) (*model.BuildReport, error) {
	var report model.BuildReport
	var status, receivedAt string

	err := s.Scan(&report.Name, &report.Branch, &report.Commit, &report.BuildNumber,
		&status, &report.JobName, &report.URL, &receivedAt)
	if err != nil {
		return nil, err
	}

	report.Status = model.BuildStatus(status)
	report.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}
	return &report, nil
}

func scanMergedPR(s scanner) (*model.PullRequestMergedEvent, error) {
	var event model.PullRequestMergedEvent
	var receivedAt string

	err := s.Scan(&event.ID, &event.Title, &event.Author, &event.SourceBranch,
		&event.TargetBranch, &event.MergeCommit, &receivedAt)
	if err != nil {
		return nil, err
	}

	event.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}
	return &event, nil
}
