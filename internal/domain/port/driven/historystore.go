// Package driven defines the outbound port interfaces the application
// layer depends on. Adapters implement them.
package driven

import (
	"context"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// HistoryStore is the durable record of build reports and merged pull
// requests, queried by branch and commit.
type HistoryStore interface {
	RecordBuild(ctx context.Context, report model.BuildReport) error
	RecordMerge(ctx context.Context, event model.PullRequestMergedEvent) error

	// LastBuild returns the most recent report for the branch, or nil.
	LastBuild(ctx context.Context, branch string) (*model.BuildReport, error)
	// BuildsForBranch returns all reports for the branch, most recent first.
	BuildsForBranch(ctx context.Context, branch string) ([]model.BuildReport, error)
	// HasEverSucceeded reports whether the commit has a PASSED report on
	// any branch.
	HasEverSucceeded(ctx context.Context, commit string) (bool, error)
	// LastPassingBuild returns the most recent PASSED report for the
	// branch, or nil.
	LastPassingBuild(ctx context.Context, branch string) (*model.BuildReport, error)
	// CountFailuresForCommitOnBranch counts FAILED reports for the commit
	// on the branch.
	CountFailuresForCommitOnBranch(ctx context.Context, commit, branch string) (int, error)

	// LastMerge returns the most recent merged PR event, optionally
	// filtered by target branch (empty branch means any).
	LastMerge(ctx context.Context, branch string) (*model.PullRequestMergedEvent, error)
	// FindMergeByCommit returns the merged PR event whose merge commit
	// matches, or nil.
	FindMergeByCommit(ctx context.Context, commit string) (*model.PullRequestMergedEvent, error)
}
