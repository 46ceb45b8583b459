// Package application contains the use-case services: context assembly,
// rule evaluation, remediation execution, and the confirmation workflow.
package application

import (
	"context"
	"fmt"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// ContextBuilder assembles an immutable evaluation context from an event
// plus history store queries. Any store failure aborts the build with
// model.ErrHistoryUnavailable: rules must never run against a partial
// context with counts silently defaulted to zero.
type ContextBuilder struct {
	history driven.HistoryStore
}

// NewContextBuilder creates a ContextBuilder reading from the given store.
func NewContextBuilder(history driven.HistoryStore) *ContextBuilder {
	return &ContextBuilder{history: history}
}

// Build derives the evaluation context for an event. For build reports
// the triggering report is expected to already be recorded, so it is the
// most recent entry in the branch history.
func (b *ContextBuilder) Build(ctx context.Context, event model.Event) (model.EvaluationContext, error) {
	var branch, commit string
	switch e := event.(type) {
	case model.BuildReport:
		branch, commit = e.Branch, e.Commit
	case model.PullRequestMergedEvent:
		branch, commit = e.TargetBranch, e.MergeCommit
	case model.PullRequestUpdatedEvent:
		branch = e.TargetBranch
	default:
		return model.EvaluationContext{}, fmt.Errorf("unsupported event type %T", event)
	}

	evalCtx, err := b.buildForBranch(ctx, branch, commit)
	if err != nil {
		return model.EvaluationContext{}, err
	}
	evalCtx.Event = event
	return evalCtx, nil
}

// BuildForBranch derives a context for a scheduled branch check, where no
// triggering event exists.
func (b *ContextBuilder) BuildForBranch(ctx context.Context, branch string) (model.EvaluationContext, error) {
	return b.buildForBranch(ctx, branch, "")
}

func (b *ContextBuilder) buildForBranch(ctx context.Context, branch, commit string) (model.EvaluationContext, error) {
	reports, err := b.history.BuildsForBranch(ctx, branch)
	if err != nil {
		return model.EvaluationContext{}, fmt.Errorf("%w: fetch reports for branch %s: %w", model.ErrHistoryUnavailable, branch, err)
	}

	evalCtx := model.EvaluationContext{
		Branch:                      branch,
		Commit:                      commit,
		ConsecutiveFailuresOnBranch: countTrailingFailures(reports),
		CurrentBranchStatus:         model.BuildUnknown,
	}
	if len(reports) > 0 {
		evalCtx.CurrentBranchStatus = reports[0].Status
	}

	if commit != "" {
		succeeded, err := b.history.HasEverSucceeded(ctx, commit)
		if err != nil {
			return model.EvaluationContext{}, fmt.Errorf("%w: check commit %s ever succeeded: %w", model.ErrHistoryUnavailable, model.ShortCommit(commit), err)
		}
		evalCtx.CommitHasEverSucceeded = succeeded

		failures, err := b.history.CountFailuresForCommitOnBranch(ctx, commit, branch)
		if err != nil {
			return model.EvaluationContext{}, fmt.Errorf("%w: count failures for commit %s on branch %s: %w", model.ErrHistoryUnavailable, model.ShortCommit(commit), branch, err)
		}
		evalCtx.FailuresForCommitOnBranch = failures
	}

	lastPassing, err := b.history.LastPassingBuild(ctx, branch)
	if err != nil {
		return model.EvaluationContext{}, fmt.Errorf("%w: fetch last passing build for branch %s: %w", model.ErrHistoryUnavailable, branch, err)
	}
	if lastPassing != nil {
		evalCtx.LastPassingCommitForBranch = lastPassing.Commit
	}

	return evalCtx, nil
}

// countTrailingFailures counts FAILED reports from the most recent
// backward, stopping at the first PASSED report. Reports are most recent
// first.
func countTrailingFailures(reports []model.BuildReport) int {
	count := 0
	for _, report := range reports {
		if report.Status == model.BuildPassed {
			break
		}
		if report.Status == model.BuildFailed {
			count++
		}
	}
	return count
}

// PreviousBuildStatus returns the status of the report preceding the most
// recent one on the branch, or UNKNOWN when there is no such report. The
// branch-starts-failing and branch-starts-passing triggers compare the
// triggering report against this.
func (b *ContextBuilder) PreviousBuildStatus(ctx context.Context, branch string) (model.BuildStatus, error) {
	reports, err := b.history.BuildsForBranch(ctx, branch)
	if err != nil {
		return model.BuildUnknown, fmt.Errorf("%w: fetch reports for branch %s: %w", model.ErrHistoryUnavailable, branch, err)
	}
	if len(reports) < 2 {
		return model.BuildUnknown, nil
	}
	return reports[1].Status, nil
}
