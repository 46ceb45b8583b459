package driven

import (
	"context"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// SCMService applies remediation to the source control backend through a
// local bare mirror. Implementations are not safe for concurrent use; the
// remediation layer serializes calls per working copy.
type SCMService interface {
	// RevertCommit creates a commit inverting the given commit on the
	// branch and, if push is enabled, pushes it to the remote.
	RevertCommit(ctx context.Context, commit, branch string) error
	// LockBranch prevents pushes and merges into the branch. Backends
	// without a restriction API return model.ErrNotImplemented.
	LockBranch(ctx context.Context, branch string) error
}

// SCMHost is the hosted SCM provider's REST surface for branch
// restrictions.
type SCMHost interface {
	ListBranchRestrictions(ctx context.Context) ([]model.BranchRestriction, error)
	CreateBranchRestriction(ctx context.Context, restriction model.BranchRestriction) error
	UpdateBranchRestriction(ctx context.Context, id int, restriction model.BranchRestriction) error
}

// BuildTrigger re-runs the last build configuration for a branch on the
// CI backend, returning an identifier for the queued build.
type BuildTrigger interface {
	TriggerRebuild(ctx context.Context, branch string) (string, error)
}
