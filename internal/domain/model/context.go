package model

// Trigger categorizes which rules an event activates.
type Trigger string

const (
	TriggerBuildFailed         Trigger = "build_failed"
	TriggerBuildPassed         Trigger = "build_passed"
	TriggerBranchStartsFailing Trigger = "branch_starts_failing"
	TriggerBranchStartsPassing Trigger = "branch_starts_passing"
	TriggerPullRequestMerged   Trigger = "pull_request_merged"
	TriggerPullRequestModified Trigger = "pull_request_modified"
	TriggerRepositoryPeriodic  Trigger = "repository"
)

// EvaluationContext is an immutable snapshot combining a triggering event
// with facts derived from build history. It is built fresh per evaluation
// and never persisted; everything in it is recomputable from the history
// store.
type EvaluationContext struct {
	Event  Event
	Branch string
	Commit string

	CommitHasEverSucceeded      bool
	ConsecutiveFailuresOnBranch int
	FailuresForCommitOnBranch   int
	CurrentBranchStatus         BuildStatus
	LastPassingCommitForBranch  string
}

// Summary renders the stable facts of the context for display alongside
// a pending action set.
func (c EvaluationContext) Summary() string {
	s := "branch " + c.Branch
	if c.Commit != "" {
		s += " at " + ShortCommit(c.Commit)
	}
	return s
}
