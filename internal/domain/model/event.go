// Package model contains the domain types shared across ports and adapters.
package model

import "time"

// BuildStatus represents the outcome of a CI build.
type BuildStatus string

const (
	BuildPassed  BuildStatus = "PASSED"
	BuildFailed  BuildStatus = "FAILED"
	BuildUnknown BuildStatus = "UNKNOWN"
)

// Event is the closed set of inbound occurrences the engine evaluates.
// Exactly three types implement it: BuildReport, PullRequestMergedEvent
// and PullRequestUpdatedEvent. Consumers switch exhaustively on the
// concrete type.
type Event interface {
	eventKind() string
}

// BuildReport is a single CI build outcome reported for a branch.
type BuildReport struct {
	Name        string      `json:"name"`
	Branch      string      `json:"branch"`
	Commit      string      `json:"commit"`
	BuildNumber int         `json:"build_number"`
	Status      BuildStatus `json:"status"`
	JobName     string      `json:"job_name"`
	URL         string      `json:"url"`
	ReceivedAt  time.Time   `json:"received_at"`
}

func (BuildReport) eventKind() string { return "build_report" }

// PullRequestMergedEvent records a pull request merged into a target branch.
type PullRequestMergedEvent struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	MergeCommit  string    `json:"merge_commit"`
	ReceivedAt   time.Time `json:"received_at"`
}

func (PullRequestMergedEvent) eventKind() string { return "pull_request_merged" }

// PullRequestUpdatedEvent records a pull request being created or updated.
type PullRequestUpdatedEvent struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	SourceBranch string   `json:"source_branch"`
	TargetBranch string   `json:"target_branch"`
	ChangedFiles []string `json:"changed_files"`
}

func (PullRequestUpdatedEvent) eventKind() string { return "pull_request_updated" }

// ShortCommit shortens a commit hash for display.
func ShortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
