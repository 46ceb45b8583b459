package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// BuildReportRequest is the wire form of a CI build outcome.
type BuildReportRequest struct {
	Name        string `json:"name"`
	Branch      string `json:"branch"`
	Commit      string `json:"commit"`
	BuildNumber int    `json:"build_number"`
	Status      string `json:"status"`
	JobName     string `json:"job_name"`
	URL         string `json:"url"`
}

func (r BuildReportRequest) toModel() (model.BuildReport, error) {
	if r.Branch == "" {
		return model.BuildReport{}, errors.New("branch is required")
	}
	if r.Commit == "" {
		return model.BuildReport{}, errors.New("commit is required")
	}

	status := model.BuildStatus(r.Status)
	switch status {
	case model.BuildPassed, model.BuildFailed:
	default:
		return model.BuildReport{}, errors.New("status must be PASSED or FAILED")
	}

	return model.BuildReport{
		Name:        r.Name,
		Branch:      r.Branch,
		Commit:      r.Commit,
		BuildNumber: r.BuildNumber,
		Status:      status,
		JobName:     r.JobName,
		URL:         r.URL,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}

// PullRequestMergedRequest is the wire form of a merged-PR event.
type PullRequestMergedRequest struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	MergeCommit  string `json:"merge_commit"`
}

func (r PullRequestMergedRequest) toModel() (model.PullRequestMergedEvent, error) {
	if r.TargetBranch == "" {
		return model.PullRequestMergedEvent{}, errors.New("target_branch is required")
	}
	if r.MergeCommit == "" {
		return model.PullRequestMergedEvent{}, errors.New("merge_commit is required")
	}

	return model.PullRequestMergedEvent{
		ID:           r.ID,
		Title:        r.Title,
		Author:       r.Author,
		SourceBranch: r.SourceBranch,
		TargetBranch: r.TargetBranch,
		MergeCommit:  r.MergeCommit,
		ReceivedAt:   time.Now().UTC(),
	}, nil
}

// PullRequestUpdatedRequest is the wire form of a created-or-updated PR event.
type PullRequestUpdatedRequest struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	SourceBranch string   `json:"source_branch"`
	TargetBranch string   `json:"target_branch"`
	ChangedFiles []string `json:"changed_files"`
}

func (r PullRequestUpdatedRequest) toModel() (model.PullRequestUpdatedEvent, error) {
	if r.TargetBranch == "" {
		return model.PullRequestUpdatedEvent{}, errors.New("target_branch is required")
	}

	return model.PullRequestUpdatedEvent{
		ID:           r.ID,
		Title:        r.Title,
		Author:       r.Author,
		SourceBranch: r.SourceBranch,
		TargetBranch: r.TargetBranch,
		ChangedFiles: r.ChangedFiles,
	}, nil
}

// ActionCallbackRequest is the wire form of an interactive-message callback.
type ActionCallbackRequest struct {
	ActionSetID      string `json:"action_set_id"`
	ActionName       string `json:"action_name"`
	Confirmed        bool   `json:"confirmed"`
	Channel          string `json:"channel"`
	MessageTimestamp string `json:"message_timestamp"`
}

// CallbackResponse carries the human-readable outcome of a callback.
type CallbackResponse struct {
	Outcome string `json:"outcome"`
}

// BranchSummaryResponse carries a branch's current state.
type BranchSummaryResponse struct {
	Branch  string `json:"branch"`
	Summary string `json:"summary"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
