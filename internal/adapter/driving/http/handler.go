// Package httphandler is the HTTP driving adapter: event ingestion,
// confirmation callbacks, and branch summaries.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/buildwarden/buildwarden/internal/application"
	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// Handler serves the REST API.
type Handler struct {
	events        *application.EventService
	confirmations *application.ConfirmationService
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(events *application.EventService, confirmations *application.ConfirmationService, logger *slog.Logger) *Handler {
	return &Handler{
		events:        events,
		confirmations: confirmations,
		logger:        logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/builds", h.ReportBuild)
	mux.HandleFunc("POST /api/v1/pull-requests/merged", h.PullRequestMerged)
	mux.HandleFunc("POST /api/v1/pull-requests", h.PullRequestUpdated)
	mux.HandleFunc("POST /api/v1/actions/callback", h.ActionCallback)
	mux.HandleFunc("GET /api/v1/branches/{branch}/summary", h.BranchSummary)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ReportBuild ingests a CI build outcome and evaluates the rules.
// History store failures return 503 so the sender redelivers.
func (h *Handler) ReportBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.events.HandleBuildReport(r.Context(), report); err != nil {
		h.respondEventError(w, err, "build report", report.Branch)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// PullRequestMerged ingests a merged-PR event.
func (h *Handler) PullRequestMerged(w http.ResponseWriter, r *http.Request) {
	var req PullRequestMergedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.events.HandlePullRequestMerged(r.Context(), event); err != nil {
		h.respondEventError(w, err, "merged PR", event.TargetBranch)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// PullRequestUpdated ingests a created-or-updated PR event.
func (h *Handler) PullRequestUpdated(w http.ResponseWriter, r *http.Request) {
	var req PullRequestUpdatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.events.HandlePullRequestUpdated(r.Context(), event); err != nil {
		h.respondEventError(w, err, "updated PR", event.TargetBranch)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// ActionCallback resolves a pending action set. A stale or duplicate
// callback is answered 200 with the "already handled" outcome; it is not
// an operator-facing error.
func (h *Handler) ActionCallback(w http.ResponseWriter, r *http.Request) {
	var req ActionCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActionSetID == "" {
		writeError(w, http.StatusBadRequest, "action_set_id is required")
		return
	}

	outcome, err := h.confirmations.HandleCallback(r.Context(), application.Callback{
		ActionSetID:      req.ActionSetID,
		ActionName:       req.ActionName,
		Confirmed:        req.Confirmed,
		Channel:          req.Channel,
		MessageTimestamp: req.MessageTimestamp,
	})
	if err != nil && !errors.Is(err, model.ErrUnknownActionSet) {
		h.logger.Error("callback failed", "action_set_id", req.ActionSetID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CallbackResponse{Outcome: outcome})
}

// BranchSummary renders the branch's current state from history.
func (h *Handler) BranchSummary(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	summary, err := h.events.BranchSummary(r.Context(), branch)
	if err != nil {
		h.respondEventError(w, err, "branch summary", branch)
		return
	}

	writeJSON(w, http.StatusOK, BranchSummaryResponse{Branch: branch, Summary: summary})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w)
}

// respondEventError maps pipeline failures to responses: an unavailable
// history store is retryable (503), anything else is a plain 500.
func (h *Handler) respondEventError(w http.ResponseWriter, err error, what, branch string) {
	if errors.Is(err, model.ErrHistoryUnavailable) {
		h.logger.Error("history unavailable", "what", what, "branch", branch, "error", err)
		writeError(w, http.StatusServiceUnavailable, "history store unavailable, retry later")
		return
	}
	h.logger.Error("event handling failed", "what", what, "branch", branch, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
