package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// EventService drives the evaluation pipeline for inbound events: filter,
// record, build context, evaluate rules, execute perform actions, and
// hand suggested actions to the confirmation workflow via the pending
// store and notifier.
type EventService struct {
	history     driven.HistoryStore
	pending     driven.PendingActionStore
	notifier    driven.Notifier
	remediation *Remediation
	builder     *ContextBuilder
	engine      *Engine
	channel     string

	filterBranches []string
	filterRepos    []string
}

// NewEventService creates an EventService. Empty filter lists admit every
// branch and repository.
func NewEventService(
	history driven.HistoryStore,
	pending driven.PendingActionStore,
	notifier driven.Notifier,
	remediation *Remediation,
	builder *ContextBuilder,
	engine *Engine,
	channel string,
	filterBranches, filterRepos []string,
) *EventService {
	return &EventService{
		history:        history,
		pending:        pending,
		notifier:       notifier,
		remediation:    remediation,
		builder:        builder,
		engine:         engine,
		channel:        channel,
		filterBranches: filterBranches,
		filterRepos:    filterRepos,
	}
}

// HandleBuildReport records a build outcome and evaluates the matching
// rules. A history store failure aborts before any rule runs; the caller
// should surface it as retryable so the CI side redelivers.
func (s *EventService) HandleBuildReport(ctx context.Context, report model.BuildReport) error {
	if !s.admitBranch(report.Branch) || !s.admitRepo(report.Name) {
		slog.Debug("build report filtered out", "name", report.Name, "branch", report.Branch)
		return nil
	}
	if report.Status != model.BuildPassed && report.Status != model.BuildFailed {
		return fmt.Errorf("build report has unsupported status %q", report.Status)
	}
	if report.ReceivedAt.IsZero() {
		report.ReceivedAt = time.Now().UTC()
	}

	if err := s.history.RecordBuild(ctx, report); err != nil {
		return fmt.Errorf("%w: record build report: %w", model.ErrHistoryUnavailable, err)
	}

	evalCtx, err := s.builder.Build(ctx, report)
	if err != nil {
		return err
	}
	previous, err := s.builder.PreviousBuildStatus(ctx, report.Branch)
	if err != nil {
		return err
	}

	return s.process(ctx, evalCtx, DeriveTriggers(report, previous))
}

// HandlePullRequestMerged records the merge and evaluates merged-PR rules.
func (s *EventService) HandlePullRequestMerged(ctx context.Context, event model.PullRequestMergedEvent) error {
	if !s.admitBranch(event.TargetBranch) {
		slog.Debug("merged PR filtered out", "pr", event.ID, "target_branch", event.TargetBranch)
		return nil
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if err := s.history.RecordMerge(ctx, event); err != nil {
		return fmt.Errorf("%w: record merged PR: %w", model.ErrHistoryUnavailable, err)
	}

	evalCtx, err := s.builder.Build(ctx, event)
	if err != nil {
		return err
	}

	return s.process(ctx, evalCtx, DeriveTriggers(event, model.BuildUnknown))
}

// HandlePullRequestUpdated evaluates modified-PR rules. Updated PRs are
// not recorded; only merges enter the history.
func (s *EventService) HandlePullRequestUpdated(ctx context.Context, event model.PullRequestUpdatedEvent) error {
	if !s.admitBranch(event.TargetBranch) {
		slog.Debug("updated PR filtered out", "pr", event.ID, "target_branch", event.TargetBranch)
		return nil
	}

	evalCtx, err := s.builder.Build(ctx, event)
	if err != nil {
		return err
	}

	return s.process(ctx, evalCtx, DeriveTriggers(event, model.BuildUnknown))
}

// SweepBranch evaluates the periodic repository rules for one branch.
func (s *EventService) SweepBranch(ctx context.Context, branch string) error {
	evalCtx, err := s.builder.BuildForBranch(ctx, branch)
	if err != nil {
		return err
	}
	return s.process(ctx, evalCtx, []model.Trigger{model.TriggerRepositoryPeriodic})
}

// process runs the engine and dispatches the outcome: perform actions
// execute immediately and best-effort, suggest actions are persisted and
// rendered with confirmation controls.
func (s *EventService) process(ctx context.Context, evalCtx model.EvaluationContext, triggers []model.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}

	analysis, performs, err := s.engine.Analyze(evalCtx, triggers)
	if err != nil {
		return err
	}

	// One perform failure must not block the remaining actions; each is
	// reported individually.
	for _, action := range performs {
		if err := s.remediation.Execute(ctx, action); err != nil {
			slog.Error("perform action failed", "kind", action.Kind, "branch", evalCtx.Branch, "error", err)
			s.reportFailure(ctx, action, evalCtx, err)
		}
	}

	if analysis.ActionSet == nil {
		// Failure evaluations surface what happened even when every
		// action ran unattended.
		if len(performs) > 0 && slices.Contains(triggers, model.TriggerBuildFailed) {
			if _, err := s.notifier.Post(ctx, renderAnalysis(analysis, s.channel, colorFor(evalCtx))); err != nil {
				return fmt.Errorf("publish analysis: %w", err)
			}
		}
		return nil
	}

	// Persist before rendering so a fast callback always finds the set.
	if err := s.pending.Save(ctx, *analysis.ActionSet); err != nil {
		return fmt.Errorf("save pending action set %s: %w", analysis.ActionSet.ID, err)
	}

	if _, err := s.notifier.Post(ctx, renderAnalysis(analysis, s.channel, colorFor(evalCtx))); err != nil {
		return fmt.Errorf("render analysis for action set %s: %w", analysis.ActionSet.ID, err)
	}
	return nil
}

// reportFailure renders a perform-action failure to the operator channel
// with enough detail to diagnose without consulting the logs.
func (s *EventService) reportFailure(ctx context.Context, action model.ProposedAction, evalCtx model.EvaluationContext, execErr error) {
	_, err := s.notifier.Post(ctx, model.NotificationMessage{
		Channel: s.channel,
		Text:    fmt.Sprintf("Failed to %s (%s): %v", action.Describe(), evalCtx.Summary(), execErr),
		Color:   model.ColorRed,
	})
	if err != nil {
		slog.Error("failed to report action failure", "kind", action.Kind, "error", err)
	}
}

// BranchSummary renders the current state of a branch from history.
func (s *EventService) BranchSummary(ctx context.Context, branch string) (string, error) {
	evalCtx, err := s.builder.BuildForBranch(ctx, branch)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("Branch `%s` status: %s", branch, evalCtx.CurrentBranchStatus)
	if evalCtx.ConsecutiveFailuresOnBranch > 0 {
		summary += fmt.Sprintf(", %d consecutive failure(s)", evalCtx.ConsecutiveFailuresOnBranch)
	}
	if evalCtx.LastPassingCommitForBranch != "" {
		summary += fmt.Sprintf(", last passing commit %s", model.ShortCommit(evalCtx.LastPassingCommitForBranch))
	}

	lastMerge, err := s.history.LastMerge(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("%w: fetch last merge for branch %s: %w", model.ErrHistoryUnavailable, branch, err)
	}
	if lastMerge != nil {
		summary += fmt.Sprintf(". Last merged PR: #%d %q by %s", lastMerge.ID, lastMerge.Title, lastMerge.Author)
	}
	return summary, nil
}

func (s *EventService) admitBranch(branch string) bool {
	return len(s.filterBranches) == 0 || slices.Contains(s.filterBranches, branch)
}

func (s *EventService) admitRepo(name string) bool {
	return len(s.filterRepos) == 0 || slices.Contains(s.filterRepos, name)
}

// colorFor picks the message color from the branch state.
func colorFor(evalCtx model.EvaluationContext) string {
	switch evalCtx.CurrentBranchStatus {
	case model.BuildFailed:
		return model.ColorRed
	case model.BuildPassed:
		return model.ColorGreen
	default:
		return model.ColorOrange
	}
}

// renderAnalysis converts an analysis to the abstract notification model:
// the event description plus one attachment per suggested action, each
// carrying its confirmation button and a shared decline button.
func renderAnalysis(analysis model.Analysis, channel, color string) model.NotificationMessage {
	msg := model.NotificationMessage{
		Channel: channel,
		Text:    analysis.Description,
		Color:   color,
	}
	if analysis.ActionSet == nil {
		return msg
	}

	for _, action := range analysis.ActionSet.Actions {
		prompt := fmt.Sprintf("Do you want to %s?", action.Describe())
		label := action.Title
		if label == "" {
			label = "Yes"
		}
		msg.Attachments = append(msg.Attachments, model.MessageAttachment{
			Title:      prompt,
			Fallback:   prompt,
			Color:      color,
			CallbackID: analysis.ActionSet.ID,
			Actions: []model.MessageAction{
				{Name: string(action.Kind), Label: label, Value: string(action.Kind), Style: "danger"},
				{Name: string(action.Kind), Label: "No", Value: "no"},
			},
		})
	}
	return msg
}
