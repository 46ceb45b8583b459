package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Callback is an interactive response to a suggested action set.
type Callback struct {
	ActionSetID string
	// ActionName identifies the chosen action within the set; it carries
	// the action kind token the buttons were rendered with.
	ActionName string
	Confirmed  bool
	// Channel and MessageTimestamp locate the original message so the
	// outcome can be rendered in place.
	Channel          string
	MessageTimestamp string
}

// ConfirmationService resolves pending action sets. At most one action
// per set is ever executed: callbacks for the same set are serialized by
// a per-id mutex, execution is attempted only after the set is confirmed
// to still exist, and the set is deleted before the executor runs so a
// second callback can never re-trigger it.
type ConfirmationService struct {
	pending     driven.PendingActionStore
	remediation *Remediation
	notifier    driven.Notifier
	locks       *keyedMutex
}

// NewConfirmationService creates a ConfirmationService.
func NewConfirmationService(pending driven.PendingActionStore, remediation *Remediation, notifier driven.Notifier) *ConfirmationService {
	return &ConfirmationService{
		pending:     pending,
		remediation: remediation,
		notifier:    notifier,
		locks:       newKeyedMutex(),
	}
}

// HandleCallback resolves one callback and returns the operator-facing
// outcome text. A callback for an unknown or already resolved set is not
// an error to the operator: it returns the "already handled" outcome and
// model.ErrUnknownActionSet for the caller to log.
func (s *ConfirmationService) HandleCallback(ctx context.Context, cb Callback) (string, error) {
	s.locks.Lock(cb.ActionSetID)
	defer s.locks.Unlock(cb.ActionSetID)

	set, err := s.pending.Load(ctx, cb.ActionSetID)
	if err != nil {
		return "", fmt.Errorf("load action set %s: %w", cb.ActionSetID, err)
	}
	if set == nil {
		slog.Info("callback for unknown action set", "action_set_id", cb.ActionSetID)
		return "This suggestion was already handled.", model.ErrUnknownActionSet
	}

	// Deleting here is the commit point: once the set is gone, no later
	// callback can execute anything from it, regardless of what happens
	// to the executor call below.
	if err := s.pending.Delete(ctx, cb.ActionSetID); err != nil {
		return "", fmt.Errorf("delete action set %s: %w", cb.ActionSetID, err)
	}

	if !cb.Confirmed {
		slog.Info("action set declined", "action_set_id", cb.ActionSetID)
		outcome := "Declined. No action taken."
		s.updateMessage(ctx, cb, outcome, model.ColorBlack)
		return outcome, nil
	}

	action, ok := findAction(set.Actions, cb.ActionName)
	if !ok {
		slog.Warn("callback names unknown action", "action_set_id", cb.ActionSetID, "action", cb.ActionName)
		outcome := fmt.Sprintf("Unknown action %q for this suggestion.", cb.ActionName)
		s.updateMessage(ctx, cb, outcome, model.ColorRed)
		return outcome, nil
	}

	slog.Info("executing confirmed action",
		"action_set_id", cb.ActionSetID,
		"kind", action.Kind,
		"summary", set.Summary,
	)

	var outcome string
	var color string
	if execErr := s.remediation.Execute(ctx, action); execErr != nil {
		slog.Error("confirmed action failed", "action_set_id", cb.ActionSetID, "kind", action.Kind, "error", execErr)
		outcome = fmt.Sprintf("Failed to %s: %v", action.Describe(), execErr)
		color = model.ColorRed
	} else {
		outcome = fmt.Sprintf("Done: %s.", action.Describe())
		color = model.ColorGreen
	}

	s.updateMessage(ctx, cb, outcome, color)
	return outcome, nil
}

// updateMessage rewrites the original notification to show the outcome in
// place of the confirmation buttons. Update failures are logged only; the
// resolution itself already happened.
func (s *ConfirmationService) updateMessage(ctx context.Context, cb Callback, outcome, color string) {
	if cb.Channel == "" || cb.MessageTimestamp == "" {
		return
	}

	ref := model.MessageRef{Channel: cb.Channel, Timestamp: cb.MessageTimestamp}
	msg := model.NotificationMessage{
		Channel: cb.Channel,
		Text:    outcome,
		Color:   color,
		Attachments: []model.MessageAttachment{{
			Text:  outcome,
			Color: color,
		}},
	}
	if err := s.notifier.Update(ctx, ref, msg); err != nil {
		slog.Error("failed to update notification", "action_set_id", cb.ActionSetID, "error", err)
	}
}

func findAction(actions []model.ProposedAction, name string) (model.ProposedAction, bool) {
	for _, action := range actions {
		if string(action.Kind) == name {
			return action, true
		}
	}
	return model.ProposedAction{}, false
}
