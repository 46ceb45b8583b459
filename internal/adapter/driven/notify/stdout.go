// Package notify provides a log-based Notifier used when no chat backend
// is configured.
package notify

import (
	"context"
	"log/slog"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Stdout)(nil)

// Stdout logs notifications instead of posting them. Interactive actions
// are logged too, but nothing can be confirmed through this notifier.
type Stdout struct{}

// NewStdout creates a Stdout notifier.
func NewStdout() *Stdout {
	return &Stdout{}
}

// Post logs the message and returns an empty reference.
func (*Stdout) Post(_ context.Context, msg model.NotificationMessage) (model.MessageRef, error) {
	slog.Info("notification", "channel", msg.Channel, "text", msg.Text, "attachments", len(msg.Attachments))
	for _, attachment := range msg.Attachments {
		if attachment.CallbackID != "" {
			slog.Info("notification action pending",
				"callback_id", attachment.CallbackID,
				"prompt", attachment.Title,
			)
		}
	}
	return model.MessageRef{}, nil
}

// Update logs the updated text.
func (*Stdout) Update(_ context.Context, ref model.MessageRef, msg model.NotificationMessage) error {
	slog.Info("notification updated", "channel", ref.Channel, "ts", ref.Timestamp, "text", msg.Text)
	return nil
}
