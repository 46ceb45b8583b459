package driven

import (
	"context"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// Notifier posts and updates operator-facing messages. The model is
// vendor-neutral; adapters own the wire payload shape.
type Notifier interface {
	Post(ctx context.Context, msg model.NotificationMessage) (model.MessageRef, error)
	Update(ctx context.Context, ref model.MessageRef, msg model.NotificationMessage) error
}
