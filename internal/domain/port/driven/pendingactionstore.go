package driven

import (
	"context"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// PendingActionStore is keyed persistence for action sets awaiting
// confirmation. Load returns nil without error when the id is unknown.
// Implementations may be in-memory or durable; the confirmation workflow
// behaves identically against either.
type PendingActionStore interface {
	Save(ctx context.Context, set model.ActionSet) error
	Load(ctx context.Context, id string) (*model.ActionSet, error)
	Delete(ctx context.Context, id string) error
}
