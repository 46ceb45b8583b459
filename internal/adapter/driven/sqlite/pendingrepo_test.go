package sqlite

import (
	"context"
	"testing"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeActionSet(id string) model.ActionSet {
	return model.ActionSet{
		ID: id,
		Actions: []model.ProposedAction{
			{
				Kind:        model.ActionRevertCommit,
				Disposition: model.DispositionSuggest,
				Title:       "Revert commit c0ffee12",
				Params: map[string]string{
					"commit": "c0ffee1234567890",
					"branch": "main",
				},
			},
		},
		Summary: "Build #7 of main failed",
	}
}

func TestPendingActionRepo_SaveLoadDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPendingActionRepo(db)
	ctx := context.Background()

	set := makeActionSet("set-1")
	require.NoError(t, repo.Save(ctx, set))

	got, err := repo.Load(ctx, "set-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, set, *got)

	require.NoError(t, repo.Delete(ctx, "set-1"))

	got, err = repo.Load(ctx, "set-1")
	require.NoError(t, err)
	assert.Nil(t, got, "deleted set should be gone")
}

func TestPendingActionRepo_LoadUnknown(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPendingActionRepo(db)

	got, err := repo.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got, "unknown id should return nil, not an error")
}

func TestPendingActionRepo_SaveReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPendingActionRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, makeActionSet("set-1")))

	updated := makeActionSet("set-1")
	updated.Summary = "Build #8 of main failed"
	require.NoError(t, repo.Save(ctx, updated))

	got, err := repo.Load(ctx, "set-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Build #8 of main failed", got.Summary)
}

func TestPendingActionRepo_DeleteUnknownIsNoop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPendingActionRepo(db)

	require.NoError(t, repo.Delete(context.Background(), "missing"))
}
