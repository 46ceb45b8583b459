package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeReport builds a report with a fixed timestamp so round-trips compare
// exactly.
func makeReport(branch, commit string, number int, status model.BuildStatus) model.BuildReport {
	return model.BuildReport{
		Name:        "example",
		Branch:      branch,
		Commit:      commit,
		BuildNumber: number,
		Status:      status,
		JobName:     "example",
		URL:         "https://ci.example.com/job/example/1/",
		ReceivedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(number) * time.Minute),
	}
}

func TestHistoryRepo_BuildsForBranch_MostRecentFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 1, model.BuildPassed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c2", 2, model.BuildFailed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("feature/x", "c3", 3, model.BuildFailed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c2", 4, model.BuildFailed)))

	got, err := repo.BuildsForBranch(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 4, got[0].BuildNumber)
	assert.Equal(t, 2, got[1].BuildNumber)
	assert.Equal(t, 1, got[2].BuildNumber)
	assert.Equal(t, "c2", got[0].Commit)
	assert.Equal(t, model.BuildFailed, got[0].Status)
	assert.Equal(t, makeReport("main", "c2", 4, model.BuildFailed).ReceivedAt, got[0].ReceivedAt)
}

func TestHistoryRepo_LastBuild(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	got, err := repo.LastBuild(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, got, "no history should return nil")

	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 1, model.BuildPassed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c2", 2, model.BuildFailed)))

	got, err = repo.LastBuild(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c2", got.Commit)
	assert.Equal(t, model.BuildFailed, got.Status)
}

func TestHistoryRepo_HasEverSucceeded(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 1, model.BuildFailed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("feature/x", "c1", 2, model.BuildPassed)))

	// A pass on any branch counts.
	ok, err := repo.HasEverSucceeded(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasEverSucceeded(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryRepo_LastPassingBuild(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	got, err := repo.LastPassingBuild(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 1, model.BuildPassed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c2", 2, model.BuildPassed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c3", 3, model.BuildFailed)))

	got, err = repo.LastPassingBuild(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c2", got.Commit)
}

func TestHistoryRepo_CountFailuresForCommitOnBranch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 1, model.BuildFailed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 2, model.BuildFailed)))
	require.NoError(t, repo.RecordBuild(ctx, makeReport("main", "c1", 3, model.BuildPassed)))
	// Same commit failing elsewhere does not count for main.
	require.NoError(t, repo.RecordBuild(ctx, makeReport("feature/x", "c1", 4, model.BuildFailed)))

	count, err := repo.CountFailuresForCommitOnBranch(ctx, "c1", "main")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHistoryRepo_Merges(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	got, err := repo.LastMerge(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	first := model.PullRequestMergedEvent{
		ID:           41,
		Title:        "Add widget",
		Author:       "alice",
		SourceBranch: "feature/widget",
		TargetBranch: "main",
		MergeCommit:  "m1",
		ReceivedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	second := model.PullRequestMergedEvent{
		ID:           42,
		Title:        "Fix widget",
		Author:       "bob",
		SourceBranch: "fix/widget",
		TargetBranch: "develop",
		MergeCommit:  "m2",
		ReceivedAt:   time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.RecordMerge(ctx, first))
	require.NoError(t, repo.RecordMerge(ctx, second))

	got, err = repo.LastMerge(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42, got.ID)

	got, err = repo.LastMerge(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first, *got)

	got, err = repo.FindMergeByCommit(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second, *got)

	got, err = repo.FindMergeByCommit(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
