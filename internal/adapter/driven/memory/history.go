// Package memory provides in-process store implementations used when no
// database path is configured. State is lost on restart.
package memory

import (
	"context"
	"sync"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore keeps build reports and merged PR events in memory,
// ordered oldest first internally.
type HistoryStore struct {
	mu     sync.RWMutex
	builds []model.BuildReport
	merges []model.PullRequestMergedEvent
}

// NewHistoryStore creates an empty in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// RecordBuild appends a build report.
func (s *HistoryStore) RecordBuild(_ context.Context, report model.BuildReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds = append(s.builds, report)
	return nil
}

// RecordMerge appends a merged PR event.
func (s *HistoryStore) RecordMerge(_ context.Context, event model.PullRequestMergedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges = append(s.merges, event)
	return nil
}

// LastBuild returns the most recent report for the branch, or nil.
func (s *HistoryStore) LastBuild(_ context.Context, branch string) (*model.BuildReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.builds) - 1; i >= 0; i-- {
		if s.builds[i].Branch == branch {
			report := s.builds[i]
			return &report, nil
		}
	}
	return nil, nil
}

// BuildsForBranch returns the branch's reports, most recent first.
func (s *HistoryStore) BuildsForBranch(_ context.Context, branch string) ([]model.BuildReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var reports []model.BuildReport
	for i := len(s.builds) - 1; i >= 0; i-- {
		if s.builds[i].Branch == branch {
			reports = append(reports, s.builds[i])
		}
	}
	return reports, nil
}

// HasEverSucceeded reports whether the commit has a PASSED report on any
// branch.
func (s *HistoryStore) HasEverSucceeded(_ context.Context, commit string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, report := range s.builds {
		if report.Commit == commit && report.Status == model.BuildPassed {
			return true, nil
		}
	}
	return false, nil
}

// LastPassingBuild returns the most recent PASSED report for the branch,
// or nil.
func (s *HistoryStore) LastPassingBuild(_ context.Context, branch string) (*model.BuildReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.builds) - 1; i >= 0; i-- {
		if s.builds[i].Branch == branch && s.builds[i].Status == model.BuildPassed {
			report := s.builds[i]
			return &report, nil
		}
	}
	return nil, nil
}

// CountFailuresForCommitOnBranch counts FAILED reports for the commit on
// the branch.
func (s *HistoryStore) CountFailuresForCommitOnBranch(_ context.Context, commit, branch string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, report := range s.builds {
		if report.Commit == commit && report.Branch == branch && report.Status == model.BuildFailed {
			count++
		}
	}
	return count, nil
}

// LastMerge returns the most recent merged PR event, optionally filtered
// by target branch.
func (s *HistoryStore) LastMerge(_ context.Context, branch string) (*model.PullRequestMergedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.merges) - 1; i >= 0; i-- {
		if branch == "" || s.merges[i].TargetBranch == branch {
			event := s.merges[i]
			return &event, nil
		}
	}
	return nil, nil
}

// FindMergeByCommit returns the merged PR whose merge commit matches, or
// nil.
func (s *HistoryStore) FindMergeByCommit(_ context.Context, commit string) (*model.PullRequestMergedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.merges) - 1; i >= 0; i-- {
		if s.merges[i].MergeCommit == commit {
			event := s.merges[i]
			return &event, nil
		}
	}
	return nil, nil
}
