package application

import (
	"context"
	"errors"
	"sync"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

var errStoreDown = errors.New("store down")

// fakeNotifier records every posted and updated message.
type fakeNotifier struct {
	mu      sync.Mutex
	posts   []model.NotificationMessage
	updates []model.NotificationMessage
	postErr error
}

func (n *fakeNotifier) Post(_ context.Context, msg model.NotificationMessage) (model.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.postErr != nil {
		return model.MessageRef{}, n.postErr
	}
	n.posts = append(n.posts, msg)
	return model.MessageRef{Channel: msg.Channel, Timestamp: "1234.5678"}, nil
}

func (n *fakeNotifier) Update(_ context.Context, _ model.MessageRef, msg model.NotificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, msg)
	return nil
}

func (n *fakeNotifier) posted() []model.NotificationMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.NotificationMessage(nil), n.posts...)
}

// fakeSCM counts revert calls and optionally blocks until released, so
// tests can hold the working copy lock.
type fakeSCM struct {
	mu        sync.Mutex
	reverts   []string
	revertErr error
	block     chan struct{} // when non-nil, RevertCommit waits on it
}

func (s *fakeSCM) RevertCommit(ctx context.Context, commit, _ string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revertErr != nil {
		return s.revertErr
	}
	s.reverts = append(s.reverts, commit)
	return nil
}

func (s *fakeSCM) LockBranch(_ context.Context, _ string) error {
	return model.ErrNotImplemented
}

func (s *fakeSCM) revertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reverts)
}

// fakeHost tracks branch restrictions in memory, assigning ids on create.
type fakeHost struct {
	mu           sync.Mutex
	nextID       int
	restrictions []model.BranchRestriction
	creates      int
	updates      int
}

func (h *fakeHost) ListBranchRestrictions(_ context.Context) ([]model.BranchRestriction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.BranchRestriction(nil), h.restrictions...), nil
}

func (h *fakeHost) CreateBranchRestriction(_ context.Context, restriction model.BranchRestriction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	restriction.ID = h.nextID
	h.restrictions = append(h.restrictions, restriction)
	h.creates++
	return nil
}

func (h *fakeHost) UpdateBranchRestriction(_ context.Context, id int, restriction model.BranchRestriction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, current := range h.restrictions {
		if current.ID == id {
			restriction.ID = id
			h.restrictions[i] = restriction
			h.updates++
			return nil
		}
	}
	return errors.New("unknown restriction id")
}

// fakeTrigger records rebuild requests.
type fakeTrigger struct {
	mu       sync.Mutex
	branches []string
	err      error
}

func (t *fakeTrigger) TriggerRebuild(_ context.Context, branch string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.branches = append(t.branches, branch)
	return "queue/42", nil
}

// failingHistory fails every query, for exercising the abort-on-history
// error path.
type failingHistory struct{}

func (failingHistory) RecordBuild(context.Context, model.BuildReport) error { return errStoreDown }
func (failingHistory) RecordMerge(context.Context, model.PullRequestMergedEvent) error {
	return errStoreDown
}
func (failingHistory) LastBuild(context.Context, string) (*model.BuildReport, error) {
	return nil, errStoreDown
}
func (failingHistory) BuildsForBranch(context.Context, string) ([]model.BuildReport, error) {
	return nil, errStoreDown
}
func (failingHistory) HasEverSucceeded(context.Context, string) (bool, error) {
	return false, errStoreDown
}
func (failingHistory) LastPassingBuild(context.Context, string) (*model.BuildReport, error) {
	return nil, errStoreDown
}
func (failingHistory) CountFailuresForCommitOnBranch(context.Context, string, string) (int, error) {
	return 0, errStoreDown
}
func (failingHistory) LastMerge(context.Context, string) (*model.PullRequestMergedEvent, error) {
	return nil, errStoreDown
}
func (failingHistory) FindMergeByCommit(context.Context, string) (*model.PullRequestMergedEvent, error) {
	return nil, errStoreDown
}
