package git

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildwarden/buildwarden/internal/config"
)

// spyRunner records CLI delegations instead of executing them.
type spyRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *spyRunner) Run(_ context.Context, dir, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := append([]string{dir, name}, args...)
	r.calls = append(r.calls, call)
	return r.err
}

// sourceRepo is a local upstream repository driven through a worktree.
type sourceRepo struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newSourceRepo(t *testing.T) *sourceRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	return &sourceRepo{t: t, dir: dir, repo: repo}
}

func (s *sourceRepo) write(path, content string) {
	s.t.Helper()
	full := filepath.Join(s.dir, path)
	require.NoError(s.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(s.t, os.WriteFile(full, []byte(content), 0o644))
}

func (s *sourceRepo) remove(path string) {
	s.t.Helper()
	require.NoError(s.t, os.Remove(filepath.Join(s.dir, path)))
}

func (s *sourceRepo) commit(message string, parents ...plumbing.Hash) plumbing.Hash {
	s.t.Helper()
	wt, err := s.repo.Worktree()
	require.NoError(s.t, err)
	require.NoError(s.t, wt.AddWithOptions(&gogit.AddOptions{All: true}))

	signature := &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author:    signature,
		Committer: signature,
		Parents:   parents,
	})
	require.NoError(s.t, err)
	return hash
}

func newTestService(t *testing.T, src *sourceRepo, runner CommandRunner) *Service {
	t.Helper()
	if runner == nil {
		runner = &spyRunner{}
	}
	return NewService(config.Git{
		RemoteURL: src.dir,
		LocalDir:  filepath.Join(t.TempDir(), "mirror"),
	}, runner)
}

func mirrorHead(t *testing.T, svc *Service, branch string) (*gogit.Repository, *object.Commit) {
	t.Helper()
	repo, err := gogit.PlainOpen(svc.cfg.LocalDir)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	head, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return repo, head
}

// Reverting the branch tip of a single-parent commit restores the parent's
// exact tree in a new commit on top of the old head.
func TestRevertCommit_SingleParent(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.write("docs/b.txt", "stable\n")
	first := src.commit("add a and b")
	src.write("a.txt", "two\n")
	src.remove("docs/b.txt")
	second := src.commit("break things")

	svc := newTestService(t, src, nil)
	require.NoError(t, svc.RevertCommit(context.Background(), second.String(), "master"))

	repo, head := mirrorHead(t, svc, "master")

	assert.Contains(t, head.Message, "Revert")
	assert.Contains(t, head.Message, second.String())
	require.Equal(t, 1, head.NumParents())
	parent, err := head.Parent(0)
	require.NoError(t, err)
	assert.Equal(t, second, parent.Hash, "revert commits on top of the old head")

	firstCommit, err := repo.CommitObject(first)
	require.NoError(t, err)
	assert.Equal(t, firstCommit.TreeHash, head.TreeHash, "reverting the tip restores the parent tree exactly")

	// The mirror stays bare throughout.
	cfg, err := repo.Config()
	require.NoError(t, err)
	assert.True(t, cfg.Core.IsBare)
}

func TestRevertCommit_RevertBelowTip(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.write("b.txt", "keep\n")
	src.commit("initial")
	src.write("a.txt", "two\n")
	target := src.commit("change a")
	src.write("c.txt", "later\n")
	src.commit("add c")

	svc := newTestService(t, src, nil)
	require.NoError(t, svc.RevertCommit(context.Background(), target.String(), "master"))

	_, head := mirrorHead(t, svc, "master")
	tree, err := head.Tree()
	require.NoError(t, err)

	file, err := tree.File("a.txt")
	require.NoError(t, err)
	content, err := file.Contents()
	require.NoError(t, err)
	assert.Equal(t, "one\n", content, "a.txt rolls back to the pre-target version")

	_, err = tree.File("c.txt")
	require.NoError(t, err, "later unrelated changes survive")
}

// A path changed again after the target commit cannot be reverted
// cleanly.
func TestRevertCommit_ConflictWithLaterChange(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.commit("initial")
	src.write("a.txt", "two\n")
	target := src.commit("change a")
	src.write("a.txt", "three\n")
	src.commit("change a again")

	svc := newTestService(t, src, nil)
	err := svc.RevertCommit(context.Background(), target.String(), "master")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRevertConflict)
}

// Merge commits are delegated to the git CLI with the first parent as
// mainline.
func TestRevertCommit_MergeCommitDelegatesToCLI(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	first := src.commit("initial")
	src.write("a.txt", "two\n")
	second := src.commit("mainline change")
	src.write("merged.txt", "feature\n")
	merge := src.commit("merge feature", second, first)

	runner := &spyRunner{}
	svc := newTestService(t, src, runner)
	require.NoError(t, svc.RevertCommit(context.Background(), merge.String(), "master"))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		svc.cfg.LocalDir, "git", "revert", merge.String(), "--mainline", "1", "--no-edit",
	}, runner.calls[0])
}

func TestRevertCommit_UnknownCommit(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.commit("initial")

	svc := newTestService(t, src, nil)
	err := svc.RevertCommit(context.Background(), "0123456789abcdef0123456789abcdef01234567", "master")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve commit")
}

func TestRevertCommit_UnknownBranch(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	commit := src.commit("initial")

	svc := newTestService(t, src, nil)
	err := svc.RevertCommit(context.Background(), commit.String(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in mirror")
}

// A second revert reuses the existing mirror instead of recloning it.
func TestRevertCommit_ReusesMirror(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.commit("initial")
	src.write("a.txt", "two\n")
	tip := src.commit("change a")

	svc := newTestService(t, src, nil)
	require.NoError(t, svc.RevertCommit(context.Background(), tip.String(), "master"))

	// Marker survives the second call only if the mirror is reused.
	marker := filepath.Join(svc.cfg.LocalDir, "marker")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	// The forced fetch resets the un-pushed branch back to the remote
	// tip, so the same revert applies cleanly again.
	require.NoError(t, svc.RevertCommit(context.Background(), tip.String(), "master"))

	_, err := os.Stat(marker)
	assert.NoError(t, err)
}

// With pushes enabled the revert lands on the upstream, the upstream and
// mirror agree on the branch tip, and the mirror stays bare.
func TestRevertCommit_PushesToRemote(t *testing.T) {
	src := newSourceRepo(t)
	src.write("a.txt", "one\n")
	src.commit("add a")
	src.write("a.txt", "two\n")
	tip := src.commit("change a")

	upstream := filepath.Join(t.TempDir(), "upstream.git")
	_, err := gogit.PlainClone(upstream, true, &gogit.CloneOptions{URL: src.dir})
	require.NoError(t, err)

	svc := NewService(config.Git{
		RemoteURL:   upstream,
		LocalDir:    filepath.Join(t.TempDir(), "mirror"),
		PushChanges: true,
	}, &spyRunner{})

	require.NoError(t, svc.RevertCommit(context.Background(), tip.String(), "master"))

	remote, err := gogit.PlainOpen(upstream)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	pushed, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Contains(t, pushed.Message, "Revert")
	require.Equal(t, 1, pushed.NumParents())
	parent, err := pushed.Parent(0)
	require.NoError(t, err)
	assert.Equal(t, tip, parent.Hash)

	mirror, head := mirrorHead(t, svc, "master")
	assert.Equal(t, ref.Hash(), head.Hash)
	cfg, err := mirror.Config()
	require.NoError(t, err)
	assert.True(t, cfg.Core.IsBare)
}

func TestLockBranch_NotImplemented(t *testing.T) {
	svc := NewService(config.Git{RemoteURL: "/tmp/none", LocalDir: t.TempDir()}, &spyRunner{})
	err := svc.LockBranch(context.Background(), "main")
	require.Error(t, err)
}
