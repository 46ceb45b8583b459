// Package git implements the SCMService port against a local bare mirror
// of the configured remote, using go-git for plumbing.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/buildwarden/buildwarden/internal/config"
	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SCMService = (*Service)(nil)

// mirrorRefSpec maps remote heads straight onto local heads so the bare
// mirror's branch refs always track the remote after a fetch.
var mirrorRefSpec = gitconfig.RefSpec("+refs/heads/*:refs/heads/*")

// Service applies revert remediation through a bare local mirror. It is
// not safe for concurrent use; callers serialize access to the working
// copy.
type Service struct {
	cfg    config.Git
	runner CommandRunner
}

// NewService creates a git Service for the configured remote and mirror
// directory.
func NewService(cfg config.Git, runner CommandRunner) *Service {
	return &Service{cfg: cfg, runner: runner}
}

// RevertCommit fetches the latest refs, points the mirror at the branch,
// creates a commit inverting the target commit, and pushes when push is
// enabled. Single-parent commits are reverted in process; merge commits
// are delegated to the git command line with the first parent as
// mainline.
func (s *Service) RevertCommit(ctx context.Context, commit, branch string) error {
	repo, err := s.openOrClone(ctx)
	if err != nil {
		return err
	}

	if err := s.fetchCheckout(ctx, repo, branch); err != nil {
		return err
	}

	target, err := repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return fmt.Errorf("resolve commit %s: %w", model.ShortCommit(commit), err)
	}

	if target.NumParents() == 1 {
		if err := revertInProcess(repo, target, branch); err != nil {
			return fmt.Errorf("revert commit %s: %w", model.ShortCommit(commit), err)
		}
	} else {
		// In-process revert machinery does not support multi-parent
		// commits; delegate to the git CLI with the first parent as
		// mainline.
		slog.Debug("delegating merge commit revert to git CLI", "commit", model.ShortCommit(commit))
		if err := s.runner.Run(ctx, s.cfg.LocalDir, "git", "revert", commit, "--mainline", "1", "--no-edit"); err != nil {
			return fmt.Errorf("revert merge commit %s: %w", model.ShortCommit(commit), err)
		}
	}

	if err := s.verifyBare(repo); err != nil {
		return err
	}

	if !s.cfg.PushChanges {
		slog.Info("push disabled, revert kept local only", "commit", model.ShortCommit(commit), "branch", branch)
		return nil
	}

	slog.Info("pushing revert to remote", "branch", branch)
	return s.push(ctx, repo, branch)
}

// LockBranch is unsupported on plain git; the hosted SCM adapter owns
// branch restrictions.
func (s *Service) LockBranch(_ context.Context, branch string) error {
	return fmt.Errorf("lock branch %s: %w", branch, model.ErrNotImplemented)
}

// openOrClone opens the existing mirror, or wipes any stale directory
// contents and performs a fresh bare clone.
func (s *Service) openOrClone(ctx context.Context) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(s.cfg.LocalDir)
	if err == nil {
		slog.Debug("existing bare mirror found", "dir", s.cfg.LocalDir)
		return repo, nil
	}
	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open mirror at %s: %w", s.cfg.LocalDir, err)
	}

	slog.Info("cloning remote repository", "url", s.cfg.RemoteURL, "dir", s.cfg.LocalDir)
	start := time.Now()

	if err := os.RemoveAll(s.cfg.LocalDir); err != nil {
		return nil, fmt.Errorf("remove stale mirror dir %s: %w", s.cfg.LocalDir, err)
	}

	repo, err = gogit.PlainInit(s.cfg.LocalDir, true)
	if err != nil {
		return nil, fmt.Errorf("init bare mirror at %s: %w", s.cfg.LocalDir, err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name:  "origin",
		URLs:  []string{s.cfg.RemoteURL},
		Fetch: []gitconfig.RefSpec{mirrorRefSpec},
	})
	if err != nil {
		return nil, fmt.Errorf("configure remote: %w", err)
	}
	if err := s.fetchRefs(ctx, repo); err != nil {
		return nil, err
	}

	slog.Info("cloned remote repository", "dir", s.cfg.LocalDir, "took", time.Since(start).Round(time.Millisecond))
	return repo, nil
}

// fetchCheckout fetches the latest refs, pruning deleted remote refs, and
// points HEAD at the branch. The mirror must still be bare afterward.
func (s *Service) fetchCheckout(ctx context.Context, repo *gogit.Repository, branch string) error {
	if err := s.fetchRefs(ctx, repo); err != nil {
		return err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if _, err := repo.Reference(refName, true); err != nil {
		return fmt.Errorf("branch %s not found in mirror: %w", branch, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, refName)); err != nil {
		return fmt.Errorf("point HEAD at branch %s: %w", branch, err)
	}

	return s.verifyBare(repo)
}

func (s *Service) fetchRefs(ctx context.Context, repo *gogit.Repository) error {
	auth, err := s.transportAuth()
	if err != nil {
		return err
	}

	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{mirrorRefSpec},
		Prune:      true,
		Force:      true,
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch refs: %w", err)
	}
	return nil
}

func (s *Service) push(ctx context.Context, repo *gogit.Repository, branch string) error {
	auth, err := s.transportAuth()
	if err != nil {
		return err
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push branch %s: %w", branch, err)
	}
	return nil
}

// verifyBare re-checks the mirror's bare state. A non-bare mirror means
// something checked out a working tree; that is an invariant violation,
// not a recoverable condition.
func (s *Service) verifyBare(repo *gogit.Repository) error {
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("read mirror config: %w", err)
	}
	if !cfg.Core.IsBare {
		return fmt.Errorf("mirror at %s is no longer bare", s.cfg.LocalDir)
	}
	return nil
}

// transportAuth builds the auth method for the configured remote. SSH
// remotes get password auth and the host-key-checking policy; HTTP(S)
// remotes get basic auth only when both username and password are
// configured.
func (s *Service) transportAuth() (transport.AuthMethod, error) {
	if strings.HasPrefix(s.cfg.RemoteURL, "http://") || strings.HasPrefix(s.cfg.RemoteURL, "https://") {
		if s.cfg.Username != "" && s.cfg.Password != "" {
			slog.Debug("configuring repository transport with HTTP credentials")
			return &githttp.BasicAuth{Username: s.cfg.Username, Password: s.cfg.Password}, nil
		}
		slog.Debug("no HTTP credentials configured, assuming unauthenticated transport")
		return nil, nil
	}
	if isLocalPath(s.cfg.RemoteURL) {
		return nil, nil
	}

	user := s.cfg.Username
	if user == "" {
		user = "git"
	}
	auth := &gitssh.Password{User: user, Password: s.cfg.Password}
	if s.cfg.StrictHostKeyChecking != nil && !*s.cfg.StrictHostKeyChecking {
		slog.Debug("SSH strict host key checking disabled")
		auth.HostKeyCallback = cryptossh.InsecureIgnoreHostKey()
	}
	return auth, nil
}

// isLocalPath reports whether the remote is a filesystem path, which
// needs no transport auth.
func isLocalPath(url string) bool {
	return strings.HasPrefix(url, "/") || strings.HasPrefix(url, "file://") || strings.HasPrefix(url, ".")
}
