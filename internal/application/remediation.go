package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Remediation executes proposed actions against the configured backends.
// Actions touching the local git working copy are serialized: clone,
// fetch, checkout and push must never interleave across concurrent
// requests. A second request blocks until the first completes, bounded by
// the configured timeout, beyond which it fails with model.ErrSCMBusy.
type Remediation struct {
	scm      driven.SCMService
	host     driven.SCMHost // nil when no restriction API is configured
	trigger  driven.BuildTrigger
	notifier driven.Notifier
	channel  string

	scmLock     chan struct{}
	lockTimeout time.Duration
}

// NewRemediation creates a Remediation executor. host and trigger may be
// nil when the corresponding backend is not configured; the matching
// action kinds then fail with a descriptive error.
func NewRemediation(
	scm driven.SCMService,
	host driven.SCMHost,
	trigger driven.BuildTrigger,
	notifier driven.Notifier,
	channel string,
	lockTimeout time.Duration,
) *Remediation {
	return &Remediation{
		scm:         scm,
		host:        host,
		trigger:     trigger,
		notifier:    notifier,
		channel:     channel,
		scmLock:     make(chan struct{}, 1),
		lockTimeout: lockTimeout,
	}
}

// Execute applies a single action. Failures are scoped to the action and
// never retried internally; callers report them onward.
func (r *Remediation) Execute(ctx context.Context, action model.ProposedAction) error {
	switch action.Kind {
	case model.ActionRevertCommit:
		return r.revertCommit(ctx, action.Param("commit"), action.Param("branch"))
	case model.ActionLockBranch:
		return r.lockBranch(ctx, action.Param("branch"))
	case model.ActionRebuildBranch:
		return r.rebuildBranch(ctx, action.Param("branch"))
	case model.ActionPostMessage:
		return r.postMessage(ctx, action)
	case model.ActionShowText:
		return r.showText(ctx, action)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (r *Remediation) revertCommit(ctx context.Context, commit, branch string) error {
	if commit == "" || branch == "" {
		return fmt.Errorf("revert requires commit and branch parameters")
	}

	release, err := r.acquireSCMLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	slog.Info("reverting commit", "commit", model.ShortCommit(commit), "branch", branch)
	if err := r.scm.RevertCommit(ctx, commit, branch); err != nil {
		return fmt.Errorf("revert commit %s on branch %s: %w", model.ShortCommit(commit), branch, err)
	}
	return nil
}

// lockBranch ensures both a push and a restrict_merges restriction exist
// for the exact branch name, updating in place when one already exists so
// repeated locks never duplicate restrictions.
func (r *Remediation) lockBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("lock requires a branch parameter")
	}
	if r.host == nil {
		return fmt.Errorf("lock branch %s: %w", branch, model.ErrNotImplemented)
	}

	slog.Info("locking branch", "branch", branch)
	existing, err := r.host.ListBranchRestrictions(ctx)
	if err != nil {
		return fmt.Errorf("list restrictions for branch %s: %w", branch, err)
	}

	for _, kind := range []model.RestrictionKind{model.RestrictionPush, model.RestrictionRestrictMerges} {
		if err := r.ensureRestriction(ctx, existing, kind, branch); err != nil {
			return fmt.Errorf("lock branch %s: %w", branch, err)
		}
	}
	return nil
}

func (r *Remediation) ensureRestriction(ctx context.Context, existing []model.BranchRestriction, kind model.RestrictionKind, pattern string) error {
	restriction := model.BranchRestriction{Kind: kind, Pattern: pattern}
	for _, current := range existing {
		if current.Kind == kind && current.Pattern == pattern {
			slog.Debug("updating branch restriction", "kind", kind, "pattern", pattern, "id", current.ID)
			return r.host.UpdateBranchRestriction(ctx, current.ID, restriction)
		}
	}
	slog.Debug("creating branch restriction", "kind", kind, "pattern", pattern)
	return r.host.CreateBranchRestriction(ctx, restriction)
}

func (r *Remediation) rebuildBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("rebuild requires a branch parameter")
	}
	if r.trigger == nil {
		return fmt.Errorf("rebuild branch %s: no CI backend configured", branch)
	}

	buildID, err := r.trigger.TriggerRebuild(ctx, branch)
	if err != nil {
		return fmt.Errorf("trigger rebuild of branch %s: %w", branch, err)
	}
	slog.Info("rebuild triggered", "branch", branch, "build_id", buildID)
	return nil
}

func (r *Remediation) postMessage(ctx context.Context, action model.ProposedAction) error {
	channel := action.Param("channel")
	if channel == "" {
		channel = r.channel
	}

	_, err := r.notifier.Post(ctx, model.NotificationMessage{
		Channel: channel,
		Text:    action.Param("message"),
		Color:   model.ColorGreen,
	})
	if err != nil {
		return fmt.Errorf("post message to %s: %w", channel, err)
	}
	return nil
}

func (r *Remediation) showText(ctx context.Context, action model.ProposedAction) error {
	channel := action.Param("channel")
	if channel == "" {
		channel = r.channel
	}

	_, err := r.notifier.Post(ctx, model.NotificationMessage{
		Channel: channel,
		Text:    action.Title,
		Attachments: []model.MessageAttachment{{
			Title: action.Title,
			Text:  action.Param("body"),
			Color: model.ColorBlack,
		}},
	})
	if err != nil {
		return fmt.Errorf("show text in %s: %w", channel, err)
	}
	return nil
}

// acquireSCMLock takes the working copy lock, waiting at most the
// configured timeout.
func (r *Remediation) acquireSCMLock(ctx context.Context) (func(), error) {
	timer := time.NewTimer(r.lockTimeout)
	defer timer.Stop()

	select {
	case r.scmLock <- struct{}{}:
		return func() { <-r.scmLock }, nil
	case <-timer.C:
		return nil, fmt.Errorf("waited %s for working copy lock: %w", r.lockTimeout, model.ErrSCMBusy)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
