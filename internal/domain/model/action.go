package model

import "fmt"

// ActionKind is the closed set of remediation actions the bot can take.
type ActionKind string

const (
	ActionRevertCommit  ActionKind = "revert_commit"
	ActionLockBranch    ActionKind = "lock_branch"
	ActionRebuildBranch ActionKind = "rebuild_branch"
	ActionPostMessage   ActionKind = "post_message"
	ActionShowText      ActionKind = "show_text"
)

// Disposition says whether a proposed action executes unconditionally or
// needs operator confirmation first.
type Disposition string

const (
	DispositionPerform Disposition = "perform"
	DispositionSuggest Disposition = "suggest"
)

// ProposedAction is a single remediation step derived by the rule engine.
// Params carry the kind-specific arguments (branch, commit, message text).
type ProposedAction struct {
	Kind        ActionKind        `json:"kind"`
	Disposition Disposition       `json:"disposition"`
	Title       string            `json:"title"`
	Params      map[string]string `json:"params"`
}

// Param returns the named parameter or the empty string.
func (a ProposedAction) Param(name string) string {
	return a.Params[name]
}

// Describe renders the action as a confirmation prompt.
func (a ProposedAction) Describe() string {
	switch a.Kind {
	case ActionRevertCommit:
		return fmt.Sprintf("revert commit %s on branch %s", ShortCommit(a.Param("commit")), a.Param("branch"))
	case ActionLockBranch:
		return fmt.Sprintf("lock branch %s", a.Param("branch"))
	case ActionRebuildBranch:
		return fmt.Sprintf("rebuild branch %s", a.Param("branch"))
	case ActionPostMessage:
		return "post a message"
	case ActionShowText:
		if a.Title != "" {
			return a.Title
		}
		return "show instructions"
	default:
		return string(a.Kind)
	}
}

// ActionSet groups the suggested actions of one evaluation under a single
// correlation id. The id is the callback key for chat buttons and the
// pending action store; exactly one action in a set is ever resolved.
type ActionSet struct {
	ID      string           `json:"id"`
	Actions []ProposedAction `json:"actions"`
	Summary string           `json:"summary"`
}

// Analysis is the unit handed to the notification gateway: a deterministic
// description of what happened plus any actions awaiting confirmation.
type Analysis struct {
	Description string
	ActionSet   *ActionSet
}
