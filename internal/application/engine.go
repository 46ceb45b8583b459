package application

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/rules"
)

// Engine evaluates the rule table against an evaluation context. It is
// stateless and side-effect-free; executing the resulting actions is the
// caller's job.
type Engine struct {
	table *rules.Table
}

// NewEngine creates an Engine over the given rule table.
func NewEngine(table *rules.Table) *Engine {
	return &Engine{table: table}
}

// Analyze walks the rules for each trigger in order, collecting the
// actions of every rule whose predicate holds. Perform-disposition
// actions are returned separately for immediate execution; suggest
// actions are grouped under a freshly allocated action set. The analysis
// description depends only on the event, never on which rules matched.
func (e *Engine) Analyze(evalCtx model.EvaluationContext, triggers []model.Trigger) (model.Analysis, []model.ProposedAction, error) {
	var proposed []model.ProposedAction
	for _, trigger := range triggers {
		for _, rule := range e.table.Match(trigger) {
			if !rule.When.Matches(evalCtx) {
				continue
			}
			actions, err := rule.Produce(evalCtx)
			if err != nil {
				return model.Analysis{}, nil, fmt.Errorf("produce actions for trigger %s: %w", trigger, err)
			}
			proposed = append(proposed, actions...)
		}
	}

	var performs []model.ProposedAction
	var suggests []model.ProposedAction
	for _, action := range proposed {
		switch action.Disposition {
		case model.DispositionPerform:
			performs = append(performs, action)
		case model.DispositionSuggest:
			suggests = append(suggests, action)
		}
	}

	analysis := model.Analysis{Description: Describe(evalCtx)}
	if len(suggests) > 0 {
		// Collision probability over the process lifetime is negligible;
		// the id is treated as unique without a store check.
		analysis.ActionSet = &model.ActionSet{
			ID:      uuid.NewString(),
			Actions: suggests,
			Summary: evalCtx.Summary(),
		}
	}

	return analysis, performs, nil
}

// DeriveTriggers maps an event to its rule trigger categories. A failed
// build additionally activates branch_starts_failing when the previous
// report on the branch was PASSED or absent; symmetric for passing
// builds. The periodic trigger is never derived from events.
func DeriveTriggers(event model.Event, previous model.BuildStatus) []model.Trigger {
	switch e := event.(type) {
	case model.BuildReport:
		switch e.Status {
		case model.BuildFailed:
			if previous != model.BuildFailed {
				return []model.Trigger{model.TriggerBuildFailed, model.TriggerBranchStartsFailing}
			}
			return []model.Trigger{model.TriggerBuildFailed}
		case model.BuildPassed:
			if previous != model.BuildPassed {
				return []model.Trigger{model.TriggerBuildPassed, model.TriggerBranchStartsPassing}
			}
			return []model.Trigger{model.TriggerBuildPassed}
		default:
			return nil
		}
	case model.PullRequestMergedEvent:
		return []model.Trigger{model.TriggerPullRequestMerged}
	case model.PullRequestUpdatedEvent:
		return []model.Trigger{model.TriggerPullRequestModified}
	default:
		return nil
	}
}

// Describe renders a deterministic, human-readable account of what
// happened, so operators always see the event even when no rule fires.
func Describe(evalCtx model.EvaluationContext) string {
	switch e := evalCtx.Event.(type) {
	case model.BuildReport:
		desc := fmt.Sprintf("Build #%d of %s on branch `%s` %s", e.BuildNumber, e.Name, e.Branch, e.Status)
		if e.Commit != "" {
			desc += fmt.Sprintf(" (commit %s)", model.ShortCommit(e.Commit))
		}
		if e.URL != "" {
			desc += ": " + e.URL
		}
		return desc
	case model.PullRequestMergedEvent:
		return fmt.Sprintf("PR #%d %q by %s merged into `%s` (commit %s)",
			e.ID, e.Title, e.Author, e.TargetBranch, model.ShortCommit(e.MergeCommit))
	case model.PullRequestUpdatedEvent:
		return fmt.Sprintf("PR #%d %q by %s updated (target `%s`, %d changed files)",
			e.ID, e.Title, e.Author, e.TargetBranch, len(e.ChangedFiles))
	default:
		return fmt.Sprintf("Scheduled check of branch `%s`: status %s, %d consecutive failure(s)",
			evalCtx.Branch, evalCtx.CurrentBranchStatus, evalCtx.ConsecutiveFailuresOnBranch)
	}
}
