// Package rules holds the declarative rule table the engine evaluates.
// The table is built once at startup from a YAML source; the engine never
// interprets anything beyond the compiled predicates and templates here.
package rules

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

// Condition is the conjunction of optional comparisons against the
// evaluation context. A zero Condition matches every context.
type Condition struct {
	CommitHasEverSucceeded         *bool
	FailuresForCommitOnBranch      *int
	MinFailuresForCommitOnBranch   *int
	MinConsecutiveFailuresOnBranch *int
	CurrentBranchStatus            *model.BuildStatus
}

// Matches reports whether every set comparison holds for the context.
func (c Condition) Matches(ctx model.EvaluationContext) bool {
	if c.CommitHasEverSucceeded != nil && ctx.CommitHasEverSucceeded != *c.CommitHasEverSucceeded {
		return false
	}
	if c.FailuresForCommitOnBranch != nil && ctx.FailuresForCommitOnBranch != *c.FailuresForCommitOnBranch {
		return false
	}
	if c.MinFailuresForCommitOnBranch != nil && ctx.FailuresForCommitOnBranch < *c.MinFailuresForCommitOnBranch {
		return false
	}
	if c.MinConsecutiveFailuresOnBranch != nil && ctx.ConsecutiveFailuresOnBranch < *c.MinConsecutiveFailuresOnBranch {
		return false
	}
	if c.CurrentBranchStatus != nil && ctx.CurrentBranchStatus != *c.CurrentBranchStatus {
		return false
	}
	return true
}

// templateView is the data exposed to message templates.
type templateView struct {
	Branch              string
	Commit              string
	ShortCommit         string
	BuildURL            string
	LastPassingCommit   string
	ConsecutiveFailures int
}

func newTemplateView(ctx model.EvaluationContext) templateView {
	view := templateView{
		Branch:              ctx.Branch,
		Commit:              ctx.Commit,
		ShortCommit:         model.ShortCommit(ctx.Commit),
		LastPassingCommit:   ctx.LastPassingCommitForBranch,
		ConsecutiveFailures: ctx.ConsecutiveFailuresOnBranch,
	}
	if report, ok := ctx.Event.(model.BuildReport); ok {
		view.BuildURL = report.URL
	}
	return view
}

// ActionTemplate produces one ProposedAction from a matching context.
// Message and Body are optional and only meaningful for post_message and
// show_text kinds.
type ActionTemplate struct {
	Kind        model.ActionKind
	Disposition model.Disposition
	Title       string
	Channel     string
	Message     *template.Template
	Body        *template.Template
}

// Render instantiates the template against the context.
func (t ActionTemplate) Render(ctx model.EvaluationContext) (model.ProposedAction, error) {
	params := map[string]string{
		"branch": ctx.Branch,
	}
	if ctx.Commit != "" {
		params["commit"] = ctx.Commit
	}
	if t.Channel != "" {
		params["channel"] = t.Channel
	}

	view := newTemplateView(ctx)
	if t.Message != nil {
		text, err := renderTemplate(t.Message, view)
		if err != nil {
			return model.ProposedAction{}, fmt.Errorf("render message for %s: %w", t.Kind, err)
		}
		params["message"] = text
	}
	if t.Body != nil {
		text, err := renderTemplate(t.Body, view)
		if err != nil {
			return model.ProposedAction{}, fmt.Errorf("render body for %s: %w", t.Kind, err)
		}
		params["body"] = text
	}

	return model.ProposedAction{
		Kind:        t.Kind,
		Disposition: t.Disposition,
		Title:       t.Title,
		Params:      params,
	}, nil
}

func renderTemplate(tmpl *template.Template, view templateView) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, view); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Rule couples a trigger with a predicate and the ordered actions it
// proposes.
type Rule struct {
	Trigger model.Trigger
	When    Condition
	Then    []ActionTemplate
}

// Produce renders the rule's actions in declaration order.
func (r Rule) Produce(ctx model.EvaluationContext) ([]model.ProposedAction, error) {
	actions := make([]model.ProposedAction, 0, len(r.Then))
	for _, tmpl := range r.Then {
		action, err := tmpl.Render(ctx)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// Table is the rule set grouped by trigger, preserving declaration order
// within each trigger.
type Table struct {
	byTrigger map[model.Trigger][]Rule
}

// NewTable groups the rules by trigger.
func NewTable(ruleList []Rule) *Table {
	byTrigger := make(map[model.Trigger][]Rule)
	for _, rule := range ruleList {
		byTrigger[rule.Trigger] = append(byTrigger[rule.Trigger], rule)
	}
	return &Table{byTrigger: byTrigger}
}

// Match returns the rules for the trigger in declaration order.
func (t *Table) Match(trigger model.Trigger) []Rule {
	return t.byTrigger[trigger]
}
