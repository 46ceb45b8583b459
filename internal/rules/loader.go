package rules

import (
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/buildwarden/buildwarden/internal/domain/model"
)

//go:embed defaults.yaml
var defaultRules []byte

// ruleFile is the YAML document shape.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	On   string        `yaml:"on"`
	When conditionSpec `yaml:"when"`
	Then []actionSpec  `yaml:"then"`
}

type conditionSpec struct {
	CommitHasEverSucceeded         *bool   `yaml:"commit_has_ever_succeeded"`
	FailuresForCommitOnBranch      *int    `yaml:"failures_for_commit_on_branch"`
	MinFailuresForCommitOnBranch   *int    `yaml:"min_failures_for_commit_on_branch"`
	MinConsecutiveFailuresOnBranch *int    `yaml:"min_consecutive_failures_on_branch"`
	CurrentBranchStatus            *string `yaml:"current_branch_status"`
}

// actionSpec has exactly one of perform/suggest set, naming the action
// kind; the remaining fields parameterize it.
type actionSpec struct {
	Perform string `yaml:"perform"`
	Suggest string `yaml:"suggest"`
	Title   string `yaml:"title"`
	Channel string `yaml:"channel"`
	Message string `yaml:"message"`
	Body    string `yaml:"body"`
}

var validTriggers = map[string]model.Trigger{
	string(model.TriggerBuildFailed):         model.TriggerBuildFailed,
	string(model.TriggerBuildPassed):         model.TriggerBuildPassed,
	string(model.TriggerBranchStartsFailing): model.TriggerBranchStartsFailing,
	string(model.TriggerBranchStartsPassing): model.TriggerBranchStartsPassing,
	string(model.TriggerPullRequestMerged):   model.TriggerPullRequestMerged,
	string(model.TriggerPullRequestModified): model.TriggerPullRequestModified,
	string(model.TriggerRepositoryPeriodic):  model.TriggerRepositoryPeriodic,
}

var validKinds = map[string]model.ActionKind{
	string(model.ActionRevertCommit):  model.ActionRevertCommit,
	string(model.ActionLockBranch):    model.ActionLockBranch,
	string(model.ActionRebuildBranch): model.ActionRebuildBranch,
	string(model.ActionPostMessage):   model.ActionPostMessage,
	string(model.ActionShowText):      model.ActionShowText,
}

var validStatuses = map[string]model.BuildStatus{
	string(model.BuildPassed):  model.BuildPassed,
	string(model.BuildFailed):  model.BuildFailed,
	string(model.BuildUnknown): model.BuildUnknown,
}

// Default returns the embedded default rule table.
func Default() (*Table, error) {
	return Parse(defaultRules)
}

// LoadFile parses a rule table from the YAML file at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return table, nil
}

// Parse builds a validated rule table from YAML. Triggers, action kinds
// and message templates are checked here so a bad rules file fails at
// startup, not mid-evaluation.
func Parse(data []byte) (*Table, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file declares no rules")
	}

	compiled := make([]Rule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		rule, err := compileRule(entry)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		compiled = append(compiled, rule)
	}

	return NewTable(compiled), nil
}

func compileRule(entry ruleEntry) (Rule, error) {
	trigger, ok := validTriggers[entry.On]
	if !ok {
		return Rule{}, fmt.Errorf("unknown trigger %q", entry.On)
	}

	condition, err := compileCondition(entry.When)
	if err != nil {
		return Rule{}, err
	}

	if len(entry.Then) == 0 {
		return Rule{}, fmt.Errorf("rule for %q declares no actions", entry.On)
	}

	actions := make([]ActionTemplate, 0, len(entry.Then))
	for j, spec := range entry.Then {
		action, err := compileAction(spec)
		if err != nil {
			return Rule{}, fmt.Errorf("action %d: %w", j+1, err)
		}
		actions = append(actions, action)
	}

	return Rule{Trigger: trigger, When: condition, Then: actions}, nil
}

func compileCondition(spec conditionSpec) (Condition, error) {
	condition := Condition{
		CommitHasEverSucceeded:         spec.CommitHasEverSucceeded,
		FailuresForCommitOnBranch:      spec.FailuresForCommitOnBranch,
		MinFailuresForCommitOnBranch:   spec.MinFailuresForCommitOnBranch,
		MinConsecutiveFailuresOnBranch: spec.MinConsecutiveFailuresOnBranch,
	}
	if spec.CurrentBranchStatus != nil {
		status, ok := validStatuses[*spec.CurrentBranchStatus]
		if !ok {
			return Condition{}, fmt.Errorf("unknown branch status %q", *spec.CurrentBranchStatus)
		}
		condition.CurrentBranchStatus = &status
	}
	return condition, nil
}

func compileAction(spec actionSpec) (ActionTemplate, error) {
	var kindName string
	var disposition model.Disposition
	switch {
	case spec.Perform != "" && spec.Suggest != "":
		return ActionTemplate{}, fmt.Errorf("action declares both perform and suggest")
	case spec.Perform != "":
		kindName, disposition = spec.Perform, model.DispositionPerform
	case spec.Suggest != "":
		kindName, disposition = spec.Suggest, model.DispositionSuggest
	default:
		return ActionTemplate{}, fmt.Errorf("action declares neither perform nor suggest")
	}

	kind, ok := validKinds[kindName]
	if !ok {
		return ActionTemplate{}, fmt.Errorf("unknown action kind %q", kindName)
	}

	action := ActionTemplate{
		Kind:        kind,
		Disposition: disposition,
		Title:       spec.Title,
		Channel:     spec.Channel,
	}

	if spec.Message != "" {
		tmpl, err := template.New("message").Parse(spec.Message)
		if err != nil {
			return ActionTemplate{}, fmt.Errorf("invalid message template: %w", err)
		}
		action.Message = tmpl
	}
	if spec.Body != "" {
		tmpl, err := template.New("body").Parse(spec.Body)
		if err != nil {
			return ActionTemplate{}, fmt.Errorf("invalid body template: %w", err)
		}
		action.Body = tmpl
	}

	return action, nil
}
