package model

// RestrictionKind is the closed set of branch restriction types the SCM
// host enforces.
type RestrictionKind string

const (
	RestrictionPush           RestrictionKind = "push"
	RestrictionRestrictMerges RestrictionKind = "restrict_merges"
)

// BranchRestriction is an SCM-host rule preventing push or merge into
// branches matching Pattern. At most one restriction of a given kind
// exists per exact pattern; reconciliation updates in place rather than
// duplicating.
type BranchRestriction struct {
	ID      int             `json:"id"`
	Kind    RestrictionKind `json:"kind"`
	Pattern string          `json:"pattern"`
}
