// Package awards loads the static award manifest and evaluates which awards
// the user has earned.
package awards

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed awards.json
var manifest []byte

// Criterion values understood by the evaluator.
const (
	CriterionIssues = "issues"
	CriterionClosed = "closed"
	CriterionTags   = "tags"
	CriterionUnlock = "unlock"
)

// Award is one achievement definition. The manifest is loaded once at
// startup and never mutated.
type Award struct {
	Name        string `json:"name"` // doubles as the identifier
	Description string `json:"description"`
	Color       string `json:"color"`
	Criterion   string `json:"criterion"`
	Value       int    `json:"value"`
	Image       string `json:"image"`
}

// ID returns the award's identifier.
func (a Award) ID() string {
	return a.Name
}

// Load parses the bundled manifest. A missing or malformed manifest is a
// startup-fatal condition for callers: there is no degraded mode.
func Load() ([]Award, error) {
	var all []Award
	if err := json.Unmarshal(manifest, &all); err != nil {
		return nil, fmt.Errorf("failed to decode award manifest: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("award manifest is empty")
	}
	return all, nil
}

// Entitlements reports the premium unlock state.
type Entitlements interface {
	Unlocked() bool
}

// Evaluator decides whether awards are earned. It is stateless: every call
// reads the live counts.
type Evaluator struct {
	Issues       func() int // total issue count
	ClosedIssues func() int // completed issue count
	Tags         func() int // total tag count
	Entitlements Entitlements
}

// HasEarned reports whether the award's criterion is satisfied. Unknown
// criteria are treated as not yet implemented, never as an error.
func (e Evaluator) HasEarned(award Award) bool {
	switch award.Criterion {
	case CriterionIssues:
		return e.Issues() >= award.Value
	case CriterionClosed:
		return e.ClosedIssues() >= award.Value
	case CriterionTags:
		return e.Tags() >= award.Value
	case CriterionUnlock:
		return e.Entitlements != nil && e.Entitlements.Unlocked()
	default:
		return false
	}
}

// Earned filters all to the awards currently earned.
func (e Evaluator) Earned(all []Award) []Award {
	var earned []Award
	for _, award := range all {
		if e.HasEarned(award) {
			earned = append(earned, award)
		}
	}
	return earned
}
