package workflow

import (
	"fmt"
	"strings"
	"time"

	"edumod/internal/roles"
)

// Type names an SLA template
type Type string

const (
	Standard Type = "standard"
	Express  Type = "express"
	Urgent   Type = "urgent"
)

// DefaultTimeout applies to any workflow/tier pair without an explicit step
const DefaultTimeout = 4 * time.Hour

// Parse converts a string into a workflow type
func Parse(value string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case Standard, Express, Urgent:
		return t, nil
	default:
		return "", fmt.Errorf("unknown workflow type %q", value)
	}
}

// Step is one stage of a workflow, handled by a tier within a timeout
type Step struct {
	Name    string        `json:"name"`
	Tier    roles.Tier    `json:"tier"`
	Timeout time.Duration `json:"timeout"`
}

// Template is an ordered sequence of steps
type Template struct {
	Type  Type   `json:"type"`
	Steps []Step `json:"steps"`
}

// DirectToOversight reports whether the template skips tiered review
func (t Template) DirectToOversight() bool {
	return len(t.Steps) > 0 && t.Steps[0].Tier == roles.Professional
}

// Definitions holds the workflow templates consumed by the queue
type Definitions struct {
	templates map[Type]Template
}

// NewDefinitions creates definitions from templates
func NewDefinitions(templates ...Template) *Definitions {
	d := &Definitions{templates: make(map[Type]Template, len(templates))}
	for _, t := range templates {
		d.templates[t.Type] = t
	}
	return d
}

// Default returns the standard/express/urgent templates
func Default() *Definitions {
	return NewDefinitions(
		Template{
			Type: Standard,
			Steps: []Step{
				{Name: "student_review", Tier: roles.Junior, Timeout: 4 * time.Hour},
				{Name: "oversight", Tier: roles.Professional, Timeout: 24 * time.Hour},
			},
		},
		Template{
			Type: Express,
			Steps: []Step{
				{Name: "senior_review", Tier: roles.Senior, Timeout: 2 * time.Hour},
				{Name: "oversight", Tier: roles.Professional, Timeout: 24 * time.Hour},
			},
		},
		Template{
			Type: Urgent,
			Steps: []Step{
				{Name: "direct_oversight", Tier: roles.Professional, Timeout: 30 * time.Minute},
			},
		},
	)
}

// Template returns the template for a workflow type
func (d *Definitions) Template(t Type) (Template, bool) {
	tpl, ok := d.templates[t]
	return tpl, ok
}

// Timeout resolves the review timeout for a tier within a workflow. Unknown
// combinations fall back to DefaultTimeout rather than failing.
func (d *Definitions) Timeout(t Type, tier roles.Tier) time.Duration {
	tpl, ok := d.templates[t]
	if !ok {
		return DefaultTimeout
	}
	for _, step := range tpl.Steps {
		if step.Tier == tier && step.Timeout > 0 {
			return step.Timeout
		}
	}
	return DefaultTimeout
}

// DirectToOversight reports whether items of this workflow go straight to a Professional
func (d *Definitions) DirectToOversight(t Type) bool {
	tpl, ok := d.templates[t]
	return ok && tpl.DirectToOversight()
}
