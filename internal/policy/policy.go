package policy

import (
	"math"
	"strings"

	"edumod/internal/analyzer"
	"edumod/internal/models"
	"edumod/internal/patterns"
	"edumod/internal/workflow"
)

// Action is the automatic decision taken for analyzed content
type Action string

const (
	Approve       Action = "approve"
	AutoEdit      Action = "auto_edit"
	Warn          Action = "warn"
	FlagForReview Action = "flag_for_review"
	Reject        Action = "reject"
)

// Decision thresholds on the aggregate risk score
const (
	RejectThreshold   = 1.0
	ReviewThreshold   = 0.8
	AutoEditThreshold = 0.6
)

// Advisory messages returned with warn and auto-edit decisions
const (
	AdvisoryGeneralInformation = "This content reads as personal advice. Rephrase it as general educational information and avoid telling readers what they should do."
	AdvisoryRedacted           = "Personal information was removed before publication."
)

// Decision is the policy outcome for one analysis result
type Decision struct {
	Action         Action        `json:"action"`
	RiskScore      float64       `json:"risk_score"`
	Flags          []string      `json:"flags"`
	Body           string        `json:"body,omitempty"`
	Publishable    bool          `json:"publishable"`
	Advisory       string        `json:"advisory,omitempty"`
	RequiresReview bool          `json:"requires_review"`
	Priority       int           `json:"priority"`
	Workflow       workflow.Type `json:"workflow,omitempty"`
}

// Decide maps an analysis result to an action. Rules are evaluated in order
// and the first match wins.
func Decide(result *analyzer.Result) Decision {
	d := Decision{
		RiskScore: result.RiskScore,
		Flags:     append([]string(nil), result.Flags...),
	}

	switch {
	case result.RiskScore >= RejectThreshold:
		d.Action = Reject
	case result.RiskScore >= ReviewThreshold:
		d.Action = FlagForReview
	case len(result.AutoEdits) > 0 || result.RiskScore >= AutoEditThreshold:
		d.Action = AutoEdit
	case result.AdviceViolation:
		d.Action = Warn
	default:
		d.Action = Approve
	}

	switch d.Action {
	case Approve:
		d.Body = result.RedactedBody
		d.Publishable = true
	case AutoEdit:
		d.Body = result.RedactedBody
		d.Publishable = true
		d.Advisory = AdvisoryRedacted
		if result.AdviceViolation {
			d.Advisory += " " + AdvisoryGeneralInformation
		}
	case Warn:
		d.Body = result.RedactedBody
		d.Publishable = true
		d.Advisory = AdvisoryGeneralInformation
	case FlagForReview, Reject:
		d.RequiresReview = true
		d.Workflow = SelectWorkflow(d.Action)
	}
	d.Priority = Priority(result, d.Action)

	return d
}

// SelectWorkflow picks the review workflow for queued content
func SelectWorkflow(action Action) workflow.Type {
	switch action {
	case Reject:
		return workflow.Urgent
	case FlagForReview:
		return workflow.Express
	default:
		return workflow.Standard
	}
}

// Priority ranks queued content. Higher risk and more severe matches sort
// first; MaxPriority stays reserved for urgent escalations.
func Priority(result *analyzer.Result, action Action) int {
	p := int(math.Round(result.RiskScore * 10))
	switch result.HighestSeverity {
	case patterns.SeverityCritical:
		p += 3
	case patterns.SeverityHigh:
		p += 2
	case patterns.SeverityMedium:
		p++
	}
	if action == Reject {
		p += 5
	}
	return min(p, models.MaxPriority-1)
}

// Notes derives reviewer-facing educational notes from the matched patterns
func Notes(result *analyzer.Result) []string {
	var redacted []string
	var notes []string
	advice := false
	for _, m := range result.Matches {
		switch m.Category {
		case patterns.CategoryPrivacy:
			if m.Replacement != "" {
				redacted = append(redacted, strings.ReplaceAll(m.Pattern, "_", " "))
			}
		case patterns.CategoryAdvice:
			advice = true
		}
	}
	if len(redacted) > 0 {
		notes = append(notes, "Removed personal data: "+strings.Join(redacted, ", "))
	}
	if advice || result.AdviceViolation {
		notes = append(notes, "Frame guidance as general information rather than instructions to an individual.")
	}
	if result.HasFlag(analyzer.FlagTooShort) {
		notes = append(notes, "Content is too short to be educational on its own.")
	}
	return notes
}
