package policy

import (
	"testing"

	"edumod/internal/analyzer"
	"edumod/internal/models"
	"edumod/internal/patterns"
	"edumod/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideRules(t *testing.T) {
	tests := []struct {
		name   string
		result analyzer.Result
		want   Action
	}{
		{"maximum risk rejects", analyzer.Result{RiskScore: 1.0}, Reject},
		{"high risk flags", analyzer.Result{RiskScore: 0.85}, FlagForReview},
		{"review threshold is inclusive", analyzer.Result{RiskScore: 0.8}, FlagForReview},
		{"auto edits present", analyzer.Result{RiskScore: 0.2, AutoEdits: []patterns.Edit{{Pattern: "email"}}}, AutoEdit},
		{"moderate risk auto edits", analyzer.Result{RiskScore: 0.6}, AutoEdit},
		{"advice violation warns", analyzer.Result{RiskScore: 0.3, AdviceViolation: true}, Warn},
		{"clean approves", analyzer.Result{RiskScore: 0.1}, Approve},
		{"flag outranks auto edit", analyzer.Result{RiskScore: 0.9, AutoEdits: []patterns.Edit{{Pattern: "email"}}}, FlagForReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(&tt.result).Action)
		})
	}
}

func TestDecidePhoneAndAdviceAutoEdits(t *testing.T) {
	result, err := analyzer.New(patterns.Builtin()).Analyze("Call me on 07911123456, you should definitely sue your bank")
	require.NoError(t, err)

	d := Decide(result)
	assert.Equal(t, AutoEdit, d.Action)
	assert.True(t, d.Publishable)
	assert.NotContains(t, d.Body, "07911123456")
	assert.Contains(t, d.Advisory, AdvisoryGeneralInformation)
	assert.Equal(t, []string{"privacy_phone_uk", "advice_directive_advice"}, d.Flags)
}

func TestDecideQueuedActionsCarryWorkflow(t *testing.T) {
	d := Decide(&analyzer.Result{RiskScore: 1.0, HighestSeverity: patterns.SeverityCritical})
	assert.True(t, d.RequiresReview)
	assert.False(t, d.Publishable)
	assert.Empty(t, d.Body)
	assert.Equal(t, workflow.Urgent, d.Workflow)

	d = Decide(&analyzer.Result{RiskScore: 0.8})
	assert.Equal(t, workflow.Express, d.Workflow)
}

func TestPriority(t *testing.T) {
	low := Priority(&analyzer.Result{RiskScore: 0.1}, Approve)
	high := Priority(&analyzer.Result{RiskScore: 0.8, HighestSeverity: patterns.SeverityHigh}, FlagForReview)
	rejected := Priority(&analyzer.Result{RiskScore: 1.0, HighestSeverity: patterns.SeverityCritical}, Reject)

	assert.Equal(t, 1, low)
	assert.Equal(t, 10, high)
	assert.Equal(t, 18, rejected)
	assert.Less(t, rejected, models.MaxPriority)
}

func TestNotes(t *testing.T) {
	result, err := analyzer.New(patterns.Builtin()).Analyze("Call me on 07911123456, you should definitely sue your bank")
	require.NoError(t, err)

	notes := Notes(result)
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0], "phone uk")
}
