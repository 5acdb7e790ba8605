package analyzer

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"edumod/internal/apperrors"
	"edumod/internal/patterns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePhoneAndDirectiveAdvice(t *testing.T) {
	a := New(patterns.Builtin())

	result, err := a.Analyze("Call me on 07911123456, you should definitely sue your bank")
	require.NoError(t, err)

	assert.Equal(t, []string{"privacy_phone_uk", "advice_directive_advice"}, result.Flags)
	assert.Equal(t, "Call me on [PHONE REDACTED], you should definitely sue your bank", result.RedactedBody)
	require.Len(t, result.AutoEdits, 1)
	assert.Equal(t, "phone_uk", result.AutoEdits[0].Pattern)

	assert.InDelta(t, 0.6, result.PrivacyScore, 1e-9)
	assert.InDelta(t, 0.3, result.EducationalScore, 1e-9)
	assert.InDelta(t, 0.8, result.QualityScore, 1e-9)
	assert.InDelta(t, 0.45, result.RiskScore, 1e-9)
	assert.True(t, result.AdviceViolation)
	assert.Equal(t, patterns.SeverityHigh, result.HighestSeverity)
	assert.Equal(t, patterns.BuiltinVersion, result.PatternVersion)
}

func TestAnalyzeEducationalContent(t *testing.T) {
	a := New(patterns.Builtin())

	result, err := a.Analyze("This lesson will explain how contracts work in general terms.")
	require.NoError(t, err)

	assert.Empty(t, result.Flags)
	assert.Empty(t, result.AutoEdits)
	assert.Equal(t, 1.0, result.PrivacyScore)
	assert.Equal(t, 1.0, result.EducationalScore)
	assert.InDelta(t, 0.04, result.RiskScore, 1e-9)
	assert.False(t, result.AdviceViolation)
}

func TestAnalyzeNeutralModifierWithoutKeywords(t *testing.T) {
	a := New(patterns.Builtin())

	result, err := a.Analyze("The weather was mild across the region today.")
	require.NoError(t, err)
	assert.InDelta(t, NeutralModifier, result.EducationalScore, 1e-9)
}

func TestAnalyzeShortBody(t *testing.T) {
	a := New(patterns.Builtin())

	result, err := a.Analyze("hi there")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.QualityScore, 1e-9)
	assert.Contains(t, result.Flags, FlagTooShort)
	assert.InDelta(t, 0.19, result.RiskScore, 1e-9)
}

func TestAnalyzeWorstCaseIsMaximumRisk(t *testing.T) {
	a := New(patterns.Builtin())

	body := "you must you must you must you must 07911123456 07911123457 07911123458 " +
		"buy now!!! click here http://x.io buy now"
	result, err := a.Analyze(body)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.PrivacyScore)
	assert.Equal(t, 0.0, result.EducationalScore)
	assert.Equal(t, 0.0, result.QualityScore)
	assert.Equal(t, 1.0, result.RiskScore)
}

func TestAnalyzeInvalidInput(t *testing.T) {
	a := New(patterns.Builtin(), WithMaxBodyLength(10))

	for name, body := range map[string]string{
		"empty":      "",
		"whitespace": "   \n\t ",
		"bad utf8":   "hello \xff",
		"too long":   "this body is longer than ten characters",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Analyze(body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestAnalyzeRiskBoundsAndDeterminism(t *testing.T) {
	a := New(patterns.Builtin())
	fragments := []string{
		"07911123456", "you should", "as your solicitor", "buy now", "damn",
		"learn", "explain", "can I sue", "jane@example.com", "12-34-56",
		"guaranteed win", "http://spam.example", "!!!", "the", "history lesson",
		"Mr Smith", "SW1A 1AA", "4111 1111 1111 1111",
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		n := 1 + rng.Intn(12)
		parts := make([]string, n)
		for j := range parts {
			parts[j] = fragments[rng.Intn(len(fragments))]
		}
		body := strings.Join(parts, " ")

		first, err := a.Analyze(body)
		require.NoError(t, err)
		second, err := a.Analyze(body)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, first.RiskScore, 0.0)
		assert.LessOrEqual(t, first.RiskScore, 1.0)
		assert.Equal(t, first.RiskScore, second.RiskScore, body)
		assert.Equal(t, first.RedactedBody, second.RedactedBody, body)
		assert.Equal(t, first.Flags, second.Flags, body)
	}
}

type stubDetector struct {
	matches []patterns.Match
}

func (s stubDetector) Detect(string) []patterns.Match {
	return s.matches
}

func TestAnalyzeWithPluggedDetector(t *testing.T) {
	classifier := stubDetector{matches: []patterns.Match{{
		Pattern:  "classifier_directive",
		Category: patterns.CategoryAdvice,
		Severity: patterns.SeverityHigh,
		Spans:    []patterns.Span{{Start: 0, End: 4}},
	}}}

	a := New(patterns.Builtin(), WithDetector(patterns.CategoryAdvice, classifier))
	result, err := a.Analyze("This lesson will explain how contracts work in general terms.")
	require.NoError(t, err)

	assert.True(t, result.HasFlag("advice_classifier_directive"))
	assert.True(t, result.AdviceViolation)
	assert.InDelta(t, 0.75, result.EducationalScore, 1e-9)
}

func TestRiskScoreClamps(t *testing.T) {
	assert.Equal(t, 0.0, RiskScore(1, 1, 1))
	assert.Equal(t, 1.0, RiskScore(0, 0, 0))
	assert.Equal(t, 0.0, RiskScore(2, 2, 2))
}
