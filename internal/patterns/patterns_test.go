package patterns

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDetectsPrivacyPatterns(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		pattern string
	}{
		{"uk mobile", "ring 07911123456 tonight", "phone_uk"},
		{"uk mobile international", "ring +44 7911 123 456 tonight", "phone_uk"},
		{"card", "card 4111 1111 1111 1111 expired", "card_number"},
		{"sort code", "sort code 12-34-56 please", "sort_code"},
		{"iban", "pay GB29NWBK60161331926819 today", "iban"},
		{"email", "write to jane.doe@example.co.uk", "email"},
		{"national insurance", "my NI is AB 12 34 56 C", "national_insurance"},
		{"postcode", "I live near SW1A 1AA", "postcode"},
		{"street", "flat at 221 Baker Street", "street_address"},
		{"named person", "ask Mrs Patel about it", "named_individual"},
	}

	detector := Builtin().Detector(CategoryPrivacy)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := detector.Detect(tt.body)
			var names []string
			for _, m := range matches {
				names = append(names, m.Pattern)
			}
			assert.Contains(t, names, tt.pattern)
		})
	}
}

func TestDetectCountsOccurrences(t *testing.T) {
	matches := Builtin().Detector(CategoryAdvice).Detect("You should rest. You must sleep. you should eat.")
	require.Len(t, matches, 1)
	assert.Equal(t, "directive_advice", matches[0].Pattern)
	assert.Equal(t, 3, matches[0].Count())
	assert.Equal(t, "advice_directive_advice", matches[0].Flag())
}

func TestRedactRemovesHighSeverityMatches(t *testing.T) {
	lib := Builtin()
	bodies := []string{
		"Call me on 07911123456, you should definitely sue your bank",
		"card 4111-1111-1111-1111 and sort code 12-34-56",
		"07911123456@example.com",
		"IBAN GB29NWBK60161331926819 NI AB123456C phone +447911123456",
		"numbers 07911 123 456 07911 654 321",
	}

	var high []Pattern
	for _, p := range lib.Patterns(CategoryPrivacy) {
		if p.Severity.Rank() >= SeverityHigh.Rank() {
			high = append(high, p)
		}
	}
	require.NotEmpty(t, high)

	for _, body := range bodies {
		matches := lib.Detector(CategoryPrivacy).Detect(body)
		redacted, edits := lib.Redact(body, matches)
		assert.NotEmpty(t, edits, body)
		for _, p := range high {
			assert.False(t, p.Expr.MatchString(redacted), "pattern %s still matches %q", p.Name, redacted)
		}
	}
}

func TestRedactMergesOverlaps(t *testing.T) {
	lib := Builtin()
	body := "07911123456@example.com"
	redacted, edits := lib.Redact(body, lib.Detector(CategoryPrivacy).Detect(body))
	require.Len(t, edits, 1)
	assert.Equal(t, 0, edits[0].Start)
	assert.Equal(t, len(body), edits[0].End)
	assert.Equal(t, "[PHONE REDACTED]", redacted)
}

func TestRedactIsDeterministic(t *testing.T) {
	lib := Builtin()
	body := "mail a@b.com or ring 07911123456 or 07911123457"
	first, firstEdits := lib.Redact(body, lib.Detector(CategoryPrivacy).Detect(body))
	for i := 0; i < 10; i++ {
		again, edits := lib.Redact(body, lib.Detector(CategoryPrivacy).Detect(body))
		assert.Equal(t, first, again)
		assert.Equal(t, firstEdits, edits)
	}
}

func TestCountKeywords(t *testing.T) {
	edu, adv := Builtin().CountKeywords("Can I sue? This guide will explain what is involved.")
	assert.Equal(t, 3, edu)
	assert.Equal(t, 2, adv)

	edu, adv = Builtin().CountKeywords("nothing relevant here")
	assert.Zero(t, edu)
	assert.Zero(t, adv)
}

func TestNewLibraryValidation(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		patterns []Pattern
		wantErr  string
	}{
		{
			name:    "missing version",
			version: "",
			wantErr: "version is required",
		},
		{
			name:    "high privacy without replacement",
			version: "v1",
			patterns: []Pattern{{
				Name: "secret", Category: CategoryPrivacy, Severity: SeverityHigh,
				Expr: regexp.MustCompile(`secret`),
			}},
			wantErr: "must define a replacement",
		},
		{
			name:    "replacement leaks",
			version: "v1",
			patterns: []Pattern{{
				Name: "digits", Category: CategoryPrivacy, Severity: SeverityHigh,
				Expr: regexp.MustCompile(`\d{3}`), Replacement: "[123]",
			}},
			wantErr: "matches high severity pattern",
		},
		{
			name:    "duplicate",
			version: "v1",
			patterns: []Pattern{
				{Name: "a", Category: CategorySpam, Severity: SeverityLow, Expr: regexp.MustCompile(`a`)},
				{Name: "a", Category: CategorySpam, Severity: SeverityLow, Expr: regexp.MustCompile(`b`)},
			},
			wantErr: "duplicate pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLibrary(tt.version, tt.patterns, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFileExtendsBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	content := `
version: custom-2
extends_builtin: true
patterns:
  - name: phone_uk
    category: privacy
    severity: high
    expr: '\b07\d{9}\b'
    replacement: '[MOBILE REMOVED]'
  - name: crypto_wallet
    category: spam
    severity: medium
    expr: 'bitcoin wallet'
    case_insensitive: true
keywords:
  educational: [syllabus]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lib, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-2", lib.Version())
	assert.Len(t, lib.All(), len(Builtin().All())+1)

	body := "text 07911123456"
	redacted, _ := lib.Redact(body, lib.Detector(CategoryPrivacy).Detect(body))
	assert.Equal(t, "text [MOBILE REMOVED]", redacted)

	spam := lib.Detector(CategorySpam).Detect("Send to my BITCOIN WALLET")
	require.Len(t, spam, 1)
	assert.Equal(t, "crypto_wallet", spam[0].Pattern)

	edu, _ := lib.CountKeywords("see the syllabus")
	assert.Equal(t, 1, edu)
}

func TestParseRejectsInvalidFiles(t *testing.T) {
	_, err := Parse([]byte("version: v1\npatterns:\n  - name: x\n    category: nope\n    severity: low\n    expr: x\n"))
	assert.ErrorContains(t, err, "unknown category")

	_, err = Parse([]byte("version: v1\npatterns:\n  - name: x\n    category: spam\n    severity: low\n    expr: '('\n"))
	assert.ErrorContains(t, err, "invalid expression")
}
