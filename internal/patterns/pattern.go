package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity grades how serious a pattern match is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns the per-match penalty applied by the privacy scorer
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.1
	case SeverityMedium:
		return 0.2
	case SeverityHigh:
		return 0.4
	case SeverityCritical:
		return 0.5
	default:
		return 0
	}
}

// Rank orders severities from low (1) to critical (4)
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity converts a string into a Severity
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if s.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q", value)
	}
	return s, nil
}

// Category groups patterns by the sub-score they feed
type Category string

const (
	CategoryPrivacy   Category = "privacy"
	CategoryAdvice    Category = "advice"
	CategorySpam      Category = "spam"
	CategoryProfanity Category = "profanity"
)

// ParseCategory converts a string into a Category
func ParseCategory(value string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(value))); c {
	case CategoryPrivacy, CategoryAdvice, CategorySpam, CategoryProfanity:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", value)
	}
}

// Pattern is a single named detector rule
type Pattern struct {
	Name        string
	Category    Category
	Severity    Severity
	Expr        *regexp.Regexp
	Replacement string
}

// Flag returns the flag name attached to content matching this pattern
func (p Pattern) Flag() string {
	return string(p.Category) + "_" + p.Name
}

// Redacts reports whether matches of this pattern are substituted automatically
func (p Pattern) Redacts() bool {
	return p.Replacement != ""
}

// Span is a half-open byte range [Start, End) within a body
type Span struct {
	Start int
	End   int
}

// Match is the aggregated result of one pattern against one body
type Match struct {
	Pattern     string
	Category    Category
	Severity    Severity
	Replacement string
	Spans       []Span
}

// Count returns the number of occurrences found
func (m Match) Count() int {
	return len(m.Spans)
}

// Flag returns the flag name for this match
func (m Match) Flag() string {
	return string(m.Category) + "_" + m.Pattern
}

// Detector finds pattern matches in a body. Implementations must be
// deterministic and free of side effects.
type Detector interface {
	Detect(body string) []Match
}

// RegexDetector evaluates an ordered list of regular-expression patterns
type RegexDetector struct {
	patterns []Pattern
}

// NewRegexDetector creates a detector over the given patterns
func NewRegexDetector(patterns []Pattern) *RegexDetector {
	return &RegexDetector{patterns: patterns}
}

// Detect returns one Match per pattern that matched, in pattern order
func (d *RegexDetector) Detect(body string) []Match {
	var matches []Match
	for _, p := range d.patterns {
		locs := p.Expr.FindAllStringIndex(body, -1)
		if len(locs) == 0 {
			continue
		}
		spans := make([]Span, 0, len(locs))
		for _, loc := range locs {
			spans = append(spans, Span{Start: loc[0], End: loc[1]})
		}
		matches = append(matches, Match{
			Pattern:     p.Name,
			Category:    p.Category,
			Severity:    p.Severity,
			Replacement: p.Replacement,
			Spans:       spans,
		})
	}
	return matches
}
