package patterns

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Edit records one automatic substitution made in a body
type Edit struct {
	Pattern     string `json:"pattern"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Replacement string `json:"replacement"`
}

// Library is a versioned, immutable set of patterns and keyword lists
type Library struct {
	version         string
	patterns        []Pattern
	educational     []string
	adviceSeeking   []string
	educationalExpr *regexp.Regexp
	adviceExpr      *regexp.Regexp
}

// NewLibrary builds and validates a pattern library
func NewLibrary(version string, patterns []Pattern, educational, adviceSeeking []string) (*Library, error) {
	lib := &Library{
		version:       version,
		patterns:      append([]Pattern(nil), patterns...),
		educational:   normalizeKeywords(educational),
		adviceSeeking: normalizeKeywords(adviceSeeking),
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	lib.educationalExpr = keywordExpr(lib.educational)
	lib.adviceExpr = keywordExpr(lib.adviceSeeking)
	return lib, nil
}

// Version identifies the library; scores are reproducible per version
func (l *Library) Version() string {
	return l.version
}

// Patterns returns the patterns of a category in declaration order
func (l *Library) Patterns(category Category) []Pattern {
	var out []Pattern
	for _, p := range l.patterns {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// All returns every pattern in declaration order
func (l *Library) All() []Pattern {
	return append([]Pattern(nil), l.patterns...)
}

// Detector returns a regex detector limited to one category
func (l *Library) Detector(category Category) Detector {
	return NewRegexDetector(l.Patterns(category))
}

// Validate checks the invariants every library must hold
func (l *Library) Validate() error {
	if strings.TrimSpace(l.version) == "" {
		return fmt.Errorf("pattern library version is required")
	}

	seen := make(map[string]bool)
	var high []Pattern
	for _, p := range l.patterns {
		if p.Name == "" {
			return fmt.Errorf("pattern name is required")
		}
		if p.Expr == nil {
			return fmt.Errorf("pattern %s has no expression", p.Name)
		}
		if p.Severity.Rank() == 0 {
			return fmt.Errorf("pattern %s has unknown severity %q", p.Name, p.Severity)
		}
		if _, err := ParseCategory(string(p.Category)); err != nil {
			return fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		if seen[p.Flag()] {
			return fmt.Errorf("duplicate pattern %s", p.Flag())
		}
		seen[p.Flag()] = true

		if p.Category == CategoryPrivacy && p.Severity.Rank() >= SeverityHigh.Rank() {
			if !p.Redacts() {
				return fmt.Errorf("high severity privacy pattern %s must define a replacement", p.Name)
			}
			high = append(high, p)
		}
	}

	// A replacement that itself matches a high privacy pattern would leak
	// through redaction.
	for _, p := range l.patterns {
		if !p.Redacts() {
			continue
		}
		for _, h := range high {
			if h.Expr.MatchString(p.Replacement) {
				return fmt.Errorf("replacement of %s matches high severity pattern %s", p.Name, h.Name)
			}
		}
	}
	return nil
}

// Redact substitutes every privacy match that carries a replacement.
// Overlapping matches are merged and replaced once, using the replacement of
// the most severe pattern involved. Edit offsets refer to the input body.
func (l *Library) Redact(body string, matches []Match) (string, []Edit) {
	type region struct {
		span     Span
		pattern  string
		severity Severity
		text     string
	}

	var regions []region
	for _, m := range matches {
		if m.Category != CategoryPrivacy || m.Replacement == "" {
			continue
		}
		for _, s := range m.Spans {
			regions = append(regions, region{span: s, pattern: m.Pattern, severity: m.Severity, text: m.Replacement})
		}
	}
	if len(regions) == 0 {
		return body, nil
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].span.Start != regions[j].span.Start {
			return regions[i].span.Start < regions[j].span.Start
		}
		return regions[i].span.End > regions[j].span.End
	})

	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.span.Start < last.span.End {
			if r.span.End > last.span.End {
				last.span.End = r.span.End
			}
			if r.severity.Rank() > last.severity.Rank() {
				last.pattern, last.severity, last.text = r.pattern, r.severity, r.text
			}
			continue
		}
		merged = append(merged, r)
	}

	var b strings.Builder
	edits := make([]Edit, 0, len(merged))
	cursor := 0
	for _, r := range merged {
		b.WriteString(body[cursor:r.span.Start])
		b.WriteString(r.text)
		cursor = r.span.End
		edits = append(edits, Edit{
			Pattern:     r.pattern,
			Start:       r.span.Start,
			End:         r.span.End,
			Replacement: r.text,
		})
	}
	b.WriteString(body[cursor:])
	return b.String(), edits
}

// CountKeywords returns the number of educational and advice-seeking keyword hits
func (l *Library) CountKeywords(body string) (educational, adviceSeeking int) {
	if l.educationalExpr != nil {
		educational = len(l.educationalExpr.FindAllStringIndex(body, -1))
	}
	if l.adviceExpr != nil {
		adviceSeeking = len(l.adviceExpr.FindAllStringIndex(body, -1))
	}
	return educational, adviceSeeking
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// keywordExpr compiles a case-insensitive whole-word alternation.
// Longer keywords come first so multi-word phrases win over their prefixes.
func keywordExpr(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	sorted := append([]string(nil), keywords...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	quoted := make([]string, len(sorted))
	for i, k := range sorted {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(k), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
