package analyzer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"edumod/internal/apperrors"
	"edumod/internal/patterns"
)

// Score weights and penalties
const (
	PrivacyWeight     = 0.5
	EducationalWeight = 0.3
	QualityWeight     = 0.2

	AdvicePenalty = 0.25

	NeutralModifier = 0.7
	MinModifier     = 0.4
	MaxModifier     = 1.0

	QualityBase      = 0.8
	ShortBodyLength  = 20
	ShortPenalty     = 0.3
	SpamPenalty      = 0.2
	ProfanityPenalty = 0.1

	// EducationalViolationThreshold is the educational score below which
	// content is treated as advice-seeking or directive.
	EducationalViolationThreshold = 0.5

	// DefaultMaxBodyLength bounds the size of a single submission in runes
	DefaultMaxBodyLength = 50000

	// FlagTooShort is attached to bodies below ShortBodyLength
	FlagTooShort = "quality_too_short"
)

// Result is the immutable outcome of analyzing one body
type Result struct {
	PrivacyScore     float64           `json:"privacy_score"`
	EducationalScore float64           `json:"educational_score"`
	QualityScore     float64           `json:"quality_score"`
	RiskScore        float64           `json:"risk_score"`
	Flags            []string          `json:"flags"`
	AutoEdits        []patterns.Edit   `json:"auto_edits"`
	RedactedBody     string            `json:"redacted_body"`
	AdviceViolation  bool              `json:"advice_violation"`
	HighestSeverity  patterns.Severity `json:"highest_severity,omitempty"`
	PatternVersion   string            `json:"pattern_version"`
	Matches          []patterns.Match  `json:"-"`
}

// HasFlag reports whether the result carries the named flag
func (r *Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithDetector replaces the detector used for one category. Any strategy
// satisfying patterns.Detector may be plugged in.
func WithDetector(category patterns.Category, d patterns.Detector) Option {
	return func(a *Analyzer) {
		a.detectors[category] = d
	}
}

// WithMaxBodyLength overrides DefaultMaxBodyLength
func WithMaxBodyLength(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxBodyLength = n
		}
	}
}

// Analyzer scores content against a pattern library. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	library       *patterns.Library
	detectors     map[patterns.Category]patterns.Detector
	maxBodyLength int
}

// New creates an analyzer over the given library
func New(library *patterns.Library, opts ...Option) *Analyzer {
	a := &Analyzer{
		library:       library,
		detectors:     make(map[patterns.Category]patterns.Detector),
		maxBodyLength: DefaultMaxBodyLength,
	}
	for _, c := range []patterns.Category{
		patterns.CategoryPrivacy,
		patterns.CategoryAdvice,
		patterns.CategorySpam,
		patterns.CategoryProfanity,
	} {
		a.detectors[c] = library.Detector(c)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Library returns the pattern library in use
func (a *Analyzer) Library() *patterns.Library {
	return a.library
}

// Analyze scores a body. It fails only on malformed input; poor content is a
// scoring outcome.
func (a *Analyzer) Analyze(body string) (*Result, error) {
	if err := a.validate(body); err != nil {
		return nil, err
	}

	privacyMatches := a.detectors[patterns.CategoryPrivacy].Detect(body)
	adviceMatches := a.detectors[patterns.CategoryAdvice].Detect(body)
	spamMatches := a.detectors[patterns.CategorySpam].Detect(body)
	profanityMatches := a.detectors[patterns.CategoryProfanity].Detect(body)

	redacted, edits := a.library.Redact(body, privacyMatches)

	educationalHits, adviceSeekingHits := a.library.CountKeywords(body)
	educational := educationalScore(adviceMatches, educationalHits, adviceSeekingHits)

	short := utf8.RuneCountInString(strings.TrimSpace(body)) < ShortBodyLength
	quality := qualityScore(short, spamMatches, profanityMatches)
	privacy := privacyScore(privacyMatches)

	result := &Result{
		PrivacyScore:     privacy,
		EducationalScore: educational,
		QualityScore:     quality,
		RiskScore:        RiskScore(privacy, educational, quality),
		AutoEdits:        edits,
		RedactedBody:     redacted,
		AdviceViolation:  len(adviceMatches) > 0 || educational < EducationalViolationThreshold,
		PatternVersion:   a.library.Version(),
	}

	seen := make(map[string]bool)
	for _, group := range [][]patterns.Match{privacyMatches, adviceMatches, spamMatches, profanityMatches} {
		for _, m := range group {
			result.Matches = append(result.Matches, m)
			if m.Severity.Rank() > result.HighestSeverity.Rank() {
				result.HighestSeverity = m.Severity
			}
			if !seen[m.Flag()] {
				seen[m.Flag()] = true
				result.Flags = append(result.Flags, m.Flag())
			}
		}
	}
	if short {
		result.Flags = append(result.Flags, FlagTooShort)
	}

	return result, nil
}

func (a *Analyzer) validate(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("body is empty: %w", apperrors.ErrInvalidInput)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("body is not valid UTF-8: %w", apperrors.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(body); n > a.maxBodyLength {
		return fmt.Errorf("body has %d characters, limit is %d: %w", n, a.maxBodyLength, apperrors.ErrInvalidInput)
	}
	return nil
}

// RiskScore aggregates the sub-scores into a single clamped risk value
func RiskScore(privacy, educational, quality float64) float64 {
	return round(clamp(1 - (PrivacyWeight*privacy + EducationalWeight*educational + QualityWeight*quality)))
}

func privacyScore(matches []patterns.Match) float64 {
	penalty := 0.0
	for _, m := range matches {
		penalty += m.Severity.Weight() * float64(m.Count())
	}
	return round(math.Max(0, 1-penalty))
}

func educationalScore(adviceMatches []patterns.Match, educationalHits, adviceSeekingHits int) float64 {
	base := 1.0
	for _, m := range adviceMatches {
		base -= AdvicePenalty * float64(m.Count())
	}
	base = math.Max(0, base)

	modifier := NeutralModifier
	if total := educationalHits + adviceSeekingHits; total > 0 {
		ratio := float64(educationalHits) / float64(total)
		modifier = MinModifier + (MaxModifier-MinModifier)*ratio
	}
	return round(clamp(base * modifier))
}

func qualityScore(short bool, spam, profanity []patterns.Match) float64 {
	score := QualityBase
	if short {
		score -= ShortPenalty
	}
	for _, m := range spam {
		score -= SpamPenalty * float64(m.Count())
	}
	for _, m := range profanity {
		score -= ProfanityPenalty * float64(m.Count())
	}
	return round(math.Max(0, score))
}

func clamp(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// round keeps scores at four decimals so threshold comparisons are stable
func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
