package patterns

import (
	"regexp"
	"sync"
)

// BuiltinVersion identifies the library compiled into the binary
const BuiltinVersion = "builtin-2024.1"

var (
	builtinOnce sync.Once
	builtinLib  *Library
)

// Builtin returns the library compiled into the binary. It is built once and
// shared; libraries are immutable.
func Builtin() *Library {
	builtinOnce.Do(func() {
		lib, err := NewLibrary(BuiltinVersion, builtinPatterns(), builtinEducationalKeywords, builtinAdviceSeekingKeywords)
		if err != nil {
			panic("builtin pattern library is invalid: " + err.Error())
		}
		builtinLib = lib
	})
	return builtinLib
}

func builtinPatterns() []Pattern {
	return []Pattern{
		// Privacy / PII
		{
			Name:        "card_number",
			Category:    CategoryPrivacy,
			Severity:    SeverityHigh,
			Expr:        regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`),
			Replacement: "[CARD NUMBER REDACTED]",
		},
		{
			Name:        "sort_code",
			Category:    CategoryPrivacy,
			Severity:    SeverityHigh,
			Expr:        regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}\b`),
			Replacement: "[SORT CODE REDACTED]",
		},
		{
			Name:        "iban",
			Category:    CategoryPrivacy,
			Severity:    SeverityHigh,
			Expr:        regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			Replacement: "[IBAN REDACTED]",
		},
		{
			Name:        "phone_uk",
			Category:    CategoryPrivacy,
			Severity:    SeverityHigh,
			Expr:        regexp.MustCompile(`(?:\+44\s?7\d{3}|\b07\d{3})\s?\d{3}\s?\d{3}\b`),
			Replacement: "[PHONE REDACTED]",
		},
		{
			Name:        "national_insurance",
			Category:    CategoryPrivacy,
			Severity:    SeverityHigh,
			Expr:        regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`),
			Replacement: "[NI NUMBER REDACTED]",
		},
		{
			Name:        "email",
			Category:    CategoryPrivacy,
			Severity:    SeverityMedium,
			Expr:        regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`),
			Replacement: "[EMAIL REDACTED]",
		},
		{
			Name:        "phone_landline",
			Category:    CategoryPrivacy,
			Severity:    SeverityMedium,
			Expr:        regexp.MustCompile(`\b0[12]\d{2,3}\s?\d{3}\s?\d{3,4}\b`),
			Replacement: "[PHONE REDACTED]",
		},
		{
			Name:        "street_address",
			Category:    CategoryPrivacy,
			Severity:    SeverityMedium,
			Expr:        regexp.MustCompile(`\b\d{1,4}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\s+(?:Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Close|Drive|Dr|Way|Crescent|Terrace)\b`),
			Replacement: "[ADDRESS REDACTED]",
		},
		{
			Name:        "postcode",
			Category:    CategoryPrivacy,
			Severity:    SeverityMedium,
			Expr:        regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s?\d[A-Z]{2}\b`),
			Replacement: "[POSTCODE REDACTED]",
		},
		{
			Name:     "named_individual",
			Category: CategoryPrivacy,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`),
		},

		// Directive advice
		{
			Name:     "directive_advice",
			Category: CategoryAdvice,
			Severity: SeverityMedium,
			Expr:     regexp.MustCompile(`(?i)\byou\s+(?:should|must|need\s+to|ought\s+to|have\s+to)\b`),
		},
		{
			Name:     "guaranteed_outcome",
			Category: CategoryAdvice,
			Severity: SeverityHigh,
			Expr:     regexp.MustCompile(`(?i)\bguarantee(?:d|s)?\b[^.!?]{0,40}?\b(?:outcome|result|win|success|refund|payout)s?\b`),
		},
		{
			Name:     "professional_impersonation",
			Category: CategoryAdvice,
			Severity: SeverityHigh,
			Expr:     regexp.MustCompile(`(?i)\bas\s+your\s+(?:solicitor|lawyer|barrister|financial\s+advis[eo]r|accountant|doctor)\b`),
		},

		// Spam / abuse
		{
			Name:     "promotional",
			Category: CategorySpam,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`(?i)\b(?:buy now|click here|free money|limited time offer|act now|make money fast|risk[- ]free)\b`),
		},
		{
			Name:     "link",
			Category: CategorySpam,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`(?i)\bhttps?://\S+`),
		},
		{
			Name:     "excessive_punctuation",
			Category: CategorySpam,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`[!?]{3,}`),
		},
		{
			Name:     "shouting",
			Category: CategorySpam,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`\b[A-Z]{10,}\b`),
		},

		// Profanity
		{
			Name:     "profanity",
			Category: CategoryProfanity,
			Severity: SeverityLow,
			Expr:     regexp.MustCompile(`(?i)\b(?:damn|crap|bloody|bastard|bollocks|shit\w*|fuck\w*|piss\w*)\b`),
		},
	}
}

var builtinEducationalKeywords = []string{
	"learn", "learning", "understand", "explain", "explains", "explanation",
	"example", "examples", "guide", "overview", "information", "research",
	"study", "course", "lesson", "history", "definition", "what is",
	"how does", "in general", "generally",
}

var builtinAdviceSeekingKeywords = []string{
	"should i", "can i", "what do i do", "help me", "my case", "my claim",
	"sue", "take legal action", "advise me", "what are my options",
}
