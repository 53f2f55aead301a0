package pattern

import (
	"strings"
	"time"
	"unicode"

	"github.com/quillbooks/quill/internal/model"
)

// noiseTokens are banking boilerplate that carries no signal about the
// counterparty and must not end up inside derived patterns.
var noiseTokens = map[string]bool{
	"sepa": true, "lastschrift": true, "ueberweisung": true,
	"gutschrift": true, "dauerauftrag": true, "payment": true,
	"transfer": true, "direct": true, "debit": true, "card": true,
	"purchase": true, "pos": true, "ref": true, "reference": true,
	"invoice": true, "rechnung": true, "nr": true, "no": true,
	"the": true, "and": true, "und": true, "von": true, "fuer": true,
}

const maxPatternTokens = 3

// Derive builds a glob pattern from the text of a confirmed match by
// wrapping its distinguishing tokens with wildcards, e.g.
// "SEPA Lastschrift ACME TOOLS GMBH Rechnung 4711" -> "*acme*tools*gmbh*".
// Returns "" when the text has no distinguishing tokens.
func Derive(text string) string {
	tokens := distinguishingTokens(text)
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > maxPatternTokens {
		tokens = tokens[:maxPatternTokens]
	}
	return "*" + strings.Join(tokens, "*") + "*"
}

// distinguishingTokens keeps tokens likely to identify the counterparty:
// alphabetic, at least three characters, not boilerplate, not date-like.
func distinguishingTokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(f) < 3 || noiseTokens[f] {
			continue
		}
		if isNumeric(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	// Tokens that are mostly digits are references, dates or amounts.
	return digits*2 > len(s)
}

// Upsert merges a newly derived pattern into the owner's pattern list.
// If an equivalent pattern exists it is reinforced (confidence +10 capped
// at 100, source list merged, usage count bumped); otherwise a new pattern
// starts at confidence 60. Reports whether the list changed.
func Upsert(patterns []model.LearnedPattern, derived, sourceID string, now time.Time) ([]model.LearnedPattern, bool) {
	if derived == "" {
		return patterns, false
	}
	for i := range patterns {
		if Equivalent(patterns[i].Pattern, derived) {
			changed := patterns[i].Reinforce(sourceID)
			return patterns, changed
		}
	}
	patterns = append(patterns, model.LearnedPattern{
		Pattern:    derived,
		Confidence: model.NewPatternConfidence,
		SourceIDs:  []string{sourceID},
		CreatedAt:  now,
		UsageCount: 1,
	})
	return patterns, true
}

// Equivalent reports whether two patterns are the same rule. Comparison is
// case-insensitive and ignores redundant leading/trailing wildcards.
func Equivalent(a, b string) bool {
	return canonical(a) == canonical(b)
}

func canonical(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	for strings.Contains(p, "**") {
		p = strings.ReplaceAll(p, "**", "*")
	}
	return p
}
