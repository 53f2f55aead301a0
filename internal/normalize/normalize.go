// Package normalize canonicalizes IBANs, VAT IDs, company names and amount
// strings so the matching engines compare like with like.
package normalize

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Iban uppercases and strips all whitespace. Pure and total.
func Iban(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// VatID uppercases and strips every non-alphanumeric character.
func VatID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// legalSuffixes are legal-entity markers ignored for name comparison.
var legalSuffixes = map[string]bool{
	"gmbh": true, "ag": true, "kg": true, "og": true, "ug": true,
	"eu": true, "co": true, "inc": true, "llc": true, "ltd": true,
	"sarl": true, "sa": true, "bv": true, "nv": true, "ab": true,
	"oy": true, "plc": true, "corp": true, "company": true,
	"gesmbh": true, "mbh": true, "se": true,
}

// CompanyName lowercases, strips punctuation and collapses whitespace.
func CompanyName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NameTokens splits a canonicalized company name into comparison tokens,
// dropping legal-entity suffixes.
func NameTokens(s string) []string {
	fields := strings.Fields(CompanyName(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if legalSuffixes[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// StripLegalSuffixes returns the canonicalized name without legal-entity
// markers, e.g. "Acme Tools GmbH" -> "acme tools".
func StripLegalSuffixes(s string) string {
	return strings.Join(NameTokens(s), " ")
}

// AmountCents parses a locale-formatted decimal string into integer cents.
// Accepts "1.234,56", "1,234.56", "1234.56", "1234,56" and plain integers.
// Returns nil on unparseable input; callers surface that as "Invalid".
func AmountCents(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// The later separator is the decimal mark, the other is grouping.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A lone comma is a decimal mark unless it looks like grouping
		// ("1,234" with exactly three trailing digits).
		if len(s)-lastComma-1 == 3 && strings.Count(s, ",") == 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return &cents
}
