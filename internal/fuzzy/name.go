// Package fuzzy scores textual similarity between company names.
package fuzzy

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/quillbooks/quill/internal/normalize"
)

// Similarity bands. Containment and token-subset relations score high
// because bank statements routinely truncate or abbreviate company names.
const (
	scoreIdentical   = 100
	scoreContainment = 90
	scoreTokenSubset = 85
)

// NameSimilarity scores how alike two company names are on a 0-100 scale.
// Case-insensitive and tolerant of legal-entity suffixes (GmbH/AG/Inc).
// Identical strings score 100; unrelated strings score near 0; adding
// shared tokens never lowers the score.
func NameSimilarity(a, b string) int {
	na := normalize.StripLegalSuffixes(a)
	nb := normalize.StripLegalSuffixes(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return scoreIdentical
	}

	// One name contained in the other, e.g. "acme" in "acme tools".
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return scoreContainment
	}

	tokensA := strings.Fields(na)
	tokensB := strings.Fields(nb)
	shared := sharedTokenCount(tokensA, tokensB)
	smaller := len(tokensA)
	if len(tokensB) < smaller {
		smaller = len(tokensB)
	}
	if shared == smaller && shared > 0 {
		return scoreTokenSubset
	}

	// Blend token overlap with an edit-distance ratio so both "token
	// reordering" and "small typo" cases score reasonably.
	overlap := 0.0
	if len(tokensA)+len(tokensB) > 0 {
		overlap = float64(2*shared) / float64(len(tokensA)+len(tokensB))
	}

	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	editRatio := 1.0 - float64(dist)/float64(maxLen)
	if editRatio < 0 {
		editRatio = 0
	}

	score := int((0.6*overlap + 0.4*editRatio) * 100)
	if score > scoreTokenSubset {
		score = scoreTokenSubset
	}
	return score
}

// VatIDsMatch reports exact equality after normalization. Never fuzzy.
func VatIDsMatch(a, b string) bool {
	na := normalize.VatID(a)
	nb := normalize.VatID(b)
	return na != "" && na == nb
}

// IbansMatch reports exact equality after normalization.
func IbansMatch(a, b string) bool {
	na := normalize.Iban(a)
	nb := normalize.Iban(b)
	return na != "" && na == nb
}

func sharedTokenCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
			delete(set, t) // count each token once
		}
	}
	return count
}
