// Package dedupe fingerprints transactions so the same real-world
// transaction is not imported twice from overlapping sources.
package dedupe

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/quillbooks/quill/internal/normalize"
)

// Hash computes a stable fingerprint over the fields that identify a
// transaction across CSV uploads and bank-API syncs. Deterministic:
// identical inputs always yield the identical hash.
func Hash(date time.Time, amountCents int64, accountIdentifier, reference string) string {
	data := fmt.Sprintf("%s|%d|%s|%s",
		date.Format("2006-01-02"),
		amountCents,
		strings.TrimSpace(accountIdentifier),
		strings.TrimSpace(reference))
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// AccountIdentifier picks the hash input for an account: the IBAN when one
// is known, otherwise the account's internal identifier. The fallback keeps
// hashes stable for accounts whose source never exposes an IBAN.
func AccountIdentifier(iban, internalID string) string {
	if n := normalize.Iban(iban); n != "" {
		return n
	}
	return internalID
}
