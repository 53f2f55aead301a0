// Package model defines the core data structures for the quill matching engine.
package model

import "time"

// PartnerScope indicates whether a partner belongs to one user or is shared globally.
type PartnerScope string

const (
	// ScopeUser marks a partner defined by a single user.
	ScopeUser PartnerScope = "user"
	// ScopeGlobal marks a partner shared across all users.
	ScopeGlobal PartnerScope = "global"
)

// MatchedBy records how a partner or category was assigned to a transaction.
type MatchedBy string

const (
	// MatchedByManual indicates the user assigned the match themselves.
	MatchedByManual MatchedBy = "manual"
	// MatchedByAuto indicates an automated pass assigned the match.
	MatchedByAuto MatchedBy = "auto"
)

// MatchSource identifies which signal produced a suggestion.
type MatchSource string

const (
	// SourcePattern means a learned glob pattern matched the transaction text.
	SourcePattern MatchSource = "pattern"
	// SourceIban means the counterparty IBAN matched exactly.
	SourceIban MatchSource = "iban"
	// SourceVat means the VAT ID matched exactly after normalization.
	SourceVat MatchSource = "vat"
	// SourceName means the company name matched fuzzily.
	SourceName MatchSource = "name"
	// SourcePartnerLink means the category was linked to the assigned partner.
	SourcePartnerLink MatchSource = "partner-link"
)

// Transaction represents a single imported bank transaction.
//
// The financial facts (date, amount, currency, name, reference, account) are
// immutable once imported; only the matching fields below them change.
// Transactions are never deleted individually, only cascade-deleted together
// with their source account.
type Transaction struct {
	Date         time.Time
	ID           string
	UserID       string
	Name         string // Raw transaction description from the bank
	Reference    string // Free-text payment reference
	PartnerLabel string // Counterparty label as reported by the bank
	Currency     string
	AccountID    string
	Iban         string // Counterparty IBAN when the source provides one
	Hash         string
	AmountCents  int64

	PartnerID               string
	PartnerScope            PartnerScope
	PartnerMatchedBy        MatchedBy
	PartnerMatchConfidence  int
	PartnerSuggestions      []PartnerSuggestion
	CategoryID              string
	CategoryMatchConfidence int
	CategorySuggestions     []CategorySuggestion
	FileIDs                 []string
}

// PartnerSuggestion is one ranked candidate partner for a transaction.
type PartnerSuggestion struct {
	PartnerID  string       `json:"partnerId"`
	Scope      PartnerScope `json:"partnerType"`
	Source     MatchSource  `json:"source"`
	Confidence int          `json:"confidence"`
}

// CategorySuggestion is one ranked candidate no-receipt category.
type CategorySuggestion struct {
	CategoryID string      `json:"categoryId"`
	Source     MatchSource `json:"source"`
	Confidence int         `json:"confidence"`
}

// HasPartner reports whether a partner has been assigned.
func (t *Transaction) HasPartner() bool {
	return t.PartnerID != ""
}

// IsManuallyMatched reports whether the partner assignment was made by the
// user. Automated passes must never overwrite such an assignment.
func (t *Transaction) IsManuallyMatched() bool {
	return t.PartnerMatchedBy == MatchedByManual
}

// IsComplete reports whether the transaction needs no further attention:
// it either has a no-receipt category or at least one connected file.
// Derived at read time, never stored.
func (t *Transaction) IsComplete() bool {
	return t.CategoryID != "" || len(t.FileIDs) > 0
}

// CombinedText returns the lowercased concatenation of all matchable text
// fields. Learned patterns match against this holistic text, not per-field.
func (t *Transaction) CombinedText() string {
	return CombineText(t.Name, t.PartnerLabel, t.Reference)
}
