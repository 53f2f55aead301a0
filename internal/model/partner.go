package model

import "time"

// Partner represents a counterparty (vendor or customer) that transactions
// and files can be attributed to. Partners are either user-scoped or global.
type Partner struct {
	CreatedAt          time.Time
	ID                 string
	UserID             string // empty for global partners
	Name               string
	VatID              string
	Scope              PartnerScope
	Aliases            []string
	Ibans              []string
	EmailDomains       []string
	LearnedPatterns    []LearnedPattern
	ManualRemovals     []ManualRemoval
	ManualFileRemovals []ManualRemoval
}

// ManualRemoval records that the user explicitly removed a suggested match.
// It is a negative training signal: the target must never be re-suggested
// for this partner or category, regardless of pattern confidence.
type ManualRemoval struct {
	CreatedAt   time.Time
	TargetID    string // transaction or file ID
	MatchedText string // snapshot of the text that produced the removed match
}

// IsRemovedTransaction reports whether the transaction was manually removed
// from this partner. Checked before any pattern evaluation.
func (p *Partner) IsRemovedTransaction(transactionID string) bool {
	for _, r := range p.ManualRemovals {
		if r.TargetID == transactionID {
			return true
		}
	}
	return false
}

// IsRemovedFile reports whether the file was manually removed from this partner.
func (p *Partner) IsRemovedFile(fileID string) bool {
	for _, r := range p.ManualFileRemovals {
		if r.TargetID == fileID {
			return true
		}
	}
	return false
}
