package model

import "time"

// NoReceiptCategory is a per-user instance of a fixed template: a VAT/tax
// bucket for transactions that will never have a receipt (bank fees,
// payroll, taxes). It carries the same pattern-learning shape as Partner.
type NoReceiptCategory struct {
	CreatedAt         time.Time
	ID                string
	UserID            string
	TemplateSlug      string
	Name              string
	MatchedPartnerIDs []string
	LearnedPatterns   []LearnedPattern
	ManualRemovals    []ManualRemoval
}

// IsRemovedTransaction reports whether the transaction was manually removed
// from this category. Checked before any pattern evaluation.
func (c *NoReceiptCategory) IsRemovedTransaction(transactionID string) bool {
	for _, r := range c.ManualRemovals {
		if r.TargetID == transactionID {
			return true
		}
	}
	return false
}

// HasPartner reports whether the partner is linked to this category.
func (c *NoReceiptCategory) HasPartner(partnerID string) bool {
	return containsString(c.MatchedPartnerIDs, partnerID)
}

// CategoryTemplate describes one entry of the fixed template set that
// per-user categories are instantiated from.
type CategoryTemplate struct {
	Slug string
	Name string
}

// DefaultCategoryTemplates returns the built-in no-receipt category set.
func DefaultCategoryTemplates() []CategoryTemplate {
	return []CategoryTemplate{
		{Slug: "bank-fees", Name: "Bank fees"},
		{Slug: "payroll", Name: "Payroll"},
		{Slug: "taxes", Name: "Taxes"},
		{Slug: "social-insurance", Name: "Social insurance"},
		{Slug: "interest", Name: "Interest"},
		{Slug: "cash-withdrawal", Name: "Cash withdrawal"},
		{Slug: "internal-transfer", Name: "Internal transfer"},
	}
}
