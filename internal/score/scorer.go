// Package score computes confidence scores for candidate (file, transaction)
// pairs. Scoring is pure: no side effects, safe from any context.
package score

import (
	"fmt"

	"github.com/quillbooks/quill/internal/currency"
	"github.com/quillbooks/quill/internal/fuzzy"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/normalize"
)

// Labels for score bands.
const (
	LabelStrong = "Strong"
	LabelLikely = "Likely"
)

// Thresholds are the tuned constants of the matching core. They are
// empirically calibrated; tests pin every boundary because changing one
// changes which transactions get auto-categorized for end users.
type Thresholds struct {
	// AutoApply is the minimum confidence at which a match is applied
	// without user confirmation.
	AutoApply int
	// Strong and Likely are the qualitative score bands.
	Strong int
	Likely int
	// Structural partner signals.
	IbanConfidence int
	VatConfidence  int
	// Fuzzy name matches are scaled into [NameFloor, NameCeil].
	NameFloor int
	NameCeil  int
	// MinNameSimilarity gates fuzzy name signals entirely.
	MinNameSimilarity int
	// DateWindowDays is how far apart file and transaction dates may be
	// for the date signal to contribute.
	DateWindowDays int
	// AmountToleranceCents is the rounding slack for an exact amount match.
	AmountToleranceCents int64
}

// DefaultThresholds returns the production constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApply:            89,
		Strong:               80,
		Likely:               50,
		IbanConfidence:       100,
		VatConfidence:        95,
		NameFloor:            60,
		NameCeil:             90,
		MinNameSimilarity:    60,
		DateWindowDays:       7,
		AmountToleranceCents: 1,
	}
}

// Additive weights of the attachment scorer. An exact amount match alone
// lands in the Strong band; IBAN or VAT alone lands near the maximum.
const (
	weightAmountExact = 80
	weightAmountClose = 40
	weightIban        = 95
	weightVat         = 90
	weightDateMax     = 10
	weightName        = 10
	weightEmailDomain = 10
	weightInvoiceHint = 5
)

// ScoredAttachment is the scoring result for one candidate pair.
type ScoredAttachment struct {
	Key     string   `json:"key"`
	Label   string   `json:"label,omitempty"`
	Reasons []string `json:"reasons"`
	Score   int      `json:"score"`
}

// Attachment scores a candidate file against a transaction, optionally with
// partner context. Signals that cannot be evaluated (missing extraction,
// unresolvable currency) are excluded, never counted as negative.
func Attachment(file *model.File, txn *model.Transaction, partner *model.Partner, rates *currency.Table, th Thresholds) ScoredAttachment {
	result := ScoredAttachment{Key: file.ID}
	score := 0

	if pts, reason := amountSignal(file, txn, rates, th); pts > 0 {
		score += pts
		result.Reasons = append(result.Reasons, reason)
	}
	if pts, reason := dateSignal(file, txn, th); pts > 0 {
		score += pts
		result.Reasons = append(result.Reasons, reason)
	}
	if pts, reason := identitySignal(file, txn, partner, th); pts > 0 {
		score += pts
		result.Reasons = append(result.Reasons, reason)
	}
	if file.PossibleInvoice {
		score += weightInvoiceHint
		result.Reasons = append(result.Reasons, "email classified as possible invoice")
	}

	if score > 100 {
		score = 100
	}
	result.Score = score
	result.Label = Label(score, th)
	return result
}

// Label maps a score to its qualitative band.
func Label(score int, th Thresholds) string {
	switch {
	case score >= th.Strong:
		return LabelStrong
	case score >= th.Likely:
		return LabelLikely
	default:
		return ""
	}
}

func amountSignal(file *model.File, txn *model.Transaction, rates *currency.Table, th Thresholds) (int, string) {
	if file.ExtractedAmountCents == 0 {
		return 0, ""
	}

	fileCents := file.ExtractedAmountCents
	fileCurrency := file.ExtractedCurrency
	if fileCurrency == "" {
		fileCurrency = txn.Currency
	}

	if fileCurrency != txn.Currency {
		if rates == nil {
			return 0, ""
		}
		refDate := file.ExtractedDate
		if refDate.IsZero() {
			refDate = txn.Date
		}
		conv := rates.Convert(fileCents, fileCurrency, txn.Currency, refDate)
		if conv == nil {
			// No rate resolvable: the amount signal is unavailable,
			// not negative.
			return 0, ""
		}
		fileCents = conv.AmountCents
	}

	diff := abs64(abs64(txn.AmountCents) - abs64(fileCents))
	switch {
	case diff <= th.AmountToleranceCents:
		return weightAmountExact, "amount matches exactly"
	case diff <= closeAmountTolerance(txn.AmountCents):
		return weightAmountClose, fmt.Sprintf("amount within %d cents", diff)
	default:
		return 0, ""
	}
}

// closeAmountTolerance allows a near match within 1% of the transaction
// amount, at least one euro, to absorb tips and rounding differences.
func closeAmountTolerance(amountCents int64) int64 {
	tol := abs64(amountCents) / 100
	if tol < 100 {
		tol = 100
	}
	return tol
}

func dateSignal(file *model.File, txn *model.Transaction, th Thresholds) (int, string) {
	if file.ExtractedDate.IsZero() || txn.Date.IsZero() {
		return 0, ""
	}
	days := int(abs64(int64(txn.Date.Sub(file.ExtractedDate).Hours())) / 24)
	if days > th.DateWindowDays {
		return 0, ""
	}
	pts := weightDateMax - days
	if pts < 1 {
		pts = 1
	}
	if days == 0 {
		return pts, "same date"
	}
	return pts, fmt.Sprintf("dates %d days apart", days)
}

// identitySignal evaluates who the file is from: IBAN and VAT dominate,
// then fuzzy name, then the sender's email domain.
func identitySignal(file *model.File, txn *model.Transaction, partner *model.Partner, th Thresholds) (int, string) {
	if file.ExtractedIban != "" {
		if fuzzy.IbansMatch(file.ExtractedIban, txn.Iban) {
			return weightIban, "IBAN matches transaction"
		}
		if partner != nil && ibanInList(file.ExtractedIban, partner.Ibans) {
			return weightIban, "IBAN matches partner"
		}
	}
	if partner != nil && fuzzy.VatIDsMatch(file.ExtractedVatID, partner.VatID) {
		return weightVat, "VAT ID matches partner"
	}

	best := 0
	reason := ""
	if sim := nameSimilarity(file, txn, partner); sim >= th.MinNameSimilarity {
		best = weightName * sim / 100
		reason = fmt.Sprintf("name similarity %d%%", sim)
	}
	if partner != nil && file.EmailDomain != "" && containsFold(partner.EmailDomains, file.EmailDomain) {
		if weightEmailDomain > best {
			best = weightEmailDomain
			reason = "sender domain registered for partner"
		}
	}
	return best, reason
}

func nameSimilarity(file *model.File, txn *model.Transaction, partner *model.Partner) int {
	if file.ExtractedPartner == "" {
		return 0
	}
	best := fuzzy.NameSimilarity(file.ExtractedPartner, txn.PartnerLabel)
	if sim := fuzzy.NameSimilarity(file.ExtractedPartner, txn.Name); sim > best {
		best = sim
	}
	if partner != nil {
		if sim := fuzzy.NameSimilarity(file.ExtractedPartner, partner.Name); sim > best {
			best = sim
		}
		for _, alias := range partner.Aliases {
			if sim := fuzzy.NameSimilarity(file.ExtractedPartner, alias); sim > best {
				best = sim
			}
		}
	}
	return best
}

func ibanInList(iban string, list []string) bool {
	for _, candidate := range list {
		if fuzzy.IbansMatch(iban, candidate) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	target := normalize.CompanyName(s)
	for _, v := range list {
		if normalize.CompanyName(v) == target {
			return true
		}
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
