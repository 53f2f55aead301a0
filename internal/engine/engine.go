// Package engine orchestrates partner and category matching: it scores
// candidates, ranks suggestions, auto-applies confident matches and keeps
// learned patterns up to date.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/currency"
	"github.com/quillbooks/quill/internal/fuzzy"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/normalize"
	"github.com/quillbooks/quill/internal/pattern"
	"github.com/quillbooks/quill/internal/score"
	"github.com/quillbooks/quill/internal/service"
)

// Engine runs the matching algorithms against a Storage implementation.
// All dependencies are injected; the engine holds no global state.
type Engine struct {
	store  service.Storage
	rates  *currency.Table
	logger *slog.Logger
	th     score.Thresholds
}

// New creates a matching engine.
func New(store service.Storage, rates *currency.Table, th score.Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, rates: rates, th: th, logger: logger}
}

// Thresholds returns the engine's tuned constants.
func (e *Engine) Thresholds() score.Thresholds {
	return e.th
}

// MatchResult is the outcome of matching one transaction.
type MatchResult struct {
	Applied     *service.PartnerAssignment
	Suggestions []model.PartnerSuggestion
}

// MatchPartner evaluates all candidate partners for a transaction, persists
// a ranked suggestion list and auto-applies the top match when it clears
// the auto-apply threshold. Transactions the user matched manually are
// never touched.
func (e *Engine) MatchPartner(ctx context.Context, txn *model.Transaction) (*MatchResult, error) {
	if txn.IsManuallyMatched() {
		return &MatchResult{}, nil
	}

	partners, err := e.store.GetPartnersForUser(ctx, txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}

	suggestions := e.evaluatePartners(partners, txn)
	result := &MatchResult{Suggestions: suggestions}
	if len(suggestions) == 0 {
		return result, nil
	}

	top := suggestions[0]
	if top.Confidence >= e.th.AutoApply && !txn.HasPartner() {
		assignment := service.PartnerAssignment{
			PartnerID:  top.PartnerID,
			Scope:      top.Scope,
			MatchedBy:  model.MatchedByAuto,
			Confidence: top.Confidence,
		}
		applied, err := e.store.ApplyPartnerMatch(ctx, txn.ID, assignment, suggestions)
		if err != nil {
			return nil, fmt.Errorf("failed to apply partner match: %w", err)
		}
		if applied {
			result.Applied = &assignment
		}
		return result, nil
	}

	if suggestionsEqual(txn.PartnerSuggestions, suggestions) {
		return result, nil // nothing changed, skip the write
	}
	if err := e.store.SavePartnerSuggestions(ctx, txn.ID, suggestions); err != nil {
		return nil, fmt.Errorf("failed to save suggestions: %w", err)
	}
	return result, nil
}

// evaluatePartners scores every candidate partner and returns a ranked
// suggestion list. Manual removals are a hard skip, checked before any
// pattern evaluation.
func (e *Engine) evaluatePartners(partners []model.Partner, txn *model.Transaction) []model.PartnerSuggestion {
	text := txn.CombinedText()
	suggestions := make([]model.PartnerSuggestion, 0, 4)

	for i := range partners {
		p := &partners[i]
		if p.IsRemovedTransaction(txn.ID) {
			continue
		}
		if s, ok := e.evaluatePartner(p, txn, text); ok {
			suggestions = append(suggestions, s)
		}
	}

	rankSuggestions(suggestions)
	return suggestions
}

// evaluatePartner takes the best signal for one partner: IBAN exact beats
// VAT exact beats learned patterns and fuzzy name.
func (e *Engine) evaluatePartner(p *model.Partner, txn *model.Transaction, text string) (model.PartnerSuggestion, bool) {
	best := model.PartnerSuggestion{PartnerID: p.ID, Scope: p.Scope}

	if txn.Iban != "" {
		for _, iban := range p.Ibans {
			if fuzzy.IbansMatch(txn.Iban, iban) {
				best.Confidence = e.th.IbanConfidence
				best.Source = model.SourceIban
				return best, true
			}
		}
	}

	if p.VatID != "" && textContainsVat(text, p.VatID) {
		best.Confidence = e.th.VatConfidence
		best.Source = model.SourceVat
	}

	if lp, ok := pattern.NewMatcher(p.LearnedPatterns).Best(text); ok && lp.Confidence > best.Confidence {
		best.Confidence = lp.Confidence
		best.Source = model.SourcePattern
	}

	if conf := e.fuzzyNameConfidence(p, txn); conf > best.Confidence {
		best.Confidence = conf
		best.Source = model.SourceName
	}

	return best, best.Confidence > 0
}

// fuzzyNameConfidence scales name similarity into the configured
// confidence band, e.g. similarity 60..100 -> confidence 60..90.
func (e *Engine) fuzzyNameConfidence(p *model.Partner, txn *model.Transaction) int {
	names := append([]string{p.Name}, p.Aliases...)
	targets := []string{txn.PartnerLabel, txn.Name}

	best := 0
	for _, name := range names {
		for _, target := range targets {
			if sim := fuzzy.NameSimilarity(name, target); sim > best {
				best = sim
			}
		}
	}
	if best < e.th.MinNameSimilarity {
		return 0
	}
	span := 100 - e.th.MinNameSimilarity
	scaled := e.th.NameFloor + (best-e.th.MinNameSimilarity)*(e.th.NameCeil-e.th.NameFloor)/span
	return scaled
}

// textContainsVat looks for the normalized VAT ID inside the alphanumeric
// projection of the transaction text.
func textContainsVat(text, vatID string) bool {
	vat := normalize.VatID(vatID)
	if vat == "" {
		return false
	}
	return strings.Contains(normalize.VatID(text), vat)
}

// rankSuggestions orders by confidence descending; on equal confidence,
// user-scoped partners outrank global ones (prefer specific over shared).
func rankSuggestions(s []model.PartnerSuggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Confidence != s[j].Confidence {
			return s[i].Confidence > s[j].Confidence
		}
		if s[i].Scope != s[j].Scope {
			return s[i].Scope == model.ScopeUser
		}
		return s[i].PartnerID < s[j].PartnerID
	})
}

func suggestionsEqual(a, b []model.PartnerSuggestion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AssignPartnerManually records a user-confirmed partner assignment and
// learns a pattern from it. Manual assignments are never overwritten by
// automated passes.
func (e *Engine) AssignPartnerManually(ctx context.Context, txn *model.Transaction, partnerID string, scope model.PartnerScope) error {
	if err := e.store.AssignPartnerManually(ctx, txn.ID, partnerID, scope); err != nil {
		return fmt.Errorf("failed to assign partner: %w", err)
	}
	if err := e.LearnPartnerPattern(ctx, partnerID, txn); err != nil {
		return err
	}
	return nil
}

// RemovePartnerMatch records negative feedback: the partner must never be
// suggested for this transaction again. Refused for the partner the user
// assigned themselves; the assignment has to be undone first.
func (e *Engine) RemovePartnerMatch(ctx context.Context, txn *model.Transaction, partnerID string) error {
	if txn.IsManuallyMatched() && txn.PartnerID == partnerID {
		return fmt.Errorf("transaction %s: %w", txn.ID, common.ErrManuallyAssigned)
	}
	removal := model.ManualRemoval{
		TargetID:    txn.ID,
		MatchedText: txn.CombinedText(),
	}
	if err := e.store.AddManualRemoval(ctx, partnerID, removal, false); err != nil {
		return fmt.Errorf("failed to record manual removal: %w", err)
	}
	return nil
}

// ScoreAttachments scores candidate files against a transaction. Purely
// computational; the caller decides what to persist.
func (e *Engine) ScoreAttachments(files []model.File, txn *model.Transaction, partner *model.Partner) []score.ScoredAttachment {
	scored := make([]score.ScoredAttachment, 0, len(files))
	for i := range files {
		f := &files[i]
		if partner != nil && partner.IsRemovedFile(f.ID) {
			continue
		}
		scored = append(scored, score.Attachment(f, txn, partner, e.rates, e.th))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
