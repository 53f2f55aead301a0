package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/pattern"
)

// CategoryResult is the outcome of category matching for one transaction.
type CategoryResult struct {
	AppliedCategoryID string
	Suggestions       []model.CategorySuggestion
}

// MatchCategory maps a transaction to a no-receipt category. Runs the same
// shape as partner matching, with one extra signal: a category already
// linked to the transaction's assigned partner matches with high
// confidence. On auto-apply the category→partner link is written back so
// future transactions from that partner match instantly.
func (e *Engine) MatchCategory(ctx context.Context, txn *model.Transaction) (*CategoryResult, error) {
	if txn.IsComplete() {
		return &CategoryResult{}, nil
	}

	categories, err := e.store.GetCategoriesForUser(ctx, txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	suggestions := e.evaluateCategories(categories, txn)
	result := &CategoryResult{Suggestions: suggestions}
	if len(suggestions) == 0 {
		return result, nil
	}

	top := suggestions[0]
	if top.Confidence >= e.th.AutoApply {
		applied, err := e.store.ApplyCategoryMatch(ctx, txn.ID, top.CategoryID, top.Confidence, suggestions)
		if err != nil {
			return nil, fmt.Errorf("failed to apply category match: %w", err)
		}
		if applied {
			result.AppliedCategoryID = top.CategoryID
			e.linkCategoryPartner(ctx, top.CategoryID, txn)
		}
		return result, nil
	}

	if categorySuggestionsEqual(txn.CategorySuggestions, suggestions) {
		return result, nil
	}
	if err := e.store.SaveCategorySuggestions(ctx, txn.ID, suggestions); err != nil {
		return nil, fmt.Errorf("failed to save category suggestions: %w", err)
	}
	return result, nil
}

func (e *Engine) evaluateCategories(categories []model.NoReceiptCategory, txn *model.Transaction) []model.CategorySuggestion {
	text := txn.CombinedText()
	suggestions := make([]model.CategorySuggestion, 0, 2)

	for i := range categories {
		c := &categories[i]
		if c.IsRemovedTransaction(txn.ID) {
			continue
		}

		best := model.CategorySuggestion{CategoryID: c.ID}
		if txn.HasPartner() && c.HasPartner(txn.PartnerID) {
			best.Confidence = e.th.VatConfidence
			best.Source = model.SourcePartnerLink
		}
		if lp, ok := pattern.NewMatcher(c.LearnedPatterns).Best(text); ok && lp.Confidence > best.Confidence {
			best.Confidence = lp.Confidence
			best.Source = model.SourcePattern
		}
		if best.Confidence > 0 {
			suggestions = append(suggestions, best)
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].CategoryID < suggestions[j].CategoryID
	})
	return suggestions
}

// linkCategoryPartner writes back the category→partner association after an
// auto-apply. A failure here only loses a future shortcut, so it is logged
// and not propagated.
func (e *Engine) linkCategoryPartner(ctx context.Context, categoryID string, txn *model.Transaction) {
	if !txn.HasPartner() {
		return
	}
	if err := e.store.LinkCategoryPartner(ctx, categoryID, txn.PartnerID); err != nil {
		e.logger.Warn("failed to link category to partner",
			"category", categoryID, "partner", txn.PartnerID, "error", err)
	}
}

// AssignCategoryManually records a user-confirmed category and learns a
// pattern from the transaction text.
func (e *Engine) AssignCategoryManually(ctx context.Context, txn *model.Transaction, categoryID string) error {
	if err := e.store.AssignCategoryManually(ctx, txn.ID, categoryID); err != nil {
		return fmt.Errorf("failed to assign category: %w", err)
	}
	if err := e.LearnCategoryPattern(ctx, categoryID, txn); err != nil {
		return err
	}
	if txn.HasPartner() {
		e.linkCategoryPartner(ctx, categoryID, txn)
	}
	return nil
}

func categorySuggestionsEqual(a, b []model.CategorySuggestion) bool {
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
