package engine

import (
	"context"
	"fmt"

	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/pattern"
	"github.com/quillbooks/quill/internal/service"
)

// Bulk reapplication bounds. The record cap bounds cost and runtime per
// invocation, not completeness; callers resume from the returned cursor.
const (
	ReapplyPageSize   = 500
	ReapplyMaxRecords = 10000
)

// BulkResult reports a bulk pass over the user's transactions.
type BulkResult struct {
	ResumeCursor string
	Processed    int
	Matched      int
	Suggested    int
	Failed       int
}

// LearnPartnerPattern derives a glob pattern from a confirmed transaction
// and stores it on the partner, reinforcing an equivalent existing pattern
// instead of duplicating it.
func (e *Engine) LearnPartnerPattern(ctx context.Context, partnerID string, txn *model.Transaction) error {
	derived := pattern.Derive(txn.CombinedText())
	if derived == "" {
		return nil
	}
	if _, err := e.store.UpsertPartnerPattern(ctx, partnerID, derived, txn.ID); err != nil {
		return fmt.Errorf("failed to learn partner pattern: %w", err)
	}
	return nil
}

// LearnCategoryPattern is the category counterpart of LearnPartnerPattern.
func (e *Engine) LearnCategoryPattern(ctx context.Context, categoryID string, txn *model.Transaction) error {
	derived := pattern.Derive(txn.CombinedText())
	if derived == "" {
		return nil
	}
	if _, err := e.store.UpsertCategoryPattern(ctx, categoryID, derived, txn.ID); err != nil {
		return fmt.Errorf("failed to learn category pattern: %w", err)
	}
	return nil
}

// ReapplyPatterns re-runs partner matching across the user's transaction
// history: all of it, in stable cursor pages, with no recency cutoff.
// Transactions that already have a partner are skipped; matches at or
// above the auto-apply threshold are assigned, sub-threshold matches still
// get their suggestion lists written. A bad record is logged and counted,
// never aborts the scan. Safe to interrupt: the returned cursor resumes
// after the last processed record.
func (e *Engine) ReapplyPatterns(ctx context.Context, userID, cursor string) (*BulkResult, error) {
	partners, err := e.store.GetPartnersForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}

	result := &BulkResult{}
	for {
		if err := ctx.Err(); err != nil {
			result.ResumeCursor = cursor
			return result, nil
		}

		page, err := e.store.GetTransactionsPage(ctx, userID, cursor, ReapplyPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load transactions page: %w", err)
		}

		for i := range page.Transactions {
			txn := &page.Transactions[i]
			result.Processed++
			if txn.HasPartner() {
				continue
			}
			if err := e.reapplyOne(ctx, partners, txn, result); err != nil {
				result.Failed++
				e.logger.Warn("pattern reapplication failed for transaction",
					"transaction", txn.ID, "error", err)
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			return result, nil
		}
		if result.Processed >= ReapplyMaxRecords {
			result.ResumeCursor = cursor
			return result, nil
		}
	}
}

func (e *Engine) reapplyOne(ctx context.Context, partners []model.Partner, txn *model.Transaction, result *BulkResult) error {
	suggestions := e.evaluatePartners(partners, txn)
	if len(suggestions) == 0 {
		return nil
	}

	top := suggestions[0]
	if top.Confidence >= e.th.AutoApply {
		// ApplyPartnerMatch re-checks state right before writing; a
		// manual assignment that raced us wins and we skip.
		applied, err := e.store.ApplyPartnerMatch(ctx, txn.ID, service.PartnerAssignment{
			PartnerID:  top.PartnerID,
			Scope:      top.Scope,
			MatchedBy:  model.MatchedByAuto,
			Confidence: top.Confidence,
		}, suggestions)
		if err != nil {
			return err
		}
		if applied {
			result.Matched++
		}
		return nil
	}

	if suggestionsEqual(txn.PartnerSuggestions, suggestions) {
		return nil
	}
	if err := e.store.SavePartnerSuggestions(ctx, txn.ID, suggestions); err != nil {
		return err
	}
	result.Suggested++
	return nil
}
