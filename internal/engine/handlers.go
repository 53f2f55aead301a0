package engine

import (
	"context"
	"fmt"

	"github.com/quillbooks/quill/internal/counterparty"
	"github.com/quillbooks/quill/internal/model"
)

// EffectKind names a follow-up action triggered by a document change.
type EffectKind string

const (
	// EffectMatchCategory re-runs category matching for a transaction.
	EffectMatchCategory EffectKind = "match-category"
	// EffectLearnPartnerPattern learns a pattern from a manual confirmation.
	EffectLearnPartnerPattern EffectKind = "learn-partner-pattern"
	// EffectReevaluateCounterparty re-resolves invoice direction for all
	// of the user's extracted files.
	EffectReevaluateCounterparty EffectKind = "reevaluate-counterparty"
)

// Effect is a deferred action derived from a (before, after) change pair.
// Deriving effects is pure; applying them is the engine's job. This keeps
// the trigger logic unit-testable without any document-store wiring.
type Effect struct {
	Kind          EffectKind
	UserID        string
	TransactionID string
	PartnerID     string
}

// OnTransactionChanged inspects a transaction update and returns the
// follow-up effects it warrants.
func OnTransactionChanged(before, after *model.Transaction) []Effect {
	if after == nil {
		return nil
	}
	var effects []Effect

	partnerAssigned := after.HasPartner() && (before == nil || !before.HasPartner())
	if partnerAssigned {
		if after.IsManuallyMatched() {
			effects = append(effects, Effect{
				Kind:          EffectLearnPartnerPattern,
				UserID:        after.UserID,
				TransactionID: after.ID,
				PartnerID:     after.PartnerID,
			})
		}
		// The new partner linkage is a fresh category signal, but only
		// while the transaction still needs a category.
		if !after.IsComplete() {
			effects = append(effects, Effect{
				Kind:          EffectMatchCategory,
				UserID:        after.UserID,
				TransactionID: after.ID,
			})
		}
	}

	return effects
}

// OnUserDataChanged returns a re-evaluation effect when any identity field
// changed. Counterparty resolution depends on every one of them.
func OnUserDataChanged(before, after *model.UserData) []Effect {
	if after == nil {
		return nil
	}
	if before != nil && after.IdentityEquals(before) {
		return nil
	}
	return []Effect{{Kind: EffectReevaluateCounterparty, UserID: after.UserID}}
}

// ApplyEffects executes derived effects. Individual failures are logged
// and the remaining effects still run; the first error is returned.
func (e *Engine) ApplyEffects(ctx context.Context, effects []Effect) error {
	var firstErr error
	for _, effect := range effects {
		if err := e.applyEffect(ctx, effect); err != nil {
			e.logger.Warn("effect failed", "kind", effect.Kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) applyEffect(ctx context.Context, effect Effect) error {
	switch effect.Kind {
	case EffectMatchCategory:
		txn, err := e.store.GetTransactionByID(ctx, effect.TransactionID)
		if err != nil {
			return err
		}
		_, err = e.MatchCategory(ctx, txn)
		return err
	case EffectLearnPartnerPattern:
		txn, err := e.store.GetTransactionByID(ctx, effect.TransactionID)
		if err != nil {
			return err
		}
		return e.LearnPartnerPattern(ctx, effect.PartnerID, txn)
	case EffectReevaluateCounterparty:
		_, err := counterparty.Reevaluate(ctx, e.store, effect.UserID, "", e.logger)
		return err
	default:
		return fmt.Errorf("unknown effect kind %q", effect.Kind)
	}
}
