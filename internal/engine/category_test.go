package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/testutil"
)

func TestMatchCategoryPartnerLinkAutoApplies(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", TemplateSlug: "bank-fees", Name: "Bank fees",
		MatchedPartnerIDs: []string{"p-bank"},
	}))
	txn := seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Kontoführung", PartnerID: "p-bank",
		PartnerMatchedBy: model.MatchedByAuto,
	})

	result, err := engine.MatchCategory(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, "c1", result.AppliedCategoryID)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, model.SourcePartnerLink, result.Suggestions[0].Source)
	assert.Equal(t, 95, result.Suggestions[0].Confidence)

	saved, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "c1", saved.CategoryID)
	assert.Equal(t, 95, saved.CategoryMatchConfidence)
}

func TestMatchCategorySkipsCompleteTransactions(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Bank fees",
		LearnedPatterns: []model.LearnedPattern{{Pattern: "*fee*", Confidence: 100}},
	}))

	cases := []struct {
		name string
		txn  model.Transaction
	}{
		{"has category", model.Transaction{ID: "t1", UserID: "u1", Name: "fee", CategoryID: "other"}},
		{"has connected file", model.Transaction{ID: "t2", UserID: "u1", Name: "fee", FileIDs: []string{"f1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txn := seedTransaction(t, store, tc.txn)
			result, err := engine.MatchCategory(ctx, txn)
			require.NoError(t, err)
			assert.Empty(t, result.AppliedCategoryID)
			assert.Empty(t, result.Suggestions)
		})
	}
}

func TestMatchCategoryPatternBelowThresholdSuggests(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Payroll",
		LearnedPatterns: []model.LearnedPattern{{Pattern: "*gehalt*", Confidence: 60}},
	}))
	txn := seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Gehalt Juni",
	})

	result, err := engine.MatchCategory(ctx, txn)
	require.NoError(t, err)
	assert.Empty(t, result.AppliedCategoryID)
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, 60, result.Suggestions[0].Confidence)

	saved, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, saved.CategoryID)
	assert.Len(t, saved.CategorySuggestions, 1)
}

func TestMatchCategoryManualRemovalSuppresses(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Taxes",
		LearnedPatterns: []model.LearnedPattern{{Pattern: "*finanzamt*", Confidence: 100}},
		ManualRemovals:  []model.ManualRemoval{{TargetID: "t1"}},
	}))
	txn := seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Finanzamt Vorauszahlung",
	})

	result, err := engine.MatchCategory(ctx, txn)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
}

func TestMatchCategoryWritesBackPartnerLink(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	// The pattern auto-applies; the transaction's partner should then be
	// linked to the category for future instant matches.
	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Bank fees",
		LearnedPatterns: []model.LearnedPattern{{Pattern: "*kontofuehrung*", Confidence: 90}},
	}))
	txn := seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Kontofuehrung Entgelt", PartnerID: "p-bank",
		PartnerMatchedBy: model.MatchedByAuto,
	})

	result, err := engine.MatchCategory(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, "c1", result.AppliedCategoryID)

	category := store.Categories["c1"]
	assert.Contains(t, category.MatchedPartnerIDs, "p-bank")
}

func TestAssignCategoryManuallyAlwaysWins(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Interest",
	}))
	txn := seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Zinsen Q2", CategoryID: "auto-assigned",
	})

	require.NoError(t, engine.AssignCategoryManually(ctx, txn, "c1"))

	saved, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "c1", saved.CategoryID)

	category := store.Categories["c1"]
	require.Len(t, category.LearnedPatterns, 1)
	assert.Equal(t, "*zinsen*", category.LearnedPatterns[0].Pattern)
}
