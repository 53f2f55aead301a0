package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/service"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testTransaction(id, userID string) model.Transaction {
	return model.Transaction{
		ID:          id,
		UserID:      userID,
		Hash:        "hash-" + id,
		Date:        time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Name:        "ACME TOOLS GMBH",
		Reference:   "Rechnung 4711",
		AmountCents: -4999,
		Currency:    "EUR",
		AccountID:   "acct-1",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestSaveAndGetTransaction(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txn := testTransaction("t1", "u1")
	txn.Iban = "DE89370400440532013000"
	txn.PartnerSuggestions = []model.PartnerSuggestion{
		{PartnerID: "p1", Scope: model.ScopeUser, Source: model.SourcePattern, Confidence: 70},
	}
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, txn.Name, got.Name)
	assert.Equal(t, txn.AmountCents, got.AmountCents)
	assert.Equal(t, txn.Iban, got.Iban)
	require.Len(t, got.PartnerSuggestions, 1)
	assert.Equal(t, "p1", got.PartnerSuggestions[0].PartnerID)

	_, err = store.GetTransactionByID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveTransactionsSkipsDuplicateHashes(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testTransaction("t1", "u1")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{first}))

	// Same hash, different ID: the re-import must be silently skipped.
	dup := testTransaction("t2", "u1")
	dup.Hash = first.Hash
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{dup}))

	_, err := store.GetTransactionByID(ctx, "t2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveTransactionsHashUniquenessIsPerUser(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testTransaction("t1", "u1")
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{first}))

	// A second user importing the identical bank row keeps their copy.
	other := testTransaction("t2", "u2")
	other.Hash = first.Hash
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{other}))

	got, err := store.GetTransactionByID(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
	assert.Equal(t, first.Hash, got.Hash)
}

func TestGetTransactionsPageCursor(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txns := make([]model.Transaction, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		txns = append(txns, testTransaction(id, "u1"))
	}
	txns = append(txns, testTransaction("z", "u2"))
	require.NoError(t, store.SaveTransactions(ctx, txns))

	page, err := store.GetTransactionsPage(ctx, "u1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "a", page.Transactions[0].ID)
	assert.Equal(t, "b", page.NextCursor)

	page, err = store.GetTransactionsPage(ctx, "u1", page.NextCursor, 10)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, "c", page.Transactions[0].ID)
	assert.Empty(t, page.NextCursor)
}

func TestExistingHashes(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		testTransaction("t1", "u1"),
		testTransaction("t2", "u1"),
	}))

	found, err := store.ExistingHashes(ctx, "u1", []string{"hash-t1", "hash-t2", "hash-new"})
	require.NoError(t, err)
	assert.True(t, found["hash-t1"])
	assert.True(t, found["hash-t2"])
	assert.False(t, found["hash-new"])

	// Another user's import must not see these hashes.
	other, err := store.ExistingHashes(ctx, "u2", []string{"hash-t1"})
	require.NoError(t, err)
	assert.False(t, other["hash-t1"])
}

func TestApplyPartnerMatchConditional(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{testTransaction("t1", "u1")}))

	assignment := service.PartnerAssignment{
		PartnerID: "p1", Scope: model.ScopeUser, MatchedBy: model.MatchedByAuto, Confidence: 95,
	}
	applied, err := store.ApplyPartnerMatch(ctx, "t1", assignment, []model.PartnerSuggestion{
		{PartnerID: "p1", Scope: model.ScopeUser, Source: model.SourceVat, Confidence: 95},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// A second automated pass must not overwrite.
	assignment.PartnerID = "p2"
	applied, err = store.ApplyPartnerMatch(ctx, "t1", assignment, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.PartnerID)
	assert.Equal(t, 95, got.PartnerMatchConfidence)
}

func TestApplyPartnerMatchNeverOverwritesManual(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{testTransaction("t1", "u1")}))
	require.NoError(t, store.AssignPartnerManually(ctx, "t1", "p-manual", model.ScopeUser))

	applied, err := store.ApplyPartnerMatch(ctx, "t1", service.PartnerAssignment{
		PartnerID: "p-auto", Scope: model.ScopeUser, MatchedBy: model.MatchedByAuto, Confidence: 100,
	}, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "p-manual", got.PartnerID)
	assert.Equal(t, model.MatchedByManual, got.PartnerMatchedBy)
}

func TestApplyCategoryMatchSkipsCompletedTransactions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		testTransaction("t1", "u1"),
		testTransaction("t2", "u1"),
	}))

	applied, err := store.ApplyCategoryMatch(ctx, "t1", "c1", 95, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CategoryID)
	assert.Equal(t, 95, got.CategoryMatchConfidence)

	// Already categorized.
	applied, err = store.ApplyCategoryMatch(ctx, "t1", "c2", 95, nil)
	require.NoError(t, err)
	assert.False(t, applied)

	// Connected file makes the transaction complete.
	require.NoError(t, store.SaveFiles(ctx, []model.File{{ID: "f1", UserID: "u1"}}))
	require.NoError(t, store.ConnectFileTransaction(ctx, "f1", "t2"))
	applied, err = store.ApplyCategoryMatch(ctx, "t2", "c1", 95, nil)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSavePartnerRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	partner := &model.Partner{
		ID:           "p1",
		UserID:       "u1",
		Name:         "Acme Tools GmbH",
		VatID:        "DE123456789",
		Scope:        model.ScopeUser,
		Aliases:      []string{"Acme", "Acme Tools"},
		Ibans:        []string{"DE89370400440532013000"},
		EmailDomains: []string{"acme-tools.de"},
		LearnedPatterns: []model.LearnedPattern{
			{Pattern: "*acme*tools*", Confidence: 70, SourceIDs: []string{"t1"}, UsageCount: 2},
		},
		ManualRemovals:     []model.ManualRemoval{{TargetID: "t9", MatchedText: "acme misc"}},
		ManualFileRemovals: []model.ManualRemoval{{TargetID: "f9"}},
	}
	require.NoError(t, store.SavePartner(ctx, partner))

	got, err := store.GetPartnerByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, partner.Name, got.Name)
	assert.Equal(t, partner.Aliases, got.Aliases)
	assert.Equal(t, partner.Ibans, got.Ibans)
	require.Len(t, got.LearnedPatterns, 1)
	assert.Equal(t, "*acme*tools*", got.LearnedPatterns[0].Pattern)
	assert.Equal(t, []string{"t1"}, got.LearnedPatterns[0].SourceIDs)
	require.Len(t, got.ManualRemovals, 1)
	assert.Equal(t, "t9", got.ManualRemovals[0].TargetID)
	require.Len(t, got.ManualFileRemovals, 1)
	assert.True(t, got.IsRemovedFile("f9"))
}

func TestGetPartnersForUserIncludesGlobal(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SavePartner(ctx, &model.Partner{
		ID: "p-user", UserID: "u1", Name: "Mine", Scope: model.ScopeUser,
	}))
	require.NoError(t, store.SavePartner(ctx, &model.Partner{
		ID: "p-global", Name: "Shared", Scope: model.ScopeGlobal,
	}))
	require.NoError(t, store.SavePartner(ctx, &model.Partner{
		ID: "p-other", UserID: "u2", Name: "Not mine", Scope: model.ScopeUser,
	}))

	partners, err := store.GetPartnersForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, "p-global", partners[0].ID)
	assert.Equal(t, "p-user", partners[1].ID)
}

func TestUpsertPartnerPatternReinforces(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SavePartner(ctx, &model.Partner{
		ID: "p1", UserID: "u1", Name: "Acme", Scope: model.ScopeUser,
	}))

	changed, err := store.UpsertPartnerPattern(ctx, "p1", "*acme*tools*", "t1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.UpsertPartnerPattern(ctx, "p1", "*acme*tools*", "t2")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.GetPartnerByID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.LearnedPatterns, 1)
	lp := got.LearnedPatterns[0]
	assert.Equal(t, model.NewPatternConfidence+model.ReinforceStep, lp.Confidence)
	assert.ElementsMatch(t, []string{"t1", "t2"}, lp.SourceIDs)
}

func TestAddManualRemovalIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SavePartner(ctx, &model.Partner{
		ID: "p1", UserID: "u1", Name: "Acme", Scope: model.ScopeUser,
	}))

	removal := model.ManualRemoval{TargetID: "t1", MatchedText: "acme"}
	require.NoError(t, store.AddManualRemoval(ctx, "p1", removal, false))
	require.NoError(t, store.AddManualRemoval(ctx, "p1", removal, false))

	got, err := store.GetPartnerByID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got.ManualRemovals, 1)
}

func TestEnsureDefaultCategories(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureDefaultCategories(ctx, "u1"))
	categories, err := store.GetCategoriesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, categories, len(model.DefaultCategoryTemplates()))

	// Running again must not duplicate.
	require.NoError(t, store.EnsureDefaultCategories(ctx, "u1"))
	categories, err = store.GetCategoriesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, categories, len(model.DefaultCategoryTemplates()))
}

func TestSaveCategoryRejectsDuplicateTemplate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", TemplateSlug: "bank-fees", Name: "Bank fees",
	}
	require.NoError(t, store.SaveCategory(ctx, first))

	// Re-saving the same category is an update, not a duplicate.
	first.Name = "Bank charges"
	require.NoError(t, store.SaveCategory(ctx, first))

	err := store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c2", UserID: "u1", TemplateSlug: "bank-fees", Name: "Bank fees again",
	})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Another user may use the same template.
	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c3", UserID: "u2", TemplateSlug: "bank-fees", Name: "Bank fees",
	}))
}

func TestLinkCategoryPartner(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Bank fees",
	}))

	require.NoError(t, store.LinkCategoryPartner(ctx, "c1", "p1"))
	require.NoError(t, store.LinkCategoryPartner(ctx, "c1", "p1"))
	require.NoError(t, store.LinkCategoryPartner(ctx, "c1", "p2"))

	categories, err := store.GetCategoriesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, []string{"p1", "p2"}, categories[0].MatchedPartnerIDs)
}

func TestSaveFilesAndExtractedPage(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFiles(ctx, []model.File{
		{
			ID: "f1", UserID: "u1", FileName: "invoice.pdf",
			ExtractedAmountCents: 4999, ExtractedCurrency: "EUR",
			ExtractedIssuer:    model.Entity{Name: "Acme GmbH", VatID: "DE123456789"},
			ExtractionComplete: true,
		},
		{ID: "f2", UserID: "u1", ExtractionComplete: false},
		{ID: "f3", UserID: "u1", ExtractionComplete: true, NotInvoice: true},
	}))

	got, err := store.GetFileByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", got.FileName)
	assert.Equal(t, "Acme GmbH", got.ExtractedIssuer.Name)

	page, err := store.GetExtractedFilesPage(ctx, "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "f1", page.Files[0].ID)
}

func TestUpdateFileCounterpartySkipsNoOp(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFiles(ctx, []model.File{
		{ID: "f1", UserID: "u1", ExtractionComplete: true, ExtractedPartner: "ACME G.M.B.H."},
	}))

	update := service.CounterpartyUpdate{
		Direction:          model.DirectionIncoming,
		MatchedUserAccount: model.RoleRecipient,
		CounterpartyName:   "Acme GmbH",
	}
	changed, err := store.UpdateFileCounterparty(ctx, "f1", update)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.UpdateFileCounterparty(ctx, "f1", update)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetFileByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.DirectionIncoming, got.InvoiceDirection)
	assert.Equal(t, "Acme GmbH", got.Counterparty)
	assert.Equal(t, "ACME G.M.B.H.", got.ExtractedPartner, "extraction results must stay as extracted")
}

func TestConnectFileTransaction(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{testTransaction("t1", "u1")}))
	require.NoError(t, store.SaveFiles(ctx, []model.File{{ID: "f1", UserID: "u1"}}))

	require.NoError(t, store.ConnectFileTransaction(ctx, "f1", "t1"))
	require.NoError(t, store.ConnectFileTransaction(ctx, "f1", "t1"))

	txn, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, txn.FileIDs)
	assert.True(t, txn.IsComplete())

	file, err := store.GetFileByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, file.TransactionIDs)
}

func TestUserDataRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := store.GetUserData(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	data := &model.UserData{
		UserID:      "u1",
		Name:        "Maxine Muster",
		CompanyName: "Muster GmbH",
		VatIDs:      []string{"ATU12345678"},
		Ibans:       []string{"AT611904300234573201"},
		SourceIbans: []string{"AT021420020010147558"},
		OwnEmails:   []string{"office@muster.at"},
	}
	require.NoError(t, store.SaveUserData(ctx, data))

	got, err := store.GetUserData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, data.CompanyName, got.CompanyName)
	assert.Equal(t, data.VatIDs, got.VatIDs)
	assert.Equal(t, []string{"AT611904300234573201", "AT021420020010147558"}, got.AllIbans())

	data.VatIDs = []string{"ATU99999999"}
	require.NoError(t, store.SaveUserData(ctx, data))
	got, err = store.GetUserData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ATU99999999"}, got.VatIDs)
}
