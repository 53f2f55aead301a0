package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/testutil"
)

func TestOnTransactionChangedManualAssignment(t *testing.T) {
	before := &model.Transaction{ID: "t1", UserID: "u1"}
	after := &model.Transaction{
		ID: "t1", UserID: "u1",
		PartnerID: "p1", PartnerMatchedBy: model.MatchedByManual,
	}

	effects := OnTransactionChanged(before, after)
	require.Len(t, effects, 2)
	assert.Equal(t, EffectLearnPartnerPattern, effects[0].Kind)
	assert.Equal(t, "p1", effects[0].PartnerID)
	assert.Equal(t, EffectMatchCategory, effects[1].Kind)
}

func TestOnTransactionChangedAutoAssignment(t *testing.T) {
	before := &model.Transaction{ID: "t1", UserID: "u1"}
	after := &model.Transaction{
		ID: "t1", UserID: "u1",
		PartnerID: "p1", PartnerMatchedBy: model.MatchedByAuto,
	}

	effects := OnTransactionChanged(before, after)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectMatchCategory, effects[0].Kind)
}

func TestOnTransactionChangedCompleteSkipsCategory(t *testing.T) {
	after := &model.Transaction{
		ID: "t1", UserID: "u1",
		PartnerID: "p1", PartnerMatchedBy: model.MatchedByManual,
		CategoryID: "c1",
	}

	effects := OnTransactionChanged(nil, after)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectLearnPartnerPattern, effects[0].Kind)
}

func TestOnTransactionChangedNoNewAssignment(t *testing.T) {
	txn := &model.Transaction{
		ID: "t1", UserID: "u1",
		PartnerID: "p1", PartnerMatchedBy: model.MatchedByAuto,
	}
	assert.Empty(t, OnTransactionChanged(txn, txn))
	assert.Empty(t, OnTransactionChanged(nil, &model.Transaction{ID: "t1"}))
}

func TestOnUserDataChanged(t *testing.T) {
	base := &model.UserData{UserID: "u1", CompanyName: "Muster GmbH", VatIDs: []string{"ATU12345678"}}

	same := &model.UserData{UserID: "u1", CompanyName: "Muster GmbH", VatIDs: []string{"ATU12345678"}}
	assert.Empty(t, OnUserDataChanged(base, same))

	changed := &model.UserData{UserID: "u1", CompanyName: "Muster GmbH", VatIDs: []string{"ATU99999999"}}
	effects := OnUserDataChanged(base, changed)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectReevaluateCounterparty, effects[0].Kind)
	assert.Equal(t, "u1", effects[0].UserID)

	fresh := OnUserDataChanged(nil, base)
	require.Len(t, fresh, 1)
	assert.Equal(t, EffectReevaluateCounterparty, fresh[0].Kind)
}

func TestApplyEffectsReevaluatesCounterparty(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveUserData(ctx, &model.UserData{
		UserID:      "u1",
		CompanyName: "Muster GmbH",
		VatIDs:      []string{"ATU12345678"},
	}))
	require.NoError(t, store.SaveFiles(ctx, []model.File{{
		ID: "f1", UserID: "u1", ExtractionComplete: true,
		ExtractedIssuer:    model.Entity{Name: "Lieferant AG", VatID: "DE111111111"},
		ExtractedRecipient: model.Entity{Name: "Muster GmbH", VatID: "ATU12345678"},
	}}))

	err := engine.ApplyEffects(ctx, []Effect{{Kind: EffectReevaluateCounterparty, UserID: "u1"}})
	require.NoError(t, err)

	file, err := store.GetFileByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.DirectionIncoming, file.InvoiceDirection)
	assert.Equal(t, model.RoleRecipient, file.MatchedUserAccount)
	assert.Equal(t, "Lieferant AG", file.Counterparty)
}

func TestApplyEffectsMatchCategory(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, &model.NoReceiptCategory{
		ID: "c1", UserID: "u1", Name: "Bank fees",
		MatchedPartnerIDs: []string{"p1"},
	}))
	seedTransaction(t, store, model.Transaction{
		ID: "t1", UserID: "u1", Name: "Entgelt", PartnerID: "p1",
		PartnerMatchedBy: model.MatchedByAuto,
	})

	err := engine.ApplyEffects(ctx, []Effect{{Kind: EffectMatchCategory, UserID: "u1", TransactionID: "t1"}})
	require.NoError(t, err)

	saved, err := store.GetTransactionByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "c1", saved.CategoryID)
}

func TestApplyEffectsUnknownKind(t *testing.T) {
	store := testutil.NewMockStorage()
	engine := newTestEngine(store)

	err := engine.ApplyEffects(context.Background(), []Effect{{Kind: "bogus"}})
	assert.Error(t, err)
}
