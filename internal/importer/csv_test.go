package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/testutil"
)

func TestImportCSV(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Name,Reference,Partner,Amount,Currency,IBAN",
		`2025-06-10,ACME TOOLS GMBH,Rechnung 4711,Acme Tools,"-49,99",EUR,DE89 3704 0044 0532 0130 00`,
		`2025-06-11,Salary,Gehalt Juni,,"3.500,00",EUR,`,
	}, "\n")

	result, err := imp.ImportCSV(ctx, "u1", "acct-1", "AT611904300234573201", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Invalid)

	var amounts []int64
	for _, txn := range store.Transactions {
		amounts = append(amounts, txn.AmountCents)
		assert.Equal(t, "u1", txn.UserID)
		assert.NotEmpty(t, txn.ID)
		assert.NotEmpty(t, txn.Hash)
		if txn.Name == "ACME TOOLS GMBH" {
			assert.Equal(t, "DE89370400440532013000", txn.Iban)
			assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), txn.Date)
		}
	}
	assert.ElementsMatch(t, []int64{-4999, 350000}, amounts)
}

func TestImportCSVSkipsDuplicates(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Name,Amount",
		`2025-06-10,Coffee,"-4,20"`,
	}, "\n")

	first, err := imp.ImportCSV(ctx, "u1", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	// Re-uploading the same export must import nothing.
	second, err := imp.ImportCSV(ctx, "u1", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, store.Transactions, 1)
}

func TestImportCSVDedupesPerUser(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Name,Amount",
		`2025-06-10,Coffee,"-4,20"`,
	}, "\n")

	first, err := imp.ImportCSV(ctx, "u1", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	// The same bank row imported by a different user is not a duplicate.
	second, err := imp.ImportCSV(ctx, "u2", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Imported)
	assert.Equal(t, 0, second.Skipped)
	assert.Len(t, store.Transactions, 2)
}

func TestImportCSVCountsInvalidRows(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Date,Name,Amount",
		`2025-06-10,Good,"10,00"`,
		`not-a-date,Bad date,"10,00"`,
		`2025-06-12,Bad amount,abc`,
	}, "\n")

	result, err := imp.ImportCSV(ctx, "u1", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Invalid)
}

func TestImportCSVGermanHeaders(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)
	ctx := context.Background()

	csv := strings.Join([]string{
		"Buchungsdatum,Buchungstext,Partnername,Betrag",
		`10.06.2025,SEPA Lastschrift,Acme Tools GmbH,"-49,99"`,
	}, "\n")

	result, err := imp.ImportCSV(ctx, "u1", "acct-1", "", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	for _, txn := range store.Transactions {
		assert.Equal(t, "Acme Tools GmbH", txn.PartnerLabel)
		assert.Equal(t, int64(-4999), txn.AmountCents)
		assert.Equal(t, "EUR", txn.Currency)
	}
}

func TestImportCSVMissingRequiredColumn(t *testing.T) {
	store := testutil.NewMockStorage()
	imp := New(store, nil)

	csv := "Name,Reference\nCoffee,x"
	_, err := imp.ImportCSV(context.Background(), "u1", "acct-1", "", strings.NewReader(csv))
	assert.Error(t, err)
}
