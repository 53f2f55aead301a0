package currency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return NewTable(map[string]map[string]float64{
		"2024-03": {"USD": 1.25, "CHF": 0.96},
		"2024-06": {"USD": 1.10},
	})
}

func date(y int, m time.Month) time.Time {
	return time.Date(y, m, 15, 0, 0, 0, 0, time.UTC)
}

func TestConvertSameCurrency(t *testing.T) {
	conv := testTable().Convert(12345, "EUR", "EUR", date(2020, time.January))
	require.NotNil(t, conv)
	assert.Equal(t, int64(12345), conv.AmountCents)
	assert.Equal(t, 1.0, conv.Rate)
}

func TestConvertEurToUsd(t *testing.T) {
	conv := testTable().Convert(10000, "EUR", "USD", date(2024, time.March))
	require.NotNil(t, conv)
	assert.Equal(t, int64(12500), conv.AmountCents)
	assert.Equal(t, "2024-03", conv.RateDate)
}

func TestConvertCrossRateThroughEur(t *testing.T) {
	// 100.00 USD -> CHF: 100/1.25 = 80 EUR -> 76.80 CHF.
	conv := testTable().Convert(10000, "USD", "CHF", date(2024, time.March))
	require.NotNil(t, conv)
	assert.Equal(t, int64(7680), conv.AmountCents)
}

func TestConvertFallsBackToPriorMonth(t *testing.T) {
	// No entry for 2024-05; 2024-03 is two months back, within the window.
	conv := testTable().Convert(10000, "EUR", "USD", date(2024, time.May))
	require.NotNil(t, conv)
	assert.Equal(t, "2024-03", conv.RateDate)
	assert.Equal(t, int64(12500), conv.AmountCents)
}

func TestConvertFallbackWindowIsThreeMonths(t *testing.T) {
	// 2024-07 falls back to 2024-06 (one month), not beyond.
	conv := testTable().Convert(10000, "EUR", "USD", date(2024, time.July))
	require.NotNil(t, conv)
	assert.Equal(t, "2024-06", conv.RateDate)

	// 2024-10 is four months past the last entry: unresolvable.
	assert.Nil(t, testTable().Convert(10000, "EUR", "USD", date(2024, time.October)))
}

func TestConvertMonthEndFallsBackToPriorMonth(t *testing.T) {
	table := NewTable(map[string]map[string]float64{
		"2024-02": {"USD": 1.20},
	})

	// Mar 31 minus one calendar month lands on Mar 2 if the raw date is
	// used; the lookup must still reach the February rate.
	conv := table.Convert(10000, "EUR", "USD", time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, conv)
	assert.Equal(t, "2024-02", conv.RateDate)
	assert.Equal(t, int64(12000), conv.AmountCents)
}

func TestConvertFarBeforeAnyEntryReturnsNil(t *testing.T) {
	assert.Nil(t, testTable().Convert(10000, "EUR", "USD", date(2023, time.March)))
}

func TestConvertUnknownCurrencyReturnsNil(t *testing.T) {
	assert.Nil(t, testTable().Convert(10000, "EUR", "JPY", date(2024, time.March)))
	// CHF exists in 2024-03 but not 2024-06; fallback from 2024-06 skips to 2024-03.
	conv := testTable().Convert(10000, "CHF", "USD", date(2024, time.June))
	require.NotNil(t, conv)
	assert.Equal(t, "2024-03", conv.RateDate)
}
