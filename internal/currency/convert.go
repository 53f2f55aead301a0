// Package currency provides table-driven, monthly-average currency
// conversion for reconciling amounts across currencies.
package currency

import (
	"math"
	"time"
)

// fallbackMonths is how far back a missing month may borrow a rate.
const fallbackMonths = 3

// Conversion is the result of a successful currency conversion.
type Conversion struct {
	RateDate    string // month the rate was taken from, "2006-01"
	AmountCents int64
	Rate        float64
}

// Table holds EUR-based monthly average rates: month -> currency -> units
// of that currency per 1 EUR. Cross rates go through EUR.
type Table struct {
	rates map[string]map[string]float64
}

// NewTable builds a rate table from month -> currency -> rate data.
func NewTable(rates map[string]map[string]float64) *Table {
	return &Table{rates: rates}
}

// DefaultTable returns a table seeded with recent monthly averages.
// Deployments load the real table from configuration.
func DefaultTable() *Table {
	return NewTable(map[string]map[string]float64{
		"2025-04": {"USD": 1.0723, "GBP": 0.8561, "CHF": 0.9378, "CZK": 25.067, "PLN": 4.2756, "HUF": 406.33, "SEK": 10.942},
		"2025-05": {"USD": 1.1277, "GBP": 0.8452, "CHF": 0.9337, "CZK": 24.938, "PLN": 4.2492, "HUF": 403.28, "SEK": 10.891},
		"2025-06": {"USD": 1.1524, "GBP": 0.8503, "CHF": 0.9385, "CZK": 24.809, "PLN": 4.2698, "HUF": 402.61, "SEK": 11.052},
		"2025-07": {"USD": 1.1664, "GBP": 0.8662, "CHF": 0.9323, "CZK": 24.633, "PLN": 4.2561, "HUF": 398.95, "SEK": 11.193},
	})
}

// Convert converts an amount between currencies using the monthly rate for
// the given date, falling back to the nearest prior month within three
// months. Returns nil when no rate is resolvable; callers must treat nil
// as "comparison not possible", never as zero or as equality.
func (t *Table) Convert(amountCents int64, from, to string, date time.Time) *Conversion {
	if from == to {
		return &Conversion{AmountCents: amountCents, Rate: 1, RateDate: monthKey(date)}
	}

	// Step back from the first of the month; stepping from the raw date
	// normalizes month-end days forward and skips short months.
	start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= fallbackMonths; i++ {
		key := monthKey(start.AddDate(0, -i, 0))
		monthRates, ok := t.rates[key]
		if !ok {
			continue
		}
		rateFrom, okFrom := eurRate(monthRates, from)
		rateTo, okTo := eurRate(monthRates, to)
		if !okFrom || !okTo || rateFrom == 0 {
			continue
		}
		rate := rateTo / rateFrom
		converted := int64(math.Round(float64(amountCents) * rate))
		return &Conversion{AmountCents: converted, Rate: rate, RateDate: key}
	}
	return nil
}

// eurRate resolves a currency's units-per-EUR rate; EUR itself is 1.
func eurRate(monthRates map[string]float64, currency string) (float64, bool) {
	if currency == "EUR" {
		return 1, true
	}
	r, ok := monthRates[currency]
	return r, ok
}

func monthKey(date time.Time) string {
	return date.Format("2006-01")
}
