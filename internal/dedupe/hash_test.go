package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	a := Hash(date, -4999, "AT611904300234573201", "Rechnung 4711")
	b := Hash(date, -4999, "AT611904300234573201", "Rechnung 4711")
	assert.Equal(t, a, b)
}

func TestHashIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 15, 20, 30, 0, 0, time.UTC)
	assert.Equal(t,
		Hash(morning, 100, "acc", "ref"),
		Hash(evening, 100, "acc", "ref"),
		"only the calendar date participates in the hash")
}

func TestHashChangesWithEachInput(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	base := Hash(date, -4999, "AT611904300234573201", "Rechnung 4711")

	variants := map[string]string{
		"date":      Hash(date.AddDate(0, 0, 1), -4999, "AT611904300234573201", "Rechnung 4711"),
		"amount":    Hash(date, -5000, "AT611904300234573201", "Rechnung 4711"),
		"account":   Hash(date, -4999, "AT611904300234573202", "Rechnung 4711"),
		"reference": Hash(date, -4999, "AT611904300234573201", "Rechnung 4712"),
	}

	for field, h := range variants {
		assert.NotEqual(t, base, h, "changing %s must change the hash", field)
	}
}

func TestAccountIdentifierPrefersIban(t *testing.T) {
	assert.Equal(t, "AT611904300234573201", AccountIdentifier("at61 1904 3002 3457 3201", "acc-1"))
}

func TestAccountIdentifierFallsBackToInternalID(t *testing.T) {
	assert.Equal(t, "acc-1", AccountIdentifier("", "acc-1"))
	assert.Equal(t, "acc-1", AccountIdentifier("   ", "acc-1"))
}
