// Package importer reads bank CSV exports into transactions, normalizing
// amounts and deduplicating against already-imported data.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quill/internal/dedupe"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/normalize"
	"github.com/quillbooks/quill/internal/service"
)

// Importer turns CSV rows into stored transactions.
type Importer struct {
	store  service.Storage
	logger *slog.Logger
}

// New creates a CSV importer.
func New(store service.Storage, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Skipped  int // hash duplicates
	Invalid  int // unparseable rows
}

// Header aliases accepted across bank export formats. Matching is
// case-insensitive on the canonicalized header.
var columnAliases = map[string][]string{
	"date":      {"date", "datum", "buchungsdatum", "booking date", "valuta"},
	"name":      {"name", "description", "buchungstext", "text", "verwendungszweck"},
	"reference": {"reference", "referenz", "zahlungsreferenz", "payment reference"},
	"partner":   {"partner", "counterparty", "empfaenger", "auftraggeber", "partnername"},
	"amount":    {"amount", "betrag"},
	"currency":  {"currency", "waehrung"},
	"iban":      {"iban", "partner iban", "empfaenger iban"},
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", "2006-01-02 15:04:05"}

// ImportCSV reads all rows from r and stores them as transactions for the
// given user and account. Rows whose dedup hash is already stored are
// skipped; rows with unparseable dates or amounts are counted as invalid
// and logged, never abort the import.
func (i *Importer) ImportCSV(ctx context.Context, userID, accountID, accountIban string, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var txns []model.Transaction
	var hashes []string
	accountIdentifier := dedupe.AccountIdentifier(accountIban, accountID)

	for line := 2; ; line++ {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", readErr)
		}

		txn, ok := i.parseRow(record, columns, userID, accountID, line)
		if !ok {
			result.Invalid++
			continue
		}
		txn.Hash = dedupe.Hash(txn.Date, txn.AmountCents, accountIdentifier, txn.Reference)
		txns = append(txns, *txn)
		hashes = append(hashes, txn.Hash)
	}

	if len(txns) == 0 {
		return result, nil
	}

	existing, err := i.store.ExistingHashes(ctx, userID, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing hashes: %w", err)
	}

	fresh := make([]model.Transaction, 0, len(txns))
	seen := make(map[string]bool, len(txns))
	for _, txn := range txns {
		if existing[txn.Hash] || seen[txn.Hash] {
			result.Skipped++
			continue
		}
		seen[txn.Hash] = true
		fresh = append(fresh, txn)
	}
	if len(fresh) == 0 {
		return result, nil
	}

	if err := i.store.SaveTransactions(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	result.Imported = len(fresh)

	i.logger.Info("CSV import finished",
		"user", userID,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"invalid", result.Invalid)
	return result, nil
}

func (i *Importer) parseRow(record []string, columns map[string]int, userID, accountID string, line int) (*model.Transaction, bool) {
	get := func(key string) string {
		idx, ok := columns[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(get("date"))
	if err != nil {
		i.logger.Warn("skipping row with invalid date", "line", line, "value", get("date"))
		return nil, false
	}

	cents := normalize.AmountCents(get("amount"))
	if cents == nil {
		i.logger.Warn("skipping row with invalid amount", "line", line, "value", get("amount"))
		return nil, false
	}

	currency := strings.ToUpper(get("currency"))
	if currency == "" {
		currency = "EUR"
	}

	return &model.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		AccountID:    accountID,
		Date:         date,
		Name:         get("name"),
		Reference:    get("reference"),
		PartnerLabel: get("partner"),
		AmountCents:  *cents,
		Currency:     currency,
		Iban:         normalize.Iban(get("iban")),
	}, true
}

func resolveColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(columnAliases))
	for idx, h := range header {
		canon := strings.ToLower(strings.TrimSpace(h))
		for key, aliases := range columnAliases {
			if _, taken := columns[key]; taken {
				continue
			}
			for _, alias := range aliases {
				if canon == alias {
					columns[key] = idx
					break
				}
			}
		}
	}
	for _, required := range []string{"date", "amount"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing a %s column", required)
		}
	}
	return columns, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}
