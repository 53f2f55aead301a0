package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/service"
)

const fileColumns = `
	id, user_id, file_name, extracted_date, extracted_amount_cents, extracted_currency,
	extracted_partner, extracted_vat_id, extracted_iban, email_domain,
	invoice_direction, matched_user_account, counterparty, partner_id,
	extracted_issuer, extracted_recipient,
	extraction_complete, not_invoice, possible_invoice, created_at,
	(SELECT GROUP_CONCAT(transaction_id) FROM file_transactions ft WHERE ft.file_id = files.id) AS transaction_ids`

// SaveFiles upserts files. Extraction results arrive incrementally, so a
// re-save with fresher fields replaces the stored row.
func (s *SQLiteStorage) SaveFiles(ctx context.Context, files []model.File) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFiles(files); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO files (
			id, user_id, file_name, extracted_date, extracted_amount_cents, extracted_currency,
			extracted_partner, extracted_vat_id, extracted_iban, email_domain,
			invoice_direction, matched_user_account, counterparty, partner_id,
			extracted_issuer, extracted_recipient,
			extraction_complete, not_invoice, possible_invoice
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range files {
		f := &files[i]
		issuer, err := marshalEntity(f.ExtractedIssuer)
		if err != nil {
			return err
		}
		recipient, err := marshalEntity(f.ExtractedRecipient)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			f.ID, f.UserID, f.FileName, f.ExtractedDate, f.ExtractedAmountCents, f.ExtractedCurrency,
			f.ExtractedPartner, f.ExtractedVatID, f.ExtractedIban, f.EmailDomain,
			string(f.InvoiceDirection), string(f.MatchedUserAccount), f.Counterparty, f.PartnerID,
			issuer, recipient,
			f.ExtractionComplete, f.NotInvoice, f.PossibleInvoice,
		); err != nil {
			return fmt.Errorf("failed to insert file %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// GetFileByID retrieves a single file.
func (s *SQLiteStorage) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetExtractedFilesPage returns one cursor page of extraction-complete
// files that are not marked "not an invoice", in stable ID order.
func (s *SQLiteStorage) GetExtractedFilesPage(ctx context.Context, userID, afterID string, limit int) (*service.FilePage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE user_id = ? AND extraction_complete = 1 AND not_invoice = 0 AND id > ?
		 ORDER BY id LIMIT ?`,
		userID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := &service.FilePage{}
	for rows.Next() {
		f, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan file: %w", scanErr)
		}
		page.Files = append(page.Files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	if len(page.Files) == limit {
		page.NextCursor = page.Files[limit-1].ID
	}
	return page, nil
}

// UpdateFileCounterparty writes re-resolved direction fields. The derived
// counterparty name has its own column; extracted fields are never touched.
// The current values are compared first; an unchanged file is not rewritten
// and the method reports false.
func (s *SQLiteStorage) UpdateFileCounterparty(ctx context.Context, fileID string, update service.CounterpartyUpdate) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(fileID, "fileID"); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var direction, matchedAccount, counterparty string
	err = tx.QueryRowContext(ctx,
		`SELECT invoice_direction, matched_user_account, counterparty FROM files WHERE id = ?`,
		fileID).Scan(&direction, &matchedAccount, &counterparty)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file state: %w", err)
	}

	if direction == string(update.Direction) &&
		matchedAccount == string(update.MatchedUserAccount) &&
		counterparty == update.CounterpartyName {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE files SET invoice_direction = ?, matched_user_account = ?, counterparty = ?
		WHERE id = ?`,
		string(update.Direction), string(update.MatchedUserAccount), update.CounterpartyName, fileID,
	); err != nil {
		return false, fmt.Errorf("failed to update counterparty: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit counterparty update: %w", err)
	}
	return true, nil
}

// ConnectFileTransaction links a file to a transaction. Idempotent.
func (s *SQLiteStorage) ConnectFileTransaction(ctx context.Context, fileID, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(fileID, "fileID"); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_transactions (file_id, transaction_id) VALUES (?, ?)`,
		fileID, transactionID); err != nil {
		return fmt.Errorf("failed to connect file and transaction: %w", err)
	}
	return nil
}

func marshalEntity(e model.Entity) (string, error) {
	if e.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entity: %w", err)
	}
	return string(data), nil
}

func unmarshalEntity(s string) (model.Entity, error) {
	var e model.Entity
	if s == "" {
		return e, nil
	}
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return e, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return e, nil
}

func scanFile(row scanner) (*model.File, error) {
	var f model.File
	var extractedDate sql.NullTime
	var direction, matchedAccount, issuer, recipient string
	var transactionIDs sql.NullString

	err := row.Scan(
		&f.ID, &f.UserID, &f.FileName, &extractedDate, &f.ExtractedAmountCents, &f.ExtractedCurrency,
		&f.ExtractedPartner, &f.ExtractedVatID, &f.ExtractedIban, &f.EmailDomain,
		&direction, &matchedAccount, &f.Counterparty, &f.PartnerID,
		&issuer, &recipient,
		&f.ExtractionComplete, &f.NotInvoice, &f.PossibleInvoice, &f.CreatedAt,
		&transactionIDs,
	)
	if err != nil {
		return nil, err
	}

	if extractedDate.Valid {
		f.ExtractedDate = extractedDate.Time
	}
	f.InvoiceDirection = model.InvoiceDirection(direction)
	f.MatchedUserAccount = model.UserAccountRole(matchedAccount)
	if f.ExtractedIssuer, err = unmarshalEntity(issuer); err != nil {
		return nil, err
	}
	if f.ExtractedRecipient, err = unmarshalEntity(recipient); err != nil {
		return nil, err
	}
	if transactionIDs.Valid && transactionIDs.String != "" {
		f.TransactionIDs = strings.Split(transactionIDs.String, ",")
	}
	return &f, nil
}
