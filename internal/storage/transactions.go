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

// transactionColumns is shared by every transaction SELECT. The file_ids
// column is derived from the file_transactions link table.
const transactionColumns = `
	id, user_id, hash, date, name, reference, partner_label,
	amount_cents, currency, account_id, iban,
	partner_id, partner_scope, partner_matched_by, partner_match_confidence,
	partner_suggestions, category_id, category_match_confidence, category_suggestions,
	(SELECT GROUP_CONCAT(file_id) FROM file_transactions ft WHERE ft.transaction_id = transactions.id) AS file_ids`

// SaveTransactions inserts transactions, silently skipping rows whose hash
// the user already has. Uniqueness is scoped per user; two users importing
// the same bank row both keep their copy.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(txns); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, user_id, hash, date, name, reference, partner_label,
			amount_cents, currency, account_id, iban,
			partner_id, partner_scope, partner_matched_by, partner_match_confidence,
			partner_suggestions, category_id, category_match_confidence, category_suggestions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range txns {
		txn := &txns[i]
		partnerSuggestions, err := marshalJSON(txn.PartnerSuggestions)
		if err != nil {
			return err
		}
		categorySuggestions, err := marshalJSON(txn.CategorySuggestions)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, txn.UserID, txn.Hash, txn.Date, txn.Name, txn.Reference, txn.PartnerLabel,
			txn.AmountCents, txn.Currency, txn.AccountID, txn.Iban,
			txn.PartnerID, string(txn.PartnerScope), string(txn.PartnerMatchedBy), txn.PartnerMatchConfidence,
			partnerSuggestions, txn.CategoryID, txn.CategoryMatchConfidence, categorySuggestions,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsPage returns one cursor page of the user's transactions in
// stable ID order.
func (s *SQLiteStorage) GetTransactionsPage(ctx context.Context, userID, afterID string, limit int) (*service.TransactionPage, error) {
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
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND id > ? ORDER BY id LIMIT ?`,
		userID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := &service.TransactionPage{}
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		page.Transactions = append(page.Transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	if len(page.Transactions) == limit {
		page.NextCursor = page.Transactions[limit-1].ID
	}
	return page, nil
}

// ExistingHashes reports which of the given dedup hashes are already stored
// for the user.
func (s *SQLiteStorage) ExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return map[string]bool{}, nil
	}

	placeholders := strings.Repeat("?,", len(hashes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(hashes)+1)
	args = append(args, userID)
	for _, h := range hashes {
		args = append(args, h)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM transactions WHERE user_id = ? AND hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool, len(hashes))
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		found[h] = true
	}
	return found, rows.Err()
}

// ApplyPartnerMatch writes an automated partner assignment. The current
// state is re-checked inside the database transaction: if a partner is
// already set (manual assignments included) nothing is written and applied
// is false.
func (s *SQLiteStorage) ApplyPartnerMatch(ctx context.Context, transactionID string, assignment service.PartnerAssignment, suggestions []model.PartnerSuggestion) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return false, err
	}
	if err := validateString(assignment.PartnerID, "partnerID"); err != nil {
		return false, err
	}

	suggestionsJSON, err := marshalJSON(suggestions)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var partnerID, matchedBy string
	err = tx.QueryRowContext(ctx,
		`SELECT partner_id, partner_matched_by FROM transactions WHERE id = ?`,
		transactionID).Scan(&partnerID, &matchedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transaction state: %w", err)
	}
	if partnerID != "" || matchedBy == string(model.MatchedByManual) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transactions SET
			partner_id = ?, partner_scope = ?, partner_matched_by = ?,
			partner_match_confidence = ?, partner_suggestions = ?
		WHERE id = ?`,
		assignment.PartnerID, string(assignment.Scope), string(assignment.MatchedBy),
		assignment.Confidence, suggestionsJSON, transactionID,
	); err != nil {
		return false, fmt.Errorf("failed to apply partner match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit partner match: %w", err)
	}
	return true, nil
}

// SavePartnerSuggestions replaces the stored suggestion list.
func (s *SQLiteStorage) SavePartnerSuggestions(ctx context.Context, transactionID string, suggestions []model.PartnerSuggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	suggestionsJSON, err := marshalJSON(suggestions)
	if err != nil {
		return err
	}
	return s.updateTransactionColumn(ctx, transactionID,
		`UPDATE transactions SET partner_suggestions = ? WHERE id = ?`, suggestionsJSON)
}

// AssignPartnerManually records a user-made partner assignment. It always
// wins over whatever is currently set.
func (s *SQLiteStorage) AssignPartnerManually(ctx context.Context, transactionID, partnerID string, scope model.PartnerScope) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(partnerID, "partnerID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET
			partner_id = ?, partner_scope = ?, partner_matched_by = ?,
			partner_match_confidence = 100
		WHERE id = ?`,
		partnerID, string(scope), string(model.MatchedByManual), transactionID)
	if err != nil {
		return fmt.Errorf("failed to assign partner: %w", err)
	}
	return checkRowUpdated(result, transactionID)
}

// ApplyCategoryMatch writes an automated category assignment unless the
// transaction is already complete. Checked inside the database transaction.
func (s *SQLiteStorage) ApplyCategoryMatch(ctx context.Context, transactionID, categoryID string, confidence int, suggestions []model.CategorySuggestion) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return false, err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return false, err
	}

	suggestionsJSON, err := marshalJSON(suggestions)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentCategory string
	var fileCount int
	err = tx.QueryRowContext(ctx, `
		SELECT category_id,
			(SELECT COUNT(*) FROM file_transactions ft WHERE ft.transaction_id = transactions.id)
		FROM transactions WHERE id = ?`,
		transactionID).Scan(&currentCategory, &fileCount)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transaction state: %w", err)
	}
	if currentCategory != "" || fileCount > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, category_match_confidence = ?, category_suggestions = ? WHERE id = ?`,
		categoryID, confidence, suggestionsJSON, transactionID,
	); err != nil {
		return false, fmt.Errorf("failed to apply category match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit category match: %w", err)
	}
	return true, nil
}

// AssignCategoryManually force-sets the category.
func (s *SQLiteStorage) AssignCategoryManually(ctx context.Context, transactionID, categoryID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return err
	}
	return s.updateTransactionColumn(ctx, transactionID,
		`UPDATE transactions SET category_id = ?, category_match_confidence = 100 WHERE id = ?`, categoryID)
}

// SaveCategorySuggestions replaces the stored suggestion list.
func (s *SQLiteStorage) SaveCategorySuggestions(ctx context.Context, transactionID string, suggestions []model.CategorySuggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	suggestionsJSON, err := marshalJSON(suggestions)
	if err != nil {
		return err
	}
	return s.updateTransactionColumn(ctx, transactionID,
		`UPDATE transactions SET category_suggestions = ? WHERE id = ?`, suggestionsJSON)
}

func (s *SQLiteStorage) updateTransactionColumn(ctx context.Context, transactionID, query string, value any) error {
	result, err := s.db.ExecContext(ctx, query, value, transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return checkRowUpdated(result, transactionID)
}

func checkRowUpdated(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, common.ErrNotFound)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var scope, matchedBy, partnerSuggestions, categorySuggestions string
	var fileIDs sql.NullString

	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.Hash, &txn.Date, &txn.Name, &txn.Reference, &txn.PartnerLabel,
		&txn.AmountCents, &txn.Currency, &txn.AccountID, &txn.Iban,
		&txn.PartnerID, &scope, &matchedBy, &txn.PartnerMatchConfidence,
		&partnerSuggestions, &txn.CategoryID, &txn.CategoryMatchConfidence, &categorySuggestions,
		&fileIDs,
	)
	if err != nil {
		return nil, err
	}

	txn.PartnerScope = model.PartnerScope(scope)
	txn.PartnerMatchedBy = model.MatchedBy(matchedBy)
	if partnerSuggestions != "" {
		if err := json.Unmarshal([]byte(partnerSuggestions), &txn.PartnerSuggestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal partner suggestions: %w", err)
		}
	}
	if categorySuggestions != "" {
		if err := json.Unmarshal([]byte(categorySuggestions), &txn.CategorySuggestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal category suggestions: %w", err)
		}
	}
	if fileIDs.Valid && fileIDs.String != "" {
		txn.FileIDs = strings.Split(fileIDs.String, ",")
	}
	return &txn, nil
}
