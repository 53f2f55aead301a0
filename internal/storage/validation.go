// Package storage provides the SQLite persistence layer for the quill
// matching engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quillbooks/quill/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrEmptySlice      = errors.New("slice cannot be empty")
	ErrInvalidTxn      = errors.New("invalid transaction")
	ErrInvalidPartner  = errors.New("invalid partner")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidFile     = errors.New("invalid file")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(txns []model.Transaction) error {
	if txns == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(txns) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i := range txns {
		if err := validateTransaction(&txns[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTxn)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidTxn)
	}
	if txn.Hash == "" {
		return fmt.Errorf("%w: missing hash", ErrInvalidTxn)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTxn)
	}
	return nil
}

func validatePartner(partner *model.Partner) error {
	if partner == nil {
		return fmt.Errorf("%w: partner", ErrNilParameter)
	}
	if partner.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPartner)
	}
	if strings.TrimSpace(partner.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPartner)
	}
	switch partner.Scope {
	case model.ScopeUser, model.ScopeGlobal:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidPartner, partner.Scope)
	}
	if partner.Scope == model.ScopeUser && partner.UserID == "" {
		return fmt.Errorf("%w: user-scoped partner needs a user ID", ErrInvalidPartner)
	}
	return nil
}

func validateCategory(category *model.NoReceiptCategory) error {
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if category.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCategory)
	}
	if category.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidCategory)
	}
	if strings.TrimSpace(category.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCategory)
	}
	return nil
}

func validateFiles(files []model.File) error {
	if files == nil {
		return fmt.Errorf("%w: files", ErrNilParameter)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: files", ErrEmptySlice)
	}
	for i := range files {
		f := &files[i]
		if f.ID == "" {
			return fmt.Errorf("file at index %d: %w: missing ID", i, ErrInvalidFile)
		}
		if f.UserID == "" {
			return fmt.Errorf("file at index %d: %w: missing user ID", i, ErrInvalidFile)
		}
	}
	return nil
}

func validateUserData(data *model.UserData) error {
	if data == nil {
		return fmt.Errorf("%w: user data", ErrNilParameter)
	}
	if data.UserID == "" {
		return fmt.Errorf("%w: user ID", ErrEmptyString)
	}
	return nil
}
