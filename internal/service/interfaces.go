// Package service defines the contracts between the matching engines and
// the persistence layer. The engines depend only on these interfaces so
// they can be tested against an in-memory fake.
package service

import (
	"context"

	"github.com/quillbooks/quill/internal/model"
)

// TransactionPage is one cursor page of transactions. NextCursor is empty
// when the scan is exhausted; otherwise pass it back to resume after the
// last returned record without skipping or duplicating work.
type TransactionPage struct {
	NextCursor   string
	Transactions []model.Transaction
}

// FilePage is one cursor page of files.
type FilePage struct {
	NextCursor string
	Files      []model.File
}

// PartnerAssignment describes a partner being written to a transaction.
type PartnerAssignment struct {
	PartnerID  string
	Scope      model.PartnerScope
	MatchedBy  model.MatchedBy
	Confidence int
}

// CounterpartyUpdate is the result of re-resolving a file's invoice
// direction.
type CounterpartyUpdate struct {
	Direction          model.InvoiceDirection
	MatchedUserAccount model.UserAccountRole
	CounterpartyName   string
}

// Storage is the persistence contract for the matching core.
//
// Conditional writes: ApplyPartnerMatch and ApplyCategoryMatch re-check the
// transaction's current state inside a database transaction and report
// applied=false instead of overwriting a manual assignment. This is how
// automated passes racing a manual confirmation stay safe.
type Storage interface {
	// Transactions. There is deliberately no single-transaction delete:
	// transactions are only cascade-deleted with their source account.
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionsPage(ctx context.Context, userID, afterID string, limit int) (*TransactionPage, error)
	ExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error)

	// Matching writes.
	ApplyPartnerMatch(ctx context.Context, transactionID string, assignment PartnerAssignment, suggestions []model.PartnerSuggestion) (bool, error)
	SavePartnerSuggestions(ctx context.Context, transactionID string, suggestions []model.PartnerSuggestion) error
	AssignPartnerManually(ctx context.Context, transactionID, partnerID string, scope model.PartnerScope) error
	ApplyCategoryMatch(ctx context.Context, transactionID, categoryID string, confidence int, suggestions []model.CategorySuggestion) (bool, error)
	AssignCategoryManually(ctx context.Context, transactionID, categoryID string) error
	SaveCategorySuggestions(ctx context.Context, transactionID string, suggestions []model.CategorySuggestion) error

	// Partners. GetPartnersForUser returns the user's partners plus the
	// global set.
	GetPartnersForUser(ctx context.Context, userID string) ([]model.Partner, error)
	GetPartnerByID(ctx context.Context, id string) (*model.Partner, error)
	SavePartner(ctx context.Context, partner *model.Partner) error
	AddManualRemoval(ctx context.Context, partnerID string, removal model.ManualRemoval, forFile bool) error
	// UpsertPartnerPattern derives-or-reinforces inside a database
	// transaction so concurrent confirmations cannot lose updates.
	UpsertPartnerPattern(ctx context.Context, partnerID, derived, sourceID string) (bool, error)

	// No-receipt categories.
	GetCategoriesForUser(ctx context.Context, userID string) ([]model.NoReceiptCategory, error)
	SaveCategory(ctx context.Context, category *model.NoReceiptCategory) error
	UpsertCategoryPattern(ctx context.Context, categoryID, derived, sourceID string) (bool, error)
	// LinkCategoryPartner adds the partner to the category's matched set
	// (union semantics, idempotent).
	LinkCategoryPartner(ctx context.Context, categoryID, partnerID string) error

	// Files.
	SaveFiles(ctx context.Context, files []model.File) error
	GetFileByID(ctx context.Context, id string) (*model.File, error)
	// GetExtractedFilesPage returns files with extraction complete that
	// are not marked "not an invoice".
	GetExtractedFilesPage(ctx context.Context, userID, afterID string, limit int) (*FilePage, error)
	// UpdateFileCounterparty skips no-op writes and reports whether
	// anything changed.
	UpdateFileCounterparty(ctx context.Context, fileID string, update CounterpartyUpdate) (bool, error)
	ConnectFileTransaction(ctx context.Context, fileID, transactionID string) error

	// User identity.
	GetUserData(ctx context.Context, userID string) (*model.UserData, error)
	SaveUserData(ctx context.Context, data *model.UserData) error

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}
