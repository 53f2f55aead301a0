// Package testutil provides shared test doubles for the matching engines.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/pattern"
	"github.com/quillbooks/quill/internal/service"
)

// MockStorage is an in-memory service.Storage used to test the matching
// algorithms without SQLite. Write counters let tests assert idempotence.
type MockStorage struct {
	Transactions map[string]*model.Transaction
	Partners     map[string]*model.Partner
	Categories   map[string]*model.NoReceiptCategory
	Files        map[string]*model.File
	Users        map[string]*model.UserData

	SuggestionWrites         int
	CategorySuggestionWrites int
	CounterpartyWrites       int
	PatternUpserts           int

	mu sync.Mutex
}

// NewMockStorage returns an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Transactions: make(map[string]*model.Transaction),
		Partners:     make(map[string]*model.Partner),
		Categories:   make(map[string]*model.NoReceiptCategory),
		Files:        make(map[string]*model.File),
		Users:        make(map[string]*model.UserData),
	}
}

var _ service.Storage = (*MockStorage)(nil)

// SaveTransactions stores copies of the given transactions.
func (m *MockStorage) SaveTransactions(_ context.Context, txns []model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range txns {
		t := txns[i]
		if m.hasHashLocked(t.UserID, t.Hash) {
			continue
		}
		m.Transactions[t.ID] = &t
	}
	return nil
}

func (m *MockStorage) hasHashLocked(userID, hash string) bool {
	for _, t := range m.Transactions {
		if t.UserID == userID && t.Hash == hash {
			return true
		}
	}
	return false
}

// GetTransactionByID returns a copy of the stored transaction.
func (m *MockStorage) GetTransactionByID(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// GetTransactionsPage pages the user's transactions in stable ID order.
func (m *MockStorage) GetTransactionsPage(_ context.Context, userID, afterID string, limit int) (*service.TransactionPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Transactions))
	for id, t := range m.Transactions {
		if t.UserID == userID && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &service.TransactionPage{}
	for _, id := range ids {
		if len(page.Transactions) == limit {
			page.NextCursor = page.Transactions[limit-1].ID
			break
		}
		page.Transactions = append(page.Transactions, *m.Transactions[id])
	}
	return page, nil
}

// ExistingHashes reports which of the given hashes are already stored.
func (m *MockStorage) ExistingHashes(_ context.Context, userID string, hashes []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[string]bool)
	for _, t := range m.Transactions {
		if t.UserID == userID {
			stored[t.Hash] = true
		}
	}
	found := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		if stored[h] {
			found[h] = true
		}
	}
	return found, nil
}

// ApplyPartnerMatch assigns a partner unless the transaction is already
// assigned; manual assignments always win.
func (m *MockStorage) ApplyPartnerMatch(_ context.Context, transactionID string, assignment service.PartnerAssignment, suggestions []model.PartnerSuggestion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return false, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if t.PartnerID != "" || t.PartnerMatchedBy == model.MatchedByManual {
		return false, nil
	}
	t.PartnerID = assignment.PartnerID
	t.PartnerScope = assignment.Scope
	t.PartnerMatchedBy = assignment.MatchedBy
	t.PartnerMatchConfidence = assignment.Confidence
	t.PartnerSuggestions = suggestions
	return true, nil
}

// SavePartnerSuggestions stores the suggestion list and counts the write.
func (m *MockStorage) SavePartnerSuggestions(_ context.Context, transactionID string, suggestions []model.PartnerSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	t.PartnerSuggestions = suggestions
	m.SuggestionWrites++
	return nil
}

// AssignPartnerManually records a user-made assignment.
func (m *MockStorage) AssignPartnerManually(_ context.Context, transactionID, partnerID string, scope model.PartnerScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	t.PartnerID = partnerID
	t.PartnerScope = scope
	t.PartnerMatchedBy = model.MatchedByManual
	t.PartnerMatchConfidence = 100
	return nil
}

// ApplyCategoryMatch assigns a category unless one is already set.
func (m *MockStorage) ApplyCategoryMatch(_ context.Context, transactionID, categoryID string, confidence int, suggestions []model.CategorySuggestion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return false, fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if t.CategoryID != "" {
		return false, nil
	}
	t.CategoryID = categoryID
	t.CategoryMatchConfidence = confidence
	t.CategorySuggestions = suggestions
	return true, nil
}

// AssignCategoryManually force-sets a category.
func (m *MockStorage) AssignCategoryManually(_ context.Context, transactionID, categoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	t.CategoryID = categoryID
	t.CategoryMatchConfidence = 100
	return nil
}

// SaveCategorySuggestions stores the list and counts the write.
func (m *MockStorage) SaveCategorySuggestions(_ context.Context, transactionID string, suggestions []model.CategorySuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, common.ErrNotFound)
	}
	t.CategorySuggestions = suggestions
	m.CategorySuggestionWrites++
	return nil
}

// GetPartnersForUser returns the user's partners plus the global set.
func (m *MockStorage) GetPartnersForUser(_ context.Context, userID string) ([]model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Partner, 0, len(m.Partners))
	for _, p := range m.Partners {
		if p.UserID == userID || p.Scope == model.ScopeGlobal {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPartnerByID returns a copy of the stored partner.
func (m *MockStorage) GetPartnerByID(_ context.Context, id string) (*model.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Partners[id]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", id, common.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// SavePartner stores a copy of the partner.
func (m *MockStorage) SavePartner(_ context.Context, partner *model.Partner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *partner
	m.Partners[partner.ID] = &cp
	return nil
}

// AddManualRemoval appends a negative-feedback record.
func (m *MockStorage) AddManualRemoval(_ context.Context, partnerID string, removal model.ManualRemoval, forFile bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Partners[partnerID]
	if !ok {
		return fmt.Errorf("partner %s: %w", partnerID, common.ErrNotFound)
	}
	if forFile {
		p.ManualFileRemovals = append(p.ManualFileRemovals, removal)
	} else {
		p.ManualRemovals = append(p.ManualRemovals, removal)
	}
	return nil
}

// UpsertPartnerPattern derives-or-reinforces a learned pattern.
func (m *MockStorage) UpsertPartnerPattern(_ context.Context, partnerID, derived, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Partners[partnerID]
	if !ok {
		return false, fmt.Errorf("partner %s: %w", partnerID, common.ErrNotFound)
	}
	patterns, changed := pattern.Upsert(p.LearnedPatterns, derived, sourceID, timeNow())
	p.LearnedPatterns = patterns
	if changed {
		m.PatternUpserts++
	}
	return changed, nil
}

// GetCategoriesForUser returns the user's no-receipt categories.
func (m *MockStorage) GetCategoriesForUser(_ context.Context, userID string) ([]model.NoReceiptCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NoReceiptCategory, 0, len(m.Categories))
	for _, c := range m.Categories {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveCategory stores a copy of the category.
func (m *MockStorage) SaveCategory(_ context.Context, category *model.NoReceiptCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *category
	m.Categories[category.ID] = &cp
	return nil
}

// UpsertCategoryPattern derives-or-reinforces a learned pattern.
func (m *MockStorage) UpsertCategoryPattern(_ context.Context, categoryID, derived, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Categories[categoryID]
	if !ok {
		return false, fmt.Errorf("category %s: %w", categoryID, common.ErrNotFound)
	}
	patterns, changed := pattern.Upsert(c.LearnedPatterns, derived, sourceID, timeNow())
	c.LearnedPatterns = patterns
	if changed {
		m.PatternUpserts++
	}
	return changed, nil
}

// LinkCategoryPartner adds the partner to the category's matched set.
func (m *MockStorage) LinkCategoryPartner(_ context.Context, categoryID, partnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Categories[categoryID]
	if !ok {
		return fmt.Errorf("category %s: %w", categoryID, common.ErrNotFound)
	}
	for _, id := range c.MatchedPartnerIDs {
		if id == partnerID {
			return nil
		}
	}
	c.MatchedPartnerIDs = append(c.MatchedPartnerIDs, partnerID)
	return nil
}

// SaveFiles stores copies of the given files.
func (m *MockStorage) SaveFiles(_ context.Context, files []model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range files {
		f := files[i]
		m.Files[f.ID] = &f
	}
	return nil
}

// GetFileByID returns a copy of the stored file.
func (m *MockStorage) GetFileByID(_ context.Context, id string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, common.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// GetExtractedFilesPage pages extraction-complete files that are not
// marked "not an invoice", in stable ID order.
func (m *MockStorage) GetExtractedFilesPage(_ context.Context, userID, afterID string, limit int) (*service.FilePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.Files))
	for id, f := range m.Files {
		if f.UserID == userID && f.ExtractionComplete && !f.NotInvoice && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &service.FilePage{}
	for _, id := range ids {
		if len(page.Files) == limit {
			page.NextCursor = page.Files[limit-1].ID
			break
		}
		page.Files = append(page.Files, *m.Files[id])
	}
	return page, nil
}

// UpdateFileCounterparty writes direction fields, skipping no-op updates.
func (m *MockStorage) UpdateFileCounterparty(_ context.Context, fileID string, update service.CounterpartyUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Files[fileID]
	if !ok {
		return false, fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}
	if f.InvoiceDirection == update.Direction &&
		f.MatchedUserAccount == update.MatchedUserAccount &&
		f.Counterparty == update.CounterpartyName {
		return false, nil
	}
	f.InvoiceDirection = update.Direction
	f.MatchedUserAccount = update.MatchedUserAccount
	f.Counterparty = update.CounterpartyName
	m.CounterpartyWrites++
	return true, nil
}

// ConnectFileTransaction links a file and a transaction both ways.
func (m *MockStorage) ConnectFileTransaction(_ context.Context, fileID, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, okF := m.Files[fileID]
	t, okT := m.Transactions[transactionID]
	if !okF || !okT {
		return common.ErrNotFound
	}
	f.TransactionIDs = appendUnique(f.TransactionIDs, transactionID)
	t.FileIDs = appendUnique(t.FileIDs, fileID)
	return nil
}

// GetUserData returns a copy of the user's identity record.
func (m *MockStorage) GetUserData(_ context.Context, userID string) (*model.UserData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, common.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// SaveUserData stores a copy of the identity record.
func (m *MockStorage) SaveUserData(_ context.Context, data *model.UserData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *data
	m.Users[data.UserID] = &cp
	return nil
}

// Migrate is a no-op for the in-memory store.
func (m *MockStorage) Migrate(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MockStorage) Close() error { return nil }

func timeNow() time.Time { return time.Now().UTC() }

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
