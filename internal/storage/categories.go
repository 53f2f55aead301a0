package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
)

const categoryColumns = `id, user_id, template_slug, name, matched_partner_ids, created_at`

// GetCategoriesForUser returns the user's no-receipt categories with
// learned patterns and manual removals attached.
func (s *SQLiteStorage) GetCategoriesForUser(ctx context.Context, userID string) ([]model.NoReceiptCategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.NoReceiptCategory
	for rows.Next() {
		var c model.NoReceiptCategory
		var matchedPartnerIDs string
		if err := rows.Scan(&c.ID, &c.UserID, &c.TemplateSlug, &c.Name, &matchedPartnerIDs, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.MatchedPartnerIDs = unmarshalStrings(matchedPartnerIDs)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	for i := range categories {
		c := &categories[i]
		patterns, err := s.loadPatterns(ctx, ownerCategory, c.ID)
		if err != nil {
			return nil, err
		}
		c.LearnedPatterns = patterns

		removals, _, err := s.loadRemovals(ctx, ownerCategory, c.ID)
		if err != nil {
			return nil, err
		}
		c.ManualRemovals = removals
	}
	return categories, nil
}

// SaveCategory upserts a category with its embedded patterns and removals.
func (s *SQLiteStorage) SaveCategory(ctx context.Context, category *model.NoReceiptCategory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCategory(category); err != nil {
		return err
	}

	matchedPartnerIDs, err := marshalJSON(category.MatchedPartnerIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// One category per template and user; re-saving the same category is fine.
	if category.TemplateSlug != "" {
		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM categories WHERE user_id = ? AND template_slug = ? AND id != ?`,
			category.UserID, category.TemplateSlug, category.ID).Scan(&existingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check for duplicate category: %w", err)
		}
		if err == nil {
			return fmt.Errorf("category for template %s already exists: %w", category.TemplateSlug, common.ErrDuplicateEntry)
		}
	}

	createdAt := category.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, template_slug, name, matched_partner_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id, template_slug = excluded.template_slug,
			name = excluded.name, matched_partner_ids = excluded.matched_partner_ids`,
		category.ID, category.UserID, category.TemplateSlug, category.Name, matchedPartnerIDs, createdAt,
	); err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}

	if err := replacePatternsTx(ctx, tx, ownerCategory, category.ID, category.LearnedPatterns); err != nil {
		return err
	}
	if err := replaceRemovalsTx(ctx, tx, ownerCategory, category.ID, category.ManualRemovals, nil); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertCategoryPattern reinforces an equivalent existing pattern or inserts
// a new one.
func (s *SQLiteStorage) UpsertCategoryPattern(ctx context.Context, categoryID, derived, sourceID string) (bool, error) {
	return s.upsertPattern(ctx, ownerCategory, categoryID, derived, sourceID)
}

// LinkCategoryPartner adds the partner to the category's matched set. Union
// semantics: linking twice is a no-op.
func (s *SQLiteStorage) LinkCategoryPartner(ctx context.Context, categoryID, partnerID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return err
	}
	if err := validateString(partnerID, "partnerID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT matched_partner_ids FROM categories WHERE id = ?`, categoryID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to load category: %w", err)
	}

	ids := unmarshalStrings(stored)
	for _, id := range ids {
		if id == partnerID {
			return nil
		}
	}
	ids = append(ids, partnerID)

	updated, err := marshalJSON(ids)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE categories SET matched_partner_ids = ? WHERE id = ?`, updated, categoryID); err != nil {
		return fmt.Errorf("failed to link partner: %w", err)
	}

	return tx.Commit()
}

// EnsureDefaultCategories instantiates the built-in template set for a user.
// Templates the user already has are left untouched.
func (s *SQLiteStorage) EnsureDefaultCategories(ctx context.Context, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	existing, err := s.GetCategoriesForUser(ctx, userID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.TemplateSlug] = true
	}

	for _, tmpl := range model.DefaultCategoryTemplates() {
		if have[tmpl.Slug] {
			continue
		}
		category := &model.NoReceiptCategory{
			ID:           uuid.NewString(),
			UserID:       userID,
			TemplateSlug: tmpl.Slug,
			Name:         tmpl.Name,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.SaveCategory(ctx, category); err != nil {
			return fmt.Errorf("failed to create category %s: %w", tmpl.Slug, err)
		}
	}
	return nil
}
