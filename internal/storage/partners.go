package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/pattern"
)

// Owner discriminators for the shared learned_patterns and manual_removals
// tables.
const (
	ownerPartner  = "partner"
	ownerCategory = "category"

	targetTransaction = "transaction"
	targetFile        = "file"
)

const partnerColumns = `id, user_id, name, vat_id, scope, aliases, ibans, email_domains, created_at`

// GetPartnersForUser returns the user's partners plus the global set, with
// learned patterns and manual removals attached.
func (s *SQLiteStorage) GetPartnersForUser(ctx context.Context, userID string) ([]model.Partner, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+partnerColumns+` FROM partners
		 WHERE user_id = ? OR scope = ? ORDER BY id`,
		userID, string(model.ScopeGlobal))
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var partners []model.Partner
	for rows.Next() {
		p, scanErr := scanPartner(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", scanErr)
		}
		partners = append(partners, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate partners: %w", err)
	}

	for i := range partners {
		if err := s.attachPartnerExtras(ctx, &partners[i]); err != nil {
			return nil, err
		}
	}
	return partners, nil
}

// GetPartnerByID retrieves a single partner.
func (s *SQLiteStorage) GetPartnerByID(ctx context.Context, id string) (*model.Partner, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+partnerColumns+` FROM partners WHERE id = ?`, id)
	p, err := scanPartner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("partner %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	if err := s.attachPartnerExtras(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePartner upserts a partner together with its embedded patterns and
// removals. The struct is authoritative: existing pattern and removal rows
// for the partner are replaced.
func (s *SQLiteStorage) SavePartner(ctx context.Context, partner *model.Partner) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePartner(partner); err != nil {
		return err
	}

	aliases, err := marshalJSON(partner.Aliases)
	if err != nil {
		return err
	}
	ibans, err := marshalJSON(partner.Ibans)
	if err != nil {
		return err
	}
	emailDomains, err := marshalJSON(partner.EmailDomains)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := partner.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO partners (id, user_id, name, vat_id, scope, aliases, ibans, email_domains, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id, name = excluded.name, vat_id = excluded.vat_id,
			scope = excluded.scope, aliases = excluded.aliases, ibans = excluded.ibans,
			email_domains = excluded.email_domains`,
		partner.ID, partner.UserID, partner.Name, partner.VatID, string(partner.Scope),
		aliases, ibans, emailDomains, createdAt,
	); err != nil {
		return fmt.Errorf("failed to save partner: %w", err)
	}

	if err := replacePatternsTx(ctx, tx, ownerPartner, partner.ID, partner.LearnedPatterns); err != nil {
		return err
	}
	if err := replaceRemovalsTx(ctx, tx, ownerPartner, partner.ID, partner.ManualRemovals, partner.ManualFileRemovals); err != nil {
		return err
	}

	return tx.Commit()
}

// AddManualRemoval records negative feedback for a partner. Inserting the
// same removal twice is a no-op.
func (s *SQLiteStorage) AddManualRemoval(ctx context.Context, partnerID string, removal model.ManualRemoval, forFile bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(partnerID, "partnerID"); err != nil {
		return err
	}
	if err := validateString(removal.TargetID, "targetID"); err != nil {
		return err
	}

	kind := targetTransaction
	if forFile {
		kind = targetFile
	}
	createdAt := removal.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO manual_removals (owner_type, owner_id, target_kind, target_id, matched_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ownerPartner, partnerID, kind, removal.TargetID, removal.MatchedText, createdAt,
	); err != nil {
		return fmt.Errorf("failed to add manual removal: %w", err)
	}
	return nil
}

// UpsertPartnerPattern reinforces an equivalent existing pattern or inserts
// a new one, inside a database transaction so concurrent confirmations
// cannot lose updates.
func (s *SQLiteStorage) UpsertPartnerPattern(ctx context.Context, partnerID, derived, sourceID string) (bool, error) {
	return s.upsertPattern(ctx, ownerPartner, partnerID, derived, sourceID)
}

func (s *SQLiteStorage) upsertPattern(ctx context.Context, ownerType, ownerID, derived, sourceID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return false, err
	}
	if derived == "" {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := loadPatternsTx(ctx, tx, ownerType, ownerID)
	if err != nil {
		return false, err
	}

	updated, changed := pattern.Upsert(existing, derived, sourceID, time.Now().UTC())
	if !changed {
		return false, nil
	}

	// The changed entry is either an appended new pattern or a reinforced
	// existing one; write just that row.
	var target *model.LearnedPattern
	if len(updated) > len(existing) {
		target = &updated[len(updated)-1]
	} else {
		for i := range updated {
			if pattern.Equivalent(updated[i].Pattern, derived) {
				target = &updated[i]
				break
			}
		}
	}
	if target == nil {
		return false, nil
	}

	sourceIDs, err := marshalJSON(target.SourceIDs)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO learned_patterns (owner_type, owner_id, pattern, confidence, source_ids, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_type, owner_id, pattern) DO UPDATE SET
			confidence = excluded.confidence,
			source_ids = excluded.source_ids,
			usage_count = excluded.usage_count`,
		ownerType, ownerID, target.Pattern, target.Confidence, sourceIDs, target.UsageCount, target.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("failed to upsert pattern: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit pattern upsert: %w", err)
	}
	return true, nil
}

func (s *SQLiteStorage) attachPartnerExtras(ctx context.Context, p *model.Partner) error {
	patterns, err := s.loadPatterns(ctx, ownerPartner, p.ID)
	if err != nil {
		return err
	}
	p.LearnedPatterns = patterns

	removals, fileRemovals, err := s.loadRemovals(ctx, ownerPartner, p.ID)
	if err != nil {
		return err
	}
	p.ManualRemovals = removals
	p.ManualFileRemovals = fileRemovals
	return nil
}

func (s *SQLiteStorage) loadPatterns(ctx context.Context, ownerType, ownerID string) ([]model.LearnedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern, confidence, source_ids, usage_count, created_at
		FROM learned_patterns WHERE owner_type = ? AND owner_id = ? ORDER BY id`,
		ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPatternRows(rows)
}

func loadPatternsTx(ctx context.Context, tx *sql.Tx, ownerType, ownerID string) ([]model.LearnedPattern, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pattern, confidence, source_ids, usage_count, created_at
		FROM learned_patterns WHERE owner_type = ? AND owner_id = ? ORDER BY id`,
		ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanPatternRows(rows)
}

func scanPatternRows(rows *sql.Rows) ([]model.LearnedPattern, error) {
	var patterns []model.LearnedPattern
	for rows.Next() {
		var lp model.LearnedPattern
		var sourceIDs string
		if err := rows.Scan(&lp.Pattern, &lp.Confidence, &sourceIDs, &lp.UsageCount, &lp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		lp.SourceIDs = unmarshalStrings(sourceIDs)
		patterns = append(patterns, lp)
	}
	return patterns, rows.Err()
}

func (s *SQLiteStorage) loadRemovals(ctx context.Context, ownerType, ownerID string) (txnRemovals, fileRemovals []model.ManualRemoval, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_kind, target_id, matched_text, created_at
		FROM manual_removals WHERE owner_type = ? AND owner_id = ? ORDER BY id`,
		ownerType, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query removals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind string
		var removal model.ManualRemoval
		if err := rows.Scan(&kind, &removal.TargetID, &removal.MatchedText, &removal.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan removal: %w", err)
		}
		if kind == targetFile {
			fileRemovals = append(fileRemovals, removal)
		} else {
			txnRemovals = append(txnRemovals, removal)
		}
	}
	return txnRemovals, fileRemovals, rows.Err()
}

func replacePatternsTx(ctx context.Context, tx *sql.Tx, ownerType, ownerID string, patterns []model.LearnedPattern) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM learned_patterns WHERE owner_type = ? AND owner_id = ?`,
		ownerType, ownerID); err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}
	for i := range patterns {
		lp := &patterns[i]
		sourceIDs, err := marshalJSON(lp.SourceIDs)
		if err != nil {
			return err
		}
		createdAt := lp.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO learned_patterns (owner_type, owner_id, pattern, confidence, source_ids, usage_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ownerType, ownerID, lp.Pattern, lp.Confidence, sourceIDs, lp.UsageCount, createdAt,
		); err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
	}
	return nil
}

func replaceRemovalsTx(ctx context.Context, tx *sql.Tx, ownerType, ownerID string, txnRemovals, fileRemovals []model.ManualRemoval) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM manual_removals WHERE owner_type = ? AND owner_id = ?`,
		ownerType, ownerID); err != nil {
		return fmt.Errorf("failed to clear removals: %w", err)
	}
	insert := func(kind string, removals []model.ManualRemoval) error {
		for _, r := range removals {
			createdAt := r.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO manual_removals (owner_type, owner_id, target_kind, target_id, matched_text, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				ownerType, ownerID, kind, r.TargetID, r.MatchedText, createdAt,
			); err != nil {
				return fmt.Errorf("failed to insert removal: %w", err)
			}
		}
		return nil
	}
	if err := insert(targetTransaction, txnRemovals); err != nil {
		return err
	}
	return insert(targetFile, fileRemovals)
}

func scanPartner(row scanner) (*model.Partner, error) {
	var p model.Partner
	var scope, aliases, ibans, emailDomains string
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.VatID, &scope, &aliases, &ibans, &emailDomains, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Scope = model.PartnerScope(scope)
	p.Aliases = unmarshalStrings(aliases)
	p.Ibans = unmarshalStrings(ibans)
	p.EmailDomains = unmarshalStrings(emailDomains)
	return &p, nil
}
