package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quillbooks/quill/internal/common"
	"github.com/quillbooks/quill/internal/model"
)

// GetUserData retrieves the user's identity record.
func (s *SQLiteStorage) GetUserData(ctx context.Context, userID string) (*model.UserData, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var data model.UserData
	var aliases, vatIDs, ibans, sourceIbans, ownEmails string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, company_name, aliases, vat_ids, ibans, source_ibans, own_emails
		FROM user_data WHERE user_id = ?`, userID).Scan(
		&data.UserID, &data.Name, &data.CompanyName,
		&aliases, &vatIDs, &ibans, &sourceIbans, &ownEmails)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user data: %w", err)
	}

	data.Aliases = unmarshalStrings(aliases)
	data.VatIDs = unmarshalStrings(vatIDs)
	data.Ibans = unmarshalStrings(ibans)
	data.SourceIbans = unmarshalStrings(sourceIbans)
	data.OwnEmails = unmarshalStrings(ownEmails)
	return &data, nil
}

// SaveUserData upserts the user's identity record.
func (s *SQLiteStorage) SaveUserData(ctx context.Context, data *model.UserData) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUserData(data); err != nil {
		return err
	}

	aliases, err := marshalJSON(data.Aliases)
	if err != nil {
		return err
	}
	vatIDs, err := marshalJSON(data.VatIDs)
	if err != nil {
		return err
	}
	ibans, err := marshalJSON(data.Ibans)
	if err != nil {
		return err
	}
	sourceIbans, err := marshalJSON(data.SourceIbans)
	if err != nil {
		return err
	}
	ownEmails, err := marshalJSON(data.OwnEmails)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_data (user_id, name, company_name, aliases, vat_ids, ibans, source_ibans, own_emails, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name, company_name = excluded.company_name,
			aliases = excluded.aliases, vat_ids = excluded.vat_ids,
			ibans = excluded.ibans, source_ibans = excluded.source_ibans,
			own_emails = excluded.own_emails, updated_at = excluded.updated_at`,
		data.UserID, data.Name, data.CompanyName,
		aliases, vatIDs, ibans, sourceIbans, ownEmails, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to save user data: %w", err)
	}
	return nil
}
