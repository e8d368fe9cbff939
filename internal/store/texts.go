package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blinktext/internal/models"
)

const textsTable = "texts"

var textColumns = []string{
	"id", "access_token", "content", "content_key", "encryption_key", "is_protected",
	"password_hash", "view_count", "max_views", "view_once", "expires_at", "created_at",
	"is_markdown", "owner_id",
}

// TextStore implements models.TextRepository on database/sql.
type TextStore struct {
	db      *sql.DB
	dialect Dialect
}

// Create inserts the text together with its issued_tokens ledger row in one transaction.
func (s *TextStore) Create(ctx context.Context, text *models.Text) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = NewInsertBuilder("issued_tokens").
		Set("token", text.AccessToken).
		Set("issued_at", toMillis(text.CreatedAt)).
		Exec(ctx, tx, s.dialect)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateToken
		}
		return fmt.Errorf("failed to record access token: %w", err)
	}

	var owner uuid.NullUUID
	if text.OwnerID != nil {
		owner = uuid.NullUUID{UUID: *text.OwnerID, Valid: true}
	}
	var maxViews sql.NullInt64
	if text.MaxViews != nil {
		maxViews = sql.NullInt64{Int64: int64(*text.MaxViews), Valid: true}
	}

	_, err = NewInsertBuilder(textsTable).
		Set("id", text.ID).
		Set("access_token", text.AccessToken).
		Set("content", text.Content).
		Set("content_key", text.ContentKey).
		Set("encryption_key", text.EncryptionKey).
		Set("is_protected", text.IsProtected).
		Set("password_hash", text.PasswordHash).
		Set("view_count", text.ViewCount).
		Set("max_views", maxViews).
		Set("view_once", text.ViewOnce).
		Set("expires_at", toMillis(text.ExpiresAt)).
		Set("created_at", toMillis(text.CreatedAt)).
		Set("is_markdown", text.IsMarkdown).
		Set("owner_id", owner).
		Exec(ctx, tx, s.dialect)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateToken
		}
		return fmt.Errorf("failed to insert text: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit text: %w", err)
	}
	return nil
}

func (s *TextStore) GetByToken(ctx context.Context, accessToken string) (*models.Text, error) {
	row := NewSelectBuilder(textsTable, textColumns...).
		Where("access_token = ?", accessToken).
		QueryRow(ctx, s.db, s.dialect)

	text, err := scanText(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get text: %w", err)
	}
	return text, nil
}

// IncrementViews performs the conditional increment as a single UPDATE so that concurrent
// readers can never push view_count past max_views.
func (s *TextStore) IncrementViews(ctx context.Context, id uuid.UUID, now time.Time) (int, bool, error) {
	var count int
	err := NewUpdateBuilder(textsTable).
		SetExpr("view_count = view_count + 1").
		Where("id = ?", id).
		Where("expires_at > ?", toMillis(now)).
		Where("(max_views IS NULL OR view_count < max_views)").
		Where("(view_once = ? OR view_count = 0)", false).
		Returning("view_count").
		QueryRow(ctx, s.db, s.dialect).
		Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment views: %w", err)
	}
	return count, true, nil
}

func (s *TextStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := NewDeleteBuilder(textsTable).
		Where("id = ?", id).
		Exec(ctx, s.db, s.dialect)
	if err != nil {
		return false, fmt.Errorf("failed to delete text: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete text: %w", err)
	}
	return n > 0, nil
}

func (s *TextStore) DeleteOwned(ctx context.Context, id, ownerID uuid.UUID) (string, error) {
	var contentKey string
	err := NewDeleteBuilder(textsTable).
		Where("id = ?", id).
		Where("owner_id = ?", ownerID).
		Returning("content_key").
		QueryRow(ctx, s.db, s.dialect).
		Scan(&contentKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete text: %w", err)
	}
	return contentKey, nil
}

func (s *TextStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*models.Text, int, error) {
	if offset < 0 {
		return nil, 0, fmt.Errorf("invalid offset %d", offset)
	}

	var total int
	err := NewSelectBuilder(textsTable, "COUNT(*)").
		Where("owner_id = ?", ownerID).
		QueryRow(ctx, s.db, s.dialect).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count texts: %w", err)
	}

	rows, err := NewSelectBuilder(textsTable, textColumns...).
		Where("owner_id = ?", ownerID).
		OrderBy("created_at DESC", "id").
		Limit(limit).
		Offset(offset).
		Query(ctx, s.db, s.dialect)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list texts: %w", err)
	}
	defer rows.Close()

	texts := make([]*models.Text, 0, limit)
	for rows.Next() {
		text, err := scanText(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan text: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list texts: %w", err)
	}
	return texts, total, nil
}

func (s *TextStore) DeleteExpired(ctx context.Context, now time.Time) (int64, []string, error) {
	rows, err := NewDeleteBuilder(textsTable).
		Where("expires_at <= ?", toMillis(now)).
		Returning("content_key").
		Query(ctx, s.db, s.dialect)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to delete expired texts: %w", err)
	}
	defer rows.Close()

	var (
		deleted int64
		keys    []string
	)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return deleted, keys, fmt.Errorf("failed to scan content key: %w", err)
		}
		deleted++
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return deleted, keys, fmt.Errorf("failed to delete expired texts: %w", err)
	}
	return deleted, keys, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanText(row rowScanner) (*models.Text, error) {
	var (
		text      models.Text
		maxViews  sql.NullInt64
		owner     uuid.NullUUID
		expiresAt int64
		createdAt int64
	)

	err := row.Scan(
		&text.ID,
		&text.AccessToken,
		&text.Content,
		&text.ContentKey,
		&text.EncryptionKey,
		&text.IsProtected,
		&text.PasswordHash,
		&text.ViewCount,
		&maxViews,
		&text.ViewOnce,
		&expiresAt,
		&createdAt,
		&text.IsMarkdown,
		&owner,
	)
	if err != nil {
		return nil, err
	}

	if maxViews.Valid {
		v := int(maxViews.Int64)
		text.MaxViews = &v
	}
	if owner.Valid {
		id := owner.UUID
		text.OwnerID = &id
	}
	text.ExpiresAt = fromMillis(expiresAt)
	text.CreatedAt = fromMillis(createdAt)
	return &text, nil
}
