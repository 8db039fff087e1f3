package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/chatmirror/pkg/models"
)

// PutProvenance stores the mirror of an original message (ignores if already exists).
// Returns ErrAlreadyExists when a record for the same original message is present.
func (db *DB) PutProvenance(ctx context.Context, rec *models.ProvenanceRecord) error {
	query := `
		INSERT OR IGNORE INTO provenance (chat_id, message_id, channel_id, mirrored_id, account_id, content_class, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	result, err := db.ExecContext(ctx, query,
		rec.ChatID,
		rec.MessageID,
		rec.ChannelID,
		rec.MirroredID,
		rec.AccountID,
		rec.ContentClass,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create provenance: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetProvenance returns the mirror record of an original message
func (db *DB) GetProvenance(ctx context.Context, key models.MessageKey) (*models.ProvenanceRecord, error) {
	var rec models.ProvenanceRecord
	query := `SELECT * FROM provenance WHERE chat_id = ? AND message_id = ?`
	err := db.GetContext(ctx, &rec, query, key.ChatID, key.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provenance: %w", err)
	}
	return &rec, nil
}

// AppendEdit appends an entry to the edit history of an original message.
// Seq and EditedAt are assigned so the history stays ordered: seq is the
// previous seq + 1 and EditedAt never goes below the previous entry.
func (db *DB) AppendEdit(ctx context.Context, entry *models.EditHistoryEntry) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last struct {
		Seq      sql.NullInt64 `db:"seq"`
		EditedAt sql.NullTime  `db:"edited_at"`
	}
	err = tx.GetContext(ctx, &last, `
		SELECT seq, edited_at FROM edit_history
		WHERE chat_id = ? AND message_id = ?
		ORDER BY seq DESC LIMIT 1
	`, entry.ChatID, entry.MessageID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get last edit: %w", err)
	}

	entry.Seq = 1
	if last.Seq.Valid {
		entry.Seq = int(last.Seq.Int64) + 1
	}
	if entry.EditedAt.IsZero() {
		entry.EditedAt = time.Now()
	}
	entry.EditedAt = entry.EditedAt.UTC()
	if last.EditedAt.Valid && entry.EditedAt.Before(last.EditedAt.Time) {
		entry.EditedAt = last.EditedAt.Time.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edit_history (chat_id, message_id, seq, channel_id, mirrored_id, editor_id, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ChatID, entry.MessageID, entry.Seq, entry.ChannelID, entry.MirroredID, entry.EditorID, entry.EditedAt)
	if err != nil {
		return fmt.Errorf("failed to append edit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit edit: %w", err)
	}
	return nil
}

// ListEdits returns the edit history of an original message in stored order
func (db *DB) ListEdits(ctx context.Context, key models.MessageKey) ([]*models.EditHistoryEntry, error) {
	var entries []*models.EditHistoryEntry
	query := `SELECT * FROM edit_history WHERE chat_id = ? AND message_id = ? ORDER BY seq`
	if err := db.SelectContext(ctx, &entries, query, key.ChatID, key.MessageID); err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}
	return entries, nil
}
