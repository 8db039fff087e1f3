package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/chatmirror/pkg/models"
)

// UpsertConnection stores the latest state of a business connection
func (db *DB) UpsertConnection(ctx context.Context, conn *models.BusinessConnection) error {
	query := `
		INSERT INTO business_connections (id, account_id, owner_chat_id, is_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			owner_chat_id = excluded.owner_chat_id,
			is_enabled = excluded.is_enabled,
			updated_at = excluded.updated_at
	`
	conn.UpdatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx, query, conn.ID, conn.AccountID, conn.OwnerChatID, conn.IsEnabled, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

// GetConnection returns a business connection by ID
func (db *DB) GetConnection(ctx context.Context, id string) (*models.BusinessConnection, error) {
	var conn models.BusinessConnection
	err := db.GetContext(ctx, &conn, `SELECT * FROM business_connections WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// GetOwnerChatID returns the private chat of the account's most recent connection
func (db *DB) GetOwnerChatID(ctx context.Context, accountID int64) (int64, error) {
	var chatID int64
	query := `SELECT owner_chat_id FROM business_connections WHERE account_id = ? ORDER BY updated_at DESC LIMIT 1`
	err := db.GetContext(ctx, &chatID, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get owner chat: %w", err)
	}
	return chatID, nil
}
