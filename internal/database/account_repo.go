package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mixelka/chatmirror/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// EnsureAccount returns the account for telegramID, creating it on first sight.
// A new account gets channel_index = count(existing accounts) mod poolSize,
// computed in the same transaction as the insert.
func (db *DB) EnsureAccount(ctx context.Context, telegramID int64, poolSize int) (*models.Account, bool, error) {
	if poolSize <= 0 {
		return nil, false, fmt.Errorf("invalid pool size %d", poolSize)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var account models.Account
	err = tx.GetContext(ctx, &account, `SELECT * FROM accounts WHERE telegram_id = ?`, telegramID)
	if err == nil {
		return &account, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM accounts`); err != nil {
		return nil, false, fmt.Errorf("failed to count accounts: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (telegram_id, channel_index, last_message_time, created_at)
		VALUES (?, ?, ?, ?)
	`, telegramID, count%poolSize, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	if err := tx.GetContext(ctx, &account, `SELECT * FROM accounts WHERE telegram_id = ?`, telegramID); err != nil {
		return nil, false, fmt.Errorf("failed to reload account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit account: %w", err)
	}
	return &account, true, nil
}

// GetAccount returns an account by Telegram ID
func (db *DB) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	var account models.Account
	err := db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE telegram_id = ?`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// CountAccountsBefore returns the number of accounts created before telegramID
func (db *DB) CountAccountsBefore(ctx context.Context, telegramID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM accounts WHERE id < (SELECT id FROM accounts WHERE telegram_id = ?)`
	if err := db.GetContext(ctx, &count, query, telegramID); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// SetChannelIndex stores a new rotating pool index for the account
func (db *DB) SetChannelIndex(ctx context.Context, telegramID int64, index int) error {
	_, err := db.ExecContext(ctx, `UPDATE accounts SET channel_index = ? WHERE telegram_id = ?`, index, telegramID)
	if err != nil {
		return fmt.Errorf("failed to set channel index: %w", err)
	}
	return nil
}

// SetAccountActive sets the business connection status of an account
func (db *DB) SetAccountActive(ctx context.Context, telegramID int64, active bool) error {
	_, err := db.ExecContext(ctx, `UPDATE accounts SET business_bot_active = ? WHERE telegram_id = ?`, active, telegramID)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return nil
}

// SetUsername stores the latest known username of the owner
func (db *DB) SetUsername(ctx context.Context, telegramID int64, username string) error {
	_, err := db.ExecContext(ctx, `UPDATE accounts SET username = ? WHERE telegram_id = ?`, username, telegramID)
	if err != nil {
		return fmt.Errorf("failed to set username: %w", err)
	}
	return nil
}

// IncrementCounter bumps one of the rolling message counters
func (db *DB) IncrementCounter(ctx context.Context, telegramID int64, counter models.Counter) error {
	switch counter {
	case models.CounterActive, models.CounterEdited, models.CounterDeleted:
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}

	query, args, err := sq.Update("accounts").
		Set(string(counter), sq.Expr(string(counter)+" + 1")).
		Where(sq.Eq{"telegram_id": telegramID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build counter query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment %s: %w", counter, err)
	}
	return nil
}

// ToggleNotification flips a notification toggle and returns the new value
func (db *DB) ToggleNotification(ctx context.Context, telegramID int64, kind models.NotificationKind) (bool, error) {
	column, ok := kind.Column()
	if !ok {
		return false, fmt.Errorf("unknown notification kind %q", kind)
	}

	query, args, err := sq.Update("accounts").
		Set(column, sq.Expr("NOT "+column)).
		Where(sq.Eq{"telegram_id": telegramID}).
		Suffix("RETURNING " + column).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build toggle query: %w", err)
	}

	var enabled bool
	err = db.GetContext(ctx, &enabled, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to toggle %s: %w", column, err)
	}
	return enabled, nil
}

// TouchActivity records traffic for the account and the sender/recipient pair
func (db *DB) TouchActivity(ctx context.Context, telegramID, fromID, toID int64, at time.Time) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET last_message_time = ? WHERE telegram_id = ?`, at.UTC(), telegramID); err != nil {
		return fmt.Errorf("failed to update last message time: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO message_stats (from_user_id, to_user_id, messages_count) VALUES (?, ?, 1)
		ON CONFLICT(from_user_id, to_user_id) DO UPDATE SET messages_count = messages_count + 1
	`, fromID, toID)
	if err != nil {
		return fmt.Errorf("failed to update message stats: %w", err)
	}

	return tx.Commit()
}

// MessagesBetween returns how many messages fromID sent to toID
func (db *DB) MessagesBetween(ctx context.Context, fromID, toID int64) (int64, error) {
	var count int64
	err := db.GetContext(ctx, &count,
		`SELECT messages_count FROM message_stats WHERE from_user_id = ? AND to_user_id = ?`, fromID, toID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get message stats: %w", err)
	}
	return count, nil
}

// GetInactiveAccounts returns connected accounts without traffic since the given time
func (db *DB) GetInactiveAccounts(ctx context.Context, since time.Time) ([]*models.Account, error) {
	query, args, err := sq.Select("*").
		From("accounts").
		Where(sq.Eq{"business_bot_active": true, "is_banned": false}).
		Where(sq.Lt{"last_message_time": since.UTC()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build inactivity query: %w", err)
	}

	var accounts []*models.Account
	if err := db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get inactive accounts: %w", err)
	}
	return accounts, nil
}
