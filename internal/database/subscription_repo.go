package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SubscriptionEnd returns the latest subscription end date of an account
func (db *DB) SubscriptionEnd(ctx context.Context, accountID int64) (time.Time, error) {
	var end time.Time
	query := `SELECT end_date FROM subscriptions WHERE account_id = ? ORDER BY end_date DESC LIMIT 1`
	err := db.GetContext(ctx, &end, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return end, nil
}

// IsSubscribed reports whether the account has a subscription ending in the future
func (db *DB) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	end, err := db.SubscriptionEnd(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return end.After(time.Now()), nil
}

// CreateSubscription records a subscription; written by the billing side
func (db *DB) CreateSubscription(ctx context.Context, accountID int64, end time.Time) error {
	_, err := db.ExecContext(ctx, `INSERT INTO subscriptions (account_id, end_date) VALUES (?, ?)`, accountID, end.UTC())
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// ListExpiredSubscriptions returns accounts holding subscriptions that
// ended before now, each once
func (db *DB) ListExpiredSubscriptions(ctx context.Context, now time.Time) ([]int64, error) {
	var accounts []int64
	query := `SELECT DISTINCT account_id FROM subscriptions WHERE end_date < ? ORDER BY account_id`
	if err := db.SelectContext(ctx, &accounts, query, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}
	return accounts, nil
}

// DeleteExpiredSubscriptions removes the account's subscriptions that ended before now
func (db *DB) DeleteExpiredSubscriptions(ctx context.Context, accountID int64, now time.Time) error {
	_, err := db.ExecContext(ctx, `DELETE FROM subscriptions WHERE account_id = ? AND end_date < ?`, accountID, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete expired subscriptions: %w", err)
	}
	return nil
}
