package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mixelka/chatmirror/pkg/models"
)

// Store persistence used by the jobs
type Store interface {
	ListExpiredSubscriptions(ctx context.Context, now time.Time) ([]int64, error)
	DeleteExpiredSubscriptions(ctx context.Context, accountID int64, now time.Time) error
	GetInactiveAccounts(ctx context.Context, since time.Time) ([]*models.Account, error)
}

// Notifier sends a text to the account owner
type Notifier interface {
	NotifyOwner(ctx context.Context, accountID int64, text string) error
}

// Texts owner-facing texts of the jobs
type Texts interface {
	SubscriptionEnded() string
	InactivityReminder(since time.Time) string
}

// Deps dependencies of the built-in jobs
type Deps struct {
	Store    Store
	Notifier Notifier
	Texts    Texts
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// ExpirySweep tells owners their subscription ended, then removes the
// ended rows. Rows of owners that could not be reached stay for the next run.
func ExpirySweep(deps Deps, interval time.Duration) Job {
	logger := deps.Logger.With("component", "expiry_sweep")
	return Job{
		Name:     "expiry_sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			now := deps.now()
			accounts, err := deps.Store.ListExpiredSubscriptions(ctx, now)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				return nil
			}

			logger.Info("subscriptions expired", "count", len(accounts))
			for _, id := range accounts {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := deps.Notifier.NotifyOwner(ctx, id, deps.Texts.SubscriptionEnded()); err != nil {
					logger.Warn("failed to notify about expired subscription", "account_id", id, "error", err)
					continue
				}
				if err := deps.Store.DeleteExpiredSubscriptions(ctx, id, now); err != nil {
					logger.Error("failed to delete expired subscription", "account_id", id, "error", err)
				}
			}
			return nil
		},
	}
}

// InactivityReminder nudges connected owners without traffic for threshold
func InactivityReminder(deps Deps, interval, threshold time.Duration) Job {
	logger := deps.Logger.With("component", "inactivity_reminder")
	return Job{
		Name:     "inactivity_reminder",
		Interval: interval,
		Run: func(ctx context.Context) error {
			accounts, err := deps.Store.GetInactiveAccounts(ctx, deps.now().Add(-threshold))
			if err != nil {
				return fmt.Errorf("failed to list inactive accounts: %w", err)
			}

			for _, acc := range accounts {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				text := deps.Texts.InactivityReminder(acc.LastMessageTime)
				if err := deps.Notifier.NotifyOwner(ctx, acc.TelegramID, text); err != nil {
					logger.Warn("failed to send inactivity reminder", "account_id", acc.TelegramID, "error", err)
				}
			}
			return nil
		},
	}
}
