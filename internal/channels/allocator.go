package channels

import (
	"context"
	"fmt"

	"github.com/mixelka/chatmirror/pkg/models"
)

// AccountStore persistence used by the allocator
type AccountStore interface {
	EnsureAccount(ctx context.Context, telegramID int64, poolSize int) (*models.Account, bool, error)
	CountAccountsBefore(ctx context.Context, telegramID int64) (int, error)
	SetChannelIndex(ctx context.Context, telegramID int64, index int) error
}

// Allocator assigns accounts a fixed position in the rotating text pool.
// The index is computed once at account creation and then reused.
type Allocator struct {
	store    AccountStore
	poolSize int
}

// NewAllocator creates a new allocator
func NewAllocator(store AccountStore, registry *Registry) *Allocator {
	return &Allocator{store: store, poolSize: registry.PoolSize()}
}

// Assign returns the pool index of the account, creating the account on first sight
func (a *Allocator) Assign(ctx context.Context, accountID int64) (int, error) {
	acc, err := a.Ensure(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.ChannelIndex, nil
}

// Ensure returns the account, creating it on first sight. A stored index
// outside the current pool (the pool shrank) is wrapped and persisted.
func (a *Allocator) Ensure(ctx context.Context, accountID int64) (*models.Account, error) {
	acc, _, err := a.store.EnsureAccount(ctx, accountID, a.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}

	if acc.ChannelIndex < 0 || acc.ChannelIndex >= a.poolSize {
		index := ((acc.ChannelIndex % a.poolSize) + a.poolSize) % a.poolSize
		if err := a.store.SetChannelIndex(ctx, accountID, index); err != nil {
			return nil, err
		}
		acc.ChannelIndex = index
	}
	return acc, nil
}

// Reset recomputes the index from the number of accounts created before this one
func (a *Allocator) Reset(ctx context.Context, accountID int64) (int, error) {
	before, err := a.store.CountAccountsBefore(ctx, accountID)
	if err != nil {
		return 0, err
	}
	index := before % a.poolSize
	if err := a.store.SetChannelIndex(ctx, accountID, index); err != nil {
		return 0, err
	}
	return index, nil
}
