package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/telemetry"
	"github.com/mixelka/chatmirror/pkg/models"
)

// Edit inbound edited-message event
type Edit struct {
	AccountID int64
	ChatID    int64
	MessageID int
	Editor    models.Person
	To        models.Person
	Date      time.Time
	Content   models.Content
}

// Key returns the original message identity
func (e *Edit) Key() models.MessageKey {
	return models.MessageKey{ChatID: e.ChatID, MessageID: e.MessageID}
}

// EditRecorder mirrors edited content into the history sink
type EditRecorder struct {
	*Mirror
}

// NewEditRecorder creates an edit recorder on top of the mirror core
func NewEditRecorder(m *Mirror) *EditRecorder {
	return &EditRecorder{Mirror: m}
}

// OnEdit records a new version of a tracked message and notifies the owner.
// Returns ErrProvenanceMissing for messages that were never mirrored.
func (r *EditRecorder) OnEdit(ctx context.Context, e Edit) error {
	key := e.Key()
	logger := r.logger.With("event_id", telemetry.GetCorrelation(ctx), "key", key.String())

	if _, err := r.store.GetProvenance(ctx, key); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			telemetry.ObserveEdit("untracked")
			return ErrProvenanceMissing
		}
		return &PersistenceError{Op: "get provenance", Key: key, Err: err}
	}

	account, err := r.accounts.Ensure(ctx, e.AccountID)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}
	if !r.notifies(ctx, account, models.NotificationEdit) {
		telemetry.ObserveEdit("muted")
		logger.Debug("edit notifications disabled")
		return nil
	}

	text, entities := Header{Kind: HeaderEdit, From: e.Editor, To: e.To, At: e.Date}.Render(r.location)
	content := Annotate(e.Content, text, entities)

	notice := Notice{Kind: NoticeEdited, Actor: e.Editor, At: e.Date, Key: key}

	channelID, mirroredID, err := r.deliver(ctx, r.channels.HistorySink(), content)
	if err != nil {
		logger.Error("edit not mirrored", "error", err)
		telemetry.ObserveEdit("unavailable")
		notice.Kind = NoticeEditUnavailable
	} else {
		entry := &models.EditHistoryEntry{
			ChatID:     e.ChatID,
			MessageID:  e.MessageID,
			ChannelID:  channelID,
			MirroredID: mirroredID,
			EditorID:   e.Editor.ID,
			EditedAt:   e.Date,
		}
		if err := retryOnce(func() error { return r.store.AppendEdit(ctx, entry) }); err != nil {
			telemetry.ObserveEdit("unrecorded")
			return &PersistenceError{Op: "append edit", Key: key, Err: err}
		}
		telemetry.ObserveEdit("recorded")
	}

	if err := r.store.IncrementCounter(ctx, e.AccountID, models.CounterEdited); err != nil {
		logger.Error("failed to increment edited counter", "error", err)
	}

	if err := r.transport.Notify(ctx, e.AccountID, notice); err != nil {
		logger.Warn("failed to notify owner about edit", "error", err)
	}
	return nil
}
