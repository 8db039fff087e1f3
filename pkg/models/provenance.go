package models

import (
	"fmt"
	"time"
)

// MessageKey identifies an original message in a monitored chat
type MessageKey struct {
	ChatID    int64 `db:"chat_id"`
	MessageID int   `db:"message_id"`
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.MessageID)
}

// ProvenanceRecord maps an original message to its mirrored copy.
// Never mutated after creation.
type ProvenanceRecord struct {
	ChatID       int64        `db:"chat_id"`
	MessageID    int          `db:"message_id"`
	ChannelID    int64        `db:"channel_id"`  // Destination channel
	MirroredID   int          `db:"mirrored_id"` // Message ID inside ChannelID
	AccountID    int64        `db:"account_id"`  // Owner Telegram ID
	ContentClass ContentClass `db:"content_class"`
	CreatedAt    time.Time    `db:"created_at"`
}

// Key returns the original message identity
func (r *ProvenanceRecord) Key() MessageKey {
	return MessageKey{ChatID: r.ChatID, MessageID: r.MessageID}
}

// EditHistoryEntry one mirrored edit of an original message
type EditHistoryEntry struct {
	ChatID     int64     `db:"chat_id"`
	MessageID  int       `db:"message_id"`
	Seq        int       `db:"seq"`
	ChannelID  int64     `db:"channel_id"`
	MirroredID int       `db:"mirrored_id"`
	EditorID   int64     `db:"editor_id"`
	EditedAt   time.Time `db:"edited_at"`
}

// Key returns the original message identity
func (e *EditHistoryEntry) Key() MessageKey {
	return MessageKey{ChatID: e.ChatID, MessageID: e.MessageID}
}
