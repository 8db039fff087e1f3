package models

import "time"

// Account represents a monitored chat owner
type Account struct {
	ID                   int64     `db:"id"`
	TelegramID           int64     `db:"telegram_id"`   // Stable account id
	Username             string    `db:"username"`      // Telegram username without @
	ChannelIndex         int       `db:"channel_index"` // Position in the rotating text pool
	BusinessBotActive    bool      `db:"business_bot_active"`
	IsBanned             bool      `db:"is_banned"`
	NotificationsEnabled bool      `db:"notifications_enabled"`
	EditNotifications    bool      `db:"edit_notifications"`
	DeleteNotifications  bool      `db:"delete_notifications"`
	ActiveMessagesCount  int64     `db:"active_messages_count"`
	EditedMessagesCount  int64     `db:"edited_messages_count"`
	DeletedMessagesCount int64     `db:"deleted_messages_count"`
	LastMessageTime      time.Time `db:"last_message_time"`
	CreatedAt            time.Time `db:"created_at"`
}

// Notifies reports whether the owner wants notifications of the given kind
func (a *Account) Notifies(kind NotificationKind) bool {
	if !a.NotificationsEnabled {
		return false
	}
	switch kind {
	case NotificationEdit:
		return a.EditNotifications
	case NotificationDelete:
		return a.DeleteNotifications
	case NotificationAll:
		return true
	}
	return false
}

// NotificationKind category of owner notifications
type NotificationKind string

const (
	NotificationAll    NotificationKind = "all"
	NotificationEdit   NotificationKind = "edit"
	NotificationDelete NotificationKind = "delete"
)

// Column returns the accounts column holding the toggle
func (k NotificationKind) Column() (string, bool) {
	switch k {
	case NotificationAll:
		return "notifications_enabled", true
	case NotificationEdit:
		return "edit_notifications", true
	case NotificationDelete:
		return "delete_notifications", true
	}
	return "", false
}

// Counter rolling per-account message counter
type Counter string

const (
	CounterActive  Counter = "active_messages_count"
	CounterEdited  Counter = "edited_messages_count"
	CounterDeleted Counter = "deleted_messages_count"
)

// BusinessConnection links a connection id to the owner account
type BusinessConnection struct {
	ID          string    `db:"id"`
	AccountID   int64     `db:"account_id"`    // Owner Telegram ID
	OwnerChatID int64     `db:"owner_chat_id"` // Private chat with the owner
	IsEnabled   bool      `db:"is_enabled"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Person identity shown in mirror headers and notifications
type Person struct {
	ID       int64
	Name     string
	Username string
}
