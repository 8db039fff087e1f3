package models

// CallbackAction type of callback action
type CallbackAction string

const (
	CallbackHistory CallbackAction = "h"
	CallbackToggle  CallbackAction = "t"
	CallbackClose   CallbackAction = "x"
)

// CallbackData structure for inline button callback
type CallbackData struct {
	Action    CallbackAction   `json:"a"`
	ChatID    int64            `json:"c,omitempty"`
	MessageID int              `json:"m,omitempty"`
	Kind      NotificationKind `json:"k,omitempty"` // Toggle target
}
