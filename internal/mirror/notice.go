package mirror

import (
	"time"

	"github.com/mixelka/chatmirror/pkg/models"
)

// NoticeKind type of owner notice
type NoticeKind int

const (
	NoticeEdited NoticeKind = iota
	NoticeEditUnavailable
	NoticeDeleted
	NoticeDeleteUnavailable
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeEdited:
		return "edited"
	case NoticeEditUnavailable:
		return "edit_unavailable"
	case NoticeDeleted:
		return "deleted"
	case NoticeDeleteUnavailable:
		return "delete_unavailable"
	}
	return "unknown"
}

// Notice what the owner is told about an edit or a deletion
type Notice struct {
	Kind    NoticeKind
	Actor   models.Person
	At      time.Time
	Key     models.MessageKey
	Content *models.Content // Recovered content, set for NoticeDeleted
}
