package models

import (
	"github.com/go-telegram/bot/models"
)

// ContentClass closed set of mirrored content variants
type ContentClass string

const (
	ContentText      ContentClass = "text"
	ContentVoice     ContentClass = "voice"
	ContentVideo     ContentClass = "video"
	ContentVideoNote ContentClass = "video_note"
	ContentPhoto     ContentClass = "photo"
)

// ContentClasses lists every variant in routing order
var ContentClasses = []ContentClass{
	ContentText,
	ContentVoice,
	ContentVideo,
	ContentVideoNote,
	ContentPhoto,
}

// Valid reports whether c is one of the known variants
func (c ContentClass) Valid() bool {
	switch c {
	case ContentText, ContentVoice, ContentVideo, ContentVideoNote, ContentPhoto:
		return true
	}
	return false
}

// IsMedia reports whether the variant carries a file
func (c ContentClass) IsMedia() bool {
	return c.Valid() && c != ContentText
}

// Content payload of an inbound or mirrored message.
// Text holds the message text or the media caption.
type Content struct {
	Class    ContentClass
	Text     string
	Entities []models.MessageEntity
	FileID   string
}

// Classify decides the variant of a Telegram message once.
// Messages with neither text, caption nor supported media return false.
func Classify(msg *models.Message) (Content, bool) {
	if msg == nil {
		return Content{}, false
	}

	caption := Content{Text: msg.Caption, Entities: msg.CaptionEntities}

	switch {
	case msg.Voice != nil:
		caption.Class = ContentVoice
		caption.FileID = msg.Voice.FileID
		return caption, true
	case msg.VideoNote != nil:
		return Content{Class: ContentVideoNote, FileID: msg.VideoNote.FileID}, true
	case msg.Video != nil:
		caption.Class = ContentVideo
		caption.FileID = msg.Video.FileID
		return caption, true
	case len(msg.Photo) > 0:
		// Largest size is last
		caption.Class = ContentPhoto
		caption.FileID = msg.Photo[len(msg.Photo)-1].FileID
		return caption, true
	case msg.Text != "":
		return Content{Class: ContentText, Text: msg.Text, Entities: msg.Entities}, true
	case msg.Caption != "":
		caption.Class = ContentText
		return caption, true
	}

	return Content{}, false
}
