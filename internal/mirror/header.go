package mirror

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/chatmirror/pkg/models"
)

// Telegram limits in UTF-16 code units
const (
	maxTextLength    = 4096
	maxCaptionLength = 1024
)

// HeaderKind selects the header wording
type HeaderKind int

const (
	HeaderMessage HeaderKind = iota
	HeaderEdit
)

// Header identifies who wrote a mirrored message, to whom and when
type Header struct {
	Kind HeaderKind
	From models.Person
	To   models.Person
	At   time.Time
}

// Render returns the header text and its link entities.
// Offsets are in UTF-16 code units, as Telegram counts them.
func (h Header) Render(loc *time.Location) (string, []tgmodels.MessageEntity) {
	if loc == nil {
		loc = time.UTC
	}

	var (
		b        strings.Builder
		entities []tgmodels.MessageEntity
		offset   int
	)
	write := func(s string) {
		b.WriteString(s)
		offset += utf16Len(s)
	}
	link := func(p models.Person) {
		name := displayName(p)
		entities = append(entities, tgmodels.MessageEntity{
			Type:   tgmodels.MessageEntityTypeTextLink,
			Offset: offset,
			Length: utf16Len(name),
			URL:    PersonURL(p),
		})
		write(name)
	}

	switch h.Kind {
	case HeaderEdit:
		link(h.From)
		write(" изменил сообщение для ")
		link(h.To)
	default:
		write("Сообщение от ")
		link(h.From)
		write(" для ")
		link(h.To)
	}
	write(", " + h.At.In(loc).Format("15:04:05") + "\n\n")

	return b.String(), entities
}

// PersonURL links to the person's profile
func PersonURL(p models.Person) string {
	if p.Username != "" {
		return "https://t.me/" + p.Username
	}
	return fmt.Sprintf("tg://user?id=%d", p.ID)
}

func displayName(p models.Person) string {
	switch {
	case strings.TrimSpace(p.Name) != "":
		return p.Name
	case p.Username != "":
		return "@" + p.Username
	}
	return fmt.Sprintf("id%d", p.ID)
}

// Annotate prepends the rendered header to the content. Every formatting
// span of the original is moved right by the header length so it still
// covers the same characters. A video note has no caption and carries
// the header alone.
func Annotate(c models.Content, header string, headerEntities []tgmodels.MessageEntity) models.Content {
	shift := utf16Len(header)

	out := models.Content{
		Class:    c.Class,
		FileID:   c.FileID,
		Text:     header + c.Text,
		Entities: make([]tgmodels.MessageEntity, 0, len(headerEntities)+len(c.Entities)),
	}
	out.Entities = append(out.Entities, headerEntities...)
	if c.Class == models.ContentVideoNote {
		out.Text = strings.TrimRight(header, "\n")
		return out
	}

	for _, e := range c.Entities {
		e.Offset += shift
		out.Entities = append(out.Entities, e)
	}
	return fit(out, lengthLimit(c.Class))
}

func lengthLimit(class models.ContentClass) int {
	switch class {
	case models.ContentVoice, models.ContentVideo, models.ContentPhoto:
		return maxCaptionLength
	}
	return maxTextLength
}

// fit cuts the text to limit UTF-16 units and clips entities to the cut
func fit(c models.Content, limit int) models.Content {
	if utf16Len(c.Text) <= limit {
		return c
	}

	var (
		units int
		cut   = len(c.Text)
	)
	for i, r := range c.Text {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			cut = i
			break
		}
		units += n
	}
	c.Text = c.Text[:cut]

	kept := c.Entities[:0:0]
	for _, e := range c.Entities {
		if e.Offset >= units {
			continue
		}
		if e.Offset+e.Length > units {
			e.Length = units - e.Offset
		}
		kept = append(kept, e)
	}
	c.Entities = kept
	return c
}

func utf16Len(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
