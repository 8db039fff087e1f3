// Package channels holds the destination channel configuration and the
// assignment of accounts to the rotating text pool.
package channels

import (
	"errors"

	"github.com/mixelka/chatmirror/pkg/models"
)

// Pool configuration of destination channels
type Pool struct {
	Text      []int64 // Rotating pool for text and captions
	Voice     int64
	Video     int64
	VideoNote int64
	Photo     int64
	History   int64 // Edit history sink
	Fallback  int64 // Default destination when the primary one keeps failing
}

// Registry single source of truth for routing and recovery probing
type Registry struct {
	text     []int64
	media    map[models.ContentClass]int64
	history  int64
	fallback int64
	all      []int64
}

// NewRegistry validates the pool and builds a registry
func NewRegistry(p Pool) (*Registry, error) {
	if len(p.Text) == 0 {
		return nil, errors.New("text channel pool is empty")
	}
	for _, id := range p.Text {
		if id == 0 {
			return nil, errors.New("text channel pool contains a zero id")
		}
	}
	if p.History == 0 {
		return nil, errors.New("history channel is not set")
	}
	if p.Fallback == 0 {
		return nil, errors.New("fallback channel is not set")
	}

	r := &Registry{
		text: append([]int64(nil), p.Text...),
		media: map[models.ContentClass]int64{
			models.ContentVoice:     p.Voice,
			models.ContentVideo:     p.Video,
			models.ContentVideoNote: p.VideoNote,
			models.ContentPhoto:     p.Photo,
		},
		history:  p.History,
		fallback: p.Fallback,
	}

	seen := make(map[int64]bool)
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			r.all = append(r.all, id)
		}
	}
	for _, id := range r.text {
		add(id)
	}
	for _, class := range models.ContentClasses {
		add(r.media[class])
	}
	add(r.history)
	add(r.fallback)

	return r, nil
}

// PoolSize returns the size of the rotating text pool
func (r *Registry) PoolSize() int {
	return len(r.text)
}

// TextChannel returns the pool channel at index, wrapping out-of-range values
func (r *Registry) TextChannel(index int) int64 {
	n := len(r.text)
	return r.text[((index%n)+n)%n]
}

// DestinationFor returns the channel a message of the given class is mirrored to.
// Media without a dedicated channel goes to the account's pool channel.
func (r *Registry) DestinationFor(class models.ContentClass, account *models.Account) int64 {
	switch class {
	case models.ContentVoice, models.ContentVideo, models.ContentVideoNote, models.ContentPhoto:
		if id := r.media[class]; id != 0 {
			return id
		}
		return r.TextChannel(account.ChannelIndex)
	case models.ContentText:
		return r.TextChannel(account.ChannelIndex)
	}
	return r.fallback
}

// HistorySink returns the edit history channel
func (r *Registry) HistorySink() int64 {
	return r.history
}

// Fallback returns the default fallback destination
func (r *Registry) Fallback() int64 {
	return r.fallback
}

// AllCandidates returns every registered channel once, in a stable order
func (r *Registry) AllCandidates() []int64 {
	return append([]int64(nil), r.all...)
}

// Candidates returns the probe order for a message mirrored to own:
// own first, then every other registered channel. The list is never
// longer than AllCandidates.
func (r *Registry) Candidates(own int64) []int64 {
	out := make([]int64, 0, len(r.all))
	out = append(out, own)
	for _, id := range r.all {
		if len(out) == len(r.all) {
			break
		}
		if id != own {
			out = append(out, id)
		}
	}
	return out
}
