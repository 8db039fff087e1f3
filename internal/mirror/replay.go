package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/telemetry"
	"github.com/mixelka/chatmirror/pkg/models"
)

// Snippet one version of a message. Seq 0 is the original.
type Snippet struct {
	Seq     int
	At      time.Time
	Content models.Content
}

// Replayer rebuilds the timeline of a message on request
type Replayer struct {
	*Mirror
}

// NewReplayer creates a history replayer on top of the mirror core
func NewReplayer(m *Mirror) *Replayer {
	return &Replayer{Mirror: m}
}

// Replay returns the original followed by every recorded edit.
// Versions that cannot be fetched are skipped.
func (r *Replayer) Replay(ctx context.Context, key models.MessageKey) ([]Snippet, error) {
	logger := r.logger.With("event_id", telemetry.GetCorrelation(ctx), "key", key.String())

	rec, err := r.store.GetProvenance(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProvenanceMissing
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get provenance", Key: key, Err: err}
	}

	edits, err := r.store.ListEdits(ctx, key)
	if err != nil {
		return nil, &PersistenceError{Op: "list edits", Key: key, Err: err}
	}

	type version struct {
		seq        int
		at         time.Time
		channelID  int64
		mirroredID int
	}
	versions := make([]version, 0, len(edits)+1)
	versions = append(versions, version{channelID: rec.ChannelID, mirroredID: rec.MirroredID, at: rec.CreatedAt})
	for _, e := range edits {
		versions = append(versions, version{seq: e.Seq, at: e.EditedAt, channelID: e.ChannelID, mirroredID: e.MirroredID})
	}

	snippets := make([]Snippet, 0, len(versions))
	for _, v := range versions {
		content, err := r.transport.Retrieve(ctx, v.channelID, v.mirroredID)
		if err != nil {
			if ctx.Err() != nil {
				return snippets, ctx.Err()
			}
			logger.Warn("skipping history version", "seq", v.seq, "channel_id", v.channelID, "error", err)
			continue
		}
		snippets = append(snippets, Snippet{Seq: v.seq, At: v.at, Content: content})
	}
	return snippets, nil
}
