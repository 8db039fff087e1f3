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

// Deletion batch of messages removed from one chat
type Deletion struct {
	AccountID  int64
	ChatID     int64
	MessageIDs []int
	Actor      models.Person
	At         time.Time
}

// Prober recovers deleted messages from their mirrored copies
type Prober struct {
	*Mirror
}

// NewProber creates a delete recovery prober on top of the mirror core
func NewProber(m *Mirror) *Prober {
	return &Prober{Mirror: m}
}

// OnDelete handles every id of the batch independently
func (p *Prober) OnDelete(ctx context.Context, d Deletion) error {
	account, err := p.accounts.Ensure(ctx, d.AccountID)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}
	notify := p.notifies(ctx, account, models.NotificationDelete)

	var errs []error
	for _, id := range d.MessageIDs {
		key := models.MessageKey{ChatID: d.ChatID, MessageID: id}
		if err := p.recover(ctx, d, key, notify); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Prober) recover(ctx context.Context, d Deletion, key models.MessageKey, notify bool) error {
	logger := p.logger.With("event_id", telemetry.GetCorrelation(ctx), "key", key.String())
	notice := Notice{Kind: NoticeDeleteUnavailable, Actor: d.Actor, At: d.At, Key: key}

	rec, err := p.store.GetProvenance(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		telemetry.ObserveRecovery("untracked")
		logger.Info("deleted message was never mirrored")
		if notify {
			p.notify(ctx, d.AccountID, notice)
		}
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "get provenance", Key: key, Err: err}
	}

	defer func() {
		if err := p.store.IncrementCounter(ctx, d.AccountID, models.CounterDeleted); err != nil {
			logger.Error("failed to increment deleted counter", "error", err)
		}
	}()

	if !notify {
		telemetry.ObserveRecovery("muted")
		return nil
	}

	content, err := p.recoverContent(ctx, rec)
	switch {
	case err == nil:
		telemetry.ObserveRecovery("recovered")
		notice.Kind = NoticeDeleted
		notice.Content = &content
	case errors.Is(err, ErrRecoveryNotFound):
		telemetry.ObserveRecovery("not_found")
		logger.Warn("deleted message not found in any channel")
	default:
		telemetry.ObserveRecovery("failed")
		logger.Error("failed to recover deleted message", "error", err)
	}

	p.notify(ctx, d.AccountID, notice)
	return nil
}

// snapshot one stored copy of a message version
type snapshot struct {
	channelID  int64
	mirroredID int
}

// recoverContent returns the most recent known version of the message.
// Every version is first tried at its own channel, newest first, with the
// original always included. The remaining probes scan the other channels
// for the original copy. The total never exceeds the number of registered
// channels.
func (p *Prober) recoverContent(ctx context.Context, rec *models.ProvenanceRecord) (models.Content, error) {
	key := rec.Key()
	budget := len(p.channels.AllCandidates())

	edits, err := p.store.ListEdits(ctx, key)
	if err != nil {
		p.logger.Warn("failed to list edits, probing the original only", "key", key.String(), "error", err)
	}

	// Newest edits first, capped so the original still fits
	var versions []snapshot
	for i := len(edits) - 1; i >= 0 && len(versions) < budget-1; i-- {
		versions = append(versions, snapshot{channelID: edits[i].ChannelID, mirroredID: edits[i].MirroredID})
	}
	original := snapshot{channelID: rec.ChannelID, mirroredID: rec.MirroredID}
	versions = append(versions, original)

	try := func(s snapshot) (models.Content, bool, error) {
		budget--
		content, err := p.probe(ctx, s.channelID, s.mirroredID)
		if err == nil {
			return content, true, nil
		}
		if ctx.Err() != nil {
			return models.Content{}, false, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			p.logger.Warn("probe failed", "key", key.String(), "channel_id", s.channelID, "error", err)
		}
		return models.Content{}, false, nil
	}

	for _, s := range versions {
		if budget == 0 {
			break
		}
		content, ok, err := try(s)
		if err != nil || ok {
			return content, err
		}
	}

	for _, candidate := range p.channels.Candidates(rec.ChannelID)[1:] {
		if budget == 0 {
			break
		}
		content, ok, err := try(snapshot{channelID: candidate, mirroredID: rec.MirroredID})
		if err != nil || ok {
			return content, err
		}
	}
	return models.Content{}, ErrRecoveryNotFound
}

// probe retrieves one mirrored message from one channel
func (p *Prober) probe(ctx context.Context, channelID int64, messageID int) (models.Content, error) {
	telemetry.ObserveProbe()
	return p.transport.Retrieve(ctx, channelID, messageID)
}

func (p *Prober) notify(ctx context.Context, accountID int64, notice Notice) {
	if err := p.transport.Notify(ctx, accountID, notice); err != nil {
		p.logger.Warn("failed to notify owner about deletion",
			"key", notice.Key.String(), "kind", notice.Kind.String(), "error", err)
	}
}
