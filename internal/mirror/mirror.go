// Package mirror copies inbound messages into storage channels and
// correlates later edit and delete events back to those copies.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/mixelka/chatmirror/internal/channels"
	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/telemetry"
	"github.com/mixelka/chatmirror/pkg/models"
)

// DefaultAttempts delivery attempts against the primary destination
const DefaultAttempts = 3

// Transport outbound delivery primitive
type Transport interface {
	// Send delivers content to a channel and returns the new message id
	Send(ctx context.Context, destination int64, content models.Content) (int, error)
	// Retrieve returns the content of a mirrored message or ErrNotFound
	Retrieve(ctx context.Context, source int64, messageID int) (models.Content, error)
	// Notify sends a notice to the account owner
	Notify(ctx context.Context, accountID int64, notice Notice) error
}

// Store persistence used by the core
type Store interface {
	PutProvenance(ctx context.Context, rec *models.ProvenanceRecord) error
	GetProvenance(ctx context.Context, key models.MessageKey) (*models.ProvenanceRecord, error)
	AppendEdit(ctx context.Context, entry *models.EditHistoryEntry) error
	ListEdits(ctx context.Context, key models.MessageKey) ([]*models.EditHistoryEntry, error)
	IncrementCounter(ctx context.Context, accountID int64, counter models.Counter) error
	TouchActivity(ctx context.Context, accountID, fromID, toID int64, at time.Time) error
}

// Accounts resolves the account of an event, creating it on first sight
type Accounts interface {
	Ensure(ctx context.Context, accountID int64) (*models.Account, error)
}

// Billing read-only subscription state
type Billing interface {
	IsSubscribed(ctx context.Context, accountID int64) (bool, error)
}

// Message inbound message event
type Message struct {
	AccountID int64
	ChatID    int64
	MessageID int
	From      models.Person
	To        models.Person
	Date      time.Time
	Content   models.Content
}

// Key returns the original message identity
func (m *Message) Key() models.MessageKey {
	return models.MessageKey{ChatID: m.ChatID, MessageID: m.MessageID}
}

// Deps dependencies of the mirror core
type Deps struct {
	Store     Store
	Accounts  Accounts
	Billing   Billing // nil disables subscription gating
	Transport Transport
	Channels  *channels.Registry
	Logger    *slog.Logger
}

// Option configures the mirror core
type Option func(*Mirror)

// WithBackOff sets the pause policy between delivery attempts
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(m *Mirror) { m.newBackOff = fn }
}

// WithRetryDelay sets the first pause between attempts; later pauses double
func WithRetryDelay(d time.Duration) Option {
	return func(m *Mirror) {
		m.newBackOff = func() backoff.BackOff { return exponential(d) }
	}
}

// WithLocation sets the time zone of header timestamps
func WithLocation(loc *time.Location) Option {
	return func(m *Mirror) { m.location = loc }
}

// Mirror delivers annotated copies and records their provenance
type Mirror struct {
	store      Store
	accounts   Accounts
	billing    Billing
	transport  Transport
	channels   *channels.Registry
	logger     *slog.Logger
	location   *time.Location
	attempts   int
	newBackOff func() backoff.BackOff
	inflight   singleflight.Group
}

// New creates the mirror core
func New(deps Deps, opts ...Option) *Mirror {
	m := &Mirror{
		store:      deps.Store,
		accounts:   deps.Accounts,
		billing:    deps.Billing,
		transport:  deps.Transport,
		channels:   deps.Channels,
		logger:     deps.Logger.With("component", "mirror"),
		location:   time.UTC,
		attempts:   DefaultAttempts,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultBackOff() backoff.BackOff {
	return exponential(time.Second)
}

func exponential(initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// Mirror copies an inbound message to its destination and records provenance.
// A re-delivered message returns the existing record without sending again.
func (m *Mirror) Mirror(ctx context.Context, msg Message) (*models.ProvenanceRecord, error) {
	key := msg.Key()

	v, err, _ := m.inflight.Do(key.String(), func() (any, error) {
		return m.mirror(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ProvenanceRecord), nil
}

func (m *Mirror) mirror(ctx context.Context, msg Message) (*models.ProvenanceRecord, error) {
	key := msg.Key()
	logger := m.logger.With("event_id", telemetry.GetCorrelation(ctx), "key", key.String())

	existing, err := m.store.GetProvenance(ctx, key)
	if err == nil {
		logger.Debug("message already mirrored")
		return existing, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, &PersistenceError{Op: "get provenance", Key: key, Err: err}
	}

	account, err := m.accounts.Ensure(ctx, msg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	if account.IsBanned {
		return nil, ErrAccountBanned
	}

	class := msg.Content.Class
	destination := m.channels.DestinationFor(class, account)

	text, entities := Header{Kind: HeaderMessage, From: msg.From, To: msg.To, At: msg.Date}.Render(m.location)
	content := Annotate(msg.Content, text, entities)

	channelID, mirroredID, err := m.deliver(ctx, destination, content)
	if err != nil {
		telemetry.ObserveMirror(string(class), "failed")
		return nil, err
	}

	rec := &models.ProvenanceRecord{
		ChatID:       msg.ChatID,
		MessageID:    msg.MessageID,
		ChannelID:    channelID,
		MirroredID:   mirroredID,
		AccountID:    msg.AccountID,
		ContentClass: class,
	}
	err = retryOnce(func() error { return m.store.PutProvenance(ctx, rec) })
	if errors.Is(err, database.ErrAlreadyExists) {
		// Lost a race with a concurrent delivery of the same message
		telemetry.ObserveMirror(string(class), "duplicate")
		return m.store.GetProvenance(ctx, key)
	}
	if err != nil {
		telemetry.ObserveMirror(string(class), "unrecorded")
		return nil, &PersistenceError{Op: "put provenance", Key: key, Err: err}
	}
	telemetry.ObserveMirror(string(class), "mirrored")

	if err := m.store.IncrementCounter(ctx, msg.AccountID, models.CounterActive); err != nil {
		logger.Error("failed to increment active counter", "error", err)
	}
	if err := m.store.TouchActivity(ctx, msg.AccountID, msg.From.ID, msg.To.ID, msg.Date); err != nil {
		logger.Warn("failed to record activity", "error", err)
	}

	logger.Debug("message mirrored", "class", class, "channel_id", channelID, "mirrored_id", mirroredID)
	return rec, nil
}

// deliver sends content to destination with retries, then once to the fallback.
// Returns the channel that accepted the message.
func (m *Mirror) deliver(ctx context.Context, destination int64, content models.Content) (int64, int, error) {
	logger := m.logger.With("event_id", telemetry.GetCorrelation(ctx), "destination", destination)

	attempt := 0
	op := func() (int, error) {
		attempt++
		id, err := m.transport.Send(ctx, destination, content)
		if err != nil && ctx.Err() != nil {
			return 0, backoff.Permanent(err)
		}
		return id, err
	}
	notify := func(err error, pause time.Duration) {
		logger.Warn("delivery attempt failed", "attempt", attempt, "max_attempts", m.attempts, "retry_in", pause, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(m.attempts-1)), ctx)
	id, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err == nil {
		return destination, id, nil
	}

	fallback := m.channels.Fallback()
	logger.Warn("primary destination exhausted, using fallback", "attempts", attempt, "fallback", fallback, "error", err)
	telemetry.ObserveFallback()

	id, ferr := m.transport.Send(ctx, fallback, content)
	if ferr != nil {
		logger.Error("fallback delivery failed", "fallback", fallback, "error", ferr)
		return 0, 0, &MirrorFailure{Destination: destination, Fallback: fallback, Attempts: attempt, Err: ferr}
	}
	return fallback, id, nil
}

// notifies reports whether the owner gets notices of kind, honouring billing
func (m *Mirror) notifies(ctx context.Context, account *models.Account, kind models.NotificationKind) bool {
	if !account.Notifies(kind) {
		return false
	}
	if m.billing == nil {
		return true
	}
	ok, err := m.billing.IsSubscribed(ctx, account.TelegramID)
	if err != nil {
		m.logger.Warn("failed to check subscription", "account_id", account.TelegramID, "error", err)
		return false
	}
	return ok
}

// retryOnce runs fn again after a failure that is not a duplicate
func retryOnce(fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, database.ErrAlreadyExists) {
		return err
	}
	return fn()
}
