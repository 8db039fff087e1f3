package mirror

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/chatmirror/internal/channels"
	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/pkg/models"
)

var testPool = channels.Pool{
	Text:      []int64{-101, -102, -103},
	Voice:     -201,
	Video:     -202,
	VideoNote: -203,
	Photo:     -204,
	History:   -300,
	Fallback:  -400,
}

type memStore struct {
	mu         sync.Mutex
	provenance map[models.MessageKey]*models.ProvenanceRecord
	edits      map[models.MessageKey][]*models.EditHistoryEntry
	counters   map[int64]map[models.Counter]int
	puts       int
	putErr     error
}

func newMemStore() *memStore {
	return &memStore{
		provenance: make(map[models.MessageKey]*models.ProvenanceRecord),
		edits:      make(map[models.MessageKey][]*models.EditHistoryEntry),
		counters:   make(map[int64]map[models.Counter]int),
	}
}

func (s *memStore) PutProvenance(ctx context.Context, rec *models.ProvenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	if _, ok := s.provenance[rec.Key()]; ok {
		return database.ErrAlreadyExists
	}
	cp := *rec
	cp.CreatedAt = time.Now().UTC()
	s.provenance[rec.Key()] = &cp
	return nil
}

func (s *memStore) GetProvenance(ctx context.Context, key models.MessageKey) (*models.ProvenanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.provenance[key]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) AppendEdit(ctx context.Context, entry *models.EditHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.Key()
	cp := *entry
	cp.Seq = len(s.edits[key]) + 1
	s.edits[key] = append(s.edits[key], &cp)
	return nil
}

func (s *memStore) ListEdits(ctx context.Context, key models.MessageKey) ([]*models.EditHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.EditHistoryEntry(nil), s.edits[key]...), nil
}

func (s *memStore) IncrementCounter(ctx context.Context, accountID int64, counter models.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[accountID] == nil {
		s.counters[accountID] = make(map[models.Counter]int)
	}
	s.counters[accountID][counter]++
	return nil
}

func (s *memStore) TouchActivity(ctx context.Context, accountID, fromID, toID int64, at time.Time) error {
	return nil
}

func (s *memStore) counter(accountID int64, c models.Counter) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[accountID][c]
}

func (s *memStore) records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.provenance)
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
}

func newMemAccounts(accounts ...*models.Account) *memAccounts {
	m := &memAccounts{accounts: make(map[int64]*models.Account)}
	for _, a := range accounts {
		m.accounts[a.TelegramID] = a
	}
	return m
}

func (m *memAccounts) Ensure(ctx context.Context, accountID int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		cp := *a
		return &cp, nil
	}
	a := newAccount(accountID, 0)
	m.accounts[accountID] = a
	cp := *a
	return &cp, nil
}

func newAccount(id int64, index int) *models.Account {
	return &models.Account{
		TelegramID:           id,
		ChannelIndex:         index,
		NotificationsEnabled: true,
		EditNotifications:    true,
		DeleteNotifications:  true,
	}
}

type sent struct {
	destination int64
	content     models.Content
}

type channelMessage struct {
	channelID int64
	messageID int
}

type fakeTransport struct {
	mu           sync.Mutex
	nextID       int
	sends        []sent
	stored       map[channelMessage]models.Content
	retrieves    []channelMessage
	notices      []Notice
	failSend     func(destination int64) error
	failRetrieve func(channelID int64, messageID int) error
	sendDelay    time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: 1000, stored: make(map[channelMessage]models.Content)}
}

func (t *fakeTransport) Send(ctx context.Context, destination int64, content models.Content) (int, error) {
	if t.sendDelay > 0 {
		time.Sleep(t.sendDelay)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sent{destination: destination, content: content})
	if t.failSend != nil {
		if err := t.failSend(destination); err != nil {
			return 0, err
		}
	}
	t.nextID++
	t.stored[channelMessage{destination, t.nextID}] = content
	return t.nextID, nil
}

func (t *fakeTransport) Retrieve(ctx context.Context, source int64, messageID int) (models.Content, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retrieves = append(t.retrieves, channelMessage{source, messageID})
	if t.failRetrieve != nil {
		if err := t.failRetrieve(source, messageID); err != nil {
			return models.Content{}, err
		}
	}
	c, ok := t.stored[channelMessage{source, messageID}]
	if !ok {
		return models.Content{}, ErrNotFound
	}
	return c, nil
}

func (t *fakeTransport) Notify(ctx context.Context, accountID int64, notice Notice) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notices = append(t.notices, notice)
	return nil
}

func (t *fakeTransport) sendsTo(destination int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sends {
		if s.destination == destination {
			n++
		}
	}
	return n
}

// forget drops a stored message as if it was removed from the channel
func (t *fakeTransport) forget(channelID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stored, channelMessage{channelID, messageID})
}

type fixture struct {
	store     *memStore
	accounts  *memAccounts
	transport *fakeTransport
	registry  *channels.Registry
	mirror    *Mirror
}

func newFixture(t *testing.T, accounts ...*models.Account) *fixture {
	t.Helper()

	registry, err := channels.NewRegistry(testPool)
	require.NoError(t, err)

	f := &fixture{
		store:     newMemStore(),
		accounts:  newMemAccounts(accounts...),
		transport: newFakeTransport(),
		registry:  registry,
	}
	f.mirror = New(Deps{
		Store:     f.store,
		Accounts:  f.accounts,
		Transport: f.transport,
		Channels:  registry,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	return f
}

func textMessage(accountID, chatID int64, id int, text string) Message {
	return Message{
		AccountID: accountID,
		ChatID:    chatID,
		MessageID: id,
		From:      models.Person{ID: chatID, Name: "Alice"},
		To:        models.Person{ID: accountID, Name: "Bob"},
		Date:      time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC),
		Content:   models.Content{Class: models.ContentText, Text: text},
	}
}
