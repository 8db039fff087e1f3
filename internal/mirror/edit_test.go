package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/chatmirror/pkg/models"
)

func editOf(msg Message, text string, at time.Time) Edit {
	return Edit{
		AccountID: msg.AccountID,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Editor:    msg.From,
		To:        msg.To,
		Date:      at,
		Content:   models.Content{Class: models.ContentText, Text: text},
	}
}

func TestOnEdit_UntrackedMessage(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	rec := NewEditRecorder(f.mirror)

	err := rec.OnEdit(context.Background(), editOf(textMessage(1, 50, 99, ""), "new", time.Now()))

	assert.ErrorIs(t, err, ErrProvenanceMissing)
	assert.Empty(t, f.transport.sends)
	assert.Empty(t, f.transport.notices)
	assert.Zero(t, f.store.counter(1, models.CounterEdited))
}

func TestOnEdit_RecordsOrderedHistory(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	rec := NewEditRecorder(f.mirror)

	msg := textMessage(1, 50, 1, "v1")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)

	base := msg.Date
	require.NoError(t, rec.OnEdit(ctx, editOf(msg, "v2", base.Add(time.Minute))))
	require.NoError(t, rec.OnEdit(ctx, editOf(msg, "v3", base.Add(2*time.Minute))))

	edits, err := f.store.ListEdits(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, 1, edits[0].Seq)
	assert.Equal(t, 2, edits[1].Seq)
	assert.False(t, edits[1].EditedAt.Before(edits[0].EditedAt))
	for _, e := range edits {
		assert.Equal(t, int64(-300), e.ChannelID)
	}

	assert.Equal(t, 2, f.transport.sendsTo(-300))
	assert.Equal(t, 2, f.store.counter(1, models.CounterEdited))

	require.Len(t, f.transport.notices, 2)
	assert.Equal(t, NoticeEdited, f.transport.notices[0].Kind)
	assert.Equal(t, msg.Key(), f.transport.notices[0].Key)
	assert.Equal(t, "Alice", f.transport.notices[0].Actor.Name)
}

func TestOnEdit_DeliveryFailureStillCountsAndNotifies(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	rec := NewEditRecorder(f.mirror)

	msg := textMessage(1, 50, 1, "v1")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)

	f.transport.failSend = func(int64) error { return errors.New("down") }
	require.NoError(t, rec.OnEdit(ctx, editOf(msg, "v2", time.Now())))

	edits, err := f.store.ListEdits(ctx, msg.Key())
	require.NoError(t, err)
	assert.Empty(t, edits)
	assert.Equal(t, 1, f.store.counter(1, models.CounterEdited))

	require.Len(t, f.transport.notices, 1)
	assert.Equal(t, NoticeEditUnavailable, f.transport.notices[0].Kind)
}

func TestOnEdit_NotificationsDisabled(t *testing.T) {
	acc := newAccount(1, 0)
	acc.EditNotifications = false
	f := newFixture(t, acc)
	ctx := context.Background()
	rec := NewEditRecorder(f.mirror)

	msg := textMessage(1, 50, 1, "v1")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)

	require.NoError(t, rec.OnEdit(ctx, editOf(msg, "v2", time.Now())))
	assert.Zero(t, f.transport.sendsTo(-300))
	assert.Empty(t, f.transport.notices)
}

type fakeBilling map[int64]bool

func (b fakeBilling) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	return b[accountID], nil
}

func TestOnEdit_RequiresSubscriptionWhenBillingSet(t *testing.T) {
	f := newFixture(t, newAccount(1, 0), newAccount(2, 0))
	f.mirror.billing = fakeBilling{2: true}
	ctx := context.Background()
	rec := NewEditRecorder(f.mirror)

	for _, account := range []int64{1, 2} {
		msg := textMessage(account, 50, int(account), "v1")
		_, err := f.mirror.Mirror(ctx, msg)
		require.NoError(t, err)
		require.NoError(t, rec.OnEdit(ctx, editOf(msg, "v2", time.Now())))
	}

	require.Len(t, f.transport.notices, 1)
	assert.Equal(t, models.MessageKey{ChatID: 50, MessageID: 2}, f.transport.notices[0].Key)
}
