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

func deletionOf(msg Message, ids ...int) Deletion {
	return Deletion{
		AccountID:  msg.AccountID,
		ChatID:     msg.ChatID,
		MessageIDs: ids,
		Actor:      msg.From,
		At:         msg.Date.Add(time.Hour),
	}
}

func TestOnDelete_ReturnsLatestEdit(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	edits := NewEditRecorder(f.mirror)
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "original")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, edits.OnEdit(ctx, editOf(msg, "first edit", msg.Date.Add(time.Minute))))
	require.NoError(t, edits.OnEdit(ctx, editOf(msg, "second edit", msg.Date.Add(2*time.Minute))))

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	history, err := f.store.ListEdits(ctx, msg.Key())
	require.NoError(t, err)
	assert.Len(t, history, 2)

	notices := f.transport.notices
	last := notices[len(notices)-1]
	assert.Equal(t, NoticeDeleted, last.Kind)
	require.NotNil(t, last.Content)
	assert.Contains(t, last.Content.Text, "second edit")
	assert.Equal(t, 1, f.store.counter(1, models.CounterDeleted))
	assert.Len(t, f.transport.retrieves, 1)
}

func TestOnDelete_FallsBackToOlderVersion(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	edits := NewEditRecorder(f.mirror)
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "original")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)
	require.NoError(t, edits.OnEdit(ctx, editOf(msg, "first edit", msg.Date.Add(time.Minute))))
	require.NoError(t, edits.OnEdit(ctx, editOf(msg, "second edit", msg.Date.Add(2*time.Minute))))

	history, err := f.store.ListEdits(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, history, 2)
	f.transport.forget(history[1].ChannelID, history[1].MirroredID)

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	last := f.transport.notices[len(f.transport.notices)-1]
	assert.Equal(t, NoticeDeleted, last.Kind)
	require.NotNil(t, last.Content)
	assert.Contains(t, last.Content.Text, "first edit")
	assert.Equal(t, []channelMessage{
		{history[1].ChannelID, history[1].MirroredID},
		{history[0].ChannelID, history[0].MirroredID},
	}, f.transport.retrieves)
}

func TestOnDelete_OriginalProbedAtOwnChannelWhenEditsAreGone(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	edits := NewEditRecorder(f.mirror)
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "original")
	rec, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)
	k := len(f.registry.AllCandidates())
	for i := 0; i < k+2; i++ {
		require.NoError(t, edits.OnEdit(ctx, editOf(msg, "edit", msg.Date.Add(time.Duration(i+1)*time.Minute))))
	}
	history, err := f.store.ListEdits(ctx, msg.Key())
	require.NoError(t, err)
	for _, e := range history {
		f.transport.forget(e.ChannelID, e.MirroredID)
	}

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	last := f.transport.notices[len(f.transport.notices)-1]
	assert.Equal(t, NoticeDeleted, last.Kind)
	require.NotNil(t, last.Content)
	assert.Contains(t, last.Content.Text, "original")
	require.Len(t, f.transport.retrieves, k)
	assert.Equal(t, channelMessage{rec.ChannelID, rec.MirroredID}, f.transport.retrieves[k-1])
}

func TestOnDelete_UntrackedMessage(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 404, "")
	assert.NotPanics(t, func() {
		assert.NoError(t, prober.OnDelete(context.Background(), deletionOf(msg, 404)))
	})

	require.Len(t, f.transport.notices, 1)
	assert.Equal(t, NoticeDeleteUnavailable, f.transport.notices[0].Kind)
	assert.Nil(t, f.transport.notices[0].Content)
	assert.Empty(t, f.transport.retrieves)
	assert.Zero(t, f.store.counter(1, models.CounterDeleted))
}

func TestOnDelete_BoundedProbes(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "gone")
	rec, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)
	f.transport.forget(rec.ChannelID, rec.MirroredID)

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	k := len(f.registry.AllCandidates())
	assert.LessOrEqual(t, len(f.transport.retrieves), k)
	assert.Equal(t, k, len(f.transport.retrieves))
	assert.Equal(t, rec.ChannelID, f.transport.retrieves[0].channelID)

	require.Len(t, f.transport.notices, 1)
	assert.Equal(t, NoticeDeleteUnavailable, f.transport.notices[0].Kind)
	assert.Equal(t, 1, f.store.counter(1, models.CounterDeleted))
}

func TestOnDelete_BoundedProbesWithEdits(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	edits := NewEditRecorder(f.mirror)
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "v1")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, edits.OnEdit(ctx, editOf(msg, "edit", msg.Date.Add(time.Duration(i+1)*time.Minute))))
	}

	f.transport.failRetrieve = func(int64, int) error { return ErrNotFound }
	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	assert.Equal(t, len(f.registry.AllCandidates()), len(f.transport.retrieves))
}

func TestOnDelete_FindsCopyOnAnotherChannel(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "moved")
	rec, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)

	// The copy only exists on the history sink under the same id
	content := f.transport.stored[channelMessage{rec.ChannelID, rec.MirroredID}]
	f.transport.forget(rec.ChannelID, rec.MirroredID)
	f.transport.stored[channelMessage{-300, rec.MirroredID}] = content

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))

	require.Len(t, f.transport.notices, 1)
	assert.Equal(t, NoticeDeleted, f.transport.notices[0].Kind)
	assert.Contains(t, f.transport.notices[0].Content.Text, "moved")
}

func TestOnDelete_BatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t, newAccount(1, 0))
	ctx := context.Background()
	prober := NewProber(f.mirror)

	for i := 1; i <= 2; i++ {
		_, err := f.mirror.Mirror(ctx, textMessage(1, 50, i, "m"))
		require.NoError(t, err)
	}
	f.transport.failRetrieve = func(_ int64, id int) error {
		if id == 1001 {
			return errors.New("network")
		}
		return nil
	}

	require.NoError(t, prober.OnDelete(ctx, deletionOf(textMessage(1, 50, 0, ""), 1, 2, 3)))

	require.Len(t, f.transport.notices, 3)
	kinds := []NoticeKind{f.transport.notices[0].Kind, f.transport.notices[1].Kind, f.transport.notices[2].Kind}
	assert.Equal(t, []NoticeKind{NoticeDeleteUnavailable, NoticeDeleted, NoticeDeleteUnavailable}, kinds)
	assert.Equal(t, 2, f.store.counter(1, models.CounterDeleted))
}

func TestOnDelete_NotificationsDisabledStillCounts(t *testing.T) {
	acc := newAccount(1, 0)
	acc.DeleteNotifications = false
	f := newFixture(t, acc)
	ctx := context.Background()
	prober := NewProber(f.mirror)

	msg := textMessage(1, 50, 1, "m")
	_, err := f.mirror.Mirror(ctx, msg)
	require.NoError(t, err)

	require.NoError(t, prober.OnDelete(ctx, deletionOf(msg, 1)))
	assert.Empty(t, f.transport.notices)
	assert.Empty(t, f.transport.retrieves)
	assert.Equal(t, 1, f.store.counter(1, models.CounterDeleted))
}
