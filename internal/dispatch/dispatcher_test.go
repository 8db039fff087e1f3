package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/chatmirror/internal/tasks"
	"github.com/mixelka/chatmirror/internal/telemetry"
)

func newTestDispatcher(t *testing.T, queueSize int) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(tasks.NewRegistry[int64](logger), queueSize, logger)
	t.Cleanup(d.Shutdown)
	return d
}

func TestSubmit_PreservesPerAccountOrder(t *testing.T) {
	d := newTestDispatcher(t, 16)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		require.True(t, d.Submit(ctx, 1, "message", func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestSubmit_FailureInOneAccountDoesNotAffectAnother(t *testing.T) {
	d := newTestDispatcher(t, 4)
	ctx := context.Background()

	release := make(chan struct{})
	bDone := make(chan struct{})
	aAfter := make(chan struct{})

	// Account A: a panicking handler, then an erroring one, then a normal one
	d.Submit(ctx, 1, "message", func(ctx context.Context) error {
		<-release
		panic("injected failure")
	})
	d.Submit(ctx, 1, "edit", func(ctx context.Context) error {
		return errors.New("injected error")
	})
	d.Submit(ctx, 1, "delete", func(ctx context.Context) error {
		close(aAfter)
		return nil
	})

	// Account B completes while A is still pending
	d.Submit(ctx, 2, "message", func(ctx context.Context) error {
		close(bDone)
		return nil
	})

	select {
	case <-bDone:
	case <-time.After(time.Second):
		t.Fatal("account B blocked by account A")
	}

	close(release)
	select {
	case <-aAfter:
	case <-time.After(time.Second):
		t.Fatal("account A worker died after a panic")
	}
}

func TestSubmit_PanicIsCounted(t *testing.T) {
	telemetry.Init()
	d := newTestDispatcher(t, 1)

	done := make(chan struct{})
	d.Submit(context.Background(), 9, "message", func(ctx context.Context) error {
		panic("boom")
	})
	d.Submit(context.Background(), 9, "message", func(ctx context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not continue")
	}
}

func TestSubmit_CarriesCorrelationID(t *testing.T) {
	d := newTestDispatcher(t, 1)

	ids := make(chan string, 1)
	d.Submit(context.Background(), 3, "message", func(ctx context.Context) error {
		ids <- telemetry.GetCorrelation(ctx)
		return nil
	})
	select {
	case id := <-ids:
		assert.NotEmpty(t, id)
	case <-time.After(time.Second):
		t.Fatal("handler not run")
	}
}

func TestSubmit_FullQueueDropsWithoutBlockingOthers(t *testing.T) {
	d := newTestDispatcher(t, 1)

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	d.Submit(context.Background(), 5, "first", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started
	// Fills the single slot
	require.True(t, d.Submit(context.Background(), 5, "second", func(ctx context.Context) error { return nil }))

	submitted := make(chan bool, 1)
	go func() {
		submitted <- d.Submit(context.Background(), 5, "third", func(ctx context.Context) error { return nil })
	}()
	select {
	case ok := <-submitted:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full queue")
	}

	done := make(chan struct{})
	require.True(t, d.Submit(context.Background(), 6, "message", func(ctx context.Context) error {
		close(done)
		return nil
	}))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("other account was held up")
	}
}

func TestSubmit_DropsWhenContextDone(t *testing.T) {
	d := newTestDispatcher(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, d.Submit(ctx, 5, "message", func(ctx context.Context) error { return nil }))
}
