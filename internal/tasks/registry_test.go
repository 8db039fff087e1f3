package tasks

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart_ReplacesRunningTask(t *testing.T) {
	r := NewRegistry[int64](discardLogger())
	defer r.StopAll()

	var active, maxActive atomic.Int32
	firstStopped := make(chan struct{})
	secondRunning := make(chan struct{})

	loop := func(onExit func(), onStart func()) Func {
		return func(ctx context.Context) {
			n := active.Add(1)
			for {
				cur := maxActive.Load()
				if n <= cur || maxActive.CompareAndSwap(cur, n) {
					break
				}
			}
			if onStart != nil {
				onStart()
			}
			<-ctx.Done()
			active.Add(-1)
			if onExit != nil {
				onExit()
			}
		}
	}

	r.Start(1, loop(func() { close(firstStopped) }, nil))
	require.Eventually(t, func() bool { return active.Load() == 1 }, time.Second, time.Millisecond)

	r.Start(1, loop(nil, func() { close(secondRunning) }))

	select {
	case <-firstStopped:
	case <-time.After(time.Second):
		t.Fatal("first task was not cancelled")
	}
	select {
	case <-secondRunning:
	case <-time.After(time.Second):
		t.Fatal("second task did not start")
	}

	assert.Equal(t, int32(1), maxActive.Load())
	assert.True(t, r.Running(1))
	assert.Equal(t, 1, r.Len())
}

func TestStop_WaitsForTask(t *testing.T) {
	r := NewRegistry[string](discardLogger())

	var exited atomic.Bool
	started := make(chan struct{})
	r.Start("spam", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		exited.Store(true)
	})
	<-started

	r.Stop("spam")
	assert.True(t, exited.Load())
	assert.False(t, r.Running("spam"))

	// Stopping an unknown key is a no-op
	r.Stop("missing")
}

func TestTaskPanicIsContained(t *testing.T) {
	r := NewRegistry[int](discardLogger())
	defer r.StopAll()

	r.Start(1, func(ctx context.Context) { panic("boom") })
	require.Eventually(t, func() bool { return !r.Running(1) }, time.Second, time.Millisecond)

	done := make(chan struct{})
	r.Start(2, func(ctx context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry stopped running tasks after a panic")
	}
}

func TestFinishedTaskIsForgotten(t *testing.T) {
	r := NewRegistry[int](discardLogger())
	defer r.StopAll()

	r.Start(7, func(ctx context.Context) {})
	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
}

func TestStopAll(t *testing.T) {
	r := NewRegistry[int](discardLogger())

	var started, exited atomic.Int32
	for i := 0; i < 5; i++ {
		r.Start(i, func(ctx context.Context) {
			started.Add(1)
			<-ctx.Done()
			exited.Add(1)
		})
	}
	require.Eventually(t, func() bool { return started.Load() == 5 }, time.Second, time.Millisecond)

	r.StopAll()
	assert.Equal(t, int32(5), exited.Load())
	assert.Zero(t, r.Len())
}
