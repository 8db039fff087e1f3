// Package tasks tracks long-running background loops by key.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Func is the body of a task. It must return once ctx is cancelled.
type Func func(ctx context.Context)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry runs at most one task per key. Starting a key that is already
// running cancels the old task and waits for it before the new one runs.
type Registry[K comparable] struct {
	mu     sync.Mutex
	tasks  map[K]*task
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewRegistry creates a new task registry
func NewRegistry[K comparable](logger *slog.Logger) *Registry[K] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry[K]{
		tasks:  make(map[K]*task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "task_registry"),
	}
}

// Start runs fn under key, cancelling whatever was running under it
func (r *Registry[K]) Start(key K, fn Func) {
	ctx, cancel := context.WithCancel(r.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	old := r.tasks[key]
	r.tasks[key] = t
	r.mu.Unlock()

	go func() {
		defer close(t.done)
		defer r.forget(key, t)

		if old != nil {
			old.cancel()
			<-old.done
		}
		if ctx.Err() != nil {
			return
		}
		r.run(ctx, key, fn)
	}()
}

// run executes fn, keeping a panic inside one task
func (r *Registry[K]) run(ctx context.Context, key K, fn Func) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("task panicked", "key", fmt.Sprint(key), "panic", rec)
		}
	}()
	fn(ctx)
}

func (r *Registry[K]) forget(key K, t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[key] == t {
		delete(r.tasks, key)
	}
}

// Stop cancels the task under key and waits for it to return.
// Must not be called from inside the task being stopped.
func (r *Registry[K]) Stop(key K) {
	r.mu.Lock()
	t, exists := r.tasks[key]
	if exists {
		delete(r.tasks, key)
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	t.cancel()
	<-t.done
}

// Running reports whether a task is registered under key
func (r *Registry[K]) Running(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.tasks[key]
	return exists
}

// Len returns the number of registered tasks
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// StopAll cancels every task and waits for all of them
func (r *Registry[K]) StopAll() {
	r.mu.Lock()
	all := make([]*task, 0, len(r.tasks))
	for key, t := range r.tasks {
		all = append(all, t)
		delete(r.tasks, key)
	}
	r.mu.Unlock()

	r.logger.Info("stopping all tasks", "count", len(all))
	r.cancel()
	for _, t := range all {
		<-t.done
	}
}
