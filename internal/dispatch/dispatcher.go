// Package dispatch runs inbound events one account at a time.
//
// Events of one account are handled in submission order by a dedicated
// worker; workers of different accounts run independently, so a slow or
// failing account never holds up another one.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/mixelka/chatmirror/internal/tasks"
	"github.com/mixelka/chatmirror/internal/telemetry"
)

// Handler processes one event
type Handler func(ctx context.Context) error

type job struct {
	id      string
	name    string
	handler Handler
}

// Dispatcher owns one ordered queue per account
type Dispatcher struct {
	workers   *tasks.Registry[int64]
	mu        sync.Mutex
	queues    map[int64]chan job
	queueSize int
	logger    *slog.Logger
}

// New creates a new dispatcher
func New(workers *tasks.Registry[int64], queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		workers:   workers,
		queues:    make(map[int64]chan job),
		queueSize: queueSize,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Submit enqueues an event for the account without blocking. A full queue
// or a finished ctx drops the event; returns false in that case.
func (d *Dispatcher) Submit(ctx context.Context, accountID int64, name string, h Handler) bool {
	if err := ctx.Err(); err != nil {
		telemetry.ObserveDropped()
		d.logger.Error("event dropped", "account_id", accountID, "event", name, "error", err)
		return false
	}

	j := job{id: uuid.NewString(), name: name, handler: h}
	select {
	case d.queue(accountID) <- j:
		return true
	default:
		telemetry.ObserveDropped()
		d.logger.Error("account queue full, event dropped",
			"account_id", accountID, "event", name, "queue_size", d.queueSize)
		return false
	}
}

// Shutdown stops every worker; queued events are discarded
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	d.queues = make(map[int64]chan job)
	d.mu.Unlock()

	d.workers.StopAll()
}

func (d *Dispatcher) queue(accountID int64) chan job {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[accountID]; ok {
		return q
	}

	q := make(chan job, d.queueSize)
	d.queues[accountID] = q
	d.workers.Start(accountID, d.worker(accountID, q))
	return q
}

func (d *Dispatcher) worker(accountID int64, q chan job) tasks.Func {
	return func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-q:
				d.handle(ctx, accountID, j)
			}
		}
	}
}

// handle is the isolation boundary: nothing escapes one event
func (d *Dispatcher) handle(ctx context.Context, accountID int64, j job) {
	ctx = telemetry.WithCorrelation(ctx, j.id)
	logger := d.logger.With("event_id", j.id, "event", j.name, "account_id", accountID)

	defer func() {
		if rec := recover(); rec != nil {
			telemetry.ObservePanic()
			logger.Error("event handler panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
		}
	}()

	if err := j.handler(ctx); err != nil {
		logger.Error("event handler failed", "error", err)
		return
	}
	logger.Debug("event handled")
}
