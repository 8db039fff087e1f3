// Package telemetry provides Prometheus metrics and correlation ids for events.
package telemetry

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	MirrorsTotal    *prometheus.CounterVec
	FallbackTotal   prometheus.Counter
	ProbesTotal     prometheus.Counter
	RecoveriesTotal *prometheus.CounterVec
	EditsTotal      *prometheus.CounterVec
	HandlerPanics   prometheus.Counter
	DroppedEvents   prometheus.Counter
)

// Init registers metrics (idempotent)
func Init() {
	once.Do(func() {
		MirrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_messages_total",
			Help: "Inbound messages mirrored, by content class and result",
		}, []string{"class", "result"})
		FallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_fallback_deliveries_total",
			Help: "Deliveries routed to the fallback channel after the primary was exhausted",
		})
		ProbesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_recovery_probes_total",
			Help: "Retrieval probes issued while recovering deleted messages",
		})
		RecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_recoveries_total",
			Help: "Deleted messages processed, by result",
		}, []string{"result"})
		EditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_edits_total",
			Help: "Edit events processed, by result",
		}, []string{"result"})
		HandlerPanics = promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_handler_panics_total",
			Help: "Event handlers that panicked and were recovered",
		})
		DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
			Name: "mirror_dropped_events_total",
			Help: "Events dropped because an account queue was full",
		})
	})
}

// ObserveMirror counts one mirror attempt
func ObserveMirror(class, result string) {
	if MirrorsTotal != nil {
		MirrorsTotal.WithLabelValues(class, result).Inc()
	}
}

// ObserveFallback counts one fallback delivery
func ObserveFallback() {
	if FallbackTotal != nil {
		FallbackTotal.Inc()
	}
}

// ObserveProbe counts one recovery probe
func ObserveProbe() {
	if ProbesTotal != nil {
		ProbesTotal.Inc()
	}
}

// ObserveRecovery counts one processed deletion
func ObserveRecovery(result string) {
	if RecoveriesTotal != nil {
		RecoveriesTotal.WithLabelValues(result).Inc()
	}
}

// ObserveEdit counts one processed edit
func ObserveEdit(result string) {
	if EditsTotal != nil {
		EditsTotal.WithLabelValues(result).Inc()
	}
}

// ObservePanic counts one recovered handler panic
func ObservePanic() {
	if HandlerPanics != nil {
		HandlerPanics.Inc()
	}
}

// ObserveDropped counts one event dropped on a full queue
func ObserveDropped() {
	if DroppedEvents != nil {
		DroppedEvents.Inc()
	}
}

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a context carrying the event correlation id
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or an empty string
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}
