// Package metrics exposes the trap listener event stream as Prometheus
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "snmptrap"
	subsystem = "listener"
)

const (
	labelVersion = "version"
	labelReason  = "reason"
	labelRoute   = "route"
)

// Collector holds the listener metrics. It implements
// trapprocessor.Observer.
type Collector struct {
	// PacketsReceived counts datagrams read from the socket, before
	// decoding.
	PacketsReceived prometheus.Counter

	// TrapsDecoded counts successfully decoded messages per SNMP version.
	TrapsDecoded *prometheus.CounterVec

	// TrapsDropped counts messages discarded per reason: decode, community,
	// version or no_handler.
	TrapsDropped *prometheus.CounterVec

	// TrapsDispatched counts handler invocations per route: matched or
	// default.
	TrapsDispatched *prometheus.CounterVec

	HandlerErrors   prometheus.Counter
	HandlerDuration prometheus.Histogram
}

// NewCollector creates a Collector registered against reg, or against
// prometheus.DefaultRegisterer when reg is nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()
	reg.MustRegister(
		c.PacketsReceived,
		c.TrapsDecoded,
		c.TrapsDropped,
		c.TrapsDispatched,
		c.HandlerErrors,
		c.HandlerDuration,
	)
	return c
}

func newMetrics() *Collector {
	return &Collector{
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total UDP datagrams received by the trap listener.",
		}),

		TrapsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "traps_decoded_total",
			Help:      "Total trap messages decoded, by SNMP version.",
		}, []string{labelVersion}),

		TrapsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "traps_dropped_total",
			Help:      "Total trap messages dropped, by reason.",
		}, []string{labelReason}),

		TrapsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "traps_dispatched_total",
			Help:      "Total trap messages handed to a handler, by route.",
		}, []string{labelRoute}),

		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_errors_total",
			Help:      "Total trap handler invocations that panicked.",
		}),

		HandlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in trap handlers.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
	}
}

// PacketReceived increments the received datagram counter.
func (c *Collector) PacketReceived() {
	c.PacketsReceived.Inc()
}

// TrapDecoded increments the decoded counter for version ("1" or "2c").
func (c *Collector) TrapDecoded(version string) {
	c.TrapsDecoded.WithLabelValues(version).Inc()
}

// TrapDropped increments the dropped counter for reason.
func (c *Collector) TrapDropped(reason string) {
	c.TrapsDropped.WithLabelValues(reason).Inc()
}

// TrapDispatched counts a handler invocation and records its duration.
func (c *Collector) TrapDispatched(route string, elapsed time.Duration) {
	c.TrapsDispatched.WithLabelValues(route).Inc()
	c.HandlerDuration.Observe(elapsed.Seconds())
}

// HandlerFailed increments the handler error counter.
func (c *Collector) HandlerFailed() {
	c.HandlerErrors.Inc()
}
