// Package stats exposes the runtime counters on the default
// prometheus registry.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsSent counts outgoing invocations, synchronous and
	// asynchronous.
	InvocationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmi",
		Name:      "invocations_sent_total",
		Help:      "Outgoing invocations issued by local stubs.",
	})

	// InvocationsServed counts inbound invocations dispatched to
	// skeletons.
	InvocationsServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmi",
		Name:      "invocations_served_total",
		Help:      "Inbound invocations dispatched to exported objects.",
	})

	// PendingInvocations tracks calls awaiting their Return frame.
	PendingInvocations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rmi",
		Name:      "pending_invocations",
		Help:      "Outstanding outgoing invocations.",
	})

	// OpenHandlers tracks live peer handlers.
	OpenHandlers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rmi",
		Name:      "open_handlers",
		Help:      "Peer handlers currently running.",
	})

	// HandlerFaults counts handler disposals, faulty or orderly.
	HandlerFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmi",
		Name:      "handler_disposals_total",
		Help:      "Peer handlers torn down.",
	})
)
