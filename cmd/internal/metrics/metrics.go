// Package metrics declares the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LiveConnections tracks currently registered live connections.
	LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_live_connections",
		Help: "Number of registered live connections.",
	})

	// EventsReceived counts inbound stream events by type.
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_events_received_total",
		Help: "Inbound stream events by type.",
	}, []string{"type"})

	// FanoutDelivered counts events enqueued to a peer's send buffer.
	FanoutDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_fanout_delivered_total",
		Help: "Events enqueued to peer send buffers.",
	})

	// FanoutDropped counts events dropped because a peer's buffer was full.
	FanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_fanout_dropped_total",
		Help: "Events dropped due to full peer send buffers.",
	})

	// AlertsDispatched counts emergency alerts accepted for dispatch.
	AlertsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_alerts_dispatched_total",
		Help: "Emergency alerts accepted for dispatch.",
	})

	// Notifications counts out-of-band notification attempts by result.
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_notifications_total",
		Help: "Out-of-band notification attempts by result.",
	}, []string{"result"})
)

// MustRegister registers every collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		LiveConnections,
		EventsReceived,
		FanoutDelivered,
		FanoutDropped,
		AlertsDispatched,
		Notifications,
	)
}
