package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat server.
//
// Naming convention: namespace_subsystem_name
// - namespace: marain (application-level grouping)
// - subsystem: session, app, bus (component-level grouping)
// - name: specific metric (connections_active, commands_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, occupants)
// - Counter: Cumulative events (commands processed, events dropped)
// - Histogram: Latency distributions (command processing time)

var (
	// ActiveConnections tracks the current number of live WebSocket sessions (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marain",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	// Handshakes counts login handshake attempts by outcome (CounterVec - cumulative)
	Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marain",
		Subsystem: "session",
		Name:      "handshakes_total",
		Help:      "Total login handshakes by outcome",
	}, []string{"outcome"})

	// ActiveRooms tracks the number of rooms ever created; rooms are never destroyed (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marain",
		Subsystem: "app",
		Name:      "rooms_active",
		Help:      "Current number of rooms",
	})

	// RoomOccupants tracks the number of occupants in each room (GaugeVec with room label - current state per room)
	RoomOccupants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marain",
		Subsystem: "app",
		Name:      "room_occupants",
		Help:      "Number of occupants in each room",
	}, []string{"room"})

	// Commands counts commands processed by the app loop (CounterVec - cumulative)
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marain",
		Subsystem: "app",
		Name:      "commands_total",
		Help:      "Total commands processed by the app loop",
	}, []string{"kind"})

	// CommandDuration tracks the time spent handling one command including publishing (HistogramVec - latency distribution)
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marain",
		Subsystem: "app",
		Name:      "command_duration_seconds",
		Help:      "Time spent processing app commands",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"kind"})

	// EventsPublished counts events delivered into session sinks (CounterVec - cumulative)
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marain",
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Total events published to session sinks",
	}, []string{"kind"})

	// EventsDropped counts events evicted from full session sinks (Counter - cumulative)
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marain",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Total events evicted from full session sinks",
	})
)

// Handshake outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
