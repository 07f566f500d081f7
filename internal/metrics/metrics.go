// Package metrics holds the process-wide Prometheus collectors for the
// collaboration server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoomsActive number of rooms with at least one socket on this instance.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawboard_rooms_active",
		Help: "Number of active collaboration rooms",
	})

	// ParticipantsActive number of participants across all rooms.
	ParticipantsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawboard_participants_active",
		Help: "Number of participants currently joined to a room",
	})

	// WSConnections open websocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawboard_ws_connections",
		Help: "Number of open collaboration websocket connections",
	})

	// MessagesRelayed frames relayed to peers by message type and origin (local/remote).
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drawboard_messages_relayed_total",
			Help: "Total number of room frames relayed",
		},
		[]string{"type", "origin"},
	)

	// MessagesDropped frames dropped because a peer's send buffer was full or the sender lacked permission.
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drawboard_messages_dropped_total",
			Help: "Total number of room frames dropped",
		},
		[]string{"reason"},
	)

	// DrawingSaves drawing updates through the REST API by result.
	DrawingSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drawboard_drawing_saves_total",
			Help: "Total number of drawing save requests",
		},
		[]string{"result"},
	)
)

// Drop reasons
const (
	DropBufferFull = "buffer_full"
	DropViewOnly   = "view_only"
	DropMalformed  = "malformed"
)

// RecordRelay counts one relayed frame.
func RecordRelay(msgType string, remote bool) {
	origin := "local"
	if remote {
		origin = "remote"
	}
	MessagesRelayed.WithLabelValues(msgType, origin).Inc()
}

// RecordDrop counts one dropped frame.
func RecordDrop(reason string) {
	MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordSave counts a drawing save by outcome.
func RecordSave(err error) {
	if err != nil {
		DrawingSaves.WithLabelValues("error").Inc()
		return
	}
	DrawingSaves.WithLabelValues("ok").Inc()
}
