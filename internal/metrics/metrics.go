// Package metrics defines the Prometheus instrumentation surface for
// the control core, kept in the teacher's promauto style
// (internal/metrics/metrics.go): package-level vars built with
// promauto.New*, registered against the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsOpen is a gauge of currently open Controller
	// connections, labeled by firmware dialect.
	ConnectionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cnc_connections_open",
		Help: "The number of currently open controller connections",
	}, []string{"dialect"})

	// CommandsProcessedTotal counts every command dispatched through a
	// Controller, by verb and outcome.
	CommandsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cnc_commands_processed_total",
		Help: "The total number of controller commands processed",
	}, []string{"command", "status"})

	// BytesWrittenTotal counts bytes written to the wire, by
	// connection ident, distinguishing Feeder/Sender/realtime origin.
	BytesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cnc_bytes_written_total",
		Help: "The total number of bytes written to a connection",
	}, []string{"ident", "source"})

	// QueryLatency measures round-trip time from issuing a status or
	// parser-state query to receiving its matching reply.
	QueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cnc_query_latency_seconds",
		Help:    "Round-trip latency of status/parser-state queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"dialect", "query"})

	// ProgramDuration measures wall-clock time from sender:start to
	// sender:end for each completed program run.
	ProgramDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cnc_program_duration_seconds",
		Help:    "Wall-clock duration of a streamed program run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"dialect"})

	// AlarmsTotal counts every alarm/error a firmware reports, by
	// dialect and code, for spotting a machine that alarms repeatedly.
	AlarmsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cnc_alarms_total",
		Help: "The total number of alarm/error events observed from a controller",
	}, []string{"dialect", "code"})

	// ClientsConnected is a gauge of currently connected WebSocket
	// client sessions.
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cnc_ws_clients_connected",
		Help: "The number of currently connected WebSocket client sessions",
	})
)
