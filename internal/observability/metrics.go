package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtmctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qtmctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtmctl",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Commands sent to QTM.",
		},
		[]string{"node", "command", "success"},
	)
	sessionCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qtmctl",
			Subsystem: "session",
			Name:      "command_duration_seconds",
			Help:      "Command round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "command", "success"},
	)
	streamDataPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtmctl",
			Subsystem: "stream",
			Name:      "data_packets_total",
			Help:      "Data packets received while streaming.",
		},
		[]string{"node"},
	)
	streamDataBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtmctl",
			Subsystem: "stream",
			Name:      "data_bytes_total",
			Help:      "Data packet body bytes received while streaming.",
		},
		[]string{"node"},
	)
	streamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtmctl",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Events observed while streaming.",
		},
		[]string{"node", "event"},
	)
	streamLatestFrame = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qtmctl",
			Subsystem: "stream",
			Name:      "latest_frame_number",
			Help:      "Frame number of the most recent data packet.",
		},
		[]string{"node"},
	)
	streamTrackedBodies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qtmctl",
			Subsystem: "stream",
			Name:      "tracked_bodies",
			Help:      "Rigid bodies tracked in the most recent frame.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			sessionCommands, sessionCommandDuration,
			streamDataPackets, streamDataBytes, streamEvents,
			streamLatestFrame, streamTrackedBodies,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(node, command string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	sessionCommands.WithLabelValues(node, command, successLabel).Inc()
	sessionCommandDuration.WithLabelValues(node, command, successLabel).
		Observe(duration.Seconds())
}

func RecordDataPacket(node string, bytes int) {
	RegisterMetrics()
	streamDataPackets.WithLabelValues(node).Inc()
	streamDataBytes.WithLabelValues(node).Add(float64(bytes))
}

func RecordStreamEvent(node, event string) {
	RegisterMetrics()
	streamEvents.WithLabelValues(node, event).Inc()
}

func RecordFrame(node string, frameNumber uint32, trackedBodies int) {
	RegisterMetrics()
	streamLatestFrame.WithLabelValues(node).Set(float64(frameNumber))
	streamTrackedBodies.WithLabelValues(node).Set(float64(trackedBodies))
}
