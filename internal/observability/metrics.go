package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "satellite"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	apiFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "frames_total",
			Help:      "Native API frames by direction and message name.",
		},
		[]string{"direction", "message"},
	)
	apiConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "connections",
			Help:      "Currently open hub connections.",
		},
	)
	apiCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "closes_total",
			Help:      "Hub connection closes by reason.",
		},
		[]string{"reason"},
	)
	voiceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "transitions_total",
			Help:      "Voice pipeline state transitions.",
		},
		[]string{"from", "to"},
	)
	voiceDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "dropped_frames_total",
			Help:      "Audio frames dropped at a bounded queue.",
		},
		[]string{"queue"},
	)
	commandResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "results_total",
			Help:      "Dispatched command outcomes.",
		},
		[]string{"key", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Command handler run time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"key"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			apiFrames, apiConnections, apiCloses,
			voiceTransitions, voiceDrops,
			commandResults, commandDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one frame; direction is "in" or "out".
func RecordFrame(direction, message string) {
	RegisterMetrics()
	apiFrames.WithLabelValues(direction, message).Inc()
}

func RecordConnectionOpened() {
	RegisterMetrics()
	apiConnections.Inc()
}

func RecordConnectionClosed(reason string) {
	RegisterMetrics()
	apiConnections.Dec()
	apiCloses.WithLabelValues(reason).Inc()
}

func RecordVoiceTransition(from, to string) {
	RegisterMetrics()
	voiceTransitions.WithLabelValues(from, to).Inc()
}

func RecordVoiceDrop(queue string) {
	RegisterMetrics()
	voiceDrops.WithLabelValues(queue).Inc()
}

func RecordCommand(key, outcome string, duration time.Duration) {
	RegisterMetrics()
	commandResults.WithLabelValues(key, outcome).Inc()
	commandDuration.WithLabelValues(key).Observe(duration.Seconds())
}
