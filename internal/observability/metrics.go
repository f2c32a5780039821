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
			Namespace: "pairctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pairctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	pairingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairctl",
			Subsystem: "session",
			Name:      "pairing_attempts_total",
			Help:      "Pairing attempts by handshake mode and admission outcome.",
		},
		[]string{"mode", "outcome"},
	)
	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pairctl",
			Subsystem: "session",
			Name:      "open",
			Help:      "Sessions currently in the open state.",
		},
	)
	sessionReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pairctl",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after transient disconnects.",
		},
	)
	sessionTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairctl",
			Subsystem: "session",
			Name:      "terminal_total",
			Help:      "Sessions reaching a terminal state, by surfaced cause.",
		},
		[]string{"cause"},
	)
	backupUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pairctl",
			Subsystem: "backup",
			Name:      "uploads_total",
			Help:      "Credential backup uploads.",
		},
		[]string{"success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			pairingAttempts,
			sessionsOpen,
			sessionReconnects,
			sessionTerminal,
			backupUploads,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPairingAttempt(mode, outcome string) {
	RegisterMetrics()
	pairingAttempts.WithLabelValues(mode, outcome).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsOpen.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsOpen.Dec()
}

func RecordReconnect() {
	RegisterMetrics()
	sessionReconnects.Inc()
}

func RecordTerminal(cause string) {
	RegisterMetrics()
	sessionTerminal.WithLabelValues(cause).Inc()
}

func RecordBackupUpload(success bool) {
	RegisterMetrics()
	backupUploads.WithLabelValues(strconv.FormatBool(success)).Inc()
}
