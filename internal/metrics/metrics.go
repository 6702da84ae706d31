package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "classbook"

var (
	once sync.Once

	admissionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_outcomes_total",
			Help:      "Booking attempts by admission mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	admissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_duration_seconds",
			Help:      "Time spent inside the admission transaction.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and delivery status.",
		},
		[]string{"channel", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(admissionOutcomes, admissionDuration, httpRequests, notifications)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveAdmission(mode, outcome string, elapsed time.Duration) {
	admissionOutcomes.WithLabelValues(mode, outcome).Inc()
	admissionDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncNotification(channel, status string) {
	notifications.WithLabelValues(channel, status).Inc()
}
