package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labreserve"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Count of reservation attempts rejected by reason.",
		},
		[]string{"reason"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	calendarSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_total",
			Help:      "Count of calendar calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	peerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_requests_total",
			Help:      "Count of service-to-service calls by peer and result.",
		},
		[]string{"peer", "result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facility_cache_total",
			Help:      "Facility cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by service, method and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "status"},
	)

	loanDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_decision_total",
			Help:      "Count of loan status transitions.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingRejected,
			bookingCancelled,
			calendarSync,
			peerRequests,
			cacheLookups,
			httpRequests,
			loanDecision,
		)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncCalendarSync(operation string, ok bool) {
	calendarSync.WithLabelValues(operation, result(ok)).Inc()
}

func IncPeerRequest(peer string, ok bool) {
	peerRequests.WithLabelValues(peer, result(ok)).Inc()
}

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func ObserveHTTPRequest(service, method, status string, seconds float64) {
	httpRequests.WithLabelValues(service, method, status).Observe(seconds)
}

func IncLoanDecision(status string) {
	loanDecision.WithLabelValues(status).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
