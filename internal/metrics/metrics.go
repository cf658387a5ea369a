package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "busticket"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by payment method.",
		},
		[]string{"payment_method"},
	)

	bookingsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled.",
		},
	)

	seatConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_conflicts_total",
			Help:      "Booking attempts rejected because seats were taken.",
		},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment gateway interactions by gateway and result.",
		},
		[]string{"gateway", "result"},
	)

	storageBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_backend",
			Help:      "Active storage backend (1 for the selected one).",
		},
		[]string{"backend"},
	)

	eventDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Lifecycle event deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingsCancelled,
			seatConflicts,
			payments,
			storageBackend,
			eventDeliveries,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated(paymentMethod string) {
	bookingsCreated.WithLabelValues(paymentMethod).Inc()
}

func IncBookingCancelled() {
	bookingsCancelled.Inc()
}

func IncSeatConflict() {
	seatConflicts.Inc()
}

// IncPayment records a gateway outcome, e.g. ("payhere", "success").
func IncPayment(gateway, result string) {
	payments.WithLabelValues(gateway, result).Inc()
}

// SetStorageBackend marks backend as the active store.
func SetStorageBackend(backend string) {
	storageBackend.Reset()
	storageBackend.WithLabelValues(backend).Set(1)
}

func IncEventDelivery(sink, result string) {
	eventDeliveries.WithLabelValues(sink, result).Inc()
}
