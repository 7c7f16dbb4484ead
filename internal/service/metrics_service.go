package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the
// enrollment core.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	promotions      *prometheus.CounterVec
	seatMovements   *prometheus.CounterVec
	payments        prometheus.Counter
	discrepancies   prometheus.Counter
	certificates    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_promotions_total",
		Help: "Promotion attempts by outcome",
	}, []string{"outcome"})

	seatMovements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_movements_total",
		Help: "Seat ledger reservations and releases",
	}, []string{"direction"})

	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Payments recorded against pre-registrations",
	})

	discrepancies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_discrepancies_total",
		Help: "Payments whose amount diverged from the price schedule",
	})

	certificates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Certificates issued by type",
	}, []string{"type"})

	registry.MustRegister(requestDuration, requestTotal, promotions, seatMovements, payments, discrepancies, certificates)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		promotions:      promotions,
		seatMovements:   seatMovements,
		payments:        payments,
		discrepancies:   discrepancies,
		certificates:    certificates,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveRequest records one HTTP request.
func (s *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordPromotion counts one promotion attempt by outcome ("ok" or the
// error code).
func (s *MetricsService) RecordPromotion(outcome string) {
	s.promotions.WithLabelValues(outcome).Inc()
}

// RecordSeatMovement counts a reserve or release.
func (s *MetricsService) RecordSeatMovement(direction string) {
	s.seatMovements.WithLabelValues(direction).Inc()
}

// RecordPayment counts a recorded payment, flagged when a discrepancy was
// reported.
func (s *MetricsService) RecordPayment(discrepancy bool) {
	s.payments.Inc()
	if discrepancy {
		s.discrepancies.Inc()
	}
}

// RecordCertificate counts an issued certificate by type.
func (s *MetricsService) RecordCertificate(certType string) {
	s.certificates.WithLabelValues(certType).Inc()
}
