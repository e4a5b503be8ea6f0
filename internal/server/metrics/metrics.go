// Package metrics holds Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "facegate"

// Metrics группирует коллекторы сервера в собственном регистре.
// Все методы безопасны для nil-получателя: метрики можно не подключать
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authTotal     *prometheus.CounterVec
	faceOpTotal   *prometheus.CounterVec
	faceOpSeconds *prometheus.HistogramVec
	secretsPurged prometheus.Counter
}

// New создает и регистрирует коллекторы
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by method and outcome.",
		}, []string{"method", "result"}),
		faceOpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "face_operations_total",
			Help:      "Face registry operations by outcome.",
		}, []string{"op", "result"}),
		faceOpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "face_operation_duration_seconds",
			Help:      "Face registry operation latencies in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"op"}),
		secretsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secrets_purged_total",
			Help:      "Expired one-time codes and reset tokens removed by the sweeper.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authTotal,
		m.faceOpTotal,
		m.faceOpSeconds,
		m.secretsPurged,
	)

	return m
}

// Registry returns the underlying registry (tests, custom collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestStarted увеличивает счетчик запросов в полете
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.httpInFlight.Inc()
}

// RequestFinished фиксирует завершенный HTTP запрос
func (m *Metrics) RequestFinished(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpInFlight.Dec()
	m.httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// AuthAttempt фиксирует попытку входа (method: password, otp, face)
func (m *Metrics) AuthAttempt(method, result string) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(method, result).Inc()
}

// FaceOperation фиксирует операцию реестра лиц (op: match, enroll)
func (m *Metrics) FaceOperation(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.faceOpTotal.WithLabelValues(op, result).Inc()
	m.faceOpSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// SecretsPurged добавляет число удаленных просроченных секретов
func (m *Metrics) SecretsPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.secretsPurged.Add(float64(n))
}
