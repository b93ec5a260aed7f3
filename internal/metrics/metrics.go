// Package metrics exposes Prometheus instrumentation for attendance activity
// and the HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/rollcall/internal/attendance"
)

// Mark outcomes, used as the "outcome" label of rollcall_marks_total.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid_token"
	OutcomeExpired   = "expired"
	OutcomeInactive  = "inactive"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Marks          *prometheus.CounterVec
	Rotations      *prometheus.CounterVec
	Sessions       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	HTTPDuration   *prometheus.HistogramVec
}

// New registers every collector on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "marks_total",
			Help:      "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		Rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "token_rotations_total",
			Help:      "Token rotations by trigger.",
		}, []string{"trigger"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "sessions_total",
			Help:      "Attendance session lifecycle transitions.",
		}, []string{"event"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "active_sessions",
			Help:      "Attendance sessions currently accepting marks.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollcall",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Marks,
		m.Rotations,
		m.Sessions,
		m.ActiveSessions,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent updates counters from a committed lifecycle event.
func (m *Metrics) ObserveEvent(ev attendance.Event) {
	switch ev.Kind {
	case attendance.EventSessionStarted:
		m.Sessions.WithLabelValues("started").Inc()
		m.ActiveSessions.Inc()
	case attendance.EventSessionEnded:
		m.Sessions.WithLabelValues("ended").Inc()
		m.ActiveSessions.Dec()
	case attendance.EventSessionDeleted:
		m.Sessions.WithLabelValues("deleted").Inc()
		if ev.Session != nil && ev.Session.Active {
			m.ActiveSessions.Dec()
		}
	case attendance.EventIntervalChanged:
		m.Sessions.WithLabelValues("interval_changed").Inc()
	case attendance.EventTokenRotated:
		m.Rotations.WithLabelValues(ev.Trigger).Inc()
	}
}

// ObserveMark counts a submission by the outcome err maps to.
func (m *Metrics) ObserveMark(err error) {
	m.Marks.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps a Record or Validate result to its label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeRecorded
	case errors.Is(err, attendance.ErrDuplicateSubmission):
		return OutcomeDuplicate
	case errors.Is(err, attendance.ErrInvalidToken):
		return OutcomeInvalid
	case errors.Is(err, attendance.ErrTokenExpired):
		return OutcomeExpired
	case errors.Is(err, attendance.ErrSessionInactive):
		return OutcomeInactive
	case errors.Is(err, attendance.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Instrument records request latency labelled by the matched route pattern.
// It must wrap the ServeMux directly so the pattern is visible afterwards.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}
