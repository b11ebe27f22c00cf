package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	admissionRejected *prometheus.CounterVec
	renderTotal       *prometheus.CounterVec
	renderDuration    *prometheus.HistogramVec
	responseKind      *prometheus.CounterVec
	uploadBytes       prometheus.Histogram
	activeRequests    prometheus.Gauge
	pixelsProduced    prometheus.Counter
	bytesOut          prometheus.Counter
	computeTimeMS     prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resizeflow_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resizeflow_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		admissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resizeflow_admission_rejections_total",
			Help: "Total requests rejected by the admission guard.",
		}, []string{"reason"}),
		renderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resizeflow_renders_total",
			Help: "Total render attempts by output format and outcome.",
		}, []string{"format", "status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resizeflow_render_duration_seconds",
			Help:    "Time spent rendering one output.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"format"}),
		responseKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resizeflow_responses_total",
			Help: "Successful resize responses by kind.",
		}, []string{"kind"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resizeflow_upload_bytes",
			Help:    "Size of accepted uploads in bytes.",
			Buckets: prometheus.ExponentialBuckets(1<<10, 4, 9),
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resizeflow_active_resize_requests",
			Help: "Resize requests currently past admission.",
		}),
		pixelsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resizeflow_usage_pixels_produced_total",
			Help: "Total output pixels across successful resize requests.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resizeflow_usage_bytes_out_total",
			Help: "Total response bytes across successful resize requests.",
		}),
		computeTimeMS: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resizeflow_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful resize requests.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.admissionRejected,
		m.renderTotal,
		m.renderDuration,
		m.responseKind,
		m.uploadBytes,
		m.activeRequests,
		m.pixelsProduced,
		m.bytesOut,
		m.computeTimeMS,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRender(spec domain.OutputSpec, elapsed time.Duration, err error) {
	format := string(spec.Format)
	m.renderDuration.WithLabelValues(format).Observe(elapsed.Seconds())
	m.renderTotal.WithLabelValues(format, renderStatus(err)).Inc()
}

func (m *metrics) observeUsage(entry domain.UsageLog) {
	m.pixelsProduced.Add(float64(entry.PixelsProduced))
	m.bytesOut.Add(float64(entry.BytesOut))
	m.computeTimeMS.Add(float64(entry.ComputeTimeMS))
}

func renderStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmptyRender):
		return "empty"
	case errors.Is(err, domain.ErrRenderFailure):
		return "failed"
	default:
		return "canceled"
	}
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

func routeLabel(path string) string {
	switch path {
	case "/resize", "/health", "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
