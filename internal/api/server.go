package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dunamismax/resizeflow/internal/pipeline"
	"github.com/dunamismax/resizeflow/internal/ratelimit"
	"github.com/dunamismax/resizeflow/internal/store"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxUploadBytes = 25 << 20
	defaultMaxOutputs     = 32
)

type Options struct {
	Logger zerolog.Logger
	Engine pipeline.Engine
	Guard  *ratelimit.Guard
	Usage  store.UsageStore
	KeyFn  KeyFunc

	MaxUploadBytes     int64
	MaxOutputs         int
	DefaultJPEGQuality int
	DefaultWebPQuality int
	StreamArchives     bool

	AuthRequired bool
	AuthToken    string

	AllowedOrigins []string
}

type Server struct {
	logger    zerolog.Logger
	processor *pipeline.Processor
	guard     *ratelimit.Guard
	usage     store.UsageStore
	keyFn     KeyFunc
	metrics   *metrics
	tracer    trace.Tracer
	mux       *http.ServeMux
	cors      *cors.Cors

	maxUploadBytes     int64
	maxOutputs         int
	defaultJPEGQuality int
	defaultWebPQuality int
	streamArchives     bool

	authRequired bool
	authToken    string
}

func NewServer(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MaxOutputs <= 0 {
		opts.MaxOutputs = defaultMaxOutputs
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(true)
	}

	s := &Server{
		logger:             opts.Logger,
		guard:              opts.Guard,
		usage:              opts.Usage,
		keyFn:              opts.KeyFn,
		metrics:            newMetrics(),
		tracer:             otel.Tracer("resizeflow/api"),
		mux:                http.NewServeMux(),
		maxUploadBytes:     opts.MaxUploadBytes,
		maxOutputs:         opts.MaxOutputs,
		defaultJPEGQuality: opts.DefaultJPEGQuality,
		defaultWebPQuality: opts.DefaultWebPQuality,
		streamArchives:     opts.StreamArchives,
		authRequired:       opts.AuthRequired,
		authToken:          opts.AuthToken,
	}
	s.processor = pipeline.NewProcessor(opts.Engine,
		pipeline.WithRenderObserver(s.metrics.observeRender),
	)
	corsOpts := cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           600,
	}
	if len(opts.AllowedOrigins) == 0 {
		// cors treats an empty list as "*"; no allow-list means no browser origins.
		corsOpts.AllowOriginFunc = func(string) bool { return false }
	}
	s.cors = cors.New(corsOpts)
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.cors.Handler(
		s.metrics.withHTTPMetrics(
			s.withTracing(
				s.withRequestID(s.mux),
			),
		),
	)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.Handle("POST /resize", s.withAdmission(s.withAuth(http.HandlerFunc(s.handleResize))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Close releases the usage store.
func (s *Server) Close(_ context.Context) error {
	if s.usage == nil {
		return nil
	}
	return s.usage.Close()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
