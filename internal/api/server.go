// Package api serves the categorization pipeline over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/samcharles93/textcat/internal/inference"
	"github.com/samcharles93/textcat/internal/logger"
	"github.com/samcharles93/textcat/internal/metrics"
	"github.com/samcharles93/textcat/internal/ratelimit"
	"github.com/samcharles93/textcat/internal/store"
)

const requestIDHeader = "X-Request-Id"

// Predictor is the pipeline surface the server needs.
type Predictor interface {
	Predict(ctx context.Context, text string) (inference.Prediction, error)
	PredictBatch(ctx context.Context, texts []string) []inference.BatchItem
	Labels() []string
	Version() string
}

type FeedbackStore interface {
	SaveFeedback(ctx context.Context, f store.Feedback) error
}

// PredictionLog accepts predictions for background persistence.
type PredictionLog interface {
	Log(p store.Prediction) bool
}

type Options struct {
	Predictor Predictor
	// Auth is nil when authentication is disabled.
	Auth    *Authenticator
	Metrics *metrics.Metrics
	// Feedback and Predictions are optional.
	Feedback    FeedbackStore
	Predictions PredictionLog
	Logger      logger.Logger

	// RateLimiter overrides the in-process limiter built from
	// RequestsPerMinute; 0 with no RateLimiter disables limiting.
	RateLimiter       ratelimit.Limiter
	RequestsPerMinute int
	MaxBatchSize      int
	RequestTimeout    time.Duration
	BodyLimit         int64
}

type Server struct {
	predictor   Predictor
	auth        *Authenticator
	metrics     *metrics.Metrics
	feedback    FeedbackStore
	predictions PredictionLog
	limiter     ratelimit.Limiter
	log         logger.Logger

	labels    map[string]bool
	maxBatch  int
	timeout   time.Duration
	bodyLimit int64
	clock     func() time.Time
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	labels := make(map[string]bool)
	for _, l := range opts.Predictor.Labels() {
		labels[l] = true
	}
	bodyLimit := opts.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	return &Server{
		predictor:   opts.Predictor,
		auth:        opts.Auth,
		metrics:     opts.Metrics,
		feedback:    opts.Feedback,
		predictions: opts.Predictions,
		limiter:     newLimiter(opts),
		log:         log,
		labels:      labels,
		maxBatch:    opts.MaxBatchSize,
		timeout:     opts.RequestTimeout,
		bodyLimit:   bodyLimit,
		clock:       time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)

	v1 := e.Group("/api/v1", s.authenticate, s.rateLimit)
	v1.POST("/predict", s.handlePredict)
	v1.POST("/batch-predict", s.handleBatchPredict)
	v1.GET("/categories", s.handleCategories)
	v1.POST("/feedback", s.handleFeedback)
}

// Handler returns the complete HTTP handler: the echo routes plus
// /metrics, wrapped with request ids, access logging and request metrics.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.Use(middleware.Recover())
	s.Register(e)

	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/", e)

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.Middleware(h)
	}
	return requestIDMiddleware(s.accessLog(h))
}

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id))
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := metrics.NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		remote := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remote = host
		}
		attrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status(),
			"duration", time.Since(start),
			"bytes", rec.Bytes(),
			"remote_addr", remote,
		}
		switch {
		case rec.Status() >= 500:
			s.log.Error("http request", attrs...)
		case rec.Status() >= 400:
			s.log.Warn("http request", attrs...)
		default:
			s.log.Info("http request", attrs...)
		}
	})
}
