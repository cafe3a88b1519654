package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
	"github.com/Lucifer7355/pii-anonymizer/config"
	"github.com/Lucifer7355/pii-anonymizer/masking"
)

const shutdownTimeout = 10 * time.Second

// Engine anonymizes and detects PII. *masking.Engine satisfies it.
type Engine interface {
	anonymize.Anonymizer
	Detect(ctx context.Context, text string, options anonymize.OptionSet, names []string) ([]masking.Entity, error)
}

// Server exposes an Engine over HTTP.
type Server struct {
	cfg     config.ServerConfig
	engine  Engine
	limiter RateLimiter
	keys    KeyStore
	redis   redis.Cmdable
	metrics *Metrics
	logger  logrus.FieldLogger
}

type Option func(*Server)

// WithRateLimiter enables per-IP limiting on the API routes.
func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithKeyStore(k KeyStore) Option {
	return func(s *Server) { s.keys = k }
}

// WithRedis makes the health check ping client.
func WithRedis(client redis.Cmdable) Option {
	return func(s *Server) { s.redis = client }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) { s.logger = logger }
}

func New(cfg config.ServerConfig, engine Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler tree.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.Handle(anonymize.EndpointPath, s.protect(s.AnonymizeHandler)).Methods(http.MethodPost)
	r.Handle(anonymize.EndpointPath+"/batch", s.protect(s.BatchHandler)).Methods(http.MethodPost)
	r.Handle("/detect", s.protect(s.DetectHandler)).Methods(http.MethodPost)
	r.Handle("/apikeys", s.limited(http.HandlerFunc(s.GenerateAPIKeyHandler))).Methods(http.MethodPost)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/", IndexHandler).Methods(http.MethodGet)

	return cors(r)
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	var handler http.Handler = h
	if s.cfg.RequireAPIKey {
		handler = s.requireAPIKey(handler)
	}
	return s.limited(handler)
}

func (s *Server) limited(h http.Handler) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.rateLimit(h)
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and shuts down gracefully once ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Anonymization service listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down anonymization service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}
