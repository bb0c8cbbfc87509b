package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	"finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
)

// Ledger is the part of services.SyncClient the API serves.
type Ledger interface {
	Load(ctx context.Context) error
	Add(ctx context.Context, in core.Input) (core.Transaction, error)
	Summary() core.Summary
	Transactions() []core.Transaction
	Status() ledger.Status
	Fallback() bool
}

type Server struct {
	http.Server
	client      Ledger
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware
	detector    *security.Detector
	started     time.Time

	shutdownOnce sync.Once
}

// Options tunes the server. Zero values take defaults.
type Options struct {
	RateLimit ratelimit.Config
	Headers   *security.HeadersConfig
	// Detector resolves client addresses; nil trusts the default proxy
	// ranges.
	Detector *security.Detector
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, client Ledger, logger *log.Logger, opts Options) *Server {
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}
	detector := opts.Detector
	if detector == nil {
		detector, _ = security.NewDetector()
	}

	s := &Server{
		client:      client,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		tracer:      trace.NewMiddleware(logger, detector.ExtractClientIP),
		detector:    detector,
		started:     time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, http.MethodPost)

	var h http.Handler = mux
	h = limited(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(headers).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Writes wait on the remote sheet, which may take the whole sync timeout.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
		metrics := s.tracer.GetMetrics()
		s.logger.Info("HTTP server stopped",
			"total_requests", metrics.TotalRequests,
			"avg_response_us", metrics.AverageResponseTime,
			"rate_limited", s.rateLimiter.GetMetrics().TotalHits,
			"suspicious_requests", s.detector.GetMetrics().SuspiciousRequests)
	})
	return err
}
