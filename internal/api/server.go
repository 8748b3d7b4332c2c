package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/org/servercatalog/internal/anomaly"
	"github.com/org/servercatalog/internal/audit"
	"github.com/org/servercatalog/internal/auth"
	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/config"
	"github.com/org/servercatalog/internal/graphql"
	"github.com/org/servercatalog/internal/integrity"
	"github.com/org/servercatalog/internal/ratelimit"
	"github.com/org/servercatalog/internal/webhook"
	"github.com/org/servercatalog/pkg/models"
)

const (
	eventProductCreated = "product.created"
	webhookTimeout      = 5 * time.Second
)

// Server is the API server.
type Server struct {
	cfg        config.Config
	repo       catalog.Repository
	logger     *audit.Logger
	issuer     *auth.Issuer
	verifier   *auth.Verifier
	limiter    *ratelimit.FixedWindow
	health     *ratelimit.FixedWindow
	detector   *anomaly.Detector
	signer     *integrity.Signer
	files      *integrity.FileMonitor
	webhooks   *webhook.Registry
	dispatcher *webhook.Dispatcher
	graphql    *graphql.Executor
	startedAt  time.Time
	httpSrv    *http.Server
}

// NewServer creates a fully wired Server. The logger is owned by the caller
// and must outlive the server.
func NewServer(cfg config.Config, repo catalog.Repository, logger *audit.Logger) (*Server, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, auth.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("creating credential issuer: %w", err)
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating credential verifier: %w", err)
	}
	signer, err := integrity.NewSigner(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating integrity signer: %w", err)
	}

	passphrase := cfg.Webhook.SecretPassphrase
	if passphrase == "" {
		passphrase = cfg.JWTSecret
	}
	hooks := webhook.NewRegistry(webhook.NewValidator(cfg.Webhook.AllowedHosts, cfg.Webhook.AllowedSchemes), passphrase)

	logger.Observe = observeSecurityEvent

	s := &Server{
		cfg:        cfg,
		repo:       repo,
		logger:     logger,
		issuer:     issuer,
		verifier:   verifier,
		limiter:    ratelimit.NewFixedWindow("global", cfg.RateLimit.Window, cfg.RateLimit.Max),
		health:     ratelimit.NewFixedWindow("health", cfg.HealthRateLimit.Window, cfg.HealthRateLimit.Max),
		detector:   anomaly.NewDetector(),
		signer:     signer,
		files:      integrity.NewFileMonitor(cfg.CriticalFiles),
		webhooks:   hooks,
		dispatcher: webhook.NewDispatcher(hooks, webhookTimeout),
		startedAt:  time.Now(),
	}
	gql, err := graphql.NewExecutor(repo, s.productCreated)
	if err != nil {
		return nil, fmt.Errorf("building graphql schema: %w", err)
	}
	s.graphql = gql
	s.refreshProductGauge(context.Background())
	return s, nil
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global pipeline, outermost first.
	if s.cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.recoverer)
	r.Use(s.securityHeaders)
	r.Use(s.cors())
	r.Use(s.authMonitor)
	r.Use(s.rateLimit(s.limiter))
	r.Use(s.suspiciousAgent)
	r.Use(s.contentChecks)
	r.Use(s.threatScan)
	r.Use(s.fileIntegrity)
	r.Use(s.dataIntegrity)

	r.NotFound(s.NotFoundHandler)
	r.MethodNotAllowed(s.NotFoundHandler)

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes
	r.Group(func(r chi.Router) {
		r.With(s.rateLimit(s.health)).Get("/health", s.HealthHandler)
		r.Post("/login", s.LoginHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.activity)

		for _, base := range []string{"/products", "/productos"} {
			r.Route(base, func(r chi.Router) {
				r.With(requirePermission(models.PermReadProducts)).Get("/", s.ProductListHandler)
				r.With(requirePermission(models.PermCreateProducts)).Post("/", s.ProductCreateHandler)
				r.With(requirePermission(models.PermReadProducts)).Get("/{id}", s.ProductGetHandler)
				r.With(requirePermission(models.PermUpdateProducts)).Put("/{id}", s.ProductUpdateHandler)
				r.With(requirePermission(models.PermUpdateProducts)).Patch("/{id}", s.ProductUpdateHandler)
				r.With(requirePermission(models.PermDeleteProducts)).Delete("/{id}", s.ProductDeleteHandler)
			})
		}

		r.Post("/graphql", s.GraphQLHandler)
		r.With(requirePermission(models.PermReadProducts)).Get("/security-status", s.SecurityStatusHandler)
		r.With(requirePermission(models.PermCreateProducts)).Post("/webhook", s.WebhookRegisterHandler)
		r.With(requireAdmin).Get("/audit/anomalies", s.AnomaliesHandler)
	})

	return r
}

// RunBackground starts the periodic sweeps and blocks until ctx is cancelled.
func (s *Server) RunBackground(ctx context.Context) {
	sw := s.cfg.Sweeps
	go s.limiter.Run(ctx, sw.RateLimit)
	go s.health.Run(ctx, sw.RateLimit)
	go s.detector.Run(ctx, sw.Anomaly)
	go s.logger.Run(ctx, sw.LogRotate)
	go s.logger.MonitorResources(ctx, sw.Resources, s.cfg.MemoryAlertBytes)
	<-ctx.Done()
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// productCreated updates the gauge and notifies webhook subscribers without
// holding up the response.
func (s *Server) productCreated(ctx context.Context, p *models.Product) {
	s.refreshProductGauge(ctx)
	if len(s.webhooks.Subscribers(eventProductCreated)) == 0 {
		return
	}
	product := *p
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		for _, d := range s.dispatcher.Dispatch(ctx, eventProductCreated, product) {
			if d.Err != nil {
				log.Warn().Err(d.Err).Str("webhook", d.WebhookID).Msg("webhook delivery failed")
			}
		}
	}()
}

func (s *Server) refreshProductGauge(ctx context.Context) {
	if n, err := s.repo.Count(ctx); err == nil {
		productsGauge.Set(float64(n))
	}
}
