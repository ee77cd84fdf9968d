// Package server assembles the Agent API: storage, chain backend, domain
// services and the gin router that exposes them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/agentos/agentos/internal/agentapi"
	"github.com/agentos/agentos/internal/agentauth"
	"github.com/agentos/agentos/internal/agents"
	"github.com/agentos/agentos/internal/audit"
	"github.com/agentos/agentos/internal/authz"
	"github.com/agentos/agentos/internal/config"
	"github.com/agentos/agentos/internal/envelope"
	"github.com/agentos/agentos/internal/health"
	"github.com/agentos/agentos/internal/invoices"
	"github.com/agentos/agentos/internal/logging"
	"github.com/agentos/agentos/internal/metrics"
	"github.com/agentos/agentos/internal/policy"
	"github.com/agentos/agentos/internal/proposal"
	"github.com/agentos/agentos/internal/ratelimit"
	"github.com/agentos/agentos/internal/realtime"
	"github.com/agentos/agentos/internal/security"
	"github.com/agentos/agentos/internal/traces"
)

// Server owns every long-lived dependency of the process.
type Server struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger

	db      *sql.DB       // nil if using in-memory
	redis   *redis.Client // nil unless REDIS_URL is set
	backend Backend

	auth        *agentauth.Authenticator
	reaper      *agentauth.Reaper // nil for stores that expire keys themselves
	replayName  string
	hub         *realtime.Hub
	auditLog    *audit.Log
	agents      *agents.Service
	invoices    *invoices.Service
	policy      *policy.Reader
	proposals   *proposal.Service
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	router        *gin.Engine
	httpSrv       *http.Server
	stopTracing   func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run
	drainDelay    time.Duration
	ready         atomic.Bool
	shutdownStart atomic.Bool
}

// Option customizes a Server before it is wired.
type Option func(*Server)

// WithLogger replaces the default stdout logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the build version reported by health endpoints.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithBackend injects a chain backend instead of dialing RPC_URL.
func WithBackend(b Backend) Option {
	return func(s *Server) {
		s.backend = b
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// sending traffic before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New opens storage, connects the chain backend and builds the router.
// Nothing listens until Run.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		version:    "dev",
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg, s.logger)
		if err != nil {
			return nil, err
		}
		s.db = db
		if err := metrics.RegisterDB(db, "agentos"); err != nil {
			s.logger.Warn("database pool metrics unavailable", "error", err)
		}
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			s.closeStores()
			return nil, err
		}
		s.redis = rdb
	}

	if s.backend == nil {
		b, err := newBackend(cfg, s.logger)
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("chain backend: %w", err)
		}
		s.backend = b
	}

	stopTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	s.stopTracing = stopTracing
	metrics.SetBuildInfo(s.version)

	s.wire()

	s.router = gin.New()
	s.router.Use(s.middleware()...)
	s.routes()

	return s, nil
}

// wire builds the domain services on top of storage and the chain backend.
func (s *Server) wire() {
	st := newStores(s.db)

	store, purger, name := replayStore(s.cfg, s.db, s.redis)
	s.replayName = name
	guard := agentauth.NewReplayGuard(store, name, s.logger)
	if purger != nil {
		s.reaper = agentauth.NewReaper(purger, s.cfg.ReplayReapInterval, s.cfg.TimestampSkew, s.logger)
	}
	s.auth = agentauth.New(guard,
		agentauth.WithTolerance(s.cfg.TimestampSkew),
		agentauth.WithStrictReplay(s.cfg.ReplayStrict),
		agentauth.WithLogger(s.logger),
	)
	if !s.cfg.ReplayStrict {
		s.logger.Warn("replay protection is lenient: requests are admitted when the replay store is unavailable")
	}
	s.logger.Info("replay store selected", "store", name, "strict", s.cfg.ReplayStrict)

	s.hub = realtime.NewHub(s.logger)
	s.auditLog = audit.NewLog(st.audit).WithBroadcaster(s.hub)
	s.agents = agents.NewService(st.agents).WithRecorder(s.auditLog)
	s.invoices = invoices.NewService(st.invoices, s.agents).WithRecorder(s.auditLog)

	s.policy = policy.NewReader(s.backend).WithCacheTTL(s.cfg.PolicyCacheTTL)
	s.proposals = proposal.NewService(s.agents, s.policy, s.backend, authz.New(s.backend)).
		WithRecorder(s.auditLog).
		WithBroadcaster(s.hub).
		WithConfirmTimeout(s.cfg.ConfirmTimeout)
	if s.cfg.HasServerSigner() {
		s.proposals.WithSigner(s.backend)
	}
	s.logger.Info("proposal mode", "mode", string(s.proposals.Mode()))

	s.checks = health.NewRegistry(health.DefaultTimeout)
	s.checks.Register("rpc", s.backend.Ping)
	if s.db != nil {
		s.checks.Register("database", s.db.PingContext)
	}
	if s.redis != nil {
		s.checks.Register("redis", func(ctx context.Context) error { return s.redis.Ping(ctx).Err() })
	}
}

func (s *Server) routes() {
	s.router.GET("/health", s.checks.Handler())
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.rateLimiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: s.cfg.RateLimitRPM})

	api := s.router.Group(agentapi.BasePath, s.rateLimiter.Middleware())
	discovery := agentapi.NewHandler(s.auth, s.agents, s.version, s.cfg.HasServerSigner()).WithStreamer(s.hub)
	discovery.RegisterPublicRoutes(api)

	signed := api.Group("", agentauth.Middleware(s.auth))
	discovery.RegisterRoutes(signed)
	agents.NewHandler(s.agents).RegisterAgentRoutes(signed)
	audit.NewHandler(s.auditLog, s.agents).RegisterAgentRoutes(signed)
	invoicesHandler := invoices.NewHandler(s.invoices, s.cfg.PublicOrigin)
	invoicesHandler.RegisterAgentRoutes(signed)
	policy.NewHandler(s.policy, s.agents).RegisterRoutes(signed)
	proposal.NewHandler(s.proposals).RegisterRoutes(signed)

	if s.cfg.AdminSecret == "" && s.cfg.IsDevelopment() {
		s.logger.Warn("admin routes are open: set ADMIN_SECRET outside development")
	}
	admin := s.router.Group("/api/admin",
		s.rateLimiter.Middleware(),
		security.AdminMiddleware(s.cfg.AdminSecret, s.cfg.IsDevelopment()),
	)
	agents.NewHandler(s.agents).RegisterAdminRoutes(admin)
	audit.NewHandler(s.auditLog, s.agents).RegisterAdminRoutes(admin)
	invoicesHandler.RegisterAdminRoutes(admin)

	s.router.NoRoute(func(c *gin.Context) {
		envelope.Fail(c, http.StatusNotFound, envelope.CodeNotFound, "route not found")
	})
}

// Router exposes the engine to tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
