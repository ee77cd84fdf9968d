package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentos/agentos/internal/envelope"
)

const (
	// sweepInterval paces policy cache and rate limiter cleanup.
	sweepInterval = time.Minute

	shutdownTimeout = 30 * time.Second
)

func (s *Server) livenessHandler(c *gin.Context) {
	if s.shutdownStart.Load() {
		envelope.Fail(c, http.StatusServiceUnavailable, envelope.CodeInternal, "shutting down")
		return
	}
	envelope.OK(c, gin.H{"status": "alive"})
}

// readinessHandler reports dependency health, but only once background
// workers are running and until shutdown begins.
func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		envelope.Fail(c, http.StatusServiceUnavailable, envelope.CodeInternal, "not ready")
		return
	}
	s.checks.Handler()(c)
}

// Start launches the realtime hub, the replay reaper and periodic sweeps.
// They run until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancelRunCtx = context.WithCancel(ctx)

	go s.hub.Run(ctx)
	if s.reaper != nil {
		go s.reaper.Start(ctx)
	}
	go s.sweep(ctx)

	s.ready.Store(true)
}

func (s *Server) sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		policies := s.policy.SweepCache()
		buckets := s.rateLimiter.Sweep()
		if policies+buckets > 0 {
			s.logger.Debug("sweep", "policies", policies, "rate_buckets", buckets)
		}
	}
}

// Run serves HTTP until ctx is done, SIGINT or SIGTERM arrives, or the
// listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Submitted proposals hold the response open until the receipt lands.
		WriteTimeout: s.cfg.ConfirmTimeout + 15*time.Second,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening",
			"addr", s.httpSrv.Addr,
			"version", s.version,
			"mode", string(s.proposals.Mode()),
			"replay_store", s.replayName,
		)
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	s.Start(ctx)

	select {
	case err := <-listenErr:
		_ = s.Shutdown()
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}
	return s.Shutdown()
}

// Shutdown flips readiness, waits out the drain delay, stops accepting
// requests and then releases workers, tracing, the chain backend and
// storage. Only the first call does anything.
func (s *Server) Shutdown() error {
	if !s.shutdownStart.CompareAndSwap(false, true) {
		return nil
	}
	s.ready.Store(false)
	s.logger.Info("shutting down", "drain", s.drainDelay)

	if s.httpSrv != nil && s.drainDelay > 0 {
		time.Sleep(s.drainDelay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if err = s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown", "error", err)
		}
	}
	if s.reaper != nil {
		s.reaper.Stop()
	}
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	if terr := s.stopTracing(ctx); terr != nil {
		s.logger.Error("tracing shutdown", "error", terr)
	}
	if berr := s.backend.Close(); berr != nil {
		s.logger.Error("chain backend close", "error", berr)
	}
	s.closeStores()

	s.logger.Info("stopped")
	return err
}

func (s *Server) closeStores() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close", "error", err)
		}
	}
}
