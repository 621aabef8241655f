package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/telemetry"
)

const serviceName = "clinic"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Clinic.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(rootCtx, cfg.Trace, "clinic-api", cfg.Version)
	if err != nil {
		zl.Fatal("tracer init error", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 30*time.Second)
	pgPool, applied, err := db.ConnectAndMigrate(pgCtx, cfg.PostgresDSN, 20)
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zl.Info("connected to Postgres", zap.Int("migrations_applied", applied))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg, serviceName)

	// Redis is optional at startup: without it the slot lock is bypassed and
	// the unique index alone keeps bookings consistent.
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zl.Warn("redis unavailable, starting degraded", zap.Error(err))
	} else {
		zl.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zl.Warn("error closing redis", zap.Error(err))
		}
	}()

	locker := redisclient.NewRedisSlotLocker(rdb, redisclient.LockConfig{
		TTL:  cfg.LockTTL,
		Wait: cfg.LockWait,
	}, zl, m)

	svc := appointment.NewService(appointment.NewPgStore(pgPool), locker, cfg,
		appointment.WithLogger(zl),
		appointment.WithMetrics(m),
	)

	handler := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Verifier: auth.NewManager(cfg.Auth),
		Logger:   zl,
		Metrics:  m,
		Gatherer: reg,
		PgPool:   pgPool,
		Redis:    rdb,
		Limit:    cfg.Limit,
		Env:      cfg.Env,
		Version:  cfg.Version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		zl.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			zl.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	zl.Info("api-server stopped")
}
