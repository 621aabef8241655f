package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

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
	zl = zl.Named("offday-worker")

	zl.Info("offday worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("horizon_days", cfg.Clinic.BookingHorizonDays),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 30*time.Second)
	pgPool, _, err := db.ConnectAndMigrate(pgCtx, cfg.PostgresDSN, 4)
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	// The sweep only cancels, it never claims a slot, so it runs without the
	// slot locker.
	svc := appointment.NewService(appointment.NewPgStore(pgPool), redisclient.NopLocker{}, cfg,
		appointment.WithLogger(zl),
	)

	runOnce(rootCtx, zl, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zl.Info("shutdown signal received, stopping offday worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, zl, svc)
		}
	}
}

func runOnce(ctx context.Context, zl *zap.Logger, svc *appointment.Service) {
	start := time.Now()
	n, err := svc.SweepHolidayConflicts(ctx)
	if err != nil {
		zl.Error("sweep failed", zap.Error(err))
		return
	}
	zl.Info("sweep complete", zap.Int("cancelled", n), zap.Duration("took", time.Since(start)))
}
