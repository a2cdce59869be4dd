package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/property-bookings/internal/adapters/redis"
	"github.com/robertarktes/property-bookings/internal/app"
	"github.com/robertarktes/property-bookings/internal/config"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	infra, err := app.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer infra.Close()

	core, err := infra.Core(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble core: %v", err)
	}

	host, _ := os.Hostname()
	owner := host + "-" + uuid.NewString()[:8]

	s := scheduler.New(logger.WithField("worker", owner),
		scheduler.WithLease(redisadapter.NewCache(infra.Redis), cfg.SweepLeaseTTL, owner))
	s.Add(
		scheduler.ExpiryJob(core.Orch, cfg.SweepInterval, logger),
		scheduler.ReminderJob(core.Bookings, cfg.ReminderInterval, logger),
		scheduler.CompletionJob(core.Bookings, cfg.CompletionInterval, logger),
	)

	if err := s.Start(ctx); err != nil {
		logger.WithError(err).Error("scheduler stopped")
	}
	logger.Info("Shutdown expiry worker")
}
