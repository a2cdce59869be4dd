package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/robertarktes/property-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/property-bookings/internal/app"
	"github.com/robertarktes/property-bookings/internal/config"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/outbox"
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

	infra := &app.Infra{}
	defer infra.Close()
	if err := infra.ConnectCRDB(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	if err := infra.ConnectRabbit(cfg); err != nil {
		log.Fatalf("%v", err)
	}

	rabbitPub, err := rabbit.NewPublisher(infra.Rabbit)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(infra.Repo, rabbitPub, cfg.OutboxInterval, cfg.OutboxBatch, logger)

	logger.Info("Outbox publisher started")
	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
