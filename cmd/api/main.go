package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertarktes/property-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/property-bookings/internal/adapters/redis"
	"github.com/robertarktes/property-bookings/internal/app"
	"github.com/robertarktes/property-bookings/internal/config"
	"github.com/robertarktes/property-bookings/internal/gateway"
	httphandler "github.com/robertarktes/property-bookings/internal/http"
	"github.com/robertarktes/property-bookings/internal/idempotency"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/rateLimit"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

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

	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(infra.Redis), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(infra.Redis, logger)

	handlers := httphandler.NewHandlers(core.Orch, core.Bookings, core.Checker,
		httphandler.ReadinessCheck{Name: "crdb", Check: infra.Pool.Ping},
		httphandler.ReadinessCheck{Name: "mongo", Check: func(ctx context.Context) error { return infra.Mongo.Ping(ctx, nil) }},
		httphandler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }},
	)
	r := httphandler.SetupRouter(handlers, logger, rl, rateLimit.Rule{Limit: 60, Period: time.Minute}, idemp)

	consumer, err := rabbit.NewConsumer(infra.Rabbit, cfg.GatewayQueue, 16)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", cfg.GatewayQueue, err)
	}
	listener := gateway.NewListener(core.Orch, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(ctx, deliveries)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("api stopped")
	}
	logger.Info("Server exiting")
}
