package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN       string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RabbitURL     string
	HTTPAddr      string
	OTLPEndpoint  string
	ServiceName   string
	LogLevel      string
	Migrate       bool

	// PaymentWindow applies to both payment methods.
	PaymentWindow      time.Duration
	SweepInterval      time.Duration
	SweepLeaseTTL      time.Duration
	ReminderInterval   time.Duration
	ReminderLead       time.Duration
	CompletionInterval time.Duration
	OutboxInterval     time.Duration
	OutboxBatch        int
	GatewayQueue       string
	IdempotencyTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CRDBDSN:       os.Getenv("CRDB_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: stringEnv("MONGO_DB", "stays"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RabbitURL:     os.Getenv("RABBIT_URL"),
		HTTPAddr:      stringEnv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:   stringEnv("OTEL_SERVICE_NAME", "property-bookings"),
		LogLevel:      stringEnv("LOG_LEVEL", "info"),
		GatewayQueue:  stringEnv("GATEWAY_QUEUE", "payments.gateway.q"),
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"PAYMENT_WINDOW", 30 * time.Minute, &cfg.PaymentWindow},
		{"SWEEP_INTERVAL", time.Minute, &cfg.SweepInterval},
		{"SWEEP_LEASE_TTL", 50 * time.Second, &cfg.SweepLeaseTTL},
		{"REMINDER_INTERVAL", 24 * time.Hour, &cfg.ReminderInterval},
		{"REMINDER_LEAD", 24 * time.Hour, &cfg.ReminderLead},
		{"COMPLETION_INTERVAL", time.Hour, &cfg.CompletionInterval},
		{"OUTBOX_INTERVAL", 5 * time.Second, &cfg.OutboxInterval},
		{"IDEMPOTENCY_TTL", time.Hour, &cfg.IdempotencyTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.OutboxBatch, err = intEnv("OUTBOX_BATCH", 50); err != nil {
		return nil, err
	}
	if cfg.Migrate, err = boolEnv("MIGRATE", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PaymentWindow <= 0 {
		return errors.New("PAYMENT_WINDOW must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.SweepLeaseTTL >= c.SweepInterval {
		return errors.WithHint(
			errors.Newf("SWEEP_LEASE_TTL %s must be shorter than SWEEP_INTERVAL %s", c.SweepLeaseTTL, c.SweepInterval),
			"a lease outliving the interval makes every other tick skip",
		)
	}
	if c.OutboxBatch <= 0 {
		return errors.New("OUTBOX_BATCH must be positive")
	}
	return nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "parse %s", key)
	}
	return b, nil
}
