// Package app dials the backing services and assembles the booking core for
// the binaries under cmd/.
package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/property-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/property-bookings/internal/adapters/mongo"
	"github.com/robertarktes/property-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/property-bookings/internal/audit"
	"github.com/robertarktes/property-bookings/internal/availability"
	"github.com/robertarktes/property-bookings/internal/booking"
	"github.com/robertarktes/property-bookings/internal/config"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/robertarktes/property-bookings/internal/payment"
	"github.com/robertarktes/property-bookings/internal/transaction"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Infra holds live connections. Close releases them in reverse order.
type Infra struct {
	Pool   *pgxpool.Pool
	Repo   *crdb.Repository
	Mongo  *mongo.Client
	DB     *mongo.Database
	Redis  *redis.Client
	Rabbit *amqp.Connection

	closers []func()
}

func (i *Infra) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func (i *Infra) ConnectCRDB(ctx context.Context, cfg *config.Config) error {
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return errors.Wrap(err, "connect to crdb")
	}
	i.closers = append(i.closers, pool.Close)
	i.Pool = pool
	i.Repo = crdb.NewRepository(pool)
	if cfg.Migrate {
		if err := i.Repo.Migrate(ctx); err != nil {
			return errors.Wrap(err, "migrate crdb")
		}
	}
	return nil
}

func (i *Infra) ConnectMongo(ctx context.Context, cfg *config.Config) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return errors.Wrap(err, "connect to mongo")
	}
	i.closers = append(i.closers, func() { _ = client.Disconnect(context.Background()) })
	i.Mongo = client
	i.DB = client.Database(cfg.MongoDatabase)
	return nil
}

func (i *Infra) ConnectRedis(cfg *config.Config) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	i.closers = append(i.closers, func() { _ = client.Close() })
	i.Redis = client
}

func (i *Infra) ConnectRabbit(cfg *config.Config) error {
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return errors.Wrap(err, "connect to rabbitmq")
	}
	i.closers = append(i.closers, func() { _ = conn.Close() })
	i.Rabbit = conn
	return nil
}

// Connect dials every backing service.
func Connect(ctx context.Context, cfg *config.Config) (*Infra, error) {
	i := &Infra{}
	if err := i.ConnectCRDB(ctx, cfg); err != nil {
		i.Close()
		return nil, err
	}
	if err := i.ConnectMongo(ctx, cfg); err != nil {
		i.Close()
		return nil, err
	}
	i.ConnectRedis(cfg)
	if err := i.ConnectRabbit(cfg); err != nil {
		i.Close()
		return nil, err
	}
	return i, nil
}

// Core is the assembled booking domain.
type Core struct {
	Catalog  *mongoadapter.CatalogRepository
	Checker  *availability.Checker
	Bookings *booking.Manager
	Payments *payment.Manager
	Orch     *transaction.Orchestrator
}

// Core wires the managers to crdb, the mongo catalog and audit trail, and a
// rabbit notifier. It needs every connection.
func (i *Infra) Core(cfg *config.Config, logger observability.Logger) (*Core, error) {
	pub, err := rabbit.NewPublisher(i.Rabbit)
	if err != nil {
		return nil, errors.Wrap(err, "create publisher")
	}
	i.closers = append(i.closers, func() { _ = pub.Close() })

	catalog := mongoadapter.NewCatalogRepository(i.DB, logger)
	auditLog := mongoadapter.NewAuditLogger(i.DB, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := auditLog.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("audit index not created")
	}

	notifier := rabbit.NewNotifier(pub)
	recorder := audit.NewRecorder(auditLog, logger)
	checker := availability.NewChecker(i.Repo)
	bookings := booking.NewManager(i.Repo, checker, catalog, notifier, recorder, logger,
		booking.WithReminderLead(cfg.ReminderLead))
	payments := payment.NewManager(i.Repo, bookings, catalog, notifier, recorder, logger,
		payment.WithWindow(cfg.PaymentWindow))
	orch := transaction.NewOrchestrator(i.Repo, catalog, bookings, payments, logger)

	return &Core{Catalog: catalog, Checker: checker, Bookings: bookings, Payments: payments, Orch: orch}, nil
}
