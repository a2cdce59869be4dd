package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID       string    `bson:"_id"`
	Entity   string    `bson:"entity"`
	EntityID string    `bson:"entity_id"`
	From     string    `bson:"from"`
	To       string    `bson:"to"`
	Actor    string    `bson:"actor"`
	At       time.Time `bson:"at"`
}

func (a *AuditLogger) LogTransition(ctx context.Context, e domain.AuditEntry) error {
	log := AuditLog{
		ID:       uuid.NewString(),
		Entity:   e.Entity,
		EntityID: e.EntityID.String(),
		From:     e.From,
		To:       e.To,
		Actor:    e.Actor,
		At:       e.At,
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.WithError(err).WithField("entity_id", log.EntityID).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

// History returns the transitions of one entity, oldest first.
func (a *AuditLogger) History(ctx context.Context, entityID uuid.UUID) ([]domain.AuditEntry, error) {
	cur, err := a.coll.Find(ctx,
		bson.M{"entity_id": entityID.String()},
		options.Find().SetSort(bson.D{{Key: "at", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find audit logs")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit logs")
	}
	out := make([]domain.AuditEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, domain.AuditEntry{
			Entity:   l.Entity,
			EntityID: entityID,
			From:     l.From,
			To:       l.To,
			Actor:    l.Actor,
			At:       l.At,
		})
	}
	return out, nil
}

// EnsureIndexes creates the entity lookup index.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "at", Value: 1}},
	})
	return errors.Wrap(err, "create audit index")
}

func upsert() *options.ReplaceOptions {
	return options.Replace().SetUpsert(true)
}
