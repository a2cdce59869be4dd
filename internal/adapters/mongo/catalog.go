// Package mongo keeps the property catalog, user directory and audit trail in
// MongoDB.
package mongo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type CatalogRepository struct {
	rooms  *mongo.Collection
	users  *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		rooms:  db.Collection("rooms"),
		users:  db.Collection("users"),
		logger: logger,
	}
}

type RoomDoc struct {
	ID           int64  `bson:"_id"`
	PropertyID   int64  `bson:"property_id"`
	PropertyName string `bson:"property_name"`
	TenantID     string `bson:"tenant_id"`
	Name         string `bson:"name"`
	Capacity     int    `bson:"capacity"`
	NightlyRate  string `bson:"nightly_rate"`
}

type UserDoc struct {
	ID     string     `bson:"_id"`
	Name   string     `bson:"name"`
	Email  string     `bson:"email"`
	Kind   string     `bson:"kind"`
	Tenant *TenantDoc `bson:"tenant,omitempty"`
}

type TenantDoc struct {
	BusinessName string `bson:"business_name"`
	Phone        string `bson:"phone,omitempty"`
	Verified     bool   `bson:"verified"`
}

func (c *CatalogRepository) GetRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	var doc RoomDoc
	if err := c.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&doc); err != nil {
		return nil, c.lookupError(err, "room", roomID)
	}
	tenantID, err := uuid.Parse(doc.TenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "room %d tenant id", roomID)
	}
	rate, err := decimal.NewFromString(doc.NightlyRate)
	if err != nil {
		return nil, errors.Wrapf(err, "room %d nightly rate", roomID)
	}
	return &domain.Room{
		ID:           doc.ID,
		PropertyID:   doc.PropertyID,
		PropertyName: doc.PropertyName,
		TenantID:     tenantID,
		Name:         doc.Name,
		Capacity:     doc.Capacity,
		NightlyRate:  rate,
	}, nil
}

func (c *CatalogRepository) GetUser(ctx context.Context, userID uuid.UUID) (*domain.UserView, error) {
	var doc UserDoc
	if err := c.users.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc); err != nil {
		return nil, c.lookupError(err, "user", userID)
	}
	u := &domain.UserView{
		ID:    userID,
		Name:  doc.Name,
		Email: doc.Email,
		Kind:  domain.UserKind(doc.Kind),
	}
	if doc.Tenant != nil {
		u.Tenant = &domain.TenantProfile{
			BusinessName: doc.Tenant.BusinessName,
			Phone:        doc.Tenant.Phone,
			Verified:     doc.Tenant.Verified,
		}
	}
	return u, nil
}

// PutRoom upserts a room; used for seeding.
func (c *CatalogRepository) PutRoom(ctx context.Context, r domain.Room) error {
	doc := RoomDoc{
		ID:           r.ID,
		PropertyID:   r.PropertyID,
		PropertyName: r.PropertyName,
		TenantID:     r.TenantID.String(),
		Name:         r.Name,
		Capacity:     r.Capacity,
		NightlyRate:  r.NightlyRate.String(),
	}
	_, err := c.rooms.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, upsert())
	return errors.Wrapf(err, "put room %d", r.ID)
}

func (c *CatalogRepository) PutUser(ctx context.Context, u domain.UserView) error {
	doc := UserDoc{ID: u.ID.String(), Name: u.Name, Email: u.Email, Kind: string(u.Kind)}
	if u.Tenant != nil {
		doc.Tenant = &TenantDoc{BusinessName: u.Tenant.BusinessName, Phone: u.Tenant.Phone, Verified: u.Tenant.Verified}
	}
	_, err := c.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, upsert())
	return errors.Wrapf(err, "put user %s", u.ID)
}

func (c *CatalogRepository) lookupError(err error, what string, id interface{}) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrapf(domain.ErrNotFound, "%s %v", what, id)
	}
	c.logger.WithError(err).WithField(what, id).Error("catalog lookup failed")
	return errors.Wrapf(err, "get %s %v", what, id)
}
