package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/property-bookings/internal/adapters/mongo"
	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/robertarktes/property-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("mongo container tests are skipped with -short")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })
	return client.Database("stays_test")
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	repo := mongoadapter.NewCatalogRepository(newDatabase(t), observability.NewDiscardLogger())

	host := domain.UserView{
		ID:     uuid.New(),
		Name:   "Budi",
		Email:  "budi@example.com",
		Kind:   domain.UserKindTenant,
		Tenant: &domain.TenantProfile{BusinessName: "Kemang Stays", Verified: true},
	}
	room := domain.Room{
		ID:           10,
		PropertyID:   3,
		PropertyName: "Villa Kemang",
		TenantID:     host.ID,
		Name:         "Deluxe",
		Capacity:     2,
		NightlyRate:  decimal.RequireFromString("75.50"),
	}
	require.NoError(t, repo.PutUser(ctx, host))
	require.NoError(t, repo.PutRoom(ctx, room))

	got, err := repo.GetRoom(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, host.ID, got.TenantID)
	assert.True(t, got.NightlyRate.Equal(room.NightlyRate))
	assert.Equal(t, 2, got.Capacity)

	u, err := repo.GetUser(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, u.IsTenant())
	assert.Equal(t, "Kemang Stays", u.Tenant.BusinessName)

	_, err = repo.GetRoom(ctx, 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = repo.GetUser(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAuditLogger_History(t *testing.T) {
	ctx := context.Background()
	audit := mongoadapter.NewAuditLogger(newDatabase(t), observability.NewDiscardLogger())
	require.NoError(t, audit.EnsureIndexes(ctx))

	id := uuid.New()
	at := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, audit.LogTransition(ctx, domain.AuditEntry{Entity: "payment", EntityID: id, From: "PENDING", To: "EXPIRED", Actor: "system", At: at.Add(time.Minute)}))
	require.NoError(t, audit.LogTransition(ctx, domain.AuditEntry{Entity: "payment", EntityID: id, From: "", To: "PENDING", Actor: "user", At: at}))
	require.NoError(t, audit.LogTransition(ctx, domain.AuditEntry{Entity: "payment", EntityID: uuid.New(), To: "PENDING", At: at}))

	history, err := audit.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "PENDING", history[0].To)
	assert.Equal(t, "EXPIRED", history[1].To)
	assert.True(t, history[1].At.Equal(at.Add(time.Minute)))
}
