package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/property-bookings/internal/domain"
)

// Catalog is a map-backed room and user directory.
type Catalog struct {
	mu    sync.RWMutex
	rooms map[int64]domain.Room
	users map[uuid.UUID]domain.UserView
}

func NewCatalog() *Catalog {
	return &Catalog{
		rooms: make(map[int64]domain.Room),
		users: make(map[uuid.UUID]domain.UserView),
	}
}

func (c *Catalog) PutRoom(r domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[r.ID] = r
}

func (c *Catalog) PutUser(u domain.UserView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}

func (c *Catalog) GetRoom(_ context.Context, roomID int64) (*domain.Room, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (c *Catalog) GetUser(_ context.Context, userID uuid.UUID) (*domain.UserView, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}
