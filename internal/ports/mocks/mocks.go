// Package mocks holds testify mocks for the ports collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/robertarktes/property-bookings/internal/domain"
	"github.com/stretchr/testify/mock"
)

type Notifier struct {
	mock.Mock
}

func (m *Notifier) SendReminder(ctx context.Context, user domain.UserView, b domain.Booking) error {
	args := m.Called(ctx, user, b)
	return args.Error(0)
}

func (m *Notifier) SendPaymentStatusChange(ctx context.Context, user domain.UserView, p domain.Payment) error {
	args := m.Called(ctx, user, p)
	return args.Error(0)
}

// NewNotifier returns a Notifier that accepts every call.
func NewNotifier() *Notifier {
	n := &Notifier{}
	n.On("SendReminder", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("SendPaymentStatusChange", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return n
}

type Auditor struct {
	mock.Mock
}

func (m *Auditor) LogTransition(ctx context.Context, e domain.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// NewAuditor returns an Auditor that accepts every call.
func NewAuditor() *Auditor {
	a := &Auditor{}
	a.On("LogTransition", mock.Anything, mock.Anything).Return(nil).Maybe()
	return a
}

type Locker struct {
	mock.Mock
}

func (m *Locker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *Locker) Release(ctx context.Context, key, owner string) error {
	args := m.Called(ctx, key, owner)
	return args.Error(0)
}
