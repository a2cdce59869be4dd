package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Room struct {
	ID           int64
	PropertyID   int64
	PropertyName string
	TenantID     uuid.UUID
	Name         string
	Capacity     int
	NightlyRate  decimal.Decimal
}

// Quote prices a stay of the given number of nights.
func (r Room) Quote(nights int) decimal.Decimal {
	return r.NightlyRate.Mul(decimal.NewFromInt(int64(nights)))
}

type UserKind string

const (
	UserKindTraveler UserKind = "USER"
	UserKindTenant   UserKind = "TENANT"
)

// UserView is a base user record; Tenant is set only when Kind is TENANT.
type UserView struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Kind   UserKind       `json:"kind"`
	Tenant *TenantProfile `json:"tenant,omitempty"`
}

type TenantProfile struct {
	BusinessName string `json:"business_name"`
	Phone        string `json:"phone,omitempty"`
	Verified     bool   `json:"verified"`
}

func (u UserView) IsTenant() bool {
	return u.Kind == UserKindTenant && u.Tenant != nil
}

type BookingFilter struct {
	Search string
	Page   int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}

func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.Size
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}
