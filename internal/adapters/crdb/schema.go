package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Schema is idempotent; room_nights_active_uq is the double-booking guard.
const Schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id            UUID PRIMARY KEY,
	user_id       UUID NOT NULL,
	tenant_id     UUID NOT NULL,
	property_id   INT8 NOT NULL,
	property_name STRING NOT NULL,
	room_id       INT8 NOT NULL,
	check_in      DATE NOT NULL,
	check_out     DATE NOT NULL,
	adults        INT NOT NULL CHECK (adults >= 0),
	children      INT NOT NULL CHECK (children >= 0),
	infants       INT NOT NULL CHECK (infants >= 0),
	amount        DECIMAL(12,2) NOT NULL CHECK (amount > 0),
	status        STRING NOT NULL CHECK (status IN ('WAITING_FOR_PAYMENT', 'WAITING_FOR_CONFIRMATION', 'CONFIRMED', 'CANCELLED', 'REJECTED', 'DONE')),
	version       INT8 NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at    TIMESTAMPTZ,
	CHECK (check_out > check_in),
	INDEX bookings_room_range_idx (room_id, check_in, check_out),
	INDEX bookings_user_idx (user_id, created_at DESC),
	INDEX bookings_tenant_idx (tenant_id, created_at DESC)
);

CREATE TABLE IF NOT EXISTS room_nights (
	booking_id UUID NOT NULL REFERENCES bookings (id),
	night      DATE NOT NULL,
	room_id    INT8 NOT NULL,
	status     STRING NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'RELEASED')),
	PRIMARY KEY (booking_id, night)
);
CREATE UNIQUE INDEX IF NOT EXISTS room_nights_active_uq ON room_nights (room_id, night) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS booking_items (
	id         UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings (id),
	extend_to  DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX booking_items_booking_idx (booking_id)
);

CREATE TABLE IF NOT EXISTS booking_requests (
	id             UUID PRIMARY KEY,
	booking_id     UUID NOT NULL UNIQUE REFERENCES bookings (id),
	check_in_time  STRING NOT NULL DEFAULT '',
	check_out_time STRING NOT NULL DEFAULT '',
	non_smoking    BOOL NOT NULL DEFAULT false,
	notes          STRING NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	id         UUID PRIMARY KEY,
	booking_id UUID NOT NULL UNIQUE REFERENCES bookings (id),
	order_id   STRING NOT NULL UNIQUE,
	amount     DECIMAL(12,2) NOT NULL CHECK (amount > 0),
	method     STRING NOT NULL CHECK (method IN ('PROOF_UPLOAD', 'VIRTUAL_ACCOUNT')),
	status     STRING NOT NULL CHECK (status IN ('PENDING', 'WAITING_FOR_CONFIRMATION', 'CONFIRMED', 'REJECTED', 'EXPIRED')),
	proof_ref  STRING,
	bank_va    STRING,
	expires_at TIMESTAMPTZ NOT NULL,
	guest_cancelled BOOL NOT NULL DEFAULT false,
	version    INT8 NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX payments_status_expiry_idx (status, expires_at)
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type STRING NOT NULL,
	aggregate_id   UUID NOT NULL,
	event_type     STRING NOT NULL,
	payload_json   JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ,
	status         STRING NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key     STRING NOT NULL UNIQUE,
	INDEX outbox_status_created_idx (status, created_at)
);
`

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}
