// Package idempotency replays the first response of a request retried under
// the same Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidKey = errors.New("invalid idempotency key")
	ErrInFlight   = errors.New("request with this idempotency key is still in progress")
)

const (
	minKeyLen = 16
	maxKeyLen = 255
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Claim(ctx context.Context, key string, marker []byte, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

// Response is what gets replayed. Status 0 marks a claimed, unfinished key.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func ValidateKey(key string) error {
	if len(key) < minKeyLen || len(key) > maxKeyLen {
		return errors.Wrapf(ErrInvalidKey, "length must be between %d and %d", minKeyLen, maxKeyLen)
	}
	return nil
}

// Begin claims key for a new request. It returns the stored response when
// the key was already completed, and ErrInFlight while another request with
// the same key is running.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	marker, _ := json.Marshal(Response{})
	claimed, err := i.store.Claim(ctx, key, marker, i.ttl)
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if claimed {
		return nil, nil
	}

	data, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "load idempotent response")
	}
	if data == nil {
		// Expired between claim and read; treat as in flight and let the client retry.
		return nil, ErrInFlight
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "decode idempotent response")
	}
	if resp.Status == 0 {
		return nil, ErrInFlight
	}
	return &resp, nil
}

// Complete stores resp for replay. Server errors release the key instead so
// the client can retry.
func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	if resp.Status >= 500 {
		return i.store.Forget(ctx, key)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.store.Set(ctx, key, data, i.ttl)
}
