package orderstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-bff/internal/checkout"
)

// Version is the current record schema. Records with any other version are
// discarded on load.
const Version = 2

// DefaultTTL is how long a current-order record stays readable.
const DefaultTTL = 7 * 24 * time.Hour

// ErrNoCurrentOrder is returned when the session has no live record.
var ErrNoCurrentOrder = errors.New("orderstate: no current order")

// Record is the persisted current order of one session.
type Record struct {
	Version   int                      `json:"version"`
	Order     checkout.NormalizedOrder `json:"order"`
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
}

// Store keeps a single versioned key per session. It replaces the scattered
// per-purpose keys older clients wrote.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
	Now    func() time.Time
}

func (s Store) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "storefront:order:v2:"
	}
	return prefix + sessionID
}

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Save records order as the session's current order.
func (s Store) Save(ctx context.Context, sessionID string, order checkout.NormalizedOrder) error {
	_, err := s.write(ctx, sessionID, order)
	return err
}

func (s Store) write(ctx context.Context, sessionID string, order checkout.NormalizedOrder) (Record, error) {
	if s.R == nil {
		return Record{}, errors.New("order state store not configured")
	}
	rec := Record{Version: Version, Order: order, Status: order.Status, Timestamp: s.now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode order state: %w", err)
	}
	if err := s.R.Set(ctx, s.key(sessionID), data, s.ttl()).Err(); err != nil {
		return Record{}, fmt.Errorf("save order state: %w", err)
	}
	return rec, nil
}

// Load returns the session's current order. Records past the TTL, with an
// unknown version or that cannot be decoded are purged and reported as
// ErrNoCurrentOrder.
func (s Store) Load(ctx context.Context, sessionID string) (Record, error) {
	if s.R == nil {
		return Record{}, errors.New("order state store not configured")
	}
	key := s.key(sessionID)
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNoCurrentOrder
		}
		return Record{}, fmt.Errorf("load order state: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != Version || rec.Order.OrderID == "" ||
		s.now().Sub(rec.Timestamp) > s.ttl() {
		_ = s.R.Del(ctx, key).Err()
		return Record{}, ErrNoCurrentOrder
	}
	return rec, nil
}

// UpdateStatus replaces the stored order with a fresher read of the same
// order. The timestamp is kept so refreshes do not extend the record's life.
func (s Store) UpdateStatus(ctx context.Context, sessionID string, order checkout.NormalizedOrder) (Record, error) {
	current, err := s.Load(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if current.Order.OrderID != order.OrderID {
		return Record{}, fmt.Errorf("order %q is no longer current: %w", order.OrderID, ErrNoCurrentOrder)
	}
	if order.CheckoutURL == "" {
		order.CheckoutURL = current.Order.CheckoutURL
	}
	if len(order.Items) == 0 {
		order.Items = current.Order.Items
	}
	rec := Record{Version: Version, Order: order, Status: order.Status, Timestamp: current.Timestamp}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode order state: %w", err)
	}
	remaining := s.ttl() - s.now().Sub(current.Timestamp)
	if remaining <= 0 {
		remaining = time.Second
	}
	if err := s.R.Set(ctx, s.key(sessionID), data, remaining).Err(); err != nil {
		return Record{}, fmt.Errorf("save order state: %w", err)
	}
	return rec, nil
}

// Clear removes the session's current order.
func (s Store) Clear(ctx context.Context, sessionID string) error {
	if s.R == nil {
		return errors.New("order state store not configured")
	}
	return s.R.Del(ctx, s.key(sessionID)).Err()
}
