package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// Item is one cart entry. UnitPrice and UnitsPerItem are captured from the
// catalog when the item is added.
type Item struct {
	ProductID    string        `json:"productId"`
	Name         string        `json:"name"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	Quantity     int           `json:"quantity"`
	UnitsPerItem int           `json:"unitsPerItem"`
	ImageURL     string        `json:"imageUrl,omitempty"`
}

// Snapshot is the persisted cart of one session.
type Snapshot struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LineItems converts the snapshot into pricing inputs.
func (s Snapshot) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, pricing.NewLineItem(it.ProductID, it.UnitPrice, it.Quantity, it.UnitsPerItem))
	}
	return out
}

func (s Snapshot) indexOf(productID string) int {
	for i, it := range s.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Store keeps one snapshot per session in Redis. Writes replace the whole
// snapshot; the last write wins.
type Store struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s Store) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "storefront:cart:v2:"
	}
	return prefix + sessionID
}

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Load returns the session snapshot. A missing cart is empty, not an error.
func (s Store) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	if s.R == nil {
		return Snapshot{}, errors.New("cart store not configured")
	}
	data, err := s.R.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{Items: []Item{}}, nil
		}
		return Snapshot{}, fmt.Errorf("load cart: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// an unreadable snapshot is dropped rather than blocking the shopper
		_ = s.R.Del(ctx, s.key(sessionID)).Err()
		return Snapshot{Items: []Item{}}, nil
	}
	if snap.Items == nil {
		snap.Items = []Item{}
	}
	return snap, nil
}

// Save replaces the session snapshot and refreshes its expiry.
func (s Store) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.R.Set(ctx, s.key(sessionID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the session snapshot.
func (s Store) Delete(ctx context.Context, sessionID string) error {
	if s.R == nil {
		return errors.New("cart store not configured")
	}
	if err := s.R.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
