package orderstate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-bff/internal/lock"
)

// LegacyPatterns are the key families written before the versioned record.
var LegacyPatterns = []string{"lastOrder:*", "ultimaOrden:*", "orderData:*", "pendingOrder:*", "cart:*"}

// Migrator purges legacy order and cart keys once per deployment.
type Migrator struct {
	R        *redis.Client
	Locker   lock.Locker
	Patterns []string
	Marker   string
}

func (m Migrator) marker() string {
	if m.Marker == "" {
		return "storefront:migrations:orderstate-v2"
	}
	return m.Marker
}

// Run deletes every key matching the legacy patterns and records a marker so
// later starts skip the scan. Concurrent instances serialise on a lock; the
// second one finds the marker and returns 0.
func (m Migrator) Run(ctx context.Context) (int, error) {
	if m.R == nil {
		return 0, fmt.Errorf("orderstate migration: redis client not configured")
	}
	patterns := m.Patterns
	if patterns == nil {
		patterns = LegacyPatterns
	}
	purged := 0
	err := m.Locker.WithLock(ctx, "orderstate:migration", time.Minute, func(ctx context.Context) error {
		done, err := m.R.Exists(ctx, m.marker()).Result()
		if err != nil {
			return err
		}
		if done > 0 {
			return nil
		}
		for _, pattern := range patterns {
			n, err := m.purge(ctx, pattern)
			purged += n
			if err != nil {
				return fmt.Errorf("purge %s: %w", pattern, err)
			}
		}
		return m.R.Set(ctx, m.marker(), time.Now().UTC().Format(time.RFC3339), 0).Err()
	})
	if err != nil {
		return purged, err
	}
	if purged > 0 {
		zerolog.Ctx(ctx).Info().Int("keys", purged).Msg("legacy_order_state_purged")
	}
	return purged, nil
}

func (m Migrator) purge(ctx context.Context, pattern string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.R.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			n, err := m.R.Del(ctx, keys...).Result()
			total += int(n)
			if err != nil {
				return total, err
			}
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
