package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger probes the order service.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

// Deps probes the API's runtime dependencies.
type Deps struct {
	Redis        *redis.Client
	OrderService Pinger
}

// PingRedis issues a PING bounded by timeout.
func (d Deps) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// PingOrderService checks that the order service answers.
func (d Deps) PingOrderService(ctx context.Context, timeout time.Duration) error {
	return d.OrderService.Ping(ctx, timeout)
}
