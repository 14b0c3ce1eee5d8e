package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/order"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
)

// TypeOrderRefresh re-reads a pending order's status.
const TypeOrderRefresh = "order:refresh_status"

// RefreshPayload identifies the order to refresh.
type RefreshPayload struct {
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

// NewRefreshTask builds the refresh task for orderID.
func NewRefreshTask(sessionID, orderID string) (*asynq.Task, error) {
	sessionID = strings.TrimSpace(sessionID)
	orderID = strings.TrimSpace(orderID)
	if sessionID == "" || orderID == "" {
		return nil, errors.New("tasks: session and order id are required")
	}
	payload, err := json.Marshal(RefreshPayload{SessionID: sessionID, OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderRefresh, payload), nil
}

// Enqueuer is the part of asynq.Client the scheduler uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues refresh tasks after checkout.
type Scheduler struct {
	Client   Enqueuer
	Delay    time.Duration
	MaxRetry int
	Queue    string
}

// ScheduleRefresh enqueues one refresh per order. A second schedule for the
// same order is a no-op.
func (s Scheduler) ScheduleRefresh(ctx context.Context, sessionID, orderID string) error {
	if s.Client == nil {
		return errors.New("tasks: enqueuer not configured")
	}
	task, err := NewRefreshTask(sessionID, orderID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.TaskID("order-refresh:" + orderID),
		asynq.ProcessIn(s.delay()),
		asynq.MaxRetry(s.maxRetry()),
	}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeOrderRefresh, err)
	}
	return nil
}

func (s Scheduler) delay() time.Duration {
	if s.Delay <= 0 {
		return 30 * time.Second
	}
	return s.Delay
}

func (s Scheduler) maxRetry() int {
	if s.MaxRetry <= 0 {
		return 20
	}
	return s.MaxRetry
}

// RefreshHandler processes TypeOrderRefresh. Pending orders and transient
// read failures return an error so asynq retries; anything final is skipped.
type RefreshHandler struct {
	Refresher order.Refresher
}

// ProcessTask implements asynq.Handler.
func (h RefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.Inc(obs.OrderRefreshes, "invalid")
		return fmt.Errorf("decode %s payload: %v: %w", TypeOrderRefresh, err, asynq.SkipRetry)
	}
	logger := zerolog.Ctx(ctx).With().Str("order_id", p.OrderID).Str("session_id", p.SessionID).Logger()

	rec, err := h.Refresher.Refresh(ctx, p.SessionID, p.OrderID)
	switch {
	case err == nil:
		obs.Inc(obs.OrderRefreshes, "settled")
		logger.Info().Str("status", rec.Status).Msg("order_refresh_settled")
		return nil
	case errors.Is(err, order.ErrStillPending):
		obs.Inc(obs.OrderRefreshes, "pending")
		return err
	case errors.Is(err, orderstate.ErrNoCurrentOrder):
		obs.Inc(obs.OrderRefreshes, "dropped")
		logger.Debug().Msg("order_refresh_dropped")
		return nil
	case common.Retryable(err):
		obs.Inc(obs.OrderRefreshes, "retry")
		logger.Warn().Err(err).Msg("order_refresh_retry")
		return err
	default:
		obs.Inc(obs.OrderRefreshes, "failed")
		logger.Error().Err(err).Msg("order_refresh_failed")
		return fmt.Errorf("refresh order %s: %v: %w", p.OrderID, err, asynq.SkipRetry)
	}
}

// RetryDelay polls pending orders at a fixed interval and backs off
// exponentially on read failures.
func RetryDelay(pollEvery time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if errors.Is(err, order.ErrStillPending) {
			return pollEvery
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}

// NewServeMux registers every task handler.
func NewServeMux(refresh RefreshHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderRefresh, refresh)
	return mux
}
