package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/events"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
)

// ErrStillPending is returned by Refresh when the order service still
// reports the order as pending.
var ErrStillPending = errors.New("order: still pending")

// Reader reads an order from the order service.
type Reader interface {
	GetOrder(ctx context.Context, id string) (checkout.NormalizedOrder, error)
}

// StateStore is the persisted current-order record.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (orderstate.Record, error)
	UpdateStatus(ctx context.Context, sessionID string, order checkout.NormalizedOrder) (orderstate.Record, error)
}

// EventEmitter publishes domain events.
type EventEmitter interface {
	Emit(ctx context.Context, topic, key string, payload any) (events.Event, error)
}

// StatusChangedEvent is the payload of TopicOrderStatusChanged.
type StatusChangedEvent struct {
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Refresher re-reads the session's current order and stores the new status.
type Refresher struct {
	Orders Reader
	State  StateStore
	Events EventEmitter
}

// Refresh reads orderID through the retrying read path and updates the
// session record. An empty orderID refreshes whatever order is current. A
// read that would move a settled order back to pending is ignored.
func (r Refresher) Refresh(ctx context.Context, sessionID, orderID string) (orderstate.Record, error) {
	ctx, span := obs.StartSpan(ctx, "order.refresh", attribute.String("storefront.session_id", sessionID))
	defer span.End()

	current, err := r.State.Load(ctx, sessionID)
	if err != nil {
		return orderstate.Record{}, err
	}
	if orderID == "" {
		orderID = current.Order.OrderID
	}
	if current.Order.OrderID != orderID {
		return orderstate.Record{}, fmt.Errorf("order %q replaced by %q: %w", orderID, current.Order.OrderID, orderstate.ErrNoCurrentOrder)
	}

	span.SetAttributes(attribute.String("order.id", orderID))

	fresh, err := r.Orders.GetOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return current, err
	}
	if statusRank(fresh.Status) < statusRank(current.Status) {
		zerolog.Ctx(ctx).Debug().Str("order_id", orderID).Str("stored", current.Status).
			Str("read", fresh.Status).Msg("order_status_regression_ignored")
		return current, nil
	}

	rec, err := r.State.UpdateStatus(ctx, sessionID, fresh)
	if err != nil {
		return current, err
	}
	if rec.Status != current.Status && r.Events != nil {
		payload := StatusChangedEvent{OrderID: orderID, SessionID: sessionID, From: current.Status, To: rec.Status}
		if _, err := r.Events.Emit(ctx, events.TopicOrderStatusChanged, orderID, payload); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("order_status_event_failed")
		}
	}
	if !rec.Order.Settled() {
		return rec, ErrStillPending
	}
	return rec, nil
}

func statusRank(status string) int {
	switch status {
	case "", checkout.StatusPending:
		return 0
	default:
		return 1
	}
}
