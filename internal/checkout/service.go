package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/events"
	"github.com/noah-isme/storefront-bff/internal/lock"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// CartStore exposes the session cart to checkout.
type CartStore interface {
	LineItems(ctx context.Context, sessionID string) ([]pricing.LineItem, error)
	Clear(ctx context.Context, sessionID string) error
}

// OrderCreator submits an order to the order service. Implementations must
// make exactly one attempt.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req CheckoutRequest) (NormalizedOrder, error)
}

// OrderStateSaver persists the session's current order.
type OrderStateSaver interface {
	Save(ctx context.Context, sessionID string, order NormalizedOrder) error
}

// EventEmitter publishes domain events.
type EventEmitter interface {
	Emit(ctx context.Context, topic, key string, payload any) (events.Event, error)
}

// RefreshScheduler queues a background status read of a pending order.
type RefreshScheduler interface {
	ScheduleRefresh(ctx context.Context, sessionID, orderID string) error
}

// Locker serialises submissions per session.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CacheInvalidator drops cached catalog reads after stock may have changed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service runs checkout submissions.
type Service struct {
	Cart      CartStore
	Orders    OrderCreator
	State     OrderStateSaver
	Events    EventEmitter
	Refresh   RefreshScheduler
	Locker    Locker
	Catalog   CacheInvalidator
	Validator *FormValidator
	Shipping  pricing.ShippingPolicy
	Fees      pricing.FeeConfig
	LockTTL   time.Duration
	Now       func() time.Time
	NewRef    func() string
}

// Result is a successful submission.
type Result struct {
	Order           NormalizedOrder   `json:"order"`
	ClientReference string            `json:"clientReference"`
	Preview         pricing.Breakdown `json:"preview"`
	State           string            `json:"state"`
}

// OrderCreatedEvent is the payload of TopicOrderCreated.
type OrderCreatedEvent struct {
	OrderID         string        `json:"orderId"`
	OrderNumber     string        `json:"orderNumber,omitempty"`
	Status          string        `json:"status"`
	Total           pricing.Money `json:"total"`
	ClientReference string        `json:"clientReference"`
	SessionID       string        `json:"sessionId"`
}

// CheckoutFailedEvent is the payload of TopicCheckoutFailed.
type CheckoutFailedEvent struct {
	ClientReference string `json:"clientReference,omitempty"`
	SessionID       string `json:"sessionId"`
	Kind            string `json:"kind"`
	Message         string `json:"message"`
	Stage           string `json:"stage"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newRef() string {
	if s.NewRef != nil {
		return s.NewRef()
	}
	return uuid.NewString()
}

// lockMargin covers the work after the create call returns.
const lockMargin = 15 * time.Second

// LockTTLFor returns the submit lock TTL for the order service timeout, so
// the lock outlives the create call it guards.
func LockTTLFor(checkoutTimeout time.Duration) time.Duration {
	if checkoutTimeout <= 0 {
		checkoutTimeout = 15 * time.Second
	}
	return checkoutTimeout + lockMargin
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return LockTTLFor(0)
	}
	return s.LockTTL
}

func (s *Service) validator() *FormValidator {
	if s.Validator == nil {
		s.Validator = NewFormValidator()
	}
	return s.Validator
}

// Submit validates form, prices the session cart and creates the order with
// a single call to the order service. The cart is cleared only once the
// order exists; on any failure it is left untouched.
func (s *Service) Submit(ctx context.Context, sessionID string, form CustomerForm) (Result, error) {
	start := time.Now()
	ctx, span := obs.StartSpan(ctx, "checkout.submit", attribute.String("storefront.session_id", sessionID))
	defer span.End()
	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.submit(ctx, NewFlow(), sessionID, form)
		return err
	}

	var err error
	if s.Locker != nil {
		err = s.Locker.TryWithLock(ctx, "checkout:"+sessionID, s.lockTTL(), run)
		if errors.Is(err, lock.ErrLocked) {
			err = common.NewAppError("CHECKOUT_IN_PROGRESS", "a checkout is already in progress for this session",
				http.StatusConflict, ErrInProgress)
		}
	} else {
		err = run(ctx)
	}

	result := resultLabel(err)
	span.SetAttributes(attribute.String("checkout.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	} else {
		span.SetAttributes(attribute.String("order.id", res.Order.OrderID))
	}
	obs.Inc(obs.CheckoutSubmissions, result)
	obs.RecordCheckoutDuration(ctx, time.Since(start), result)
	return res, err
}

func (s *Service) submit(ctx context.Context, flow *Flow, sessionID string, form CustomerForm) (Result, error) {
	logger := zerolog.Ctx(ctx)
	if err := flow.Begin(); err != nil {
		return Result{}, err
	}

	fail := func(stage, ref string, err error) (Result, error) {
		_ = flow.Fail(err)
		s.emitFailure(ctx, sessionID, ref, stage, err)
		logger.Warn().Err(err).Str("stage", stage).Str("kind", string(common.KindOf(err))).Msg("checkout_failed")
		return Result{}, err
	}

	if err := s.validator().Validate(form); err != nil {
		return fail("validate", "", err)
	}
	items, err := s.Cart.LineItems(ctx, sessionID)
	if err != nil {
		return fail("cart", "", err)
	}
	if len(items) == 0 {
		appErr := common.KindError(common.KindInvalidInput, "cart is empty", ErrEmptyCart)
		appErr.Code = "EMPTY_CART"
		return fail("cart", "", appErr)
	}
	breakdown, err := pricing.Quote(items, s.Shipping, s.Fees)
	if err != nil {
		return fail("quote", "", pricing.AsAppError(err))
	}

	ref := s.newRef()
	req := ToCheckoutRequest(items, form, breakdown, ref, s.now())
	if err := flow.Submit(); err != nil {
		return Result{}, err
	}
	order, err := s.Orders.CreateOrder(ctx, req)
	if err != nil {
		return fail("submit", ref, err)
	}
	if err := flow.Succeed(order.OrderID); err != nil {
		return fail("submit", ref, malformed("order response has no order id", err))
	}

	// the order exists; follow-up work must not be cut short by the caller
	ctx = context.WithoutCancel(ctx)
	if s.State != nil {
		if err := s.State.Save(ctx, sessionID, order); err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order_state_save_failed")
		}
	}
	if err := s.Cart.Clear(ctx, sessionID); err != nil {
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("cart_clear_failed")
	}
	if s.Events != nil {
		payload := OrderCreatedEvent{
			OrderID:         order.OrderID,
			OrderNumber:     order.OrderNumber,
			Status:          order.Status,
			Total:           order.Totals.Total,
			ClientReference: ref,
			SessionID:       sessionID,
		}
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, order.OrderID, payload); err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order_created_event_failed")
		}
	}
	if s.Refresh != nil && !order.Settled() {
		if err := s.Refresh.ScheduleRefresh(ctx, sessionID, order.OrderID); err != nil {
			logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order_refresh_enqueue_failed")
		}
	}
	if s.Catalog != nil {
		if err := s.Catalog.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("catalog_invalidate_failed")
		}
	}

	logger.Info().Str("order_id", order.OrderID).Str("status", order.Status).
		Str("client_reference", ref).Int64("total", order.Totals.Total).Msg("checkout_submitted")
	return Result{Order: order, ClientReference: ref, Preview: breakdown, State: flow.State().String()}, nil
}

// Preview prices the session cart, including the advisory surcharge.
func (s *Service) Preview(ctx context.Context, sessionID string) (pricing.Breakdown, error) {
	items, err := s.Cart.LineItems(ctx, sessionID)
	if err != nil {
		return pricing.Breakdown{}, err
	}
	b, err := pricing.Quote(items, s.Shipping, s.Fees)
	if err != nil {
		return pricing.Breakdown{}, pricing.AsAppError(err)
	}
	return b, nil
}

// Quote prices ad-hoc line items with the configured rules.
func (s *Service) Quote(items []pricing.LineItem) (pricing.Breakdown, error) {
	b, err := pricing.Quote(items, s.Shipping, s.Fees)
	if err != nil {
		return pricing.Breakdown{}, pricing.AsAppError(err)
	}
	return b, nil
}

func (s *Service) emitFailure(ctx context.Context, sessionID, ref, stage string, err error) {
	if s.Events == nil {
		return
	}
	payload := CheckoutFailedEvent{
		ClientReference: ref,
		SessionID:       sessionID,
		Kind:            kindLabel(err),
		Message:         err.Error(),
		Stage:           stage,
	}
	if _, emitErr := s.Events.Emit(context.WithoutCancel(ctx), events.TopicCheckoutFailed, sessionID, payload); emitErr != nil {
		zerolog.Ctx(ctx).Error().Err(emitErr).Msg("checkout_failed_event_failed")
	}
}

func kindLabel(err error) string {
	if kind := common.KindOf(err); kind != common.KindUnknown {
		return string(kind)
	}
	return "INTERNAL"
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInProgress):
		return "in_progress"
	default:
		return strings.ToLower(kindLabel(err))
	}
}
