package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/cart"
	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/events"
	"github.com/noah-isme/storefront-bff/internal/lock"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

type orderCreatorMock struct{ mock.Mock }

func (m *orderCreatorMock) CreateOrder(ctx context.Context, req checkout.CheckoutRequest) (checkout.NormalizedOrder, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(checkout.NormalizedOrder), args.Error(1)
}

type refreshMock struct{ mock.Mock }

func (m *refreshMock) ScheduleRefresh(ctx context.Context, sessionID, orderID string) error {
	return m.Called(ctx, sessionID, orderID).Error(0)
}

type capturePublisher struct{ events []events.Event }

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

type fixture struct {
	svc     *checkout.Service
	mr      *miniredis.Miniredis
	carts   cart.Store
	state   orderstate.Store
	orders  *orderCreatorMock
	refresh *refreshMock
	events  *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	f := &fixture{
		mr:      mr,
		carts:   cart.Store{R: rdb},
		state:   orderstate.Store{R: rdb, Now: func() time.Time { return now }},
		orders:  &orderCreatorMock{},
		refresh: &refreshMock{},
		events:  &capturePublisher{},
	}
	f.svc = &checkout.Service{
		Cart:     &cart.Service{Store: f.carts},
		Orders:   f.orders,
		State:    f.state,
		Events:   &events.Bus{Publishers: []events.Publisher{f.events}},
		Refresh:  f.refresh,
		Locker:   lock.Locker{R: rdb, Prefix: "lock:"},
		Shipping: pricing.DefaultShippingPolicy(),
		Fees:     pricing.FeeConfig{Mode: pricing.FeeModeAbsorb},
		Now:      func() time.Time { return now },
		NewRef:   func() string { return "ref-1" },
	}
	return f
}

func (f *fixture) seedCart(t *testing.T, items ...cart.Item) {
	t.Helper()
	require.NoError(t, f.carts.Save(context.Background(), "s1", cart.Snapshot{Items: items}))
}

func (f *fixture) cartItems(t *testing.T) []cart.Item {
	t.Helper()
	snap, err := f.carts.Load(context.Background(), "s1")
	require.NoError(t, err)
	return snap.Items
}

func validForm() checkout.CustomerForm {
	return checkout.CustomerForm{
		Nombre:       "Ana Pérez",
		Email:        "ana@example.com",
		Telefono:     "1155550000",
		Domicilio:    "Calle Falsa 123",
		Localidad:    "CABA",
		Provincia:    "Buenos Aires",
		CodigoPostal: "1000",
	}
}

var twoBottles = cart.Item{ProductID: "p1", Name: "Vino", UnitPrice: 1000, Quantity: 2, UnitsPerItem: 1}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)

	created := checkout.NormalizedOrder{
		OrderID: "A-1",
		Status:  checkout.StatusPending,
		Items:   []checkout.OrderItem{},
		Totals:  checkout.OrderTotals{Subtotal: 2000, ShippingFee: 12000, Total: 14000},
	}
	f.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req checkout.CheckoutRequest) bool {
		return req.Snapshot.ClientReference == "ref-1" &&
			req.Totals.Total == 14000 && req.Total == 14000 &&
			len(req.LineItems) == 1 && req.LineItems[0].Quantity == 2 &&
			req.Customer.Name == "Ana Pérez"
	})).Return(created, nil).Once()
	f.refresh.On("ScheduleRefresh", mock.Anything, "s1", "A-1").Return(nil).Once()

	res, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.NoError(t, err)
	require.Equal(t, "A-1", res.Order.OrderID)
	require.Equal(t, "ref-1", res.ClientReference)
	require.Equal(t, "success", res.State)

	require.Empty(t, f.cartItems(t), "cart is cleared after success")
	rec, err := f.state.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "A-1", rec.Order.OrderID)

	require.Len(t, f.events.events, 1)
	require.Equal(t, events.TopicOrderCreated, f.events.events[0].Topic)
	var payload checkout.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(f.events.events[0].Payload, &payload))
	require.Equal(t, "ref-1", payload.ClientReference)
	require.EqualValues(t, 14000, payload.Total)

	require.False(t, f.mr.Exists("lock:checkout:s1"))
	f.orders.AssertExpectations(t)
	f.refresh.AssertExpectations(t)
}

func TestSubmitSettledOrderSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return(checkout.NormalizedOrder{OrderID: "A-2", Status: checkout.StatusApproved, Items: []checkout.OrderItem{}}, nil).Once()

	_, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.NoError(t, err)
	f.refresh.AssertNotCalled(t, "ScheduleRefresh", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitFailureLeavesCartUntouched(t *testing.T) {
	cases := map[string]error{
		"network":   common.KindError(common.KindNetwork, "order service timed out", context.DeadlineExceeded),
		"rejected":  common.KindError(common.KindServerRejected, "Stock insuficiente", errors.New("upstream status 409")),
		"malformed": common.KindError(common.KindMalformedResponse, "order response has no order id", checkout.ErrMalformedResponse),
	}
	for name, upstreamErr := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.seedCart(t, twoBottles)
			f.orders.On("CreateOrder", mock.Anything, mock.Anything).
				Return(checkout.NormalizedOrder{}, upstreamErr).Once()

			_, err := f.svc.Submit(context.Background(), "s1", validForm())
			require.ErrorIs(t, err, upstreamErr)
			require.Equal(t, common.KindOf(upstreamErr), common.KindOf(err))

			f.orders.AssertNumberOfCalls(t, "CreateOrder", 1)
			require.Equal(t, []cart.Item{twoBottles}, f.cartItems(t))
			_, err = f.state.Load(context.Background(), "s1")
			require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)

			require.Len(t, f.events.events, 1)
			require.Equal(t, events.TopicCheckoutFailed, f.events.events[0].Topic)
			var payload checkout.CheckoutFailedEvent
			require.NoError(t, json.Unmarshal(f.events.events[0].Payload, &payload))
			require.Equal(t, "submit", payload.Stage)
			require.Equal(t, "ref-1", payload.ClientReference)
			f.refresh.AssertNotCalled(t, "ScheduleRefresh", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitInvalidFormNeverCallsOrderService(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)
	form := validForm()
	form.Email = "not-an-email"

	_, err := f.svc.Submit(context.Background(), "s1", form)
	require.ErrorIs(t, err, checkout.ErrInvalidForm)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	details := appErr.Details.(map[string]any)
	require.Equal(t, "email", details["fields"].(map[string]string)["email"])

	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	require.Len(t, f.cartItems(t), 1)
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "EMPTY_CART", appErr.Code)
	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)
	require.NoError(t, f.mr.Set("lock:checkout:s1", "other-holder"))

	_, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.ErrorIs(t, err, checkout.ErrInProgress)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CHECKOUT_IN_PROGRESS", appErr.Code)
	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	require.Empty(t, f.events.events)
}

func TestSubmitSurvivesCallerCancellationAfterCreate(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)
	ctx, cancel := context.WithCancel(context.Background())
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(checkout.NormalizedOrder{OrderID: "A-3", Status: checkout.StatusApproved, Items: []checkout.OrderItem{}}, nil).Once()

	_, err := f.svc.Submit(ctx, "s1", validForm())
	require.NoError(t, err)
	require.Empty(t, f.cartItems(t))
	_, err = f.state.Load(context.Background(), "s1")
	require.NoError(t, err)
}

func TestPreviewIncludesSurcharge(t *testing.T) {
	f := newFixture(t)
	f.svc.Fees = pricing.FeeConfig{Mode: pricing.FeeModePassThrough, Percent: 0.05, Label: "Recargo"}
	f.seedCart(t, cart.Item{ProductID: "p1", UnitPrice: 9500, Quantity: 1, UnitsPerItem: 6})

	b, err := f.svc.Preview(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, b.Shipping.IsFree)
	require.EqualValues(t, 500, b.Surcharge.Surcharge)
	require.EqualValues(t, 10000, b.Total)
}

func TestSubmitLockOutlivesCheckoutTimeout(t *testing.T) {
	require.Equal(t, 30*time.Second, checkout.LockTTLFor(0))
	require.Equal(t, 75*time.Second, checkout.LockTTLFor(time.Minute))

	f := newFixture(t)
	f.seedCart(t, twoBottles)
	f.svc.LockTTL = checkout.LockTTLFor(90 * time.Second)

	var held time.Duration
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		held = f.mr.TTL("lock:checkout:s1")
	}).Return(checkout.NormalizedOrder{OrderID: "A-9", Status: checkout.StatusApproved, Items: []checkout.OrderItem{}}, nil).Once()
	f.refresh.On("ScheduleRefresh", mock.Anything, "s1", "A-9").Return(nil).Maybe()

	_, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.NoError(t, err)
	require.Greater(t, held, 90*time.Second)
	require.False(t, f.mr.Exists("lock:checkout:s1"))
}

func TestSubmitCanBeRetriedAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, twoBottles)

	f.orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return(checkout.NormalizedOrder{}, common.KindError(common.KindNetwork, "timeout", errors.New("timeout"))).Once()
	_, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.Equal(t, common.KindNetwork, common.KindOf(err))
	require.Equal(t, []cart.Item{twoBottles}, f.cartItems(t))

	f.orders.On("CreateOrder", mock.Anything, mock.Anything).
		Return(checkout.NormalizedOrder{OrderID: "A-2", Status: checkout.StatusApproved, Items: []checkout.OrderItem{}}, nil).Once()
	f.refresh.On("ScheduleRefresh", mock.Anything, "s1", "A-2").Return(nil).Maybe()
	res, err := f.svc.Submit(context.Background(), "s1", validForm())
	require.NoError(t, err)
	require.Equal(t, checkout.Succeeded.String(), res.State)
	require.Equal(t, "A-2", res.Order.OrderID)
	f.orders.AssertNumberOfCalls(t, "CreateOrder", 2)
}
