package orderstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
)

func newStore(t *testing.T) (*orderstate.Store, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := &orderstate.Store{R: rdb, Now: func() time.Time { return now }}
	return store, mr, &now
}

func pendingOrder() checkout.NormalizedOrder {
	return checkout.NormalizedOrder{
		OrderID:     "A-1",
		Status:      checkout.StatusPending,
		Items:       []checkout.OrderItem{{ProductID: "p1", Quantity: 2, UnitPrice: 100}},
		Totals:      checkout.OrderTotals{Subtotal: 200, Total: 200},
		CheckoutURL: "https://pay.example/abc",
	}
}

func TestSaveAndLoad(t *testing.T) {
	store, mr, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", pendingOrder()))
	rec, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, orderstate.Version, rec.Version)
	require.Equal(t, "A-1", rec.Order.OrderID)
	require.Equal(t, checkout.StatusPending, rec.Status)
	require.Equal(t, orderstate.DefaultTTL, mr.TTL("storefront:order:v2:s1"))

	_, err = store.Load(ctx, "other")
	require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)
}

func TestLoadPurgesExpiredRecord(t *testing.T) {
	store, mr, now := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", pendingOrder()))

	*now = now.Add(orderstate.DefaultTTL + time.Minute)
	_, err := store.Load(ctx, "s1")
	require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)
	require.False(t, mr.Exists("storefront:order:v2:s1"))
}

func TestLoadPurgesUnknownVersion(t *testing.T) {
	store, mr, _ := newStore(t)
	require.NoError(t, mr.Set("storefront:order:v2:s1", `{"version":1,"order":{"orderId":"A-1"}}`))
	_, err := store.Load(context.Background(), "s1")
	require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)
	require.False(t, mr.Exists("storefront:order:v2:s1"))
}

func TestUpdateStatusKeepsTimestampAndDetails(t *testing.T) {
	store, _, now := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", pendingOrder()))
	created := *now

	*now = now.Add(time.Hour)
	rec, err := store.UpdateStatus(ctx, "s1", checkout.NormalizedOrder{OrderID: "A-1", Status: checkout.StatusApproved})
	require.NoError(t, err)
	require.Equal(t, checkout.StatusApproved, rec.Status)
	require.Equal(t, created, rec.Timestamp)
	require.Equal(t, "https://pay.example/abc", rec.Order.CheckoutURL)
	require.Len(t, rec.Order.Items, 1)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, checkout.StatusApproved, loaded.Status)
}

func TestUpdateStatusRejectsReplacedOrder(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", pendingOrder()))

	_, err := store.UpdateStatus(ctx, "s1", checkout.NormalizedOrder{OrderID: "B-2", Status: checkout.StatusApproved})
	require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)

	_, err = store.UpdateStatus(ctx, "missing", checkout.NormalizedOrder{OrderID: "A-1"})
	require.ErrorIs(t, err, orderstate.ErrNoCurrentOrder)
}
