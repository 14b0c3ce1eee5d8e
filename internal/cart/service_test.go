package cart_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/cart"
	"github.com/noah-isme/storefront-bff/internal/catalog"
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

type fakeProducts map[string]catalog.Product

func (f fakeProducts) Get(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, common.NewAppError("NOT_FOUND", "Producto no encontrado", http.StatusNotFound, nil)
	}
	return p, nil
}

var testProducts = fakeProducts{
	"wine-6": {ID: "wine-6", Name: "Vino x6", Price: 9000, UnitsPerItem: 6},
	"oil":    {ID: "oil", Name: "Aceite", Price: 1500, UnitsPerItem: 1},
}

func newService(t *testing.T) (*cart.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &cart.Service{
		Store:    cart.Store{R: rdb, TTL: time.Hour},
		Products: testProducts,
		Shipping: pricing.DefaultShippingPolicy(),
		Fees:     pricing.FeeConfig{Mode: pricing.FeeModeAbsorb},
		Now:      func() time.Time { return now },
	}, mr
}

func TestAddCapturesCatalogPriceAndPackSize(t *testing.T) {
	svc, mr := newService(t)
	ctx := context.Background()

	snap, err := svc.Add(ctx, "s1", "wine-6", 1)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, 6, snap.Items[0].UnitsPerItem)
	require.EqualValues(t, 9000, snap.Items[0].UnitPrice)

	snap, err = svc.Add(ctx, "s1", "wine-6", 2)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, 3, snap.Items[0].Quantity)

	require.True(t, mr.Exists("storefront:cart:v2:s1"))
	require.Equal(t, time.Hour, mr.TTL("storefront:cart:v2:s1"))
}

func TestSummaryUsesUnitWeightedShipping(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "oil", 1)
	require.NoError(t, err)
	summary, err := svc.Summary(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 12000, summary.Breakdown.Shipping.Fee)
	require.Equal(t, 2, summary.UnitsToFreeShipping)

	// one six-pack crosses the threshold even though quantity is 1
	_, err = svc.Add(ctx, "s1", "wine-6", 1)
	require.NoError(t, err)
	summary, err = svc.Summary(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 7, summary.Breakdown.TotalUnits)
	require.True(t, summary.Breakdown.Shipping.IsFree)
	require.EqualValues(t, 10500, summary.Breakdown.Total)
	require.Zero(t, summary.UnitsToFreeShipping)
}

func TestUpdateAndRemove(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, "s1", "oil", 1)
	require.NoError(t, err)

	snap, err := svc.Update(ctx, "s1", "oil", 4)
	require.NoError(t, err)
	require.Equal(t, 4, snap.Items[0].Quantity)

	snap, err = svc.Update(ctx, "s1", "oil", 0)
	require.NoError(t, err)
	require.Empty(t, snap.Items)

	_, err = svc.Remove(ctx, "s1", "oil")
	require.ErrorIs(t, err, cart.ErrItemNotFound)
}

func TestQuantityBounds(t *testing.T) {
	svc, _ := newService(t)
	svc.MaxQuantity = 5
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "oil", -1)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	require.Equal(t, common.KindInvalidInput, common.KindOf(err))

	_, err = svc.Add(ctx, "s1", "oil", 5)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s1", "oil", 1)
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
}

func TestAddUnknownProduct(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Add(context.Background(), "s1", "ghost", 1)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}

func TestClearAndSessionIsolation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, "s1", "oil", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s2", "wine-6", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, "s1"))
	items, err := svc.LineItems(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = svc.LineItems(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 6, items[0].UnitsPerItem)
}

func TestLoadDropsUnreadableSnapshot(t *testing.T) {
	svc, mr := newService(t)
	require.NoError(t, mr.Set("storefront:cart:v2:s1", "{not json"))
	snap, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, snap.Items)
	require.False(t, mr.Exists("storefront:cart:v2:s1"))
}
