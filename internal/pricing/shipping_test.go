package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/pricing"
)

func TestQuoteShippingBoundary(t *testing.T) {
	cases := []struct {
		units int
		free  bool
		fee   pricing.Money
	}{
		{units: 0, free: false, fee: 12000},
		{units: 1, free: false, fee: 12000},
		{units: 2, free: false, fee: 12000},
		{units: 3, free: true, fee: 0},
		{units: 4, free: true, fee: 0},
		{units: 120, free: true, fee: 0},
	}
	for _, tc := range cases {
		q, err := pricing.QuoteShipping(tc.units)
		require.NoError(t, err)
		require.Equal(t, tc.free, q.IsFree, "units=%d", tc.units)
		require.Equal(t, tc.fee, q.Fee, "units=%d", tc.units)
	}
}

func TestQuoteShippingRejectsNegative(t *testing.T) {
	_, err := pricing.QuoteShipping(-1)
	require.ErrorIs(t, err, pricing.ErrInvalidInput)
}

func TestQuoteShippingMonotonic(t *testing.T) {
	for a := 0; a <= 10; a++ {
		for b := a; b <= 10; b++ {
			qa, err := pricing.QuoteShipping(a)
			require.NoError(t, err)
			qb, err := pricing.QuoteShipping(b)
			require.NoError(t, err)
			require.GreaterOrEqual(t, qa.Fee, qb.Fee, "a=%d b=%d", a, b)
		}
	}
}

func TestShippingPolicyOverride(t *testing.T) {
	policy := pricing.ShippingPolicy{FreeThreshold: 6, FlatFee: 9000}
	q, err := policy.Quote(5)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(9000), q.Fee)
	q, err = policy.Quote(6)
	require.NoError(t, err)
	require.True(t, q.IsFree)
	require.Equal(t, 1, policy.UnitsToFree(5))
	require.Equal(t, 0, policy.UnitsToFree(8))
}
