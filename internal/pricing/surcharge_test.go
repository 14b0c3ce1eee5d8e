package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/pricing"
)

func TestQuoteSurchargeAbsorbIsAlwaysZero(t *testing.T) {
	for _, cfg := range []pricing.FeeConfig{
		{Mode: pricing.FeeModeAbsorb},
		{Mode: pricing.FeeModeAbsorb, Percent: 0.06, Fixed: 10},
		{Mode: pricing.FeeModeAbsorb, Percent: 1.5},
		{},
	} {
		for _, base := range []pricing.Money{0, 1, 99000, 1_000_000} {
			q, err := pricing.QuoteSurcharge(base, cfg)
			require.NoError(t, err)
			require.Equal(t, pricing.Money(0), q.Surcharge)
		}
	}
}

func TestQuoteSurchargePassThrough(t *testing.T) {
	cases := []struct {
		name    string
		base    pricing.Money
		percent float64
		fixed   pricing.Money
		want    pricing.Money
	}{
		{name: "percent only", base: 100000, percent: 0.06, want: 6383},
		{name: "percent and fixed", base: 1000, percent: 0.05, fixed: 10, want: 63},
		{name: "fixed only", base: 5000, fixed: 25, want: 25},
		{name: "half rounds up", base: 2, percent: 0.2, want: 1},
		{name: "zero base", base: 0, percent: 0.06, want: 0},
		{name: "no fee", base: 5000, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := pricing.QuoteSurcharge(tc.base, pricing.FeeConfig{Mode: pricing.FeeModePassThrough, Percent: tc.percent, Fixed: tc.fixed, Label: "Mercado Pago"})
			require.NoError(t, err)
			require.Equal(t, tc.want, q.Surcharge)
			require.Equal(t, pricing.FeeModePassThrough, q.Mode)
		})
	}
}

func TestQuoteSurchargeKeepsNetAmount(t *testing.T) {
	const percent = 0.0761
	for _, base := range []pricing.Money{1000, 12000, 68000, 99000, 250000} {
		q, err := pricing.QuoteSurcharge(base, pricing.FeeConfig{Mode: pricing.FeeModePassThrough, Percent: percent})
		require.NoError(t, err)
		net := float64(base+q.Surcharge) * (1 - percent)
		require.InDelta(t, float64(base), net, 1.0)
	}
}

func TestQuoteSurchargeNoFeeIsZero(t *testing.T) {
	for _, cfg := range []pricing.FeeConfig{
		{Mode: pricing.FeeModePassThrough},
		{Mode: pricing.FeeModePassThrough, Percent: -0.1},
		{Mode: pricing.FeeModePassThrough, Fixed: -5},
		{Mode: pricing.FeeModePassThrough, Percent: -0.2, Fixed: -5},
	} {
		q, err := pricing.QuoteSurcharge(100000, cfg)
		require.NoError(t, err, "%+v", cfg)
		require.Zero(t, q.Surcharge, "%+v", cfg)
	}
}

func TestQuoteSurchargeInvalidConfig(t *testing.T) {
	for _, cfg := range []pricing.FeeConfig{
		{Mode: pricing.FeeModePassThrough, Percent: 1},
		{Mode: pricing.FeeModePassThrough, Percent: 1.2},
		{Mode: pricing.FeeModePassThrough, Percent: -0.1, Fixed: 10},
		{Mode: pricing.FeeModePassThrough, Percent: 0.05, Fixed: -10},
		{Mode: "split"},
	} {
		_, err := pricing.QuoteSurcharge(1000, cfg)
		require.ErrorIs(t, err, pricing.ErrInvalidFeeConfig)
	}
}

func TestParseFeeMode(t *testing.T) {
	mode, err := pricing.ParseFeeMode("")
	require.NoError(t, err)
	require.Equal(t, pricing.FeeModeAbsorb, mode)
	mode, err = pricing.ParseFeeMode(" Pass_Through ")
	require.NoError(t, err)
	require.Equal(t, pricing.FeeModePassThrough, mode)
	_, err = pricing.ParseFeeMode("merchant")
	require.ErrorIs(t, err, pricing.ErrInvalidFeeConfig)
}
