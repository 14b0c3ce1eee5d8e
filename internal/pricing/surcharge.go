package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FeeMode selects who pays the payment processor's fee.
type FeeMode string

const (
	// FeeModeAbsorb keeps the customer total unchanged; the merchant pays the fee.
	FeeModeAbsorb FeeMode = "absorb"
	// FeeModePassThrough adds a surcharge so the merchant nets the base total.
	FeeModePassThrough FeeMode = "pass_through"
)

// ParseFeeMode accepts the configured spelling of a fee mode. Empty means absorb.
func ParseFeeMode(value string) (FeeMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "absorb":
		return FeeModeAbsorb, nil
	case "pass_through", "pass-through", "passthrough":
		return FeeModePassThrough, nil
	}
	return "", fmt.Errorf("fee mode %q: %w", value, ErrInvalidFeeConfig)
}

// FeeConfig describes the processor fee: Percent in [0,1) plus Fixed per charge.
type FeeConfig struct {
	Mode    FeeMode
	Percent float64
	Fixed   Money
	Label   string
}

// SurchargeQuote is a client-side preview. The order service computes and
// enforces the charged amount; this value is never sent as authoritative.
type SurchargeQuote struct {
	Surcharge Money   `json:"surcharge"`
	Mode      FeeMode `json:"mode"`
	Label     string  `json:"label,omitempty"`
}

// QuoteSurcharge solves base = (base + s)(1 - percent) - fixed for s in
// pass-through mode, rounding half away from zero to a whole unit.
func QuoteSurcharge(baseTotal Money, cfg FeeConfig) (SurchargeQuote, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = FeeModeAbsorb
	}
	out := SurchargeQuote{Mode: mode, Label: cfg.Label}
	switch mode {
	case FeeModeAbsorb:
		return out, nil
	case FeeModePassThrough:
	default:
		return SurchargeQuote{}, fmt.Errorf("fee mode %q: %w", mode, ErrInvalidFeeConfig)
	}
	if cfg.Percent >= 1 {
		return SurchargeQuote{}, fmt.Errorf("fee percent %v must be below 1: %w", cfg.Percent, ErrInvalidFeeConfig)
	}
	// no fee to pass through
	if cfg.Percent <= 0 && cfg.Fixed <= 0 {
		return out, nil
	}
	if cfg.Percent < 0 || cfg.Fixed < 0 {
		return SurchargeQuote{}, fmt.Errorf("fee percent %v fixed %d must not be negative: %w", cfg.Percent, cfg.Fixed, ErrInvalidFeeConfig)
	}

	base := decimal.NewFromInt(baseTotal)
	denom := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(cfg.Percent))
	charge := base.Add(decimal.NewFromInt(cfg.Fixed)).Div(denom)
	diff := charge.Sub(base)
	if diff.IsNegative() {
		diff = decimal.Zero
	}
	out.Surcharge = diff.Round(0).IntPart()
	return out, nil
}
