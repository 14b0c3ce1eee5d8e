package pricing

import "fmt"

const (
	// FreeShippingThreshold is the unit count at which shipping is waived (inclusive).
	FreeShippingThreshold = 3
	// FlatShippingFee is charged below the threshold.
	FlatShippingFee Money = 12000
)

// ShippingQuote is the shipping fee for a given unit count.
type ShippingQuote struct {
	Fee    Money `json:"fee"`
	IsFree bool  `json:"isFree"`
}

// ShippingPolicy is the free-shipping threshold rule.
type ShippingPolicy struct {
	FreeThreshold int
	FlatFee       Money
}

// DefaultShippingPolicy returns the storefront's standard rule.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{FreeThreshold: FreeShippingThreshold, FlatFee: FlatShippingFee}
}

// Quote maps totalUnits to a fee. Zero units is not free.
func (p ShippingPolicy) Quote(totalUnits int) (ShippingQuote, error) {
	if totalUnits < 0 {
		return ShippingQuote{}, fmt.Errorf("total units %d: %w", totalUnits, ErrInvalidInput)
	}
	if p.FreeThreshold <= 0 {
		p.FreeThreshold = FreeShippingThreshold
	}
	if p.FlatFee < 0 {
		p.FlatFee = 0
	}
	if totalUnits >= p.FreeThreshold {
		return ShippingQuote{Fee: 0, IsFree: true}, nil
	}
	return ShippingQuote{Fee: p.FlatFee, IsFree: false}, nil
}

// UnitsToFree returns how many more units are needed for free shipping.
func (p ShippingPolicy) UnitsToFree(totalUnits int) int {
	threshold := p.FreeThreshold
	if threshold <= 0 {
		threshold = FreeShippingThreshold
	}
	if totalUnits >= threshold {
		return 0
	}
	if totalUnits < 0 {
		return threshold
	}
	return threshold - totalUnits
}

// QuoteShipping applies the default policy.
func QuoteShipping(totalUnits int) (ShippingQuote, error) {
	return DefaultShippingPolicy().Quote(totalUnits)
}
