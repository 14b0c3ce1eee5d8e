package pricing

import (
	"errors"
	"fmt"
)

// Money represents a monetary value in whole currency units (e.g. ARS pesos).
type Money = int64

var (
	// ErrInvalidLineItem is returned when a line item carries a negative price or multiplier.
	ErrInvalidLineItem = errors.New("pricing: invalid line item")
	// ErrInvalidInput is returned for out-of-domain arguments such as negative unit counts.
	ErrInvalidInput = errors.New("pricing: invalid input")
	// ErrInvalidFeeConfig is returned when the payment fee settings cannot produce a surcharge.
	ErrInvalidFeeConfig = errors.New("pricing: invalid fee config")
)

// LineItem describes one cart entry. UnitsPerItem is the number of physical
// pieces a single quantity represents (a 12-pack counts 12).
type LineItem struct {
	ID           string
	UnitPrice    Money
	Quantity     int
	UnitsPerItem int
}

// NewLineItem builds a line item with missing multipliers defaulted to 1.
func NewLineItem(id string, unitPrice Money, quantity, unitsPerItem int) LineItem {
	return LineItem{ID: id, UnitPrice: unitPrice, Quantity: quantity, UnitsPerItem: unitsPerItem}.Normalize()
}

// Normalize replaces zero Quantity and UnitsPerItem with 1. Negative values
// are kept so Aggregate can reject them.
func (it LineItem) Normalize() LineItem {
	if it.Quantity == 0 {
		it.Quantity = 1
	}
	if it.UnitsPerItem == 0 {
		it.UnitsPerItem = 1
	}
	return it
}

// Validate reports whether the item satisfies the pricing invariants.
func (it LineItem) Validate() error {
	switch {
	case it.UnitPrice < 0:
		return fmt.Errorf("item %q unit price %d: %w", it.ID, it.UnitPrice, ErrInvalidLineItem)
	case it.Quantity < 0:
		return fmt.Errorf("item %q quantity %d: %w", it.ID, it.Quantity, ErrInvalidLineItem)
	case it.UnitsPerItem < 0:
		return fmt.Errorf("item %q units per item %d: %w", it.ID, it.UnitsPerItem, ErrInvalidLineItem)
	}
	return nil
}

// CartAggregate is the derived view of a cart used by shipping and totals.
type CartAggregate struct {
	Subtotal   Money `json:"subtotal"`
	TotalUnits int   `json:"totalUnits"`
}

// Aggregate reduces items into a subtotal and a unit-weighted unit count.
// TotalUnits is Σ(UnitsPerItem × Quantity), never the bare quantity sum.
func Aggregate(items []LineItem) (CartAggregate, error) {
	var agg CartAggregate
	for _, raw := range items {
		it := raw.Normalize()
		if err := it.Validate(); err != nil {
			return CartAggregate{}, err
		}
		agg.Subtotal += it.UnitPrice * Money(it.Quantity)
		agg.TotalUnits += it.UnitsPerItem * it.Quantity
	}
	return agg, nil
}

// Breakdown aggregates computed pricing components for a cart.
type Breakdown struct {
	Subtotal   Money          `json:"subtotal"`
	TotalUnits int            `json:"totalUnits"`
	Shipping   ShippingQuote  `json:"shipping"`
	Surcharge  SurchargeQuote `json:"surcharge"`
	Total      Money          `json:"total"`
}

// Quote runs aggregation, shipping and surcharge in order. The surcharge base
// is the subtotal plus shipping.
func Quote(items []LineItem, policy ShippingPolicy, fee FeeConfig) (Breakdown, error) {
	agg, err := Aggregate(items)
	if err != nil {
		return Breakdown{}, err
	}
	ship, err := policy.Quote(agg.TotalUnits)
	if err != nil {
		return Breakdown{}, err
	}
	base := agg.Subtotal + ship.Fee
	sur, err := QuoteSurcharge(base, fee)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Subtotal:   agg.Subtotal,
		TotalUnits: agg.TotalUnits,
		Shipping:   ship,
		Surcharge:  sur,
		Total:      base + sur.Surcharge,
	}, nil
}
