package checkout

import (
	"time"

	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// RequestLine is one outbound line item.
type RequestLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Customer is the outbound customer block.
type Customer struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Notes      string `json:"notes"`
}

// Totals are advisory; the order service recomputes them.
type Totals struct {
	Subtotal    pricing.Money `json:"subtotal"`
	ShippingFee pricing.Money `json:"shippingFee"`
	Total       pricing.Money `json:"total"`
}

// Snapshot records what the shopper saw when submitting. ClientReference is
// also sent as the Idempotency-Key header.
type Snapshot struct {
	ClientReference string          `json:"clientReference"`
	CreatedAt       time.Time       `json:"createdAt"`
	TotalUnits      int             `json:"totalUnits"`
	Surcharge       pricing.Money   `json:"surcharge"`
	FeeMode         pricing.FeeMode `json:"feeMode"`
	FeeLabel        string          `json:"feeLabel,omitempty"`
}

// CheckoutRequest is the body of the order-creation call. Totals appear both
// nested and flat for older consumers.
type CheckoutRequest struct {
	LineItems   []RequestLine `json:"lineItems"`
	Customer    Customer      `json:"customer"`
	Totals      Totals        `json:"totals"`
	Subtotal    pricing.Money `json:"subtotal"`
	ShippingFee pricing.Money `json:"shippingFee"`
	Total       pricing.Money `json:"total"`
	Snapshot    Snapshot      `json:"snapshot"`
}

// OrderItem is one line of a normalized order.
type OrderItem struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name,omitempty"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unitPrice"`
}

// OrderTotals are the totals echoed by the order service; they are the ones
// shown to the shopper.
type OrderTotals struct {
	Subtotal    pricing.Money `json:"subtotal"`
	ShippingFee pricing.Money `json:"shippingFee"`
	Surcharge   pricing.Money `json:"surcharge"`
	Total       pricing.Money `json:"total"`
}

// Order statuses as reported by the order service.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// NormalizedOrder is the single canonical order shape used downstream.
type NormalizedOrder struct {
	OrderID     string      `json:"orderId"`
	OrderNumber string      `json:"orderNumber,omitempty"`
	Status      string      `json:"status"`
	Items       []OrderItem `json:"items"`
	Totals      OrderTotals `json:"totals"`
	CheckoutURL string      `json:"checkoutUrl,omitempty"`
}

// Settled reports whether the order left the pending state.
func (o NormalizedOrder) Settled() bool {
	return o.Status != "" && o.Status != StatusPending
}
