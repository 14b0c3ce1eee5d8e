package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// ToCheckoutRequest maps the session cart, the customer form and the quoted
// breakdown onto the order service's wire format. ref is the client reference
// stamped on the snapshot.
func ToCheckoutRequest(items []pricing.LineItem, form CustomerForm, b pricing.Breakdown, ref string, now time.Time) CheckoutRequest {
	lines := make([]RequestLine, 0, len(items))
	for _, raw := range items {
		it := raw.Normalize()
		lines = append(lines, RequestLine{ProductID: it.ID, Quantity: it.Quantity})
	}
	f := form.Trimmed()
	totals := Totals{Subtotal: b.Subtotal, ShippingFee: b.Shipping.Fee, Total: b.Total}
	return CheckoutRequest{
		LineItems: lines,
		Customer: Customer{
			Name:       f.Nombre,
			Email:      f.Email,
			Phone:      f.Telefono,
			Street:     f.Domicilio,
			City:       f.Localidad,
			State:      f.Provincia,
			PostalCode: f.CodigoPostal,
			Notes:      f.NotasAdicionales,
		},
		Totals:      totals,
		Subtotal:    totals.Subtotal,
		ShippingFee: totals.ShippingFee,
		Total:       totals.Total,
		Snapshot: Snapshot{
			ClientReference: ref,
			CreatedAt:       now.UTC(),
			TotalUnits:      b.TotalUnits,
			Surcharge:       b.Surcharge.Surcharge,
			FeeMode:         b.Surcharge.Mode,
			FeeLabel:        b.Surcharge.Label,
		},
	}
}

var (
	envelopeKeys    = []string{"data", "pedido", "order"}
	orderIDKeys     = []string{"orderId", "ordenId", "id", "_id"}
	orderNumberKeys = []string{"orderNumber", "numeroOrden", "order_number"}
	statusKeys      = []string{"status", "estado"}
	totalsKeys      = []string{"totals", "totales"}
	totalKeys       = []string{"total"}
	subtotalKeys    = []string{"subtotal"}
	shippingKeys    = []string{"shippingFee", "costoEnvio", "shipping"}
	surchargeKeys   = []string{"surcharge", "recargo"}
	checkoutURLKeys = []string{"checkoutUrl", "init_point", "initPoint", "checkout_url"}
	itemsKeys       = []string{"items", "productos", "lineItems"}
	itemIDKeys      = []string{"productId", "productoId", "id"}
	itemNameKeys    = []string{"name", "nombre", "title"}
	itemQtyKeys     = []string{"quantity", "cantidad"}
	itemPriceKeys   = []string{"unitPrice", "precioUnitario", "price", "precio"}
)

// FromCheckoutResponse accepts any of the order service's known response
// shapes and returns the canonical order. A body without an order id is a
// MalformedResponse even when the HTTP exchange succeeded.
func FromCheckoutResponse(raw []byte) (NormalizedOrder, error) {
	obj, err := common.DecodeLoose(raw)
	if err != nil {
		return NormalizedOrder{}, malformed("order response is not a JSON object", err)
	}
	obj, outer := unwrapEnvelope(obj)

	id := obj.String(orderIDKeys...)
	if id == "" {
		return NormalizedOrder{}, malformed("order response has no order id", nil)
	}
	out := NormalizedOrder{
		OrderID:     id,
		OrderNumber: obj.String(orderNumberKeys...),
		Status:      normalizeStatus(obj.String(statusKeys...)),
		CheckoutURL: obj.String(checkoutURLKeys...),
		Items:       []OrderItem{},
	}

	layers := append([]common.Loose{obj}, outer...)
	out.Totals = OrderTotals{
		Subtotal:    moneyFrom(layers, subtotalKeys),
		ShippingFee: moneyFrom(layers, shippingKeys),
		Surcharge:   moneyFrom(layers, surchargeKeys),
		Total:       moneyFrom(layers, totalKeys),
	}

	for _, entry := range obj.List(itemsKeys...) {
		row, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := common.Loose(row)
		qty, _ := item.Money(itemQtyKeys...)
		price, _ := item.Money(itemPriceKeys...)
		out.Items = append(out.Items, OrderItem{
			ProductID: item.String(itemIDKeys...),
			Name:      item.String(itemNameKeys...),
			Quantity:  int(qty),
			UnitPrice: price,
		})
	}
	return out, nil
}

func malformed(message string, err error) error {
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	} else {
		err = ErrMalformedResponse
	}
	return common.KindError(common.KindMalformedResponse, message, err)
}

// unwrapEnvelope descends through data/pedido/order wrappers until it reaches
// an object carrying an order id. The wrappers passed on the way are returned
// innermost first.
func unwrapEnvelope(obj common.Loose) (common.Loose, []common.Loose) {
	var outer []common.Loose
	for depth := 0; depth < 3; depth++ {
		if obj.String(orderIDKeys...) != "" {
			break
		}
		inner := obj.Object(envelopeKeys...)
		if inner == nil {
			break
		}
		outer = append([]common.Loose{obj}, outer...)
		obj = inner
	}
	return obj, outer
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return StatusPending
	}
	return status
}

// moneyFrom walks the layers from the order outwards. Within a layer the
// nested totals object wins over flat fields.
func moneyFrom(layers []common.Loose, keys []string) pricing.Money {
	for _, layer := range layers {
		if v, ok := layer.Object(totalsKeys...).Money(keys...); ok {
			return v
		}
		if v, ok := layer.Money(keys...); ok {
			return v
		}
	}
	return 0
}
