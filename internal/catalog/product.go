package catalog

import (
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// Product is the storefront view of a catalog entry. UnitsPerItem is the pack
// size the cart ingests; it defaults to 1.
type Product struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Price        pricing.Money `json:"price"`
	UnitsPerItem int           `json:"unitsPerItem"`
	ImageURL     string        `json:"imageUrl,omitempty"`
	Category     string        `json:"category,omitempty"`
	Stock        *int          `json:"stock,omitempty"`
}

// LineItem converts the product into a pricing line item of qty.
func (p Product) LineItem(qty int) pricing.LineItem {
	return pricing.NewLineItem(p.ID, p.Price, qty, p.UnitsPerItem)
}

var (
	listKeys    = []string{"data", "productos", "products", "items"}
	productKeys = []string{"data", "producto", "product"}
)

func productFrom(obj common.Loose) (Product, bool) {
	id := obj.String("id", "_id", "productId", "productoId")
	if id == "" {
		return Product{}, false
	}
	price, _ := obj.Money("price", "precio", "unitPrice")
	units, _ := obj.Money("unitsPerItem", "unidadesPorItem", "packSize", "unidades")
	if units <= 0 {
		units = 1
	}
	p := Product{
		ID:           id,
		Name:         obj.String("name", "nombre", "title"),
		Description:  obj.String("description", "descripcion"),
		Price:        price,
		UnitsPerItem: int(units),
		ImageURL:     obj.String("imageUrl", "imagen", "image"),
		Category:     obj.String("category", "categoria"),
	}
	if stock, ok := obj.Money("stock"); ok {
		s := int(stock)
		p.Stock = &s
	}
	return p, true
}

// decodeList accepts a bare array or an object wrapping one. Entries without
// an id are skipped.
func decodeList(raw []byte) ([]Product, error) {
	v, err := common.DecodeLooseValue(raw)
	if err != nil {
		return nil, malformed(err)
	}
	var rows []any
	switch t := v.(type) {
	case []any:
		rows = t
	case map[string]any:
		rows = common.Loose(t).List(listKeys...)
		if rows == nil {
			return nil, malformed(nil)
		}
	default:
		return nil, malformed(nil)
	}
	out := make([]Product, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		if p, ok := productFrom(common.Loose(obj)); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func decodeProduct(raw []byte) (Product, error) {
	obj, err := common.DecodeLoose(raw)
	if err != nil {
		return Product{}, malformed(err)
	}
	if p, ok := productFrom(obj); ok {
		return p, nil
	}
	if inner := obj.Object(productKeys...); inner != nil {
		if p, ok := productFrom(inner); ok {
			return p, nil
		}
	}
	return Product{}, malformed(nil)
}

func malformed(err error) error {
	return common.KindError(common.KindMalformedResponse, "catalog response is malformed", err)
}
