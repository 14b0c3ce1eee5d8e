package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/storefront-bff/internal/catalog"
	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/obs"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// ErrItemNotFound indicates the product is not in the cart.
var ErrItemNotFound = errors.New("cart: item not found")

// ErrInvalidQuantity is returned for quantities outside [1, MaxQuantity].
var ErrInvalidQuantity = errors.New("cart: invalid quantity")

// ProductSource resolves catalog products by id.
type ProductSource interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// Service encapsulates cart operations on the session snapshot.
type Service struct {
	Store       Store
	Products    ProductSource
	Shipping    pricing.ShippingPolicy
	Fees        pricing.FeeConfig
	MaxQuantity int
	Now         func() time.Time
}

// Summary is the cart together with its pricing breakdown.
type Summary struct {
	Items               []Item            `json:"items"`
	Breakdown           pricing.Breakdown `json:"breakdown"`
	UnitsToFreeShipping int               `json:"unitsToFreeShipping"`
	UpdatedAt           time.Time         `json:"updatedAt,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxQuantity() int {
	if s.MaxQuantity <= 0 {
		return 99
	}
	return s.MaxQuantity
}

// Get returns the session cart.
func (s *Service) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	return s.Store.Load(ctx, sessionID)
}

// LineItems returns the session cart as pricing inputs.
func (s *Service) LineItems(ctx context.Context, sessionID string) ([]pricing.LineItem, error) {
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.LineItems(), nil
}

// Add resolves productID from the catalog and adds qty of it. Adding a
// product already in the cart increases its quantity and refreshes its price.
func (s *Service) Add(ctx context.Context, sessionID, productID string, qty int) (Snapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Snapshot{}, common.KindError(common.KindInvalidInput, "productId is required", nil)
	}
	if err := s.checkQuantity(qty); err != nil {
		return Snapshot{}, err
	}
	if s.Products == nil {
		return Snapshot{}, errors.New("cart product source not configured")
	}
	product, err := s.Products.Get(ctx, productID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	item := Item{
		ProductID:    product.ID,
		Name:         product.Name,
		UnitPrice:    product.Price,
		Quantity:     qty,
		UnitsPerItem: product.UnitsPerItem,
		ImageURL:     product.ImageURL,
	}
	if idx := snap.indexOf(product.ID); idx >= 0 {
		item.Quantity += snap.Items[idx].Quantity
		if err := s.checkQuantity(item.Quantity); err != nil {
			return Snapshot{}, err
		}
		snap.Items[idx] = item
	} else {
		snap.Items = append(snap.Items, item)
	}
	return s.save(ctx, sessionID, snap)
}

// Update sets the quantity of an item already in the cart. Zero removes it.
func (s *Service) Update(ctx context.Context, sessionID, productID string, qty int) (Snapshot, error) {
	if qty == 0 {
		return s.Remove(ctx, sessionID, productID)
	}
	if err := s.checkQuantity(qty); err != nil {
		return Snapshot{}, err
	}
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	idx := snap.indexOf(productID)
	if idx < 0 {
		return Snapshot{}, notFound(productID)
	}
	snap.Items[idx].Quantity = qty
	return s.save(ctx, sessionID, snap)
}

// Remove drops an item from the cart.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) (Snapshot, error) {
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	idx := snap.indexOf(productID)
	if idx < 0 {
		return Snapshot{}, notFound(productID)
	}
	snap.Items = append(snap.Items[:idx], snap.Items[idx+1:]...)
	return s.save(ctx, sessionID, snap)
}

// Clear empties the session cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.Store.Delete(ctx, sessionID)
}

// Summarize prices a snapshot with the configured shipping and fee rules.
func (s *Service) Summarize(snap Snapshot) (Summary, error) {
	b, err := pricing.Quote(snap.LineItems(), s.Shipping, s.Fees)
	if err != nil {
		return Summary{}, pricing.AsAppError(err)
	}
	if b.Shipping.IsFree {
		obs.Inc(obs.ShippingQuotes, "free")
	} else {
		obs.Inc(obs.ShippingQuotes, "flat")
	}
	items := snap.Items
	if items == nil {
		items = []Item{}
	}
	return Summary{
		Items:               items,
		Breakdown:           b,
		UnitsToFreeShipping: s.Shipping.UnitsToFree(b.TotalUnits),
		UpdatedAt:           snap.UpdatedAt,
	}, nil
}

// Summary loads and prices the session cart.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	snap, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(snap)
}

func (s *Service) save(ctx context.Context, sessionID string, snap Snapshot) (Snapshot, error) {
	snap.UpdatedAt = s.now().UTC()
	if err := s.Store.Save(ctx, sessionID, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) checkQuantity(qty int) error {
	if qty < 1 || qty > s.maxQuantity() {
		return common.KindError(common.KindInvalidInput,
			fmt.Sprintf("quantity must be between 1 and %d", s.maxQuantity()),
			fmt.Errorf("quantity %d: %w", qty, ErrInvalidQuantity))
	}
	return nil
}

func notFound(productID string) error {
	return common.NewAppError("ITEM_NOT_FOUND", "item not in cart", http.StatusNotFound,
		fmt.Errorf("product %q: %w", productID, ErrItemNotFound))
}
