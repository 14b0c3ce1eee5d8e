package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// Handler exposes checkout endpoints.
type Handler struct {
	Svc *Service
}

type quoteLine struct {
	ID           string        `json:"id"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	Quantity     int           `json:"quantity"`
	UnitsPerItem int           `json:"unitsPerItem"`
}

type quoteRequest struct {
	Items []quoteLine `json:"items"`
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var form CustomerForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json payload", nil)
		return
	}
	res, err := h.Svc.Submit(r.Context(), sid, form)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

// Preview handles GET /api/v1/checkout/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	b, err := h.Svc.Preview(r.Context(), sid)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"breakdown":           b,
		"unitsToFreeShipping": h.Svc.Shipping.UnitsToFree(b.TotalUnits),
	})
}

// Quote handles POST /api/v1/quote. It prices the posted items without
// touching any session state.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json payload", nil)
		return
	}
	items := make([]pricing.LineItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, pricing.NewLineItem(it.ID, it.UnitPrice, it.Quantity, it.UnitsPerItem))
	}
	b, err := h.Svc.Quote(items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", nil)
		return "", false
	}
	return sid, true
}
