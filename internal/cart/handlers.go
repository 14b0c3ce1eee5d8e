package cart

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-bff/internal/common"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	summary, err := h.Svc.Summary(r.Context(), sid)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summary)
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json payload", nil)
		return
	}
	if payload.Quantity == 0 {
		payload.Quantity = 1
	}
	snap, err := h.Svc.Add(r.Context(), sid, payload.ProductID, payload.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, snap)
}

// UpdateItem handles PATCH /api/v1/cart/items/{productId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Quantity == nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "quantity is required", nil)
		return
	}
	snap, err := h.Svc.Update(r.Context(), sid, chi.URLParam(r, "productId"), *payload.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.respond(w, http.StatusOK, snap)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := h.Svc.Remove(r.Context(), sid, chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.respond(w, http.StatusOK, snap)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), sid); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respond(w http.ResponseWriter, status int, snap Snapshot) {
	summary, err := h.Svc.Summarize(snap)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, status, summary)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", nil)
		return "", false
	}
	return sid, true
}
