package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-bff/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	client   *Client
	inflight *Inflight
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Client   *Client
	Inflight *Inflight
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	inflight := cfg.Inflight
	if inflight == nil {
		inflight = NewInflight()
	}
	return &Handler{client: cfg.Client, inflight: inflight}
}

// Products handles GET /api/v1/products. Query parameters pass through to
// the upstream listing.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog client not configured", nil)
		return
	}
	ctx, done := h.inflight.Begin(r.Context(), slotKey(r, "products"))
	defer done()
	items, err := h.client.List(ctx, r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// ProductDetail handles GET /api/v1/products/{id}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog client not configured", nil)
		return
	}
	ctx, done := h.inflight.Begin(r.Context(), slotKey(r, "product"))
	defer done()
	product, err := h.client.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, product)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSuperseded) {
		common.JSONError(w, http.StatusConflict, "REQUEST_SUPERSEDED", "a newer request replaced this one", nil)
		return
	}
	common.WriteError(w, err)
}

func slotKey(r *http.Request, slot string) string {
	sid, ok := common.SessionID(r.Context())
	if !ok {
		return ""
	}
	return sid + "|" + slot
}
