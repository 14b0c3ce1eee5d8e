package order

import (
	"errors"
	"net/http"

	"github.com/noah-isme/storefront-bff/internal/common"
	"github.com/noah-isme/storefront-bff/internal/orderstate"
)

// Handler exposes the session's current order.
type Handler struct {
	State     StateStore
	Refresher Refresher
}

// Current handles GET /api/v1/orders/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, err := h.State.Load(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rec)
}

// Refresh handles POST /api/v1/orders/current/refresh. A still-pending order
// is a normal outcome and returns 200 with the stored record.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	rec, err := h.Refresher.Refresh(r.Context(), sid, "")
	if err != nil && !errors.Is(err, ErrStillPending) {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rec)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, orderstate.ErrNoCurrentOrder) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "no current order", nil)
		return
	}
	common.WriteError(w, err)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.State == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order state not configured", nil)
		return "", false
	}
	sid, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session id is required", nil)
		return "", false
	}
	return sid, true
}
