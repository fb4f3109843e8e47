package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

// StatusCache is the read side of the order status projection.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	SetStatus(ctx context.Context, st redisx.OrderStatus) error
}

type OrdersHandler struct {
	Orders *order.Machine
	Cache  StatusCache
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type transitionReq struct {
	To   shop.Status `json:"to"`
	Note string      `json:"note"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/transitions", h.transition)
}

func visible(id Identity, owner string) bool { return id.Admin || id.Owner == owner }

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visible(id, o.OwnerID) {
		// do not leak which ids exist
		writeError(w, r, shop.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	log := logging.FromContext(ctx)

	// 1) cache, when it knows the owner
	if h.Cache != nil {
		st, found, err := h.Cache.GetStatus(ctx, orderID)
		if err != nil {
			log.Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if found && st.OwnerID != "" {
			if !visible(id, st.OwnerID) {
				writeError(w, r, shop.ErrOrderNotFound)
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	// 2) database
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visible(id, o.OwnerID) {
		writeError(w, r, shop.ErrOrderNotFound)
		return
	}
	st := redisx.OrderStatus{
		OrderID: o.ID, OwnerID: o.OwnerID, Status: string(o.Status),
		PaymentStatus: string(o.PaymentStatus), UpdatedAt: o.UpdatedAt,
	}
	if h.Cache != nil {
		if err := h.Cache.SetStatus(ctx, st); err != nil {
			log.Warn("status cache write failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req cancelReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), order.Actor{ID: id.Actor(), Admin: id.Admin}, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := admin(w, r)
	if !ok {
		return
	}
	var req transitionReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.To.Valid() {
		writeError(w, r, &shop.TransitionError{To: req.To})
		return
	}
	o, err := h.Orders.Transition(r.Context(), chi.URLParam(r, "id"), req.To, req.Note, id.Actor())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
