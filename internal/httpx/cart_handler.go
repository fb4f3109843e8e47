package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type CartHandler struct {
	Carts *cart.Service
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"quantity"`
}

type mergeReq struct {
	SessionToken string `json:"session_token"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.view)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productId}", h.updateItem)
	r.Delete("/cart/items/{productId}", h.removeItem)
	r.Delete("/cart", h.clear)
	r.Post("/cart/merge", h.merge)
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	v, err := h.Carts.View(r.Context(), id.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, shop.ErrProductNotFound)
		return
	}
	c, err := h.Carts.AddItem(r.Context(), id.Owner, req.ProductID, req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req cartItemReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Carts.UpdateQuantity(r.Context(), id.Owner, chi.URLParam(r, "productId"), req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	c, err := h.Carts.RemoveItem(r.Context(), id.Owner, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	c, err := h.Carts.Clear(r.Context(), id.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// merge runs once after sign-in. The anonymous session comes from the body
// or, failing that, the session header the client kept sending.
func (h *CartHandler) merge(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if !shop.IsUserOwner(id.Owner) {
		writeError(w, r, errUnauthenticated)
		return
	}
	var req mergeReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	session := strings.TrimSpace(req.SessionToken)
	if session == "" {
		session = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	if session == "" {
		writeError(w, r, shop.ErrMalformedPayload)
		return
	}
	merged, err := h.Carts.Merge(r.Context(), shop.AnonOwner(session), id.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.Carts.View(r.Context(), id.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"merged": merged, "cart": v})
}
