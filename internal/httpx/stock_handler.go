package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

// maxHoldTTL caps client-requested hold durations.
const maxHoldTTL = time.Hour

type StockHandler struct {
	Ledger *ledger.Ledger
}

type reserveReq struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"quantity"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type setStockReq struct {
	Available *int `json:"available_quantity"`
}

func (h *StockHandler) Register(r chi.Router) {
	r.Post("/reservations", h.reserve)
	r.Post("/reservations/{id}/commit", h.commit)
	r.Delete("/reservations/{id}", h.release)
	r.Get("/stock/{productId}", h.stock)
	r.Put("/stock/{productId}", h.setStock)
}

func (h *StockHandler) reserve(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req reserveReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, shop.ErrProductNotFound)
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl > maxHoldTTL {
		ttl = maxHoldTTL
	}
	res, err := h.Ledger.Reserve(r.Context(), req.ProductID, req.Qty, id.Owner, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// commit is for back-office flows; shoppers commit through checkout.
func (h *StockHandler) commit(w http.ResponseWriter, r *http.Request) {
	if _, ok := admin(w, r); !ok {
		return
	}
	if err := h.Ledger.Commit(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StockHandler) release(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	resID := chi.URLParam(r, "id")
	res, err := h.Ledger.Reservation(r.Context(), resID)
	switch {
	case errors.Is(err, shop.ErrReservationNotFound):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeError(w, r, err)
		return
	case !id.Admin && res.HolderID != id.Owner:
		writeError(w, r, shop.ErrForbidden)
		return
	}
	if err := h.Ledger.Release(r.Context(), resID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StockHandler) stock(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Ledger.Stock(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *StockHandler) setStock(w http.ResponseWriter, r *http.Request) {
	if _, ok := admin(w, r); !ok {
		return
	}
	var req setStockReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Available == nil {
		writeError(w, r, shop.ErrInvalidQuantity)
		return
	}
	ps, err := h.Ledger.SetStock(r.Context(), chi.URLParam(r, "productId"), *req.Available)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
