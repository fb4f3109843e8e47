package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/checkout"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

// IdempotencyStore maps a client Idempotency-Key to the order it produced.
type IdempotencyStore interface {
	CheckoutFor(ctx context.Context, ownerID, idemKey string) (string, bool, error)
	RememberCheckout(ctx context.Context, ownerID, idemKey, orderID string) error
}

type CheckoutHandler struct {
	Checkout *checkout.Orchestrator
	Orders   *order.Machine
	Idem     IdempotencyStore
}

type checkoutReq struct {
	Shipping    shop.Address  `json:"shipping_address"`
	Billing     *shop.Address `json:"billing_address"`
	PaymentHint string        `json:"payment_method_hint"`
}

// checkoutResp is the order with its grand total lifted to the top level.
type checkoutResp struct {
	shop.Order
	Total int64 `json:"total"`
}

func newCheckoutResp(o shop.Order) checkoutResp {
	return checkoutResp{Order: o, Total: o.Totals.TotalCents}
}

type initializeResp struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
	Reference   string `json:"reference"`
	AccessCode  string `json:"access_code"`
	AmountCents int64  `json:"amount"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Post("/payments/initialize/{orderId}", h.initialize)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req checkoutReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	log := logging.FromContext(ctx)

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.Idem != nil {
		orderID, found, err := h.Idem.CheckoutFor(ctx, id.Owner, key)
		if err != nil {
			log.Warn("idempotency lookup failed", zap.Error(err))
		} else if found {
			o, err := h.Orders.Get(ctx, orderID)
			if err == nil {
				writeJSON(w, http.StatusOK, newCheckoutResp(o))
				return
			}
			log.Warn("idempotent order unreadable", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	billing := req.Shipping
	if req.Billing != nil {
		billing = *req.Billing
	}
	o, err := h.Checkout.Checkout(ctx, checkout.Request{
		Owner: id.Owner, Shipping: req.Shipping, Billing: billing, PaymentHint: req.PaymentHint,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if key != "" && h.Idem != nil {
		if err := h.Idem.RememberCheckout(ctx, id.Owner, key, o.ID); err != nil {
			log.Warn("idempotency write failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, newCheckoutResp(o))
}

func (h *CheckoutHandler) initialize(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	in, err := h.Checkout.InitializePayment(r.Context(), id.Owner, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initializeResp{
		OrderID:     in.OrderID,
		RedirectURL: in.AuthorizationURL,
		Reference:   in.Reference,
		AccessCode:  in.AccessCode,
		AmountCents: in.AmountCents,
	})
}
