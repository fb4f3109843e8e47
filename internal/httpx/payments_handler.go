package httpx

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/payment"
)

const maxWebhookBody = 1 << 20

type PaymentsHandler struct {
	Reconciler *payment.Reconciler
	Orders     *order.Machine
}

type verifyResp struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount"`
	OrderID       string `json:"order_id,omitempty"`
	OrderStatus   string `json:"order_status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	Outcome       string `json:"outcome"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Get("/payments/verify/{reference}", h.verify)
	r.Post("/payments/webhook", h.webhook)
}

// verify is the landing call after the shopper returns from the gateway.
func (h *PaymentsHandler) verify(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	res, err := h.Reconciler.Verify(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := verifyResp{
		Reference:   ref,
		Status:      string(res.Payment.Status),
		AmountCents: res.Payment.AmountCents,
		Outcome:     string(res.Outcome),
	}
	o := res.Order
	if o.ID == "" && res.Payment.OrderID != "" {
		if o, err = h.Orders.Get(r.Context(), res.Payment.OrderID); err != nil {
			logging.FromContext(r.Context()).Warn("order lookup after verify failed", zap.Error(err))
		}
	}
	if o.ID != "" {
		resp.OrderID = o.ID
		resp.OrderStatus = string(o.Status)
		resp.PaymentStatus = string(o.PaymentStatus)
	}
	writeJSON(w, http.StatusOK, resp)
}

// webhook always acknowledges. A non-2xx answer only makes the gateway
// retry, and none of the rejections here get better with a retry.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("webhook body unreadable", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	res, err := h.Reconciler.HandleWebhook(r.Context(), r.Header.Get(payment.SignatureHeader), body)
	if err != nil {
		log.Warn("webhook rejected", zap.Error(err))
	} else {
		log.Info("webhook processed",
			zap.String("outcome", string(res.Outcome)), zap.String("reference", res.Payment.Reference))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
