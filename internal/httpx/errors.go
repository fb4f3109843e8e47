package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

var errUnauthenticated = errors.New("authentication required")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorKind struct {
	target error
	status int
	code   string
}

// Order matters: the first matching kind wins.
var errorKinds = []errorKind{
	{errUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{shop.ErrStockUnavailable, http.StatusConflict, "STOCK_UNAVAILABLE"},
	{shop.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{shop.ErrEmptyCart, http.StatusBadRequest, "EMPTY_CART"},
	{shop.ErrAddressInvalid, http.StatusUnprocessableEntity, "ADDRESS_INVALID"},
	{shop.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
	{shop.ErrReservationExpired, http.StatusGone, "RESERVATION_EXPIRED"},
	{shop.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{shop.ErrPaymentVerificationFailed, http.StatusUnprocessableEntity, "PAYMENT_VERIFICATION_FAILED"},
	{shop.ErrInvalidWebhookSignature, http.StatusUnauthorized, "INVALID_WEBHOOK_SIGNATURE"},
	{shop.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{shop.ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND"},
	{shop.ErrOrderNotPayable, http.StatusConflict, "ORDER_NOT_PAYABLE"},
	{shop.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{shop.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{shop.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{shop.ErrMalformedPayload, http.StatusBadRequest, "MALFORMED_PAYLOAD"},
	{shop.ErrGatewayTimeout, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT"},
	{shop.ErrGatewayUnavailable, http.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
	{catalog.ErrUnavailable, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE"},
	{shop.ErrContention, http.StatusServiceUnavailable, "CONTENTION"},
}

func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func details(err error) any {
	var (
		ue *shop.UnavailableError
		se *shop.StockError
		ae *shop.AddressError
		te *shop.TransitionError
	)
	switch {
	case errors.As(err, &ue):
		return map[string]any{"items": ue.Items, "first_unavailable": ue.First()}
	case errors.As(err, &se):
		return se
	case errors.As(err, &ae):
		return map[string]any{"fields": ae.Fields}
	case errors.As(err, &te):
		return map[string]string{"from": string(te.From), "to": string(te.To)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and machine-readable code. Server-side
// failures are logged and their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := errorBody{Error: code, Message: err.Error(), Details: details(err)}
	if status >= 500 {
		logging.FromContext(r.Context()).Error("request failed", zap.String("code", code), zap.Error(err))
		if code == "INTERNAL" {
			body.Message = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shop.ErrMalformedPayload, err)
	}
	return nil
}
