package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

const SignatureHeader = "X-Gateway-Signature"

// Sign returns hex(HMAC-SHA512(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks sig against the raw body in constant time.
func VerifySignature(secret string, body []byte, sig string) error {
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil || secret == "" {
		return shop.ErrInvalidWebhookSignature
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return shop.ErrInvalidWebhookSignature
	}
	return nil
}

const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventChargeAbandoned = "charge.abandoned"
)

type webhookBody struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseWebhook decodes a verified webhook body. ok is false for events the
// reconciler does not handle.
func ParseWebhook(body []byte) (u Update, ok bool, err error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Update{}, false, fmt.Errorf("%w: %v", shop.ErrMalformedPayload, err)
	}
	switch wb.Event {
	case EventChargeSuccess, EventChargeFailed, EventChargeAbandoned:
	default:
		return Update{}, false, nil
	}
	var d verifyData
	if err := json.Unmarshal(wb.Data, &d); err != nil {
		return Update{}, false, fmt.Errorf("%w: %s data: %v", shop.ErrMalformedPayload, wb.Event, err)
	}
	if d.Reference == "" {
		return Update{}, false, fmt.Errorf("%w: %s without reference", shop.ErrMalformedPayload, wb.Event)
	}
	st, err := MapStatus(d.Status)
	if err != nil {
		return Update{}, false, err
	}
	return Update{
		Reference:   d.Reference,
		Status:      st,
		AmountCents: d.Amount,
		Channel:     d.Channel,
		Raw:         body,
		Source:      SourceWebhook,
	}, true, nil
}
