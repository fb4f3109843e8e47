package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type InitRequest struct {
	Reference   string            `json:"reference"`
	AmountCents int64             `json:"amount"`
	Customer    string            `json:"customer"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// Verification is the gateway's view of one payment, already mapped onto the
// payment status lattice.
type Verification struct {
	Reference   string
	Status      shop.PaymentStatus
	AmountCents int64
	Channel     string
	Raw         []byte
}

// MapStatus translates a gateway status string. Unknown strings are
// malformed rather than guessed.
func MapStatus(s string) (shop.PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return shop.PaymentPaid, nil
	case "failed", "reversed":
		return shop.PaymentFailed, nil
	case "abandoned":
		return shop.PaymentAbandoned, nil
	case "pending", "ongoing", "processing", "queued":
		return shop.PaymentPending, nil
	}
	return "", fmt.Errorf("%w: gateway status %q", shop.ErrMalformedPayload, s)
}

// GatewayClient talks to the payment gateway's JSON API with a bearer
// secret key.
type GatewayClient struct {
	base   string
	secret string
	http   *http.Client
}

func NewGatewayClient(baseURL, secretKey string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secretKey,
		http:   &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type verifyData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Channel   string `json:"channel"`
}

func (c *GatewayClient) Initialize(ctx context.Context, in InitRequest) (InitResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return InitResult{}, err
	}
	data, _, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return InitResult{}, err
	}
	var out InitResult
	if err := json.Unmarshal(data, &out); err != nil {
		return InitResult{}, fmt.Errorf("%w: initialize response: %v", shop.ErrMalformedPayload, err)
	}
	if out.Reference == "" {
		out.Reference = in.Reference
	}
	return out, nil
}

func (c *GatewayClient) Verify(ctx context.Context, reference string) (Verification, error) {
	data, raw, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return Verification{}, err
	}
	var d verifyData
	if err := json.Unmarshal(data, &d); err != nil {
		return Verification{}, fmt.Errorf("%w: verify response: %v", shop.ErrMalformedPayload, err)
	}
	st, err := MapStatus(d.Status)
	if err != nil {
		return Verification{}, err
	}
	if d.Reference == "" {
		d.Reference = reference
	}
	return Verification{Reference: d.Reference, Status: st, AmountCents: d.Amount, Channel: d.Channel, Raw: raw}, nil
}

func (c *GatewayClient) do(ctx context.Context, method, path string, body []byte) (data, raw []byte, err error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, classify(err)
	}
	defer resp.Body.Close()
	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, classify(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, raw, shop.ErrPaymentNotFound
	case resp.StatusCode >= 500:
		return nil, raw, fmt.Errorf("%w: status %d", shop.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, raw, fmt.Errorf("%w: gateway rejected request (%d)", shop.ErrMalformedPayload, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, fmt.Errorf("%w: %v", shop.ErrMalformedPayload, err)
	}
	if !env.Status {
		return nil, raw, fmt.Errorf("%w: %s", shop.ErrMalformedPayload, env.Message)
	}
	return env.Data, raw, nil
}

func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", shop.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", shop.ErrGatewayUnavailable, err)
}
