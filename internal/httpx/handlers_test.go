package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/checkout"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/memstore"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/payment"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "test-webhook-secret"
)

var t0 = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

var products = catalog.Static{
	"a": {ID: "a", Name: "Alpha", PriceCents: 100, Active: true},
	"b": {ID: "b", Name: "Bravo", PriceCents: 250, Active: true},
}

var addr = shop.Address{FullName: "Grace Hopper", Line1: "7 Cobol Way", City: "Arlington", PostalCode: "22201", Country: "US"}

type fakeCache struct {
	mu sync.Mutex
	m  map[string]redisx.OrderStatus
	// hits counts reads answered from the map
	hits int
}

func (c *fakeCache) GetStatus(_ context.Context, id string) (redisx.OrderStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.m[id]
	if ok {
		c.hits++
	}
	return st, ok, nil
}

func (c *fakeCache) SetStatus(_ context.Context, st redisx.OrderStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[st.OrderID] = st
	return nil
}

func (c *fakeCache) InvalidateStatus(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

type fakeIdem struct{ m map[string]string }

func (f *fakeIdem) CheckoutFor(_ context.Context, owner, key string) (string, bool, error) {
	id, ok := f.m[owner+"|"+key]
	return id, ok, nil
}

func (f *fakeIdem) RememberCheckout(_ context.Context, owner, key, orderID string) error {
	f.m[owner+"|"+key] = orderID
	return nil
}

// fakeGateway answers both initialize and verify from memory.
type fakeGateway struct {
	mu       sync.Mutex
	amounts  map[string]int64
	statuses map[string]shop.PaymentStatus
}

func (g *fakeGateway) Initialize(_ context.Context, in payment.InitRequest) (payment.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts[in.Reference] = in.AmountCents
	return payment.InitResult{
		Reference:        in.Reference,
		AuthorizationURL: "https://pay.example/" + in.Reference,
		AccessCode:       "ac-" + in.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, ref string) (payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[ref]
	if !ok {
		st = shop.PaymentPending
	}
	return payment.Verification{Reference: ref, Status: st, AmountCents: g.amounts[ref], Channel: "card"}, nil
}

type server struct {
	st     *memstore.Store
	ledger *ledger.Ledger
	cache  *fakeCache
	gw     *fakeGateway
	reg    *prometheus.Registry
	router *chi.Mux
}

func newServer(t *testing.T) *server {
	t.Helper()
	clock := func() time.Time { return t0 }
	st := memstore.New().WithClock(clock)
	l := ledger.New(st, 15*time.Minute, ledger.WithClock(clock))
	for pid, n := range map[string]int{"a": 5, "b": 1} {
		if _, err := l.SetStock(context.Background(), pid, n); err != nil {
			t.Fatal(err)
		}
	}
	s := &server{
		st: st, ledger: l,
		cache: &fakeCache{m: map[string]redisx.OrderStatus{}},
		gw:    &fakeGateway{amounts: map[string]int64{}, statuses: map[string]shop.PaymentStatus{}},
		reg:   prometheus.NewRegistry(),
	}
	m := metrics.New(s.reg)
	pricing := cart.Pricing{TaxRate: decimal.RequireFromString("0.15"), ShippingFeeCents: 75, FreeShippingThreshold: 500}
	machine := order.New(st, l, order.WithClock(clock), order.WithStatusCache(s.cache))
	co := checkout.New(st, l, products, pricing,
		checkout.WithClock(clock), checkout.WithStatusCache(s.cache), checkout.WithMetrics(m),
		checkout.WithGateway(s.gw, time.Second, "https://shop.example/return"))
	rec := payment.NewReconciler(st, machine, s.gw, webhookSecret,
		payment.WithClock(clock), payment.WithStatusCache(s.cache), payment.WithMetrics(m))

	r := NewRouter(zap.NewNop(), m, NewAuth(jwtSecret), s.reg)
	(&CartHandler{Carts: cart.NewService(st, products, pricing, nil)}).Register(r)
	(&CheckoutHandler{Checkout: co, Orders: machine, Idem: &fakeIdem{m: map[string]string{}}}).Register(r)
	(&PaymentsHandler{Reconciler: rec, Orders: machine}).Register(r)
	(&OrdersHandler{Orders: machine, Cache: s.cache}).Register(r)
	(&StockHandler{Ledger: l}).Register(r)
	s.router = r
	return s
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func bearer(t *testing.T, sub, role string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token(t, sub, role)}}
}

func session(s string) http.Header { return http.Header{SessionHeader: {s}} }

func (s *server) do(t *testing.T, method, path string, body any, h http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (s *server) placeOrder(t *testing.T, h http.Header, lines map[string]int) shop.Order {
	t.Helper()
	for pid, q := range lines {
		if rr := s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: pid, Qty: q}, h); rr.Code != http.StatusOK {
			t.Fatalf("add %s: %d %s", pid, rr.Code, rr.Body)
		}
	}
	rr := s.do(t, http.MethodPost, "/checkout", map[string]any{"shipping_address": addr}, h)
	if rr.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rr.Code, rr.Body)
	}
	return decode[shop.Order](t, rr)
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	s := newServer(t)
	if rr := s.do(t, http.MethodGet, "/cart", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous without session: %d", rr.Code)
	}
	rr := s.do(t, http.MethodGet, "/cart", nil, http.Header{"Authorization": {"Bearer not-a-jwt"}})
	if rr.Code != http.StatusUnauthorized || decode[errorBody](t, rr).Error != "UNAUTHENTICATED" {
		t.Fatalf("bad token: %d %s", rr.Code, rr.Body)
	}
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("other"))
	if rr := s.do(t, http.MethodGet, "/cart", nil, http.Header{"Authorization": {"Bearer " + forged}}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/healthz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
}

func TestCheckoutIsIdempotentPerKey(t *testing.T) {
	s := newServer(t)
	h := session("sess-1")
	o := s.placeOrder(t, h, map[string]int{"a": 2})
	if o.OwnerID != shop.AnonOwner("sess-1") || o.Status != shop.StatusPending || o.BillingAddress != addr {
		t.Fatalf("order = %+v", o)
	}

	h.Set("Idempotency-Key", "k1")
	if rr := s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "a", Qty: 1}, h); rr.Code != http.StatusOK {
		t.Fatal(rr.Body)
	}
	first := s.do(t, http.MethodPost, "/checkout", map[string]any{"shipping_address": addr}, h)
	again := s.do(t, http.MethodPost, "/checkout", map[string]any{"shipping_address": addr}, h)
	if first.Code != http.StatusCreated || again.Code != http.StatusOK {
		t.Fatalf("codes %d %d", first.Code, again.Code)
	}
	if decode[shop.Order](t, first).ID != decode[shop.Order](t, again).ID {
		t.Fatal("replayed key produced a second order")
	}
	body := decode[map[string]any](t, again)
	placed := decode[checkoutResp](t, again)
	if body["order_id"] == nil || body["order_number"] == nil || body["status"] != "pending" ||
		placed.Total == 0 || placed.Total != placed.Totals.TotalCents {
		t.Fatalf("checkout body = %v", body)
	}
	if ps, _ := s.st.StockOf("a"); ps.Available != 2 {
		t.Fatalf("available = %d", ps.Available)
	}
}

func TestCheckoutReportsUnavailableItems(t *testing.T) {
	s := newServer(t)
	h := session("sess-2")
	s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "a", Qty: 1}, h)
	s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "b", Qty: 3}, h)
	rr := s.do(t, http.MethodPost, "/checkout", map[string]any{"shipping_address": addr}, h)
	if rr.Code != http.StatusConflict {
		t.Fatalf("code = %d %s", rr.Code, rr.Body)
	}
	body := decode[errorBody](t, rr)
	if body.Error != "STOCK_UNAVAILABLE" || !strings.Contains(rr.Body.String(), `"first_unavailable":"b"`) {
		t.Fatalf("body = %s", rr.Body)
	}

	rr = s.do(t, http.MethodPost, "/checkout", map[string]any{"shipping_address": shop.Address{FullName: "x"}}, h)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "shipping_address.city") {
		t.Fatalf("address: %d %s", rr.Code, rr.Body)
	}
	if rr := s.do(t, http.MethodPost, "/checkout", []byte("{"), h); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed: %d", rr.Code)
	}
}

func TestOrdersAreVisibleToOwnerAndAdminOnly(t *testing.T) {
	s := newServer(t)
	owner := bearer(t, "u1", "")
	o := s.placeOrder(t, owner, map[string]int{"a": 1})

	if rr := s.do(t, http.MethodGet, "/orders/"+o.ID, nil, owner); rr.Code != http.StatusOK {
		t.Fatalf("owner: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/orders/"+o.ID, nil, bearer(t, "u2", "")); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/orders/"+o.ID, nil, bearer(t, "ops", "admin")); rr.Code != http.StatusOK {
		t.Fatalf("admin: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil, bearer(t, "u2", "")); rr.Code != http.StatusNotFound {
		t.Fatalf("stranger status: %d", rr.Code)
	}
}

func TestStatusIsServedFromCacheThenDatabase(t *testing.T) {
	s := newServer(t)
	h := bearer(t, "u1", "")
	o := s.placeOrder(t, h, map[string]int{"a": 1})

	rr := s.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil, h)
	if rr.Code != http.StatusOK || s.cache.hits != 1 {
		t.Fatalf("cached read: %d hits=%d", rr.Code, s.cache.hits)
	}

	delete(s.cache.m, o.ID)
	rr = s.do(t, http.MethodGet, "/orders/"+o.ID+"/status", nil, h)
	st := decode[redisx.OrderStatus](t, rr)
	if rr.Code != http.StatusOK || st.Status != "pending" || st.OwnerID != o.OwnerID {
		t.Fatalf("db read: %d %+v", rr.Code, st)
	}
	if _, ok := s.cache.m[o.ID]; !ok {
		t.Fatal("database read did not refill the cache")
	}
}

func TestCancelAndAdminTransitions(t *testing.T) {
	s := newServer(t)
	h := bearer(t, "u1", "")
	o := s.placeOrder(t, h, map[string]int{"a": 2})

	if rr := s.do(t, http.MethodPost, "/orders/"+o.ID+"/transitions", transitionReq{To: shop.StatusConfirmed}, h); rr.Code != http.StatusForbidden {
		t.Fatalf("customer transition: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", nil, bearer(t, "u2", "")); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger cancel: %d", rr.Code)
	}
	rr := s.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", cancelReq{Reason: "changed my mind"}, h)
	if rr.Code != http.StatusOK || decode[shop.Order](t, rr).Status != shop.StatusCancelled {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body)
	}
	if ps, _ := s.st.StockOf("a"); ps.Available != 5 {
		t.Fatalf("cancel did not restock: %d", ps.Available)
	}
	rr = s.do(t, http.MethodPost, "/orders/"+o.ID+"/transitions", transitionReq{To: shop.StatusShipped}, bearer(t, "ops", "admin"))
	if rr.Code != http.StatusConflict || decode[errorBody](t, rr).Error != "INVALID_TRANSITION" {
		t.Fatalf("illegal transition: %d %s", rr.Code, rr.Body)
	}
}

func TestPaymentInitializeWebhookAndVerify(t *testing.T) {
	s := newServer(t)
	h := bearer(t, "u1", "")
	o := s.placeOrder(t, h, map[string]int{"a": 2})

	if rr := s.do(t, http.MethodPost, "/payments/initialize/"+o.ID, nil, bearer(t, "u2", "")); rr.Code != http.StatusForbidden {
		t.Fatalf("stranger initialize: %d", rr.Code)
	}
	rr := s.do(t, http.MethodPost, "/payments/initialize/"+o.ID, nil, h)
	if rr.Code != http.StatusOK {
		t.Fatalf("initialize: %d %s", rr.Code, rr.Body)
	}
	init := decode[initializeResp](t, rr)
	if init.AmountCents != o.Totals.TotalCents || !strings.HasPrefix(init.Reference, o.OrderNumber+"-") || init.RedirectURL == "" {
		t.Fatalf("init = %+v", init)
	}

	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":%d,"channel":"card"}}`,
		init.Reference, init.AmountCents))

	forged := s.do(t, http.MethodPost, "/payments/webhook", body, http.Header{payment.SignatureHeader: {"00"}})
	if forged.Code != http.StatusOK {
		t.Fatalf("webhook must always ack, got %d", forged.Code)
	}
	if got, _ := s.orderStatus(t, o.ID); got != shop.StatusPending {
		t.Fatalf("forged webhook moved order to %s", got)
	}

	signed := s.do(t, http.MethodPost, "/payments/webhook", body, http.Header{payment.SignatureHeader: {payment.Sign(webhookSecret, body)}})
	if signed.Code != http.StatusOK || !strings.Contains(signed.Body.String(), `"received":true`) {
		t.Fatalf("webhook: %d %s", signed.Code, signed.Body)
	}
	if got, pay := s.orderStatus(t, o.ID); got != shop.StatusConfirmed || pay != shop.PaymentPaid {
		t.Fatalf("after webhook: %s/%s", got, pay)
	}

	// The shopper lands on the verify page after the webhook already applied.
	s.gw.statuses[init.Reference] = shop.PaymentPaid
	rr = s.do(t, http.MethodGet, "/payments/verify/"+init.Reference, nil, nil)
	v := decode[verifyResp](t, rr)
	if rr.Code != http.StatusOK || v.Status != "paid" || v.OrderStatus != "confirmed" || v.Outcome != string(payment.OutcomeDuplicate) {
		t.Fatalf("verify: %d %+v", rr.Code, v)
	}
	if rr := s.do(t, http.MethodGet, "/payments/verify/nope", nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown reference: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/payments/initialize/"+o.ID, nil, h); rr.Code != http.StatusConflict {
		t.Fatalf("initialize paid order: %d", rr.Code)
	}
}

func (s *server) orderStatus(t *testing.T, id string) (shop.Status, shop.PaymentStatus) {
	t.Helper()
	var o shop.Order
	err := s.st.InTx(context.Background(), func(ctx context.Context, tx shop.Tx) error {
		var err error
		o, err = tx.Orders().GetOrder(ctx, id)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return o.Status, o.PaymentStatus
}

func TestReservationLifecycle(t *testing.T) {
	s := newServer(t)
	holder := session("sess-r")
	rr := s.do(t, http.MethodPost, "/reservations", reserveReq{ProductID: "a", Qty: 2, TTLSeconds: 60}, holder)
	if rr.Code != http.StatusCreated {
		t.Fatalf("reserve: %d %s", rr.Code, rr.Body)
	}
	res := decode[shop.Reservation](t, rr)
	if res.HolderID != shop.AnonOwner("sess-r") || !res.ExpiresAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("reservation = %+v", res)
	}

	if rr := s.do(t, http.MethodPost, "/reservations", reserveReq{ProductID: "b", Qty: 2}, holder); rr.Code != http.StatusConflict {
		t.Fatalf("oversell: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodDelete, "/reservations/"+res.ID, nil, session("other")); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign release: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodDelete, "/reservations/"+res.ID, nil, holder); rr.Code != http.StatusNoContent {
		t.Fatalf("release: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodDelete, "/reservations/"+res.ID, nil, holder); rr.Code != http.StatusNoContent {
		t.Fatalf("second release: %d", rr.Code)
	}
	rr = s.do(t, http.MethodGet, "/stock/a", nil, nil)
	if ps := decode[shop.ProductStock](t, rr); ps.Available != 5 || ps.Reserved != 0 {
		t.Fatalf("stock = %+v", ps)
	}
	if rr := s.do(t, http.MethodPost, "/reservations/"+res.ID+"/commit", nil, bearer(t, "ops", "admin")); rr.Code != http.StatusNotFound {
		t.Fatalf("commit released: %d", rr.Code)
	}
}

func TestStockWritesRequireAdmin(t *testing.T) {
	s := newServer(t)
	n := 40
	if rr := s.do(t, http.MethodPut, "/stock/c", setStockReq{Available: &n}, bearer(t, "u1", "")); rr.Code != http.StatusForbidden {
		t.Fatalf("customer: %d", rr.Code)
	}
	rr := s.do(t, http.MethodPut, "/stock/c", setStockReq{Available: &n}, bearer(t, "ops", "admin"))
	if rr.Code != http.StatusOK || decode[shop.ProductStock](t, rr).Available != 40 {
		t.Fatalf("admin: %d %s", rr.Code, rr.Body)
	}
	if rr := s.do(t, http.MethodPut, "/stock/c", map[string]any{}, bearer(t, "ops", "admin")); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing quantity: %d", rr.Code)
	}
}

func TestCartMergeAfterSignIn(t *testing.T) {
	s := newServer(t)
	anon := session("sess-m")
	s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "a", Qty: 2}, anon)
	user := bearer(t, "u9", "")
	s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "a", Qty: 1}, user)

	if rr := s.do(t, http.MethodPost, "/cart/merge", mergeReq{SessionToken: "sess-m"}, anon); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous merge: %d", rr.Code)
	}
	rr := s.do(t, http.MethodPost, "/cart/merge", mergeReq{SessionToken: "sess-m"}, user)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"merged":true`) {
		t.Fatalf("merge: %d %s", rr.Code, rr.Body)
	}
	v := decode[cart.View](t, s.do(t, http.MethodGet, "/cart", nil, user))
	if len(v.Lines) != 1 || v.Lines[0].Qty != 3 || v.SubtotalCents != 300 {
		t.Fatalf("merged cart = %+v", v)
	}
	rr = s.do(t, http.MethodPost, "/cart/merge", mergeReq{SessionToken: "sess-m"}, user)
	if !strings.Contains(rr.Body.String(), `"merged":false`) {
		t.Fatalf("second merge: %s", rr.Body)
	}

	if rr := s.do(t, http.MethodPatch, "/cart/items/a", cartItemReq{Qty: 0}, user); rr.Code != http.StatusOK {
		t.Fatalf("set zero: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "zzz", Qty: 1}, user); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown product: %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/cart/items", cartItemReq{ProductID: "a", Qty: -1}, user); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative qty: %d", rr.Code)
	}
}

func TestMetricsAreLabelledByRoute(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodGet, "/stock/a", nil, nil)
	rr := s.do(t, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `storefront_http_requests_total{code="200",route="/stock/{productId}"} 1`) {
		t.Fatalf("route label missing:\n%s", rr.Body)
	}
}

func TestClassify(t *testing.T) {
	cases := map[error]int{
		shop.NewStockError("a", 2, 1, nil):                          http.StatusConflict,
		&shop.UnavailableError{}:                                     http.StatusConflict,
		shop.ErrReservationExpired:                                   http.StatusGone,
		shop.ErrGatewayTimeout:                                       http.StatusGatewayTimeout,
		catalog.ErrUnavailable:                                       http.StatusServiceUnavailable,
		&shop.TransitionError{From: shop.StatusPending, To: "bogus"}: http.StatusConflict,
		context.Canceled:                                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got, _ := classify(err); got != want {
			t.Fatalf("%v: status %d, want %d", err, got, want)
		}
	}
}
