// Package checkout converts a cart into an order in one transaction: every
// line is reserved and committed, the order is written with price snapshots
// and the cart is cleared, or nothing happens at all.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/payment"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-storefront-core/internal/checkout")

// maxPriceRefresh bounds how often a cart that changed between the price
// lookup and the lock is re-priced before giving up.
const maxPriceRefresh = 3

type Request struct {
	Owner       string       `json:"owner" validate:"required"`
	Shipping    shop.Address `json:"shipping_address"`
	Billing     shop.Address `json:"billing_address"`
	PaymentHint string       `json:"payment_method_hint" validate:"max=50"`
}

type StatusCache interface {
	SetStatus(ctx context.Context, st redisx.OrderStatus) error
}

type Gateway interface {
	Initialize(ctx context.Context, in payment.InitRequest) (payment.InitResult, error)
}

type Orchestrator struct {
	store    shop.Store
	ledger   *ledger.Ledger
	catalog  cart.Catalog
	pricing  cart.Pricing
	validate *validator.Validate

	gateway        Gateway
	gatewayTimeout time.Duration
	callbackURL    string

	events  *events.Emitter
	cache   StatusCache
	metrics *metrics.Metrics
	retry   retry.Policy
	now     func() time.Time
	newID   func() string
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithEvents(e *events.Emitter) Option { return func(o *Orchestrator) { o.events = e } }

func WithStatusCache(c StatusCache) Option { return func(o *Orchestrator) { o.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithRetry(p retry.Policy) Option { return func(o *Orchestrator) { o.retry = p } }

func WithGateway(g Gateway, timeout time.Duration, callbackURL string) Option {
	return func(o *Orchestrator) {
		o.gateway = g
		o.gatewayTimeout = timeout
		o.callbackURL = callbackURL
	}
}

func New(store shop.Store, l *ledger.Ledger, cat cart.Catalog, pricing cart.Pricing, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		ledger:         l,
		catalog:        cat,
		pricing:        pricing,
		validate:       newValidator(),
		gatewayTimeout: 10 * time.Second,
		retry:          retry.Policy{Attempts: 3, Base: 25 * time.Millisecond, Max: time.Second},
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (o *Orchestrator) validateRequest(req Request) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// "Request.shipping_address.city" -> "shipping_address.city"
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		fields[field] = fe.Tag()
	}
	return &shop.AddressError{Fields: fields}
}

// stalePrices reports cart lines that were added after the price lookup.
type stalePrices struct{ ids []string }

func (e *stalePrices) Error() string { return fmt.Sprintf("prices missing for %v", e.ids) }

// Checkout places an order for everything in the owner's cart.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (order shop.Order, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout")
	span.SetAttributes(attribute.String("owner_id", req.Owner))
	start := time.Now()
	log := logging.FromContext(ctx)
	defer func() {
		outcome := outcomeOf(err)
		o.metrics.Checkout(outcome, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			log.Info("checkout failed", zap.String("owner_id", req.Owner), zap.String("outcome", outcome), zap.Error(err))
		} else {
			span.SetAttributes(attribute.String("order_id", order.ID))
			log.Info("checkout completed",
				zap.String("owner_id", req.Owner), zap.String("order_id", order.ID),
				zap.String("order_number", order.OrderNumber), zap.Int64("total", order.Totals.TotalCents),
				zap.Duration("took", time.Since(start)))
		}
		span.End()
	}()

	if err := o.validateRequest(req); err != nil {
		return shop.Order{}, err
	}

	// Price lookups are network calls; they happen before any row is locked.
	var snapshot shop.Cart
	err = o.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		snapshot, err = tx.Carts().GetCart(ctx, req.Owner)
		return err
	})
	if err != nil {
		return shop.Order{}, err
	}
	if snapshot.Empty() {
		return shop.Order{}, shop.ErrEmptyCart
	}
	prices := map[string]catalog.Product{}
	looked := map[string]bool{}
	if err := o.lookup(ctx, snapshot.ProductIDs(), prices, looked); err != nil {
		return shop.Order{}, err
	}

	attemptID := o.newID()
	for refresh := 0; ; refresh++ {
		err = retry.Do(ctx, o.retry, ledger.IsContention, func(ctx context.Context) error {
			return o.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
				var err error
				order, err = o.place(ctx, tx, req, attemptID, prices, looked)
				return err
			})
		})
		var stale *stalePrices
		if !errors.As(err, &stale) {
			break
		}
		if refresh == maxPriceRefresh {
			return shop.Order{}, fmt.Errorf("%w: cart kept changing during checkout", catalog.ErrUnavailable)
		}
		if err := o.lookup(ctx, stale.ids, prices, looked); err != nil {
			return shop.Order{}, err
		}
	}
	if err != nil {
		return shop.Order{}, err
	}

	o.announce(ctx, order)
	return order, nil
}

func (o *Orchestrator) lookup(ctx context.Context, ids []string, prices map[string]catalog.Product, looked map[string]bool) error {
	found, err := o.catalog.Lookup(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		looked[id] = true
		if p, ok := found[id]; ok {
			prices[id] = p
		}
	}
	return nil
}

// place is one transactional attempt. Any error rolls back every hold taken
// here, so a failed checkout leaves stock exactly as it found it.
func (o *Orchestrator) place(ctx context.Context, tx shop.Tx, req Request, attemptID string, prices map[string]catalog.Product, looked map[string]bool) (shop.Order, error) {
	c, _, err := tx.Carts().LockCart(ctx, req.Owner)
	if err != nil {
		return shop.Order{}, err
	}
	if c.Empty() {
		return shop.Order{}, shop.ErrEmptyCart
	}
	var unseen []string
	for _, l := range c.Items {
		if !looked[l.ProductID] {
			unseen = append(unseen, l.ProductID)
		}
	}
	if len(unseen) > 0 {
		return shop.Order{}, &stalePrices{ids: unseen}
	}

	lines := append([]shop.CartLine(nil), c.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	holder := "checkout:" + attemptID
	var (
		unavailable  []shop.StockError
		reservations []shop.Reservation
	)
	for _, l := range lines {
		if _, ok := prices[l.ProductID]; !ok {
			unavailable = append(unavailable, *shop.NewStockError(l.ProductID, l.Qty, 0, shop.ErrProductNotFound))
			continue
		}
		// The shopper's own earlier holds are folded into this checkout.
		if _, err := o.ledger.ReleaseHolder(ctx, tx, req.Owner, l.ProductID); err != nil {
			return shop.Order{}, err
		}
		res, err := o.ledger.ReserveIn(ctx, tx, l.ProductID, l.Qty, holder, 0)
		var se *shop.StockError
		if errors.As(err, &se) {
			unavailable = append(unavailable, *se)
			continue
		}
		if err != nil {
			return shop.Order{}, err
		}
		reservations = append(reservations, res)
	}
	if len(unavailable) > 0 {
		return shop.Order{}, &shop.UnavailableError{Items: unavailable}
	}

	for _, res := range reservations {
		if err := o.ledger.CommitIn(ctx, tx, res.ID); err != nil {
			return shop.Order{}, err
		}
	}

	now := o.now().UTC()
	seq, err := tx.Orders().NextOrderSeq(ctx)
	if err != nil {
		return shop.Order{}, err
	}
	summary := cart.Summarize(lines, prices, o.pricing)
	items := make([]shop.OrderItem, 0, len(summary.Lines))
	for _, pl := range summary.Lines {
		items = append(items, shop.OrderItem{
			ProductID: pl.ProductID, Name: pl.Name, Qty: pl.Qty, UnitPriceCents: pl.UnitPriceCents,
		})
	}
	order := shop.Order{
		ID:                o.newID(),
		OrderNumber:       fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), seq),
		OwnerID:           req.Owner,
		Status:            shop.StatusPending,
		PaymentStatus:     shop.PaymentPending,
		PaymentMethodHint: req.PaymentHint,
		Totals:            summary.Totals,
		Items:             items,
		ShippingAddress:   req.Shipping,
		BillingAddress:    req.Billing,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.Orders().InsertOrder(ctx, order); err != nil {
		return shop.Order{}, err
	}
	created := shop.StatusEntry{Status: shop.StatusPending, Note: "Order created", Actor: req.Owner, CreatedAt: now}
	if err := tx.Orders().AppendHistory(ctx, order.ID, created); err != nil {
		return shop.Order{}, err
	}
	if err := tx.Carts().ClearLines(ctx, req.Owner); err != nil {
		return shop.Order{}, err
	}
	order.History = []shop.StatusEntry{created}
	return order, nil
}

func (o *Orchestrator) announce(ctx context.Context, order shop.Order) {
	items := make([]events.ItemPrice, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, events.ItemPrice{ProductID: it.ProductID, Qty: it.Qty, PriceCents: it.UnitPriceCents})
	}
	o.events.Emit(ctx, events.TopicOrderCreated, events.EventOrderCreated, order.ID, events.OrderCreatedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OwnerID:       order.OwnerID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         items,
		TotalCents:    order.Totals.TotalCents,
	})
	if o.cache != nil {
		st := redisx.OrderStatus{OrderID: order.ID, OwnerID: order.OwnerID, Status: string(order.Status), PaymentStatus: string(order.PaymentStatus), UpdatedAt: order.UpdatedAt}
		if err := o.cache.SetStatus(ctx, st); err != nil {
			logging.FromContext(ctx).Warn("status cache write failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, shop.ErrStockUnavailable):
		return "stock_unavailable"
	case errors.Is(err, shop.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, shop.ErrAddressInvalid):
		return "address_invalid"
	case errors.Is(err, shop.ErrContention):
		return "contention"
	default:
		return "error"
	}
}
