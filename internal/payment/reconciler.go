package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/order"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-storefront-core/internal/payment")

const GatewayActor = "payment-gateway"

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
)

// Update is one observation of a payment's status, from either path.
type Update struct {
	Reference   string
	Status      shop.PaymentStatus
	AmountCents int64
	Channel     string
	Raw         []byte
	Source      string
}

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeDiscarded        Outcome = "discarded"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeIgnored          Outcome = "ignored"
	// OutcomeRefundRequired: the gateway captured a second attempt for an
	// order another attempt already paid. The attempt is left as it was.
	OutcomeRefundRequired   Outcome = "refund_required"
)

type Result struct {
	Outcome Outcome
	Payment shop.Payment
	Order   shop.Order
}

type Verifier interface {
	Verify(ctx context.Context, reference string) (Verification, error)
}

// Dedup remembers webhook bodies already processed.
type Dedup interface {
	FirstSeen(ctx context.Context, consumer, id string) (bool, error)
	Forget(ctx context.Context, consumer, id string) error
}

// Reconciler applies gateway observations to payments and orders. Both the
// synchronous verify path and the webhook path end in Apply, which only moves
// a payment forward along the status lattice, so the paths can race in any
// order and converge on the same state.
type Reconciler struct {
	store   shop.Store
	machine *order.Machine
	gateway Verifier
	secret  string

	dedup   Dedup
	cache   order.StatusCache
	events  *events.Emitter
	metrics *metrics.Metrics

	retry       retry.Policy
	verifyRetry retry.Policy
	now         func() time.Time
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func WithDedup(d Dedup) Option { return func(r *Reconciler) { r.dedup = d } }

func WithStatusCache(c order.StatusCache) Option { return func(r *Reconciler) { r.cache = c } }

func WithEvents(e *events.Emitter) Option { return func(r *Reconciler) { r.events = e } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

// WithRetryPolicy sets the retry policy for contended apply transactions.
func WithRetryPolicy(p retry.Policy) Option { return func(r *Reconciler) { r.retry = p } }

// WithVerifyRetry bounds how often a timed-out gateway verify is retried.
func WithVerifyRetry(p retry.Policy) Option { return func(r *Reconciler) { r.verifyRetry = p } }

func NewReconciler(store shop.Store, m *order.Machine, gw Verifier, webhookSecret string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		machine:     m,
		gateway:     gw,
		secret:      webhookSecret,
		retry:       retry.Policy{Attempts: 3, Base: 20 * time.Millisecond, Max: 500 * time.Millisecond},
		verifyRetry: retry.Policy{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second},
		now:         time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func isTimeout(err error) bool { return errors.Is(err, shop.ErrGatewayTimeout) }

// Verify asks the gateway for the payment's status and applies it.
func (r *Reconciler) Verify(ctx context.Context, reference string) (Result, error) {
	err := r.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		_, err := tx.Payments().LockByReference(ctx, reference)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var v Verification
	err = retry.Do(ctx, r.verifyRetry, isTimeout, func(ctx context.Context) error {
		var err error
		v, err = r.gateway.Verify(ctx, reference)
		return err
	})
	if err != nil {
		r.metrics.PaymentEvent(SourceVerify, "gateway_error")
		return Result{}, err
	}
	return r.Apply(ctx, Update{
		Reference:   reference,
		Status:      v.Status,
		AmountCents: v.AmountCents,
		Channel:     v.Channel,
		Raw:         v.Raw,
		Source:      SourceVerify,
	})
}

// HandleWebhook authenticates and applies one webhook delivery. Exact
// redeliveries of a body already processed are reported as duplicates
// without touching storage.
func (r *Reconciler) HandleWebhook(ctx context.Context, signature string, body []byte) (Result, error) {
	if err := VerifySignature(r.secret, body, signature); err != nil {
		r.metrics.PaymentEvent(SourceWebhook, "invalid_signature")
		return Result{}, err
	}
	u, ok, err := ParseWebhook(body)
	if err != nil {
		r.metrics.PaymentEvent(SourceWebhook, "malformed")
		return Result{}, err
	}
	if !ok {
		r.metrics.PaymentEvent(SourceWebhook, string(OutcomeIgnored))
		return Result{Outcome: OutcomeIgnored}, nil
	}

	log := logging.FromContext(ctx)
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	if r.dedup != nil {
		first, err := r.dedup.FirstSeen(ctx, SourceWebhook, digest)
		switch {
		case err != nil:
			log.Warn("webhook dedup unavailable", zap.Error(err))
		case !first:
			r.metrics.PaymentEvent(SourceWebhook, string(OutcomeDuplicate))
			return Result{Outcome: OutcomeDuplicate}, nil
		}
	}

	res, err := r.Apply(ctx, u)
	if err != nil && r.dedup != nil {
		if ferr := r.dedup.Forget(ctx, SourceWebhook, digest); ferr != nil {
			log.Warn("webhook dedup forget failed", zap.Error(ferr))
		}
	}
	return res, err
}

// Apply records u in one transaction. It is idempotent: replays are
// duplicates and observations that would move a payment backwards are
// discarded.
func (r *Reconciler) Apply(ctx context.Context, u Update) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "payment.Apply")
	span.SetAttributes(
		attribute.String("reference", u.Reference),
		attribute.String("status", string(u.Status)),
		attribute.String("source", u.Source),
	)
	log := logging.FromContext(ctx).With(zap.String("reference", u.Reference), zap.String("source", u.Source))
	defer func() {
		outcome := string(res.Outcome)
		if err != nil {
			outcome = "error"
			if errors.Is(err, shop.ErrPaymentVerificationFailed) {
				outcome = "verification_failed"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		r.metrics.PaymentEvent(u.Source, outcome)
		span.End()
	}()

	var (
		moved bool
		ch    order.Change
	)
	err = retry.Do(ctx, r.retry, ledger.IsContention, func(ctx context.Context) error {
		res, moved, ch = Result{}, false, order.Change{}
		return r.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			var err error
			res, moved, ch, err = r.apply(ctx, tx, u)
			return err
		})
	})
	if err != nil {
		log.Warn("payment update rejected", zap.String("status", string(u.Status)), zap.Error(err))
		return Result{}, err
	}

	switch res.Outcome {
	case OutcomeUnknownReference:
		log.Warn("payment update for unknown reference", zap.String("status", string(u.Status)))
		return res, nil
	case OutcomeDiscarded:
		log.Info("stale payment update discarded",
			zap.String("current", string(res.Payment.Status)), zap.String("incoming", string(u.Status)))
		return res, nil
	case OutcomeDuplicate:
		return res, nil
	case OutcomeRefundRequired:
		log.Error("second payment captured for paid order, refund required",
			zap.String("order_id", res.Order.ID), zap.Int64("amount", u.AmountCents))
		r.emitPaymentUpdated(ctx, res, u)
		return res, nil
	}

	log.Info("payment updated",
		zap.String("order_id", res.Order.ID), zap.String("status", string(res.Payment.Status)),
		zap.String("order_status", string(res.Order.Status)), zap.Int64("amount", res.Payment.AmountCents))
	if res.Payment.Status == shop.PaymentPaid && res.Order.Status == shop.StatusCancelled {
		log.Error("payment captured for cancelled order, refund required",
			zap.String("order_id", res.Order.ID), zap.Int64("amount", res.Payment.AmountCents))
	}
	if moved {
		r.machine.Published(ctx, ch)
	} else if r.cache != nil {
		if err := r.cache.InvalidateStatus(ctx, res.Order.ID); err != nil {
			log.Warn("status cache invalidate failed", zap.String("order_id", res.Order.ID), zap.Error(err))
		}
	}
	r.emitPaymentUpdated(ctx, res, u)
	return res, nil
}

func (r *Reconciler) emitPaymentUpdated(ctx context.Context, res Result, u Update) {
	r.events.Emit(ctx, events.TopicPaymentUpdated, events.EventPaymentUpdated, res.Order.ID, events.PaymentUpdatedPayload{
		OrderID:       res.Order.ID,
		Reference:     res.Payment.Reference,
		Status:        string(res.Payment.Status),
		OrderStatus:   string(res.Order.Status),
		PaymentStatus: string(res.Order.PaymentStatus),
		AmountCents:   res.Payment.AmountCents,
		Source:        u.Source,
		Outcome:       string(res.Outcome),
	})
}

func (r *Reconciler) apply(ctx context.Context, tx shop.Tx, u Update) (Result, bool, order.Change, error) {
	p, err := tx.Payments().LockByReference(ctx, u.Reference)
	if errors.Is(err, shop.ErrPaymentNotFound) {
		return Result{Outcome: OutcomeUnknownReference}, false, order.Change{}, nil
	}
	if err != nil {
		return Result{}, false, order.Change{}, err
	}
	if u.Status == shop.PaymentPending || u.Status == p.Status {
		return Result{Outcome: OutcomeDuplicate, Payment: p}, false, order.Change{}, nil
	}
	if u.Status == shop.PaymentPaid && u.AmountCents != p.AmountCents {
		return Result{}, false, order.Change{}, fmt.Errorf("%w: %s paid %d, expected %d",
			shop.ErrPaymentVerificationFailed, u.Reference, u.AmountCents, p.AmountCents)
	}
	if !shop.CanAdvance(p.Status, u.Status) {
		return Result{Outcome: OutcomeDiscarded, Payment: p}, false, order.Change{}, nil
	}

	orders := tx.Orders()
	o, err := orders.LockOrder(ctx, p.OrderID)
	if err != nil {
		return Result{}, false, order.Change{}, err
	}
	// at most one attempt per order is ever paid
	if u.Status == shop.PaymentPaid && o.PaymentStatus == shop.PaymentPaid {
		return Result{Outcome: OutcomeRefundRequired, Payment: p, Order: o}, false, order.Change{}, nil
	}

	at := r.now().UTC()
	ok, err := tx.Payments().AdvanceStatus(ctx, u.Reference, p.Status, u.Status, u.Channel, u.Raw, at)
	if err != nil {
		return Result{}, false, order.Change{}, err
	}
	if !ok {
		return Result{Outcome: OutcomeDiscarded, Payment: p}, false, order.Change{}, nil
	}
	p.Status, p.Channel, p.UpdatedAt = u.Status, u.Channel, at

	if u.Status != shop.PaymentPaid {
		if o.PaymentStatus == shop.PaymentPaid {
			// another attempt already paid for this order
			return Result{Outcome: OutcomeApplied, Payment: p, Order: o}, false, order.Change{}, nil
		}
		live, err := otherPending(ctx, tx, o.ID, p.Reference)
		if err != nil {
			return Result{}, false, order.Change{}, err
		}
		if live {
			// the shopper is still paying through a newer attempt
			return Result{Outcome: OutcomeApplied, Payment: p, Order: o}, false, order.Change{}, nil
		}
	}
	if err := orders.SetPaymentStatus(ctx, o.ID, u.Status, at); err != nil {
		return Result{}, false, order.Change{}, err
	}
	o.PaymentStatus, o.UpdatedAt = u.Status, at

	var to shop.Status
	var note string
	switch {
	case u.Status == shop.PaymentPaid && o.Status == shop.StatusPending:
		to, note = shop.StatusConfirmed, "Payment confirmed"
	case u.Status == shop.PaymentAbandoned && o.Status == shop.StatusPending:
		to, note = shop.StatusCancelled, "Payment abandoned"
	default:
		return Result{Outcome: OutcomeApplied, Payment: p, Order: o}, false, order.Change{}, nil
	}
	ch, err := r.machine.TransitionIn(ctx, tx, o.ID, to, note, GatewayActor)
	if err != nil {
		return Result{}, false, order.Change{}, err
	}
	return Result{Outcome: OutcomeApplied, Payment: p, Order: ch.Order}, true, ch, nil
}

// otherPending reports whether an attempt other than reference is still
// pending for the order.
func otherPending(ctx context.Context, tx shop.Tx, orderID, reference string) (bool, error) {
	ps, err := tx.Payments().ByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, p := range ps {
		if p.Reference != reference && p.Status == shop.PaymentPending {
			return true, nil
		}
	}
	return false, nil
}
