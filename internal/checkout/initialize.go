package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/payment"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type Initialization struct {
	OrderID          string `json:"order_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	AmountCents      int64  `json:"amount"`
}

// InitializePayment opens a gateway payment for the owner's pending order and
// records it. The gateway call runs outside any transaction under its own
// deadline; if it times out no payment record is written. Earlier attempts
// still pending are marked abandoned, so an order has one live attempt.
func (o *Orchestrator) InitializePayment(ctx context.Context, owner, orderID string) (Initialization, error) {
	if o.gateway == nil {
		return Initialization{}, shop.ErrGatewayUnavailable
	}
	log := logging.FromContext(ctx)

	var ord shop.Order
	err := o.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		ord, err = tx.Orders().GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return Initialization{}, err
	}
	if ord.OwnerID != owner {
		return Initialization{}, shop.ErrForbidden
	}
	if ord.Status != shop.StatusPending || ord.PaymentStatus == shop.PaymentPaid {
		return Initialization{}, fmt.Errorf("%w: order is %s, payment %s", shop.ErrOrderNotPayable, ord.Status, ord.PaymentStatus)
	}

	reference := fmt.Sprintf("%s-%s", ord.OrderNumber, o.newID()[:8])
	gctx, cancel := context.WithTimeout(ctx, o.gatewayTimeout)
	defer cancel()
	res, err := o.gateway.Initialize(gctx, payment.InitRequest{
		Reference:   reference,
		AmountCents: ord.Totals.TotalCents,
		Customer:    owner,
		CallbackURL: o.callbackURL,
		Metadata:    map[string]string{"order_id": ord.ID, "order_number": ord.OrderNumber},
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
		log.Warn("gateway initialize timed out", zap.String("order_id", ord.ID), zap.String("reference", reference))
		return Initialization{}, fmt.Errorf("%w: initialize %s", shop.ErrGatewayTimeout, reference)
	}
	if err != nil {
		return Initialization{}, err
	}

	now := o.now().UTC()
	p := shop.Payment{
		ID:          o.newID(),
		Reference:   res.Reference,
		OrderID:     ord.ID,
		AmountCents: ord.Totals.TotalCents,
		Status:      shop.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var superseded []string
	err = retry.Do(ctx, o.retry, ledger.IsContention, func(ctx context.Context) error {
		return o.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			var err error
			superseded, err = supersede(ctx, tx, ord.ID, now)
			if err != nil {
				return err
			}
			cur, err := tx.Orders().LockOrder(ctx, ord.ID)
			if err != nil {
				return err
			}
			if cur.Status != shop.StatusPending || cur.PaymentStatus == shop.PaymentPaid {
				return fmt.Errorf("%w: order is %s, payment %s", shop.ErrOrderNotPayable, cur.Status, cur.PaymentStatus)
			}
			return tx.Payments().InsertPayment(ctx, p)
		})
	})
	if err != nil {
		return Initialization{}, err
	}
	log.Info("payment initialized", zap.String("order_id", ord.ID), zap.String("reference", p.Reference),
		zap.Int64("amount", p.AmountCents), zap.Strings("superseded", superseded))
	return Initialization{
		OrderID:          ord.ID,
		Reference:        p.Reference,
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
		AmountCents:      p.AmountCents,
	}, nil
}

// supersede abandons the order's pending attempts and returns their references.
func supersede(ctx context.Context, tx shop.Tx, orderID string, at time.Time) ([]string, error) {
	ps, err := tx.Payments().ByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, p := range ps {
		if p.Status != shop.PaymentPending {
			continue
		}
		ok, err := tx.Payments().AdvanceStatus(ctx, p.Reference, shop.PaymentPending, shop.PaymentAbandoned, p.Channel, nil, at)
		if err != nil {
			return nil, err
		}
		if ok {
			refs = append(refs, p.Reference)
		}
	}
	return refs, nil
}
