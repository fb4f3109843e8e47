package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type PaymentRepo struct{ tx pgx.Tx }

func (r *PaymentRepo) InsertPayment(ctx context.Context, p shop.Payment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payments (id, reference, order_id, amount, status, channel, gateway_response, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Reference, p.OrderID, p.AmountCents, p.Status, p.Channel, jsonOrNil(p.GatewayResponse), p.CreatedAt, p.UpdatedAt)
	return err
}

const paymentCols = `id, reference, order_id, amount, status, channel, gateway_response, created_at, updated_at`

func scanPayment(row pgx.Row) (shop.Payment, error) {
	var p shop.Payment
	err := row.Scan(&p.ID, &p.Reference, &p.OrderID, &p.AmountCents, &p.Status, &p.Channel,
		&p.GatewayResponse, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PaymentRepo) LockByReference(ctx context.Context, reference string) (shop.Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE reference=$1 FOR UPDATE`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Payment{}, shop.ErrPaymentNotFound
	}
	return p, err
}

func (r *PaymentRepo) AdvanceStatus(ctx context.Context, reference string, from, to shop.PaymentStatus, channel string, gatewayResponse []byte, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE payments
		SET status=$3, channel=COALESCE(NULLIF($4, ''), channel), gateway_response=$5, updated_at=$6
		WHERE reference=$1 AND status=$2`,
		reference, from, to, channel, jsonOrNil(gatewayResponse), at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PaymentRepo) ByOrder(ctx context.Context, orderID string) ([]shop.Payment, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shop.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// jsonOrNil keeps empty gateway payloads as SQL NULL instead of invalid JSON.
func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
