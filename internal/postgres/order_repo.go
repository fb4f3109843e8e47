package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type OrderRepo struct{ tx pgx.Tx }

func (r *OrderRepo) NextOrderSeq(ctx context.Context) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, err
}

func (r *OrderRepo) InsertOrder(ctx context.Context, o shop.Order) error {
	ship, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	bill, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, owner_id, status, payment_status, payment_method_hint,
		                    subtotal, tax, shipping, savings, total,
		                    shipping_address, billing_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.OrderNumber, o.OwnerID, o.Status, o.PaymentStatus, o.PaymentMethodHint,
		o.Totals.SubtotalCents, o.Totals.TaxCents, o.Totals.ShippingCents, o.Totals.SavingsCents, o.Totals.TotalCents,
		ship, bill, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i, it := range o.Items {
		if _, err := r.tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i+1, it.ProductID, it.Name, it.Qty, it.UnitPriceCents); err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) AppendHistory(ctx context.Context, orderID string, e shop.StatusEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5)`, orderID, e.Status, e.Note, e.Actor, e.CreatedAt)
	return err
}

const orderCols = `id, order_number, owner_id, status, payment_status, payment_method_hint,
	subtotal, tax, shipping, savings, total, shipping_address, billing_address, created_at, updated_at`

func (r *OrderRepo) load(ctx context.Context, orderID string, lock bool) (shop.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders WHERE id=$1`
	if lock {
		q += ` FOR UPDATE`
	}
	var (
		o          shop.Order
		ship, bill []byte
	)
	err := r.tx.QueryRow(ctx, q, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.OwnerID, &o.Status, &o.PaymentStatus, &o.PaymentMethodHint,
		&o.Totals.SubtotalCents, &o.Totals.TaxCents, &o.Totals.ShippingCents, &o.Totals.SavingsCents, &o.Totals.TotalCents,
		&ship, &bill, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Order{}, shop.ErrOrderNotFound
	}
	if err != nil {
		return shop.Order{}, err
	}
	if err := json.Unmarshal(ship, &o.ShippingAddress); err != nil {
		return shop.Order{}, err
	}
	if err := json.Unmarshal(bill, &o.BillingAddress); err != nil {
		return shop.Order{}, err
	}

	rows, err := r.tx.Query(ctx, `
		SELECT product_id, name, quantity, unit_price FROM order_items
		WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return shop.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it shop.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.UnitPriceCents); err != nil {
			return shop.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *OrderRepo) LockOrder(ctx context.Context, orderID string) (shop.Order, error) {
	return r.load(ctx, orderID, true)
}

func (r *OrderRepo) GetOrder(ctx context.Context, orderID string) (shop.Order, error) {
	o, err := r.load(ctx, orderID, false)
	if err != nil {
		return shop.Order{}, err
	}
	rows, err := r.tx.Query(ctx, `
		SELECT status, note, actor, created_at FROM order_status_history
		WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return shop.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e shop.StatusEntry
		if err := rows.Scan(&e.Status, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return shop.Order{}, err
		}
		o.History = append(o.History, e)
	}
	return o, rows.Err()
}

func (r *OrderRepo) SetStatus(ctx context.Context, orderID string, from, to shop.Status, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`, orderID, from, to, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *OrderRepo) SetPaymentStatus(ctx context.Context, orderID string, ps shop.PaymentStatus, at time.Time) error {
	ct, err := r.tx.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=$3 WHERE id=$1`, orderID, ps, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return shop.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id FROM orders
		WHERE status='pending' AND payment_status <> 'paid' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
