package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type StockRepo struct{ tx pgx.Tx }

const stockSelect = `
		SELECT product_id, available_quantity, reserved_quantity, updated_at
		FROM product_stock WHERE product_id=$1`

func (r *StockRepo) LockStock(ctx context.Context, productID string) (shop.ProductStock, error) {
	return r.stock(ctx, stockSelect+` FOR UPDATE`, productID)
}

func (r *StockRepo) GetStock(ctx context.Context, productID string) (shop.ProductStock, error) {
	return r.stock(ctx, stockSelect, productID)
}

func (r *StockRepo) stock(ctx context.Context, sql, productID string) (shop.ProductStock, error) {
	var ps shop.ProductStock
	err := r.tx.QueryRow(ctx, sql, productID).Scan(&ps.ProductID, &ps.Available, &ps.Reserved, &ps.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ProductStock{}, shop.ErrProductNotFound
	}
	return ps, err
}

// Hold is the conditional decrement: it only touches the row when enough
// stock is available.
func (r *StockRepo) Hold(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
		UPDATE product_stock
		SET available_quantity = available_quantity - $2,
		    reserved_quantity  = reserved_quantity + $2,
		    updated_at = now()
		WHERE product_id=$1 AND available_quantity >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *StockRepo) ConsumeHeld(ctx context.Context, productID string, qty int) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE product_stock
		SET reserved_quantity = reserved_quantity - $2, updated_at = now()
		WHERE product_id=$1 AND reserved_quantity >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("reserved underflow for %s", productID)
	}
	return nil
}

func (r *StockRepo) ReturnHeld(ctx context.Context, productID string, qty int) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE product_stock
		SET reserved_quantity  = reserved_quantity - $2,
		    available_quantity = available_quantity + $2,
		    updated_at = now()
		WHERE product_id=$1 AND reserved_quantity >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("reserved underflow for %s", productID)
	}
	return nil
}

func (r *StockRepo) Restock(ctx context.Context, productID string, qty int) error {
	ct, err := r.tx.Exec(ctx, `
		UPDATE product_stock SET available_quantity = available_quantity + $2, updated_at = now()
		WHERE product_id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return shop.ErrProductNotFound
	}
	return nil
}

func (r *StockRepo) UpsertStock(ctx context.Context, productID string, available int) (shop.ProductStock, error) {
	var ps shop.ProductStock
	err := r.tx.QueryRow(ctx, `
		INSERT INTO product_stock (product_id, available_quantity)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE
		SET available_quantity = EXCLUDED.available_quantity, updated_at = now()
		RETURNING product_id, available_quantity, reserved_quantity, updated_at`, productID, available).
		Scan(&ps.ProductID, &ps.Available, &ps.Reserved, &ps.UpdatedAt)
	return ps, err
}

func (r *StockRepo) InsertReservation(ctx context.Context, res shop.Reservation) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_reservations (id, product_id, quantity, holder_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`,
		res.ID, res.ProductID, res.Qty, res.HolderID, res.ExpiresAt, nullTime(res.CreatedAt))
	return err
}

const reservationCols = `id, product_id, quantity, holder_id, expires_at, created_at`

func scanReservation(row pgx.Row) (shop.Reservation, error) {
	var res shop.Reservation
	err := row.Scan(&res.ID, &res.ProductID, &res.Qty, &res.HolderID, &res.ExpiresAt, &res.CreatedAt)
	return res, err
}

func (r *StockRepo) LockReservation(ctx context.Context, id string) (shop.Reservation, error) {
	return r.reservation(ctx, `SELECT `+reservationCols+` FROM stock_reservations WHERE id=$1 FOR UPDATE`, id)
}

func (r *StockRepo) GetReservation(ctx context.Context, id string) (shop.Reservation, error) {
	return r.reservation(ctx, `SELECT `+reservationCols+` FROM stock_reservations WHERE id=$1`, id)
}

func (r *StockRepo) reservation(ctx context.Context, sql, id string) (shop.Reservation, error) {
	res, err := scanReservation(r.tx.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Reservation{}, shop.ErrReservationNotFound
	}
	return res, err
}

func (r *StockRepo) DeleteReservation(ctx context.Context, id string) (bool, error) {
	ct, err := r.tx.Exec(ctx, `DELETE FROM stock_reservations WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *StockRepo) ActiveByHolder(ctx context.Context, holderID, productID string) ([]shop.Reservation, error) {
	return r.queryReservations(ctx, `
		SELECT `+reservationCols+` FROM stock_reservations
		WHERE holder_id=$1 AND product_id=$2
		ORDER BY created_at, id FOR UPDATE`, holderID, productID)
}

func (r *StockRepo) LockExpired(ctx context.Context, now time.Time, limit int) ([]shop.Reservation, error) {
	return r.queryReservations(ctx, `
		SELECT `+reservationCols+` FROM stock_reservations
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
}

func (r *StockRepo) queryReservations(ctx context.Context, sql string, args ...any) ([]shop.Reservation, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shop.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
