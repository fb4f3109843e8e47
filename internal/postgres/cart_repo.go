package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type CartRepo struct{ tx pgx.Tx }

func (r *CartRepo) LockCart(ctx context.Context, ownerID string) (shop.Cart, bool, error) {
	return r.load(ctx, ownerID, true)
}

func (r *CartRepo) GetCart(ctx context.Context, ownerID string) (shop.Cart, error) {
	c, _, err := r.load(ctx, ownerID, false)
	return c, err
}

func (r *CartRepo) load(ctx context.Context, ownerID string, lock bool) (shop.Cart, bool, error) {
	c := shop.Cart{OwnerID: ownerID}
	q := `SELECT updated_at FROM carts WHERE owner_id=$1`
	if lock {
		q += ` FOR UPDATE`
	}
	err := r.tx.QueryRow(ctx, q, ownerID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return shop.Cart{}, false, err
	}

	rows, err := r.tx.Query(ctx, `
		SELECT product_id, quantity FROM cart_items
		WHERE owner_id=$1 ORDER BY added_at, product_id`, ownerID)
	if err != nil {
		return shop.Cart{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var l shop.CartLine
		if err := rows.Scan(&l.ProductID, &l.Qty); err != nil {
			return shop.Cart{}, false, err
		}
		c.Items = append(c.Items, l)
	}
	return c, true, rows.Err()
}

// touch creates the cart row if needed and locks it.
func (r *CartRepo) touch(ctx context.Context, ownerID string) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO carts (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO UPDATE SET updated_at = now()`, ownerID)
	return err
}

func (r *CartRepo) AddQty(ctx context.Context, ownerID, productID string, qty int) error {
	if err := r.touch(ctx, ownerID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO cart_items (owner_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity`, ownerID, productID, qty)
	return err
}

func (r *CartRepo) SetQty(ctx context.Context, ownerID, productID string, qty int) error {
	if err := r.touch(ctx, ownerID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `
		INSERT INTO cart_items (owner_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		ownerID, productID, qty)
	return err
}

func (r *CartRepo) DeleteLine(ctx context.Context, ownerID, productID string) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM cart_items WHERE owner_id=$1 AND product_id=$2`, ownerID, productID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE owner_id=$1`, ownerID)
	return err
}

func (r *CartRepo) ClearLines(ctx context.Context, ownerID string) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM cart_items WHERE owner_id=$1`, ownerID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE owner_id=$1`, ownerID)
	return err
}

func (r *CartRepo) DeleteCart(ctx context.Context, ownerID string) (bool, error) {
	ct, err := r.tx.Exec(ctx, `DELETE FROM carts WHERE owner_id=$1`, ownerID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
