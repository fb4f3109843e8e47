package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

// Store implements shop.Store on a pgx pool. Each InTx is one READ COMMITTED
// transaction; row locks come from the repositories' SELECT ... FOR UPDATE.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx shop.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Stock() shop.StockRepo      { return &StockRepo{tx: t.tx} }
func (t *pgTx) Carts() shop.CartRepo       { return &CartRepo{tx: t.tx} }
func (t *pgTx) Orders() shop.OrderRepo     { return &OrderRepo{tx: t.tx} }
func (t *pgTx) Payments() shop.PaymentRepo { return &PaymentRepo{tx: t.tx} }

// SQLSTATEs that mean "try the whole unit of work again".
var contentionCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && contentionCodes[pgErr.Code] {
		if errors.Is(err, shop.ErrContention) {
			return err
		}
		return fmt.Errorf("%w: %w", shop.ErrContention, err)
	}
	return err
}
