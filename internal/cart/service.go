// Package cart owns the one-cart-per-owner aggregate: line edits, the
// anonymous-to-user merge at sign-in, and pricing against live catalog data.
package cart

import (
	"context"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

// Catalog returns the products it knows among ids; unknown ids are omitted.
type Catalog interface {
	Lookup(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// MergeGuard remembers which anonymous sessions were already merged.
type MergeGuard interface {
	MergedInto(ctx context.Context, session string) (string, bool, error)
	RecordMerge(ctx context.Context, session, userOwner string) error
}

type Service struct {
	store   shop.Store
	catalog Catalog
	pricing Pricing
	guard   MergeGuard
}

func NewService(store shop.Store, cat Catalog, pricing Pricing, guard MergeGuard) *Service {
	return &Service{store: store, catalog: cat, pricing: pricing, guard: guard}
}

type View struct {
	OwnerID string `json:"owner_id"`
	Summary
}

func (s *Service) requireProduct(ctx context.Context, productID string) error {
	found, err := s.catalog.Lookup(ctx, []string{productID})
	if err != nil {
		return err
	}
	if _, ok := found[productID]; !ok {
		return shop.ErrProductNotFound
	}
	return nil
}

// AddItem adds qty to the owner's line for productID, creating the cart and
// the line as needed.
func (s *Service) AddItem(ctx context.Context, owner, productID string, qty int) (shop.Cart, error) {
	if qty <= 0 {
		return shop.Cart{}, shop.ErrInvalidQuantity
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return shop.Cart{}, err
	}
	return s.mutate(ctx, owner, func(ctx context.Context, carts shop.CartRepo) error {
		return carts.AddQty(ctx, owner, productID, qty)
	})
}

// UpdateQuantity sets the line to qty; zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, owner, productID string, qty int) (shop.Cart, error) {
	switch {
	case qty < 0:
		return shop.Cart{}, shop.ErrInvalidQuantity
	case qty == 0:
		return s.RemoveItem(ctx, owner, productID)
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return shop.Cart{}, err
	}
	return s.mutate(ctx, owner, func(ctx context.Context, carts shop.CartRepo) error {
		return carts.SetQty(ctx, owner, productID, qty)
	})
}

func (s *Service) RemoveItem(ctx context.Context, owner, productID string) (shop.Cart, error) {
	return s.mutate(ctx, owner, func(ctx context.Context, carts shop.CartRepo) error {
		return carts.DeleteLine(ctx, owner, productID)
	})
}

func (s *Service) Clear(ctx context.Context, owner string) (shop.Cart, error) {
	return s.mutate(ctx, owner, func(ctx context.Context, carts shop.CartRepo) error {
		return carts.ClearLines(ctx, owner)
	})
}

func (s *Service) mutate(ctx context.Context, owner string, fn func(context.Context, shop.CartRepo) error) (shop.Cart, error) {
	var out shop.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		carts := tx.Carts()
		if _, _, err := carts.LockCart(ctx, owner); err != nil {
			return err
		}
		if err := fn(ctx, carts); err != nil {
			return err
		}
		var err error
		out, err = carts.GetCart(ctx, owner)
		return err
	})
	return out, err
}

// Merge folds the anonymous cart into the user's cart and deletes the
// anonymous cart, in one transaction. It reports false when there was nothing
// to merge, so repeating it is harmless.
func (s *Service) Merge(ctx context.Context, anonOwner, userOwner string) (bool, error) {
	if anonOwner == userOwner {
		return false, nil
	}
	log := logging.FromContext(ctx)
	session, isAnon := shop.Session(anonOwner)
	if isAnon && s.guard != nil {
		if into, ok, err := s.guard.MergedInto(ctx, session); err != nil {
			log.Warn("merge guard unavailable", zap.Error(err))
		} else if ok && into == userOwner {
			return false, nil
		}
	}

	merged := false
	err := s.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		merged = false
		carts := tx.Carts()
		src, exists, err := carts.LockCart(ctx, anonOwner)
		if err != nil || !exists {
			return err
		}
		if _, _, err := carts.LockCart(ctx, userOwner); err != nil {
			return err
		}
		for _, l := range src.Items {
			if err := carts.AddQty(ctx, userOwner, l.ProductID, l.Qty); err != nil {
				return err
			}
		}
		if _, err := carts.DeleteCart(ctx, anonOwner); err != nil {
			return err
		}
		merged = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if isAnon && s.guard != nil {
		if err := s.guard.RecordMerge(ctx, session, userOwner); err != nil {
			log.Warn("merge guard write failed", zap.Error(err))
		}
	}
	if merged {
		log.Info("cart merged", zap.String("from", anonOwner), zap.String("into", userOwner))
	}
	return merged, nil
}

// View prices the owner's cart with live catalog data.
func (s *Service) View(ctx context.Context, owner string) (View, error) {
	var c shop.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		c, err = tx.Carts().GetCart(ctx, owner)
		return err
	})
	if err != nil {
		return View{}, err
	}
	prices := map[string]catalog.Product{}
	if !c.Empty() {
		if prices, err = s.catalog.Lookup(ctx, c.ProductIDs()); err != nil {
			return View{}, err
		}
	}
	return View{OwnerID: owner, Summary: Summarize(c.Items, prices, s.pricing)}, nil
}
