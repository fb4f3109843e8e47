package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/memstore"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type fakeGuard struct {
	merged map[string]string
	err    error
}

func (g *fakeGuard) MergedInto(_ context.Context, session string) (string, bool, error) {
	if g.err != nil {
		return "", false, g.err
	}
	v, ok := g.merged[session]
	return v, ok, nil
}

func (g *fakeGuard) RecordMerge(_ context.Context, session, user string) error {
	if g.merged == nil {
		g.merged = map[string]string{}
	}
	g.merged[session] = user
	return nil
}

var testCatalog = catalog.Static{
	"mug": {ID: "mug", Name: "Mug", PriceCents: 100, CompareAtCents: 120, Active: true},
	"cap": {ID: "cap", Name: "Cap", PriceCents: 250, Active: true},
}

func newService() (*Service, *memstore.Store, *fakeGuard) {
	st := memstore.New()
	g := &fakeGuard{}
	return NewService(st, testCatalog, stdPricing, g), st, g
}

func qtyOf(c shop.Cart, pid string) int {
	for _, l := range c.Items {
		if l.ProductID == pid {
			return l.Qty
		}
	}
	return 0
}

func TestAddItemAccumulates(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()
	owner := shop.UserOwner("u1")

	if _, err := s.AddItem(ctx, owner, "mug", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, err := s.AddItem(ctx, owner, "mug", 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(c.Items) != 1 || qtyOf(c, "mug") != 5 {
		t.Fatalf("cart = %+v", c)
	}
}

func TestAddItemValidation(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()
	if _, err := s.AddItem(ctx, "user:u1", "mug", 0); !errors.Is(err, shop.ErrInvalidQuantity) {
		t.Fatalf("qty 0: %v", err)
	}
	if _, err := s.AddItem(ctx, "user:u1", "ghost", 1); !errors.Is(err, shop.ErrProductNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
}

func TestUpdateQuantity(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()
	owner := "user:u1"
	if _, err := s.AddItem(ctx, owner, "mug", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, owner, "cap", 1); err != nil {
		t.Fatal(err)
	}

	c, err := s.UpdateQuantity(ctx, owner, "mug", 7)
	if err != nil || qtyOf(c, "mug") != 7 {
		t.Fatalf("set 7: cart=%+v err=%v", c, err)
	}
	c, err = s.UpdateQuantity(ctx, owner, "mug", 0)
	if err != nil || len(c.Items) != 1 || qtyOf(c, "mug") != 0 {
		t.Fatalf("set 0 should remove: cart=%+v err=%v", c, err)
	}
	if _, err := s.UpdateQuantity(ctx, owner, "cap", -1); !errors.Is(err, shop.ErrInvalidQuantity) {
		t.Fatalf("negative: %v", err)
	}
}

func TestClear(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()
	if _, err := s.AddItem(ctx, "user:u1", "mug", 2); err != nil {
		t.Fatal(err)
	}
	c, err := s.Clear(ctx, "user:u1")
	if err != nil || !c.Empty() {
		t.Fatalf("clear: cart=%+v err=%v", c, err)
	}
}

func TestMergeMovesLinesAndIsIdempotent(t *testing.T) {
	s, _, g := newService()
	ctx := context.Background()
	anon, user := shop.AnonOwner("sess-1"), shop.UserOwner("u1")

	if _, err := s.AddItem(ctx, anon, "mug", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, anon, "cap", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddItem(ctx, user, "mug", 1); err != nil {
		t.Fatal(err)
	}

	merged, err := s.Merge(ctx, anon, user)
	if err != nil || !merged {
		t.Fatalf("first merge: merged=%v err=%v", merged, err)
	}
	if g.merged["sess-1"] != user {
		t.Fatalf("guard not recorded: %+v", g.merged)
	}

	// Second call: guard short-circuits, and even without it the source is gone.
	g.merged = nil
	merged, err = s.Merge(ctx, anon, user)
	if err != nil || merged {
		t.Fatalf("second merge: merged=%v err=%v", merged, err)
	}

	v, err := s.View(ctx, user)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	got := map[string]int{}
	for _, l := range v.Lines {
		got[l.ProductID] = l.Qty
	}
	if got["mug"] != 3 || got["cap"] != 1 {
		t.Fatalf("merged lines = %v", got)
	}
	anonView, _ := s.View(ctx, anon)
	if len(anonView.Lines) != 0 {
		t.Fatalf("anonymous cart should be gone: %+v", anonView)
	}
}

func TestMergeWithoutSourceCart(t *testing.T) {
	s, _, _ := newService()
	merged, err := s.Merge(context.Background(), shop.AnonOwner("none"), shop.UserOwner("u1"))
	if err != nil || merged {
		t.Fatalf("merged=%v err=%v", merged, err)
	}
}

func TestMergeProceedsWhenGuardFails(t *testing.T) {
	s, _, g := newService()
	ctx := context.Background()
	g.err = errors.New("redis down")
	if _, err := s.AddItem(ctx, "anon:s", "mug", 1); err != nil {
		t.Fatal(err)
	}
	merged, err := s.Merge(ctx, "anon:s", "user:u1")
	if err != nil || !merged {
		t.Fatalf("merged=%v err=%v", merged, err)
	}
}

func TestMergeRollsBackOnFailure(t *testing.T) {
	s, st, _ := newService()
	ctx := context.Background()
	if _, err := s.AddItem(ctx, "anon:s", "mug", 2); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	st.FailOn("DeleteCart", boom, 1)

	if _, err := s.Merge(ctx, "anon:s", "user:u1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	userView, _ := s.View(ctx, "user:u1")
	anonView, _ := s.View(ctx, "anon:s")
	if len(userView.Lines) != 0 || len(anonView.Lines) != 1 {
		t.Fatalf("partial merge visible: user=%+v anon=%+v", userView.Lines, anonView.Lines)
	}
}

func TestViewPricesLiveCatalog(t *testing.T) {
	s, _, _ := newService()
	ctx := context.Background()
	if _, err := s.AddItem(ctx, "user:u1", "mug", 2); err != nil {
		t.Fatal(err)
	}
	v, err := s.View(ctx, "user:u1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.TotalCents != 305 || v.SavingsCents != 40 {
		t.Fatalf("totals = %+v", v.Totals)
	}
}
