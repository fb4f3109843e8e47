package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

func catalogServer(t *testing.T, products map[string]Product, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		id := strings.TrimPrefix(r.URL.Path, "/products/")
		if id == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		p, ok := products[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}))
}

func TestLookupSkipsUnknownAndInactive(t *testing.T) {
	var hits int32
	srv := catalogServer(t, map[string]Product{
		"p1":  {ID: "p1", Name: "Mug", PriceCents: 100, CompareAtCents: 150, Active: true},
		"p2":  {ID: "p2", Name: "Cap", PriceCents: 50, Active: true},
		"old": {ID: "old", Name: "Retired", PriceCents: 10, Active: false},
	}, &hits)
	defer srv.Close()

	c := NewClient(StaticResolver(srv.URL), time.Second)
	got, err := c.Lookup(context.Background(), []string{"p1", "p2", "p1", "ghost", "old"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 || got["p1"].CompareAtCents != 150 || got["p2"].Name != "Cap" {
		t.Fatalf("got %+v", got)
	}
	if hits != 4 {
		t.Fatalf("hits = %d, want 4 (duplicates fetched once)", hits)
	}
}

func TestLookupFailsOnServerError(t *testing.T) {
	srv := catalogServer(t, map[string]Product{"p1": {ID: "p1", Active: true}}, nil)
	defer srv.Close()

	c := NewClient(StaticResolver(srv.URL), time.Second)
	if _, err := c.Lookup(context.Background(), []string{"p1", "boom"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestProductNotFound(t *testing.T) {
	srv := catalogServer(t, nil, nil)
	defer srv.Close()

	c := NewClient(StaticResolver(srv.URL), time.Second)
	if _, err := c.Product(context.Background(), "ghost"); !errors.Is(err, shop.ErrProductNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestStaticResolverRequiresURL(t *testing.T) {
	if _, err := StaticResolver("").Resolve(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestStaticCatalog(t *testing.T) {
	s := Static{"p1": {ID: "p1", PriceCents: 10, Active: true}, "p2": {ID: "p2", Active: false}}
	got, _ := s.Lookup(context.Background(), []string{"p1", "p2", "p3"})
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
}
