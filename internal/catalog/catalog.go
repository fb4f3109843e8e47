// Package catalog reads live product names and prices from the catalog
// service. Prices are minor currency units.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price"`
	CompareAtCents int64  `json:"compare_at_price,omitempty"`
	Active         bool   `json:"active"`
}

var ErrUnavailable = errors.New("catalog unavailable")

// Resolver yields the catalog base URL, e.g. "http://10.0.0.7:8080".
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

type StaticResolver string

func (s StaticResolver) Resolve(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: no catalog url", ErrUnavailable)
	}
	return string(s), nil
}

type Client struct {
	resolver Resolver
	http     *http.Client
	// fan-out limit for Lookup
	parallel int
}

func NewClient(r Resolver, timeout time.Duration) *Client {
	return &Client{resolver: r, http: &http.Client{Timeout: timeout}, parallel: 8}
}

// Product fetches one product. Unknown or inactive products return
// shop.ErrProductNotFound.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	base, err := c.resolver.Resolve(ctx)
	if err != nil {
		return Product{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/products/"+url.PathEscape(id), nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, shop.ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		return Product{}, fmt.Errorf("%w: status %d for %s", ErrUnavailable, resp.StatusCode, id)
	}
	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	if !p.Active {
		return Product{}, shop.ErrProductNotFound
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// Lookup fetches products concurrently. Unknown products are left out of the
// result; any other failure aborts the whole lookup.
func (c *Client) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]Product, len(ids))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for _, id := range dedupe(ids) {
		g.Go(func() error {
			p, err := c.Product(ctx, id)
			if errors.Is(err, shop.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Static is a fixed in-process catalog, used with the memory store driver.
type Static map[string]Product

func (s Static) Lookup(_ context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if p, ok := s[id]; ok && p.Active {
			out[id] = p
		}
	}
	return out, nil
}
