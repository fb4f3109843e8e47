package cart

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

var stdPricing = Pricing{
	TaxRate:               decimal.RequireFromString("0.15"),
	ShippingFeeCents:      75,
	FreeShippingThreshold: 500,
}

func TestSummarize(t *testing.T) {
	prices := map[string]catalog.Product{
		"mug":  {ID: "mug", Name: "Mug", PriceCents: 100, CompareAtCents: 120, Active: true},
		"cap":  {ID: "cap", Name: "Cap", PriceCents: 250, Active: true},
		"pen":  {ID: "pen", Name: "Pen", PriceCents: 10, CompareAtCents: 5, Active: true},
		"lamp": {ID: "lamp", Name: "Lamp", PriceCents: 501, Active: true},
	}
	cases := []struct {
		name  string
		lines []shop.CartLine
		want  shop.Totals
	}{
		{
			name:  "empty cart",
			lines: nil,
			want:  shop.Totals{},
		},
		{
			name:  "below threshold pays shipping",
			lines: []shop.CartLine{{ProductID: "mug", Qty: 2}},
			want:  shop.Totals{SubtotalCents: 200, TaxCents: 30, ShippingCents: 75, SavingsCents: 40, TotalCents: 305},
		},
		{
			name:  "exactly at threshold still pays shipping",
			lines: []shop.CartLine{{ProductID: "cap", Qty: 2}},
			want:  shop.Totals{SubtotalCents: 500, TaxCents: 75, ShippingCents: 75, TotalCents: 650},
		},
		{
			name:  "above threshold ships free",
			lines: []shop.CartLine{{ProductID: "lamp", Qty: 1}},
			want:  shop.Totals{SubtotalCents: 501, TaxCents: 75, TotalCents: 576},
		},
		{
			name:  "tax rounds half away from zero",
			lines: []shop.CartLine{{ProductID: "pen", Qty: 1}},
			want:  shop.Totals{SubtotalCents: 10, TaxCents: 2, ShippingCents: 75, TotalCents: 87},
		},
		{
			name:  "compare-at below price gives no savings",
			lines: []shop.CartLine{{ProductID: "pen", Qty: 3}, {ProductID: "mug", Qty: 1}},
			want:  shop.Totals{SubtotalCents: 130, TaxCents: 20, ShippingCents: 75, SavingsCents: 20, TotalCents: 225},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Summarize(tc.lines, prices, stdPricing)
			if got.Totals != tc.want {
				t.Fatalf("totals = %+v, want %+v", got.Totals, tc.want)
			}
			if got.TotalCents != got.SubtotalCents+got.TaxCents+got.ShippingCents {
				t.Fatalf("total is not subtotal+tax+shipping: %+v", got.Totals)
			}
		})
	}
}

func TestSummarizeExcludesUnpricedLines(t *testing.T) {
	prices := map[string]catalog.Product{"mug": {ID: "mug", PriceCents: 100, Active: true}}
	got := Summarize([]shop.CartLine{{ProductID: "mug", Qty: 1}, {ProductID: "gone", Qty: 4}}, prices, stdPricing)
	if got.SubtotalCents != 100 || len(got.Lines) != 1 {
		t.Fatalf("summary = %+v", got)
	}
	if len(got.Unpriced) != 1 || got.Unpriced[0] != "gone" {
		t.Fatalf("unpriced = %v", got.Unpriced)
	}
}
