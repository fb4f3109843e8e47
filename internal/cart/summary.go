package cart

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-core/internal/catalog"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type Pricing struct {
	TaxRate               decimal.Decimal
	ShippingFeeCents      int64
	FreeShippingThreshold int64 // shipping is waived when subtotal is strictly above this
}

type PricedLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price"`
	CompareAtCents int64  `json:"compare_at_price,omitempty"`
	LineTotalCents int64  `json:"line_total"`
}

type Summary struct {
	Lines []PricedLine `json:"items"`
	shop.Totals
	// Unpriced lists cart lines whose product the catalog no longer offers.
	// They are excluded from every total.
	Unpriced []string `json:"unpriced,omitempty"`
}

// Summarize prices lines with the given catalog snapshot. It has no side
// effects.
func Summarize(lines []shop.CartLine, prices map[string]catalog.Product, p Pricing) Summary {
	s := Summary{Lines: make([]PricedLine, 0, len(lines))}
	for _, l := range lines {
		prod, ok := prices[l.ProductID]
		if !ok {
			s.Unpriced = append(s.Unpriced, l.ProductID)
			continue
		}
		qty := int64(l.Qty)
		line := PricedLine{
			ProductID:      l.ProductID,
			Name:           prod.Name,
			Qty:            l.Qty,
			UnitPriceCents: prod.PriceCents,
			CompareAtCents: prod.CompareAtCents,
			LineTotalCents: prod.PriceCents * qty,
		}
		s.Lines = append(s.Lines, line)
		s.SubtotalCents += line.LineTotalCents
		if d := prod.CompareAtCents - prod.PriceCents; d > 0 {
			s.SavingsCents += d * qty
		}
	}

	s.TaxCents = decimal.NewFromInt(s.SubtotalCents).Mul(p.TaxRate).Round(0).IntPart()
	if len(s.Lines) > 0 && s.SubtotalCents <= p.FreeShippingThreshold {
		s.ShippingCents = p.ShippingFeeCents
	}
	s.TotalCents = s.SubtotalCents + s.TaxCents + s.ShippingCents
	return s
}
