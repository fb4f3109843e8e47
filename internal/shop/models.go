package shop

import "time"

// ProductStock is the ledger row for one product. Both counters stay >= 0.
type ProductStock struct {
	ProductID string    `json:"product_id"`
	Available int       `json:"available_quantity"`
	Reserved  int       `json:"reserved_quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reservation is a time-bounded hold. It exists only while active; commit and
// release both delete it.
type Reservation struct {
	ID        string    `json:"reservation_id"`
	ProductID string    `json:"product_id"`
	Qty       int       `json:"quantity"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Reservation) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"quantity"`
}

type Cart struct {
	OwnerID   string     `json:"owner_id"`
	Items     []CartLine `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

// ProductIDs returns the distinct product ids of the cart in line order.
func (c Cart) ProductIDs() []string {
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.ProductID)
	}
	return out
}

type Address struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region,omitempty" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// Totals are minor currency units (cents).
type Totals struct {
	SubtotalCents int64 `json:"subtotal"`
	TaxCents      int64 `json:"tax"`
	ShippingCents int64 `json:"shipping"`
	SavingsCents  int64 `json:"savings"`
	TotalCents    int64 `json:"total"`
}

type OrderItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_at_purchase"`
}

type StatusEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID                string        `json:"order_id"`
	OrderNumber       string        `json:"order_number"`
	OwnerID           string        `json:"owner_id"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentMethodHint string        `json:"payment_method_hint,omitempty"`
	Totals            Totals        `json:"totals"`
	Items             []OrderItem   `json:"items"`
	ShippingAddress   Address       `json:"shipping_address"`
	BillingAddress    Address       `json:"billing_address"`
	History           []StatusEntry `json:"status_history,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Payment is one gateway attempt for an order, keyed by the gateway reference.
type Payment struct {
	ID              string        `json:"id"`
	Reference       string        `json:"reference"`
	OrderID         string        `json:"order_id"`
	AmountCents     int64         `json:"amount"`
	Status          PaymentStatus `json:"status"`
	Channel         string        `json:"channel,omitempty"`
	GatewayResponse []byte        `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
