package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentUpdated     = "PaymentUpdated"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentUpdated     = "payment.updated"
)

// Topics lists every topic the projector follows.
var Topics = []string{TopicOrderCreated, TopicOrderStatusChanged, TopicPaymentUpdated}

// PartitionKey keys every event of one order to the same partition so its
// events stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	OwnerID       string      `json:"owner_id"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	Items         []ItemPrice `json:"items"`
	TotalCents    int64       `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID       string    `json:"order_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	PaymentStatus string    `json:"payment_status"`
	Actor         string    `json:"actor"`
	Note          string    `json:"note,omitempty"`
	At            time.Time `json:"at"`
}

type PaymentUpdatedPayload struct {
	OrderID       string `json:"order_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"` // order-level payment status after the update
	AmountCents   int64  `json:"amount_cents"`
	Source        string `json:"source"` // verify | webhook
	Outcome       string `json:"outcome,omitempty"`
}
