package shop

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true, StatusRefunded: true},
	StatusProcessing: {StatusShipped: true, StatusRefunded: true},
	StatusShipped:    {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered:  {StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// ReleasesStockOnCancel reports whether cancelling from s must credit the
// order's quantities back to available stock.
func (s Status) ReleasesStockOnCancel() bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaymentStatus forms the lattice pending < (failed | abandoned) < paid.
// A charge the gateway reported as failed or abandoned can still succeed on
// the same reference; nothing moves off paid.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentAbandoned PaymentStatus = "abandoned"
)

func (p PaymentStatus) Terminal() bool {
	return p == PaymentPaid || p == PaymentFailed || p == PaymentAbandoned
}

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p.Terminal()
}

// CanAdvance reports whether a payment record may move from one status to
// another along the lattice.
func CanAdvance(from, to PaymentStatus) bool {
	switch from {
	case PaymentPending:
		return to.Terminal()
	case PaymentFailed, PaymentAbandoned:
		return to == PaymentPaid
	}
	return false
}
