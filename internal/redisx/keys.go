package redisx

import "time"

const (
	// idem:checkout:{owner_id}:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// order_status:{order_id} -> {"order_id":..., "owner_id":..., "status":..., "payment_status":..., "updated_at":...}
	KeyOrderStatus = "order_status:%s"

	// dedup:{consumer}:{id}; webhook ids are sha256 of the raw body, projector ids are event ids
	KeyDedup = "dedup:%s:%s"

	// cart:merge:{session} -> user owner id the anonymous cart was merged into
	KeyCartMerge = "cart:merge:%s"

	// lock:{name} -> holder token
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCartMerge   = 30 * 24 * time.Hour
)
