package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Store is the typed view over the keys in keys.go. Redis is never the source
// of truth; callers treat every error here as a cache miss.
type Store struct{ rdb redis.Cmdable }

func NewStore(rdb redis.Cmdable) *Store { return &Store{rdb: rdb} }

// OrderStatus is the cached projection served by GET /orders/{id}/status.
// OwnerID may be empty when the projection was built from an event that does
// not carry it; readers then fall back to the database for the owner check.
type OrderStatus struct {
	OrderID       string    `json:"order_id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Store) SetStatus(ctx context.Context, st OrderStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, st.OrderID), b, TTLStatusCache).Err()
}

func (s *Store) GetStatus(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, err
	}
	var st OrderStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return OrderStatus{}, false, err
	}
	return st, true, nil
}

func (s *Store) InvalidateStatus(ctx context.Context, orderID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// FirstSeen records key and reports whether this call was the first to do so.
func (s *Store) FirstSeen(ctx context.Context, consumer, id string) (bool, error) {
	return s.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, consumer, id), "1", TTLDedup).Result()
}

// Forget drops a dedup marker so a failed delivery can be processed again.
func (s *Store) Forget(ctx context.Context, consumer, id string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyDedup, consumer, id)).Err()
}

func (s *Store) MergedInto(ctx context.Context, session string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(KeyCartMerge, session)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) RecordMerge(ctx context.Context, session, userOwner string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyCartMerge, session), userOwner, TTLCartMerge).Err()
}

func (s *Store) RememberCheckout(ctx context.Context, ownerID, idemKey, orderID string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, ownerID, idemKey), orderID, TTLIdempotency).Err()
}

func (s *Store) CheckoutFor(ctx context.Context, ownerID, idemKey string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, fmt.Sprintf(KeyIdemCheckout, ownerID, idemKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TryLock takes lock:{name} for ttl. The returned release only deletes the key
// while this holder still owns it.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	key := fmt.Sprintf(KeyLock, name)
	token := uuid.NewString()
	ok, err = s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, s.rdb, []string{key}, token).Err()
	}, true, nil
}
