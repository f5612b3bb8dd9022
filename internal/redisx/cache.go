package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/tenant-orders/internal/orders"
)

const pending = "pending"

// OrderCache keeps full order JSON for GET /orders/{id}.
type OrderCache struct{ R *redis.Client }

// Get returns nil, nil on a miss.
func (c *OrderCache) Get(ctx context.Context, tenantID, orderID string) (*orders.Order, error) {
	b, err := c.R.Get(ctx, fmt.Sprintf(KeyOrder, tenantID, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Version returns the invalidation counter of an order. Read it before
// loading the order from the store and hand it to SetIfVersion.
func (c *OrderCache) Version(ctx context.Context, tenantID, orderID string) (int64, error) {
	v, err := c.R.Get(ctx, fmt.Sprintf(KeyOrderGen, tenantID, orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion caches o unless Delete ran for it since version was read.
// A lost race is not an error; the entry is simply not written.
func (c *OrderCache) SetIfVersion(ctx context.Context, o *orders.Order, version int64) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	genKey := fmt.Sprintf(KeyOrderGen, o.TenantID, o.ID)
	err = c.R.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, fmt.Sprintf(KeyOrder, o.TenantID, o.ID), b, TTLOrderCache)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Delete drops the entry and bumps the counter so fills that read the
// order before this call are discarded.
func (c *OrderCache) Delete(ctx context.Context, tenantID, orderID string) error {
	genKey := fmt.Sprintf(KeyOrderGen, tenantID, orderID)
	_, err := c.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, TTLOrderGen)
		p.Del(ctx, fmt.Sprintf(KeyOrder, tenantID, orderID))
		return nil
	})
	return err
}

// Idempotency guards POST /orders replays by client-supplied key.
type Idempotency struct{ R *redis.Client }

// Claim reserves key for a new create. When the key is already known it
// returns the stored order id, or "" while the first request is in flight.
func (i *Idempotency) Claim(ctx context.Context, tenantID, key string) (existing string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, tenantID, key)
	ok, err := i.R.SetNX(ctx, k, pending, TTLIdempotency).Result()
	if err != nil || ok {
		return "", ok, err
	}
	v, err := i.R.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if v == pending {
		return "", false, nil
	}
	return v, false, nil
}

func (i *Idempotency) Complete(ctx context.Context, tenantID, key, orderID string) error {
	return i.R.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, tenantID, key), orderID, TTLIdempotency).Err()
}

func (i *Idempotency) Release(ctx context.Context, tenantID, key string) error {
	return i.R.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, tenantID, key)).Err()
}
