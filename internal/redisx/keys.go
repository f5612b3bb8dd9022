package redisx

import "time"

const (
	// Idempotent create: idem:order:create:{tenant}:{key} -> order_id | "pending"
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order JSON: order:{tenant}:{order_id}
	KeyOrder = "order:%s:%s"

	// Invalidation counter of a cached order: ordergen:{tenant}:{order_id}
	KeyOrderGen = "ordergen:%s:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLOrderGen    = time.Hour
	TTLDedup       = 48 * time.Hour
)
