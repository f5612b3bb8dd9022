package redisx

import (
	"context"
	"fmt"
	"time"

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

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Dedup marks processed event ids for one consumer service.
type Dedup struct {
	R       *redis.Client
	Service string
}

func (d *Dedup) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.R.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.R.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
