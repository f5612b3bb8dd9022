package redisx

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/tenant-orders/internal/orders"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestOrderCache(t *testing.T) {
	c := &OrderCache{R: newClient(t)}
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()

	got, err := c.Get(ctx, tenant, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)

	ver, err := c.Version(ctx, tenant, "o1")
	require.NoError(t, err)
	assert.Zero(t, ver)

	require.NoError(t, c.SetIfVersion(ctx, &orders.Order{ID: "o1", TenantID: tenant, OrderNumber: "ORD-20250310-001"}, ver))
	got, err = c.Get(ctx, tenant, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ORD-20250310-001", got.OrderNumber)

	require.NoError(t, c.Delete(ctx, tenant, "o1"))
	got, err = c.Get(ctx, tenant, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderCacheDropsFillAfterInvalidation(t *testing.T) {
	c := &OrderCache{R: newClient(t)}
	ctx := context.Background()

	tests := []struct {
		name       string
		deletes    int
		fillWith   func(read int64) int64
		wantCached bool
	}{
		{"fill with current version", 0, func(v int64) int64 { return v }, true},
		{"delete between read and fill", 1, func(v int64) int64 { return v }, false},
		{"fill with the newer version", 2, func(v int64) int64 { return v + 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := "t-" + uuid.NewString()
			ver, err := c.Version(ctx, tenant, "o1")
			require.NoError(t, err)

			for i := 0; i < tt.deletes; i++ {
				require.NoError(t, c.Delete(ctx, tenant, "o1"))
			}
			stale := &orders.Order{ID: "o1", TenantID: tenant, Status: orders.StatusPending}
			require.NoError(t, c.SetIfVersion(ctx, stale, tt.fillWith(ver)))

			got, err := c.Get(ctx, tenant, "o1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCached, got != nil)
		})
	}
}

func TestIdempotencyClaim(t *testing.T) {
	i := &Idempotency{R: newClient(t)}
	ctx := context.Background()
	tenant, key := "t-"+uuid.NewString(), "k1"

	existing, claimed, err := i.Claim(ctx, tenant, key)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, existing)

	existing, claimed, err = i.Claim(ctx, tenant, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, existing, "still pending")

	require.NoError(t, i.Complete(ctx, tenant, key, "order-9"))
	existing, claimed, err = i.Claim(ctx, tenant, key)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-9", existing)

	require.NoError(t, i.Release(ctx, tenant, key))
	_, claimed, err = i.Claim(ctx, tenant, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDedup(t *testing.T) {
	d := &Dedup{R: newClient(t), Service: "test-" + uuid.NewString()}
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, d.Forget(ctx, "evt-1"))
	ok, err := Exists(ctx, d.R, "dedup:"+d.Service+":evt-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
