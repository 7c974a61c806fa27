package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	validationredis "eventgo/internal/validation/redis"
)

func setupLock(t *testing.T) (*validationredis.Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return validationredis.NewLock(client, nil), mr
}

func TestAcquireIsExclusivePerPurchase(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "purchase-1", "gate-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock.Acquire(ctx, "purchase-1", "gate-2")
	require.NoError(t, err)
	assert.False(t, acquired)

	// A different purchase is unaffected.
	acquired, err = lock.Acquire(ctx, "purchase-2", "gate-2")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "purchase-1", "gate-1")
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, lock.Release(ctx, "purchase-1", "gate-1"))

	acquired, err = lock.Acquire(ctx, "purchase-1", "gate-2")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestReleaseIgnoresNonOwner(t *testing.T) {
	lock, _ := setupLock(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "purchase-1", "gate-1")
	require.NoError(t, err)
	require.True(t, acquired)

	// Another validator releasing does not steal the lock.
	require.NoError(t, lock.Release(ctx, "purchase-1", "gate-2"))

	acquired, err = lock.Acquire(ctx, "purchase-1", "gate-3")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestReleaseOfUnheldLockIsNoop(t *testing.T) {
	lock, _ := setupLock(t)
	assert.NoError(t, lock.Release(context.Background(), "purchase-none", "gate-1"))
}

func TestLockExpiresAfterTTL(t *testing.T) {
	lock, mr := setupLock(t)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "purchase-1", "gate-1")
	require.NoError(t, err)
	require.True(t, acquired)

	// Crashed validators never release; the TTL recovers the lock.
	mr.FastForward(31 * time.Second)

	acquired, err = lock.Acquire(ctx, "purchase-1", "gate-2")
	require.NoError(t, err)
	assert.True(t, acquired)
}
