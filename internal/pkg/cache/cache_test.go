package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       13,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	return rdb
}

func TestRedisLockerIsExclusive(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	locker := NewRedisLocker(rdb)

	lock, err := locker.Acquire(ctx, "billing:run:2026-01", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "billing:run:2026-01", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))

	require.NoError(t, lock.Release(ctx))
	again, err := locker.Acquire(ctx, "billing:run:2026-01", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	locker := NewRedisLocker(rdb)

	lock, err := locker.Acquire(ctx, "billing:mirror:1", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// the lock expired and someone else took it
	other, err := locker.Acquire(ctx, "billing:mirror:1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	_, err = locker.Acquire(ctx, "billing:mirror:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, other.Release(ctx))
}

func TestReleaseNilLock(t *testing.T) {
	var lk *Lock
	assert.NoError(t, lk.Release(context.Background()))
}
