package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/adapters/redis"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, opts ...redis.LockerOption) (*miniredis.Miniredis, *redis.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.NewLocker(client, "test:", opts...)
}

func TestManager_LongTurnKeepsDistributedLock(t *testing.T) {
	mr, locker := newRedisLocker(t, redis.WithRefreshInterval(10*time.Millisecond))
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	var stolen bool
	err := mgr.WithLock(ctx, "t1", func(ctx context.Context) error {
		mr.FastForward(20 * time.Second)
		require.Eventually(t, func() bool {
			return mr.TTL("test:lock:t1") > 15*time.Second
		}, time.Second, 5*time.Millisecond)
		mr.FastForward(20 * time.Second)

		// A second replica must not get in while the turn runs.
		other, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		unlock, err := locker.Lock(other, "t1", session.DefaultLockTTL)
		if err == nil {
			stolen = true
			_ = unlock(ctx)
		}
		return nil
	})
	require.NoError(t, err)
	assert.False(t, stolen, "second replica acquired the thread mid-turn")
	assert.False(t, mr.Exists("test:lock:t1"))
}

func TestManager_ReportsLostDistributedLock(t *testing.T) {
	mr, locker := newRedisLocker(t, redis.WithRefreshInterval(time.Hour))
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(locker))

	err := mgr.WithLock(context.Background(), "t1", func(ctx context.Context) error {
		mr.FastForward(session.DefaultLockTTL + time.Second)
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrLockLost)
}
