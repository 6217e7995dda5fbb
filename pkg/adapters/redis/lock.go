package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	backend "github.com/redis/go-redis/v9"
)

// DefaultLockPoll is how often a contended lock is retried.
const DefaultLockPoll = 100 * time.Millisecond

// unlockScript deletes the key only if we still own it.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// refreshScript extends the key only if we still own it.
var refreshScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using Redis SET NX PX.
// A held lock is extended in the background until it is released, so the
// ttl only bounds how long a crashed holder blocks the thread.
type Locker struct {
	client  *backend.Client
	prefix  string
	poll    time.Duration
	refresh time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithRefreshInterval sets how often a held lock is extended.
// The default is a third of the lock ttl.
func WithRefreshInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.refresh = d
	}
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: prefix,
		poll:   DefaultLockPoll,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the lock for key is acquired or ctx is done.
// The returned UnlockFunc reports domain.ErrLockLost when the lock expired
// or changed owner while held.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(err, "redis error acquiring lock")
		}
		if ok {
			return l.hold(lockKey, token, ttl), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold keeps the lock alive until the returned UnlockFunc runs.
func (l *Locker) hold(lockKey, token string, ttl time.Duration) ports.UnlockFunc {
	interval := l.refresh
	if interval <= 0 {
		interval = ttl / 3
	}

	watchCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	var lost atomic.Bool

	go func() {
		defer close(done)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}
			n, err := refreshScript.Run(watchCtx, l.client, []string{lockKey}, token, ttl.Milliseconds()).Int()
			if err != nil {
				// The remaining ttl covers the next attempt.
				continue
			}
			if n == 0 {
				lost.Store(true)
				return
			}
		}
	}()

	return func(ctx context.Context) error {
		stop()
		<-done
		n, err := unlockScript.Run(ctx, l.client, []string{lockKey}, token).Int()
		if err != nil {
			return errors.Wrap(err, "releasing lock")
		}
		if lost.Load() || n == 0 {
			return errors.Wrapf(domain.ErrLockLost, "lock %s", lockKey)
		}
		return nil
	}
}
