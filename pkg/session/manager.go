package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
// Lockers that refresh held locks (such as the redis adapter) keep longer
// turns covered.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the thread semaphore and the reference count.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager orchestrates thread access, ensuring turns of one thread run one at a time.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over the given checkpoint store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(threadID) when done with the entry.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// WithLock executes fn while holding the lock for the thread.
// Waiting for the lock honors ctx; a canceled wait returns domain.ErrThreadBusy.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	defer m.release(threadID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.Wrapf(domain.ErrThreadBusy, "waiting for thread %s: %v", threadID, ctx.Err())
	}
	defer func() { <-entry.sem }()

	if m.locker == nil {
		return fn(ctx)
	}

	unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
	if err != nil {
		return errors.Wrap(err, "failed to acquire distributed lock")
	}
	fnErr := fn(ctx)

	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		if errors.Is(err, domain.ErrLockLost) {
			// Another replica may have written the thread concurrently.
			m.logger.Error("Distributed lock lost while held", "thread_id", threadID, "err", err)
			if fnErr == nil {
				return errors.Wrapf(err, "thread %s", threadID)
			}
			return fnErr
		}
		m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
			"thread_id", threadID,
			"err", err,
		)
	}
	return fnErr
}

// Load retrieves an existing thread from the store.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	var state *domain.ConversationState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		return err
	})
	return state, err
}

// LoadOrCreate loads a thread or returns a fresh, unsaved state when none exists.
// It must be called while holding the thread lock.
func (m *Manager) LoadOrCreate(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	state, err := m.store.Load(ctx, threadID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrCheckpointNotFound) {
		return nil, errors.Wrap(err, "failed to check thread existence")
	}
	return domain.NewConversationState(threadID), nil
}

// Start initializes a thread and persists it immediately to reserve the ID.
// An existing thread is returned unchanged.
func (m *Manager) Start(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	var state *domain.ConversationState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrCheckpointNotFound) {
			return errors.Wrap(err, "failed to check thread existence")
		}
		state = domain.NewConversationState(threadID)
		if err := m.store.Save(ctx, threadID, state); err != nil {
			return errors.Wrap(err, "failed to initialize thread")
		}
		return nil
	})
	return state, err
}

// Save persists the thread state.
func (m *Manager) Save(ctx context.Context, threadID string, state *domain.ConversationState) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Save(ctx, threadID, state)
	})
}

// Delete removes the thread from the store.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Delete(ctx, threadID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}
