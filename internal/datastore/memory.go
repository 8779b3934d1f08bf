package datastore

import (
	"context"
	"sync"
	"time"

	"github.com/lyzr/flowkernel/internal/envelope"
)

// MemoryStore is a development/test DataStore backend: an
// expiring-entry cache map plus named FIFO queues that a blocking Pop
// polls, mirroring BRPOP's wait semantics without a server round-trip.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][][]byte
	cache  map[string]*cacheEntry
	closed bool
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// NewMemoryStore returns an empty in-memory DataStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string][][]byte),
		cache:  make(map[string]*cacheEntry),
	}
}

// Push implements DataStore.
func (s *MemoryStore) Push(ctx context.Context, queueName string, env *envelope.Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queues[queueName] = append(s.queues[queueName], raw)
	s.mu.Unlock()
	return nil
}

// pollInterval bounds how long a blocking Pop can overshoot ctx
// cancellation or its timeout by, in exchange for a condvar-free
// implementation that can't leak a waiting goroutine past Close.
const pollInterval = 20 * time.Millisecond

// Pop implements DataStore: nil timeout blocks until Push, ctx
// cancellation, or Close; *timeout == 0 is a non-blocking check;
// otherwise it blocks up to the bound.
func (s *MemoryStore) Pop(ctx context.Context, queueName string, timeout *time.Duration) (*envelope.Envelope, error) {
	if raw, ok := s.tryPop(queueName); ok {
		return envelope.Unmarshal(raw)
	}
	if timeout != nil && *timeout == 0 {
		return nil, nil
	}

	var deadline <-chan time.Time
	if timeout != nil {
		timer := time.NewTimer(*timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-ticker.C:
			if raw, ok := s.tryPop(queueName); ok {
				return envelope.Unmarshal(raw)
			}
			if s.isClosed() {
				return nil, nil
			}
		}
	}
}

func (s *MemoryStore) tryPop(queueName string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked(queueName)
}

func (s *MemoryStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemoryStore) popLocked(queueName string) ([]byte, bool) {
	list := s.queues[queueName]
	if len(list) == 0 {
		return nil, false
	}
	raw := list[0]
	s.queues[queueName] = list[1:]
	return raw, true
}

// QueueLength implements DataStore.
func (s *MemoryStore) QueueLength(ctx context.Context, queueName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queues[queueName])), nil
}

// CacheSet implements DataStore.
func (s *MemoryStore) CacheSet(ctx context.Context, key string, value []byte, ttl *time.Duration) error {
	entry := &cacheEntry{value: append([]byte(nil), value...)}
	if ttl != nil {
		entry.expiresAt = time.Now().Add(*ttl)
	}
	s.mu.Lock()
	s.cache[key] = entry
	s.mu.Unlock()
	return nil
}

// CacheGet implements DataStore.
func (s *MemoryStore) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || s.expired(entry) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// CacheDel implements DataStore.
func (s *MemoryStore) CacheDel(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// CacheExists implements DataStore.
func (s *MemoryStore) CacheExists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok || s.expired(entry) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) expired(e *cacheEntry) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// Close implements DataStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
