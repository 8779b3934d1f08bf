// Package datastore is a thin interface over a named-queue and cache
// service, namespaced under a fixed prefix and storing JSON-serialized
// envelopes.
package datastore

import (
	"context"
	"time"

	"github.com/lyzr/flowkernel/internal/envelope"
)

// DataStore is the named-queue + cache contract every backend satisfies.
// Implementations must be multi-process safe: concurrent Push/Pop are
// serialized by the backing service, not by in-process locking alone.
type DataStore interface {
	// Push pushes env onto the head of queueName.
	Push(ctx context.Context, queueName string, env *envelope.Envelope) error

	// Pop does a blocking right-pop from queueName. timeout == nil waits
	// indefinitely; *timeout == 0 is non-blocking; otherwise it bounds
	// the wait. Returns (nil, nil) on timeout.
	Pop(ctx context.Context, queueName string, timeout *time.Duration) (*envelope.Envelope, error)

	// QueueLength reports how many envelopes are queued under queueName.
	QueueLength(ctx context.Context, queueName string) (int64, error)

	// CacheSet stores value under key. ttl == nil means no expiration.
	CacheSet(ctx context.Context, key string, value []byte, ttl *time.Duration) error

	// CacheGet returns (value, true, nil) on hit, (nil, false, nil) on miss.
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)

	// CacheDel removes key, if present.
	CacheDel(ctx context.Context, key string) error

	// CacheExists reports whether key is present (and unexpired).
	CacheExists(ctx context.Context, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

const (
	queuePrefix = "ds:queue:"
	cachePrefix = "ds:cache:"
)

func queueKey(name string) string { return queuePrefix + name }
func cacheKey(name string) string { return cachePrefix + name }
