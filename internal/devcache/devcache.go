// Package devcache is a keyed store of the last output a node produced,
// used by Orchestrator's development mode to resolve upstream inputs by
// node id.
package devcache

import (
	"context"
	"time"

	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/envelope"
)

const keyPrefix = "devcache:"

// DevCache is backed by the same external keyed store DataStore's cache
// half uses, under its own prefix, so it shares the backend's
// multi-process-safety guarantee without a second storage dependency.
type DevCache struct {
	store datastore.DataStore
}

// New returns a DevCache layered over store.
func New(store datastore.DataStore) *DevCache {
	return &DevCache{store: store}
}

// Get returns the node's last cached output, if any.
func (d *DevCache) Get(ctx context.Context, nodeID string) (*envelope.Envelope, bool, error) {
	raw, ok, err := d.store.CacheGet(ctx, keyPrefix+nodeID)
	if err != nil || !ok {
		return nil, ok, err
	}
	env, err := envelope.Unmarshal(raw)
	if err != nil {
		return nil, false, err
	}
	return env, true, nil
}

// Set stores env as nodeID's last output. ttl == nil means no expiration.
func (d *DevCache) Set(ctx context.Context, nodeID string, env *envelope.Envelope, ttl *time.Duration) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	return d.store.CacheSet(ctx, keyPrefix+nodeID, raw, ttl)
}

// Has reports whether nodeID has a cached output.
func (d *DevCache) Has(ctx context.Context, nodeID string) (bool, error) {
	return d.store.CacheExists(ctx, keyPrefix+nodeID)
}

// Clear removes nodeID's cached output.
func (d *DevCache) Clear(ctx context.Context, nodeID string) error {
	return d.store.CacheDel(ctx, keyPrefix+nodeID)
}

// ClearAll removes every tracked node's cached output.
func (d *DevCache) ClearAll(ctx context.Context, nodeIDs []string) error {
	for _, id := range nodeIDs {
		if err := d.Clear(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
