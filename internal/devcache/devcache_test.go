package devcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flowkernel/internal/datastore"
	"github.com/lyzr/flowkernel/internal/envelope"
)

func TestSetGetHasClear(t *testing.T) {
	ctx := context.Background()
	c := New(datastore.NewMemoryStore())

	_, ok, err := c.Get(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	env := envelope.New()
	env.Set("x", float64(1))
	require.NoError(t, c.Set(ctx, "n1", env, nil))

	got, ok, err := c.Get(ctx, "n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, env.Equal(got))

	has, err := c.Has(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, c.Clear(ctx, "n1"))
	has, err = c.Has(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	c := New(datastore.NewMemoryStore())

	for _, id := range []string{"a", "b"} {
		require.NoError(t, c.Set(ctx, id, envelope.New(), nil))
	}
	require.NoError(t, c.ClearAll(ctx, []string{"a", "b"}))

	for _, id := range []string{"a", "b"} {
		has, err := c.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, has)
	}
}

func TestKeyPrefixIsolation(t *testing.T) {
	// A DevCache entry must not collide with a raw DataStore cache key
	// of the same name.
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	c := New(store)

	require.NoError(t, c.Set(ctx, "n1", envelope.New(), nil))
	_, ok, err := store.CacheGet(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}
