package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaKey(t *testing.T) {
	key := SchemaKey{SubCategory: "T Shirts", StoreID: "", Gender: "N/A", Brand: "default"}
	assert.Equal(t, "schema:t-shirts:_:n-a:default", key.String())
	assert.Equal(t, "schema-index:t-shirts", schemaIndexKey("T Shirts"))
}

func TestSchemaCacheRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 15)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := SchemaKey{SubCategory: "shoes", StoreID: "store-1", Gender: "men", Brand: "default"}

	require.NoError(t, c.SetSchema(ctx, key, []byte(`{"subCategory":"shoes"}`), time.Minute))
	data, ok, err := c.GetSchema(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"subCategory":"shoes"}`, string(data))

	removed, err := c.InvalidateSchemas(ctx, "shoes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err = c.GetSchema(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock(t *testing.T) {
	t.Skip("Integration test - requires redis")

	c, err := NewClient("localhost:6379", "", 15)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	lock, err := c.AcquireLock(ctx, "option-set:test", time.Second)
	require.NoError(t, err)

	_, err = c.AcquireLock(ctx, "option-set:test", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, c.ReleaseLock(ctx, lock))
	lock, err = c.AcquireLock(ctx, "option-set:test", time.Second)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseLock(ctx, lock))
}
