package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"
	"catalog-service/internal/variant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogSchemaReadsThroughCache(t *testing.T) {
	catalog := newFakeCatalogStore()
	cache := newFakeCache()
	svc := NewCatalogService(catalog, cache, time.Minute)
	ctx := context.Background()

	first, err := svc.Schema(ctx, schema.Request{SubCategory: "T-Shirts"})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.lookups())
	assert.Equal(t, 1, cache.entries())

	second, err := svc.Schema(ctx, schema.Request{SubCategory: "T-Shirts"})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.lookups())
	assert.Equal(t, first.Required, second.Required)
	assert.Equal(t, models.DefaultGender, second.Gender)

	size, ok := second.Attribute("size")
	require.True(t, ok)
	assert.Len(t, size.Values, 2)
}

func TestCatalogSchemaCacheFailureFallsThrough(t *testing.T) {
	catalog := newFakeCatalogStore()
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	svc := NewCatalogService(catalog, cache, time.Minute)

	sc, err := svc.Schema(context.Background(), schema.Request{SubCategory: "T-Shirts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"size", "color"}, sc.Required)
}

func TestCatalogSchemaErrors(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute)
	ctx := context.Background()

	_, err := svc.Schema(ctx, schema.Request{SubCategory: "  "})
	assert.ErrorIs(t, err, models.ErrValidationFailed)

	_, err = svc.Schema(ctx, schema.Request{SubCategory: "Gadgets"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalogSchemaResolvesSizeAlias(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute)

	sc, err := svc.Schema(context.Background(), schema.Request{SubCategory: "Footwear"})
	require.NoError(t, err)

	size, ok := sc.Attribute("size")
	require.True(t, ok)
	assert.Equal(t, "footwear_size", size.ResolvedAs)
}

func TestCatalogInvalidate(t *testing.T) {
	cache := newFakeCache()
	svc := NewCatalogService(newFakeCatalogStore(), cache, time.Minute)
	ctx := context.Background()

	_, err := svc.Schema(ctx, schema.Request{SubCategory: "T-Shirts"})
	require.NoError(t, err)
	_, err = svc.Schema(ctx, schema.Request{SubCategory: "T-Shirts", Gender: "Men"})
	require.NoError(t, err)
	_, err = svc.Schema(ctx, schema.Request{SubCategory: "Footwear"})
	require.NoError(t, err)
	require.Equal(t, 3, cache.entries())

	require.NoError(t, svc.Invalidate(ctx, "T-Shirts"))
	assert.Equal(t, 1, cache.entries())
}

func TestBuildMatrix(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute)
	ctx := context.Background()

	res, err := svc.BuildMatrix(ctx, MatrixRequest{
		Request: schema.Request{SubCategory: "T-Shirts"},
		Selection: variant.Selection{
			Varying: []string{"size", "color"},
			Values:  map[string][]string{"size": {"S", "M"}, "color": {"red"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "color=red|size=S", res.Rows[0].Key)
	assert.False(t, res.SchemaStale)
}

func TestBuildMatrixRejectsUndeclaredAttribute(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute)

	_, err := svc.BuildMatrix(context.Background(), MatrixRequest{
		Request:   schema.Request{SubCategory: "T-Shirts"},
		Selection: variant.Selection{Varying: []string{"material"}},
	})
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestBuildMatrixStaleSelectionInvalidatesSchema(t *testing.T) {
	cache := newFakeCache()
	svc := NewCatalogService(newFakeCatalogStore(), cache, time.Minute)

	res, err := svc.BuildMatrix(context.Background(), MatrixRequest{
		Request:   schema.Request{SubCategory: "T-Shirts"},
		Selection: variant.Selection{Varying: []string{"size"}, Values: map[string][]string{}},
	})
	require.NoError(t, err)
	assert.True(t, res.SchemaStale)
	assert.Empty(t, res.Rows)
	assert.Equal(t, []string{"T-Shirts"}, cache.invalidated)
	assert.Equal(t, 0, cache.entries())
}
