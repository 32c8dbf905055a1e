package service

import (
	"context"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/store"
)

// CatalogStore is the attribute catalog as seen by the services.
type CatalogStore interface {
	schema.Catalog
	FindSubCategoryForStore(ctx context.Context, name, storeID string) (*models.SubCategorySchema, error)
	ExtendOptionSet(ctx context.Context, p store.ExtendParams) (*store.ExtendResult, error)
	GetOptionSet(ctx context.Context, id string) (*models.AttributeOptionSet, error)
}

// ProductStore persists finished variant graphs. Graphs are owned by a
// store; reads and writes for another store's product fail with
// models.ErrNotFound.
type ProductStore interface {
	SaveProductGraph(ctx context.Context, g *models.ProductGraph) error
	ExternalIDExists(ctx context.Context, id models.ExternalProductID) (bool, error)
	GetProductGraph(ctx context.Context, storeID, productID string) (*models.ProductGraph, error)
}

// AssetStore holds asset records.
type AssetStore interface {
	CreateAsset(ctx context.Context, a *models.Asset) error
	GetAssetsByIDs(ctx context.Context, storeID string, ids []string) ([]models.Asset, error)
	MarkAssetsDeleted(ctx context.Context, storeID string, ids []string) ([]string, error)
}

// AssetResolver maps asset ids of the current store to assets.
type AssetResolver interface {
	Resolve(ctx context.Context, ids []string) (*ResolveResult, error)
}

// SchemaCache caches synthesized schemas.
type SchemaCache interface {
	GetSchema(ctx context.Context, key redisclient.SchemaKey) ([]byte, bool, error)
	SetSchema(ctx context.Context, key redisclient.SchemaKey, data []byte, ttl time.Duration) error
	InvalidateSchemas(ctx context.Context, subCategory string) (int64, error)
}

// Locker provides distributed locks.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*redisclient.Lock, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// Publisher publishes catalog events.
type Publisher interface {
	PublishOptionSetChanged(ctx context.Context, event *models.OptionSetChangedEvent) error
	PublishProductVariantsSaved(ctx context.Context, event *models.ProductVariantsSavedEvent) error
}
