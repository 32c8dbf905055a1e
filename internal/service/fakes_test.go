package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/store"

	"github.com/gosimple/slug"
)

func strPtr(s string) *string { return &s }

type fakeCatalogStore struct {
	mu         sync.Mutex
	subs       map[string]*models.SubCategorySchema
	sets       []models.AttributeOptionSet
	subLookups int
	extended   []store.ExtendParams
	extendErr  error
	created    bool
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		subs: map[string]*models.SubCategorySchema{
			"T-Shirts": {ID: "sc-1", Name: "T-Shirts", Attributes: []string{"size", "color"}, Active: true},
			"Footwear": {ID: "sc-2", Name: "Footwear", Attributes: []string{"size"}, Active: true},
		},
		sets: []models.AttributeOptionSet{
			{ID: "os-size", Attribute: "size", Brand: models.DefaultBrand, Gender: models.DefaultGender, Editable: true,
				Values: models.AttributeValues{{ID: "v-s", DisplayName: "S", Value: "S"}, {ID: "v-m", DisplayName: "M", Value: "M"}}},
			{ID: "os-color", Attribute: "color", Brand: models.DefaultBrand, Gender: models.DefaultGender, Editable: true,
				Values: models.AttributeValues{{ID: "v-red", DisplayName: "Red", Value: "red", HexCode: "#FF0000"}}},
			{ID: "os-fw", Attribute: "footwear_size", Brand: models.DefaultBrand, Gender: models.DefaultGender, Editable: true,
				Values: models.AttributeValues{{ID: "v-8", DisplayName: "8", Value: "8"}}},
		},
	}
}

func (f *fakeCatalogStore) FindSubCategory(_ context.Context, name string) (*models.SubCategorySchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subLookups++
	return f.subs[name], nil
}

func (f *fakeCatalogStore) FindSubCategoryForStore(ctx context.Context, name, _ string) (*models.SubCategorySchema, error) {
	return f.FindSubCategory(ctx, name)
}

func (f *fakeCatalogStore) FindOptionSets(_ context.Context, q schema.OptionQuery) ([]models.AttributeOptionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttributeOptionSet
	for _, set := range f.sets {
		if set.Attribute != q.Attribute || set.Brand != q.Brand {
			continue
		}
		for _, g := range q.Genders {
			if set.Gender == g {
				out = append(out, set)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalogStore) ExtendOptionSet(_ context.Context, p store.ExtendParams) (*store.ExtendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extended = append(f.extended, p)
	if f.extendErr != nil {
		return nil, f.extendErr
	}
	set := &models.AttributeOptionSet{
		ID:        "os-new",
		Attribute: p.Attribute,
		Brand:     p.Brand,
		Gender:    p.Gender,
		Editable:  true,
		Values:    models.AttributeValues{p.Value},
	}
	return &store.ExtendResult{Set: set, ValueID: "val-1", Created: f.created}, nil
}

func (f *fakeCatalogStore) GetOptionSet(_ context.Context, id string) (*models.AttributeOptionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sets {
		if f.sets[i].ID == id {
			set := f.sets[i]
			return &set, nil
		}
	}
	return nil, fmt.Errorf("%w: option set %s", models.ErrNotFound, id)
}

func (f *fakeCatalogStore) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subLookups
}

type fakeProductStore struct {
	mu      sync.Mutex
	taken   map[string]bool
	graphs  []*models.ProductGraph
	saveErr error
	checks  int
}

func newFakeProductStore(taken ...string) *fakeProductStore {
	f := &fakeProductStore{taken: make(map[string]bool)}
	for _, v := range taken {
		f.taken[v] = true
	}
	return f
}

func (f *fakeProductStore) SaveProductGraph(_ context.Context, g *models.ProductGraph) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, prev := range f.graphs {
		if prev.ProductID == g.ProductID && prev.StoreID != g.StoreID {
			return fmt.Errorf("%w: product %s", models.ErrNotFound, g.ProductID)
		}
	}
	f.graphs = append(f.graphs, g)
	return nil
}

func (f *fakeProductStore) ExternalIDExists(_ context.Context, id models.ExternalProductID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.taken[id.Value], nil
}

func (f *fakeProductStore) GetProductGraph(_ context.Context, storeID, productID string) (*models.ProductGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.graphs) - 1; i >= 0; i-- {
		g := f.graphs[i]
		if g.ProductID == productID && g.StoreID == storeID {
			out := *g
			out.Variants = append([]models.VariantRecord(nil), g.Variants...)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
}

func (f *fakeProductStore) saved() []*models.ProductGraph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.ProductGraph(nil), f.graphs...)
}

type fakeAssetStore struct {
	assets    map[string]models.Asset
	createErr map[string]error
	created   []*models.Asset
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{assets: make(map[string]models.Asset), createErr: make(map[string]error)}
}

func (f *fakeAssetStore) CreateAsset(_ context.Context, a *models.Asset) error {
	if err := f.createErr[a.MimeType]; err != nil {
		return err
	}
	f.created = append(f.created, a)
	f.assets[a.ID] = *a
	return nil
}

func (f *fakeAssetStore) GetAssetsByIDs(_ context.Context, storeID string, ids []string) ([]models.Asset, error) {
	var out []models.Asset
	for _, id := range ids {
		if a, ok := f.assets[id]; ok && a.StoreID == storeID && a.Status != models.AssetStatusDeleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssetStore) MarkAssetsDeleted(_ context.Context, storeID string, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		a, ok := f.assets[id]
		if !ok || a.StoreID != storeID || a.Status == models.AssetStatusDeleted {
			continue
		}
		a.Status = models.AssetStatusDeleted
		f.assets[id] = a
		out = append(out, id)
	}
	return out, nil
}

type fakeCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) GetSchema(_ context.Context, key redisclient.SchemaKey) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	data, ok := f.data[key.String()]
	return data, ok, nil
}

func (f *fakeCache) SetSchema(_ context.Context, key redisclient.SchemaKey, data []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key.String()] = data
	return nil
}

func (f *fakeCache) InvalidateSchemas(_ context.Context, subCategory string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, subCategory)
	prefix := "schema:" + slug.Make(subCategory) + ":"
	var n int64
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeCache) entries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

type fakeLocker struct {
	held     int
	attempts int
	released int
}

func (f *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (*redisclient.Lock, error) {
	f.attempts++
	if f.attempts <= f.held {
		return nil, fmt.Errorf("%w: %s", redisclient.ErrLockHeld, key)
	}
	return &redisclient.Lock{}, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, _ *redisclient.Lock) error {
	f.released++
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	options  []*models.OptionSetChangedEvent
	variants []*models.ProductVariantsSavedEvent
}

func (f *fakePublisher) PublishOptionSetChanged(_ context.Context, e *models.OptionSetChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = append(f.options, e)
	return nil
}

func (f *fakePublisher) PublishProductVariantsSaved(_ context.Context, e *models.ProductVariantsSavedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants = append(f.variants, e)
	return nil
}
