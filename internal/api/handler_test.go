package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/channel"
	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/scope"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/variant"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct{}

func (stubCatalog) FindSubCategory(_ context.Context, name string) (*models.SubCategorySchema, error) {
	if name != "T-Shirts" {
		return nil, nil
	}
	return &models.SubCategorySchema{ID: "sc-1", Name: "T-Shirts", Attributes: []string{"size"}, Active: true}, nil
}

func (c stubCatalog) FindSubCategoryForStore(ctx context.Context, name, _ string) (*models.SubCategorySchema, error) {
	return c.FindSubCategory(ctx, name)
}

func (stubCatalog) FindOptionSets(_ context.Context, q schema.OptionQuery) ([]models.AttributeOptionSet, error) {
	if q.Attribute != "size" {
		return nil, nil
	}
	return []models.AttributeOptionSet{{
		ID: "os-1", Attribute: "size", Brand: q.Brand, Gender: models.DefaultGender,
		Values: models.AttributeValues{{ID: "v-s", DisplayName: "S", Value: "S"}},
	}}, nil
}

func (stubCatalog) ExtendOptionSet(_ context.Context, p store.ExtendParams) (*store.ExtendResult, error) {
	set := &models.AttributeOptionSet{ID: "os-1", Attribute: p.Attribute, Values: models.AttributeValues{p.Value}}
	return &store.ExtendResult{Set: set, ValueID: "v-new", Created: false}, nil
}

func (stubCatalog) GetOptionSet(_ context.Context, id string) (*models.AttributeOptionSet, error) {
	if id != "os-1" {
		return nil, fmt.Errorf("%w: option set %s", models.ErrNotFound, id)
	}
	return &models.AttributeOptionSet{ID: id, Attribute: "size"}, nil
}

type stubProducts struct{ taken map[string]bool }

func (stubProducts) SaveProductGraph(context.Context, *models.ProductGraph) error { return nil }

func (s stubProducts) ExternalIDExists(_ context.Context, id models.ExternalProductID) (bool, error) {
	return s.taken[id.Value], nil
}

func (stubProducts) GetProductGraph(_ context.Context, storeID, productID string) (*models.ProductGraph, error) {
	if storeID != "store-1" || productID != "p-1" {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
	}
	return &models.ProductGraph{
		ProductID: productID,
		StoreID:   storeID,
		Policy:    models.PolicyUnified,
		Variants:  []models.VariantRecord{{Variant: models.Variant{ID: "v-1", ProductID: productID}}},
	}, nil
}

type stubAssets struct{}

func (stubAssets) CreateAsset(context.Context, *models.Asset) error { return nil }

func (stubAssets) GetAssetsByIDs(_ context.Context, storeID string, ids []string) ([]models.Asset, error) {
	var out []models.Asset
	for _, id := range ids {
		if id == "a1" {
			out = append(out, models.Asset{ID: id, StoreID: storeID, Kind: models.AssetImage})
		}
	}
	return out, nil
}

func (stubAssets) MarkAssetsDeleted(_ context.Context, _ string, ids []string) ([]string, error) {
	return ids[:1], nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func setupRouter(deps map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)

	products := stubProducts{taken: map[string]bool{"12345678": true}}
	catalog := service.NewCatalogService(stubCatalog{}, nil, time.Minute)
	identifiers := service.NewIdentifierService(products, nil)
	assets := service.NewAssetService(stubAssets{}, "https://cdn")

	h := NewHandler(Services{
		Catalog:     catalog,
		Options:     service.NewOptionService(stubCatalog{}, nil, catalog, nil),
		Identifiers: identifiers,
		Assets:      assets,
		Products:    service.NewProductService(products),
		Sessions: service.NewSessionService(catalog, products, assets, identifiers, nil, service.SessionConfig{
			TTL:             time.Hour,
			IdentifierDelay: time.Hour,
			MinAssets:       1,
			Apportion:       channel.ApportionCeiling,
		}),
	}, deps)

	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(scope.StoreHeader, "store-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealthAndReady(t *testing.T) {
	router := setupRouter(map[string]Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
	})
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/ready", nil).Code)

	router = setupRouter(map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	w := do(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestGetSchema(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodGet, "/api/v1/schema?ptype=T-Shirts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sc schema.Schema
	decode(t, w, &sc)
	assert.Equal(t, "T-Shirts", sc.SubCategory)
	assert.Equal(t, []string{"size"}, sc.Required)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/schema?ptype=Gadgets", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/api/v1/schema", nil).Code)
}

func TestExtendOptions(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodPost, "/api/v1/options", gin.H{
		"ptype":     "T-Shirts",
		"attribute": "size",
		"value":     gin.H{"displayName": "XL"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Option set updated")

	w = do(t, router, http.MethodPost, "/api/v1/options", gin.H{
		"ptype":     "T-Shirts",
		"attribute": "flavor",
		"value":     gin.H{"displayName": "Mint"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/options", gin.H{"attribute": "size"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOptionSet(t *testing.T) {
	router := setupRouter(nil)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/options/os-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/options/os-9", nil).Code)
}

func TestGetProductVariants(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodGet, "/api/v1/products/p-1/variants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Variants []models.VariantRecord `json:"variants"`
	}
	decode(t, w, &res)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "p-1", res.Variants[0].Variant.ProductID)

	w = do(t, router, http.MethodGet, "/api/v1/products/p-2/variants", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckIdentifier(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodGet, "/api/v1/identifiers/check?type=ean&value=12345678", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res service.CheckResult
	decode(t, w, &res)
	assert.True(t, res.Exists)

	w = do(t, router, http.MethodGet, "/api/v1/identifiers/check?type=ean&value=abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBuildMatrix(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodPost, "/api/v1/variants/matrix", gin.H{
		"ptype":   "T-Shirts",
		"varying": []string{"size"},
		"values":  gin.H{"size": []string{"S", "M"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Rows []struct {
			Key string `json:"key"`
		} `json:"rows"`
	}
	decode(t, w, &res)
	assert.Len(t, res.Rows, 2)
}

func TestAllocateAssets(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodPost, "/api/v1/assets/allocate", gin.H{
		"files": []gin.H{{"name": "a.png", "mimeType": "image/png"}, {"name": "b.pdf", "mimeType": "application/pdf"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var report service.BatchReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	w = do(t, router, http.MethodPost, "/api/v1/assets/allocate", gin.H{
		"files": []gin.H{{"name": "b.pdf", "mimeType": "application/pdf"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/assets/allocate", gin.H{"files": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveAndDeleteAssets(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodPost, "/api/v1/assets/resolve", gin.H{"ids": []string{"a1", "a2"}})
	require.Equal(t, http.StatusOK, w.Code)
	var res service.ResolveResult
	decode(t, w, &res)
	assert.Equal(t, []string{"a2"}, res.Missing)

	w = do(t, router, http.MethodPost, "/api/v1/assets/delete", gin.H{"ids": []string{"a1", "a2"}})
	require.Equal(t, http.StatusOK, w.Code)
	var report service.BatchReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.Succeeded)
}

func TestSessionLifecycle(t *testing.T) {
	router := setupRouter(nil)

	w := do(t, router, http.MethodPost, "/api/v1/sessions", gin.H{"ptype": "T-Shirts", "channels": []string{"DEFAULT"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var view service.SessionView
	decode(t, w, &view)
	base := "/api/v1/sessions/" + view.ID

	w = do(t, router, http.MethodPost, base+"/actions", gin.H{"type": service.ActionApplyMatrix})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var failed struct {
		Errors channel.Errors `json:"errors"`
	}
	decode(t, w, &failed)
	assert.NotEmpty(t, failed.Errors)

	w = do(t, router, http.MethodPost, base+"/actions", gin.H{"type": service.ActionSetTotalQuantity, "key": "missing", "quantity": 3})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, base+"/actions", gin.H{"type": service.ActionSetChannelQuantity, "key": variant.DefaultKey, "channel": "DEFAULT", "quantity": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, base, nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrVariantNotFound, http.StatusNotFound},
		{models.ErrSessionNotFound, http.StatusNotFound},
		{models.ErrInactive, http.StatusConflict},
		{models.ErrNotEditable, http.StatusConflict},
		{models.ErrDuplicateIdentifier, http.StatusConflict},
		{models.ErrDuplicateVariant, http.StatusConflict},
		{redisclient.ErrLockHeld, http.StatusConflict},
		{models.ErrNoSizeOptionsFound, http.StatusUnprocessableEntity},
		{models.ErrAttributeNotApplicable, http.StatusUnprocessableEntity},
		{models.ErrValidationFailed, http.StatusUnprocessableEntity},
		{models.ErrReadOnlyField, http.StatusUnprocessableEntity},
		{&service.InvalidSessionError{}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("context: %w", tt.err)
		assert.Equal(t, tt.code, statusFor(wrapped), tt.err.Error())
	}
}
