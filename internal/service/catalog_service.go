package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/util"
	"catalog-service/internal/variant"

	"go.uber.org/zap"
)

// CatalogService serves synthesized schemas and stateless matrix builds.
type CatalogService struct {
	synth  *schema.Synthesizer
	cache  SchemaCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(catalog schema.Catalog, cache SchemaCache, ttl time.Duration, opts ...schema.Option) *CatalogService {
	return &CatalogService{
		synth:  schema.NewSynthesizer(catalog, opts...),
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Aliases returns the attribute alias table used for synthesis.
func (s *CatalogService) Aliases() map[string]map[string]string {
	return s.synth.Aliases()
}

func schemaKey(req schema.Request) redisclient.SchemaKey {
	return redisclient.SchemaKey{
		SubCategory: req.SubCategory,
		StoreID:     req.StoreID,
		Gender:      req.Gender,
		Brand:       req.Brand,
	}
}

// Schema returns the synthesized schema for req, from cache when possible.
// Cache failures are logged and fall through to synthesis.
func (s *CatalogService) Schema(ctx context.Context, req schema.Request) (*schema.Schema, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Schema")
	var err error
	defer func() { util.EndSpan(span, err) }()

	req = req.Normalize()
	if req.SubCategory == "" {
		err = fmt.Errorf("%w: ptype is required", models.ErrValidationFailed)
		return nil, err
	}
	key := schemaKey(req)

	if s.cache != nil {
		if cached, ok := s.fromCache(ctx, key); ok {
			util.SchemaCacheLookups.WithLabelValues("hit").Inc()
			util.SchemaSynthesesTotal.WithLabelValues("cached").Inc()
			return cached, nil
		}
		util.SchemaCacheLookups.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	var sc *schema.Schema
	sc, err = s.synth.Synthesize(ctx, req)
	util.SchemaSynthesisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.SchemaSynthesesTotal.WithLabelValues(synthesisResult(err)).Inc()
		s.logger.Info("Schema synthesis failed",
			zap.String("sub_category", req.SubCategory),
			zap.String("store_id", req.StoreID),
			zap.Error(err))
		return nil, err
	}
	util.SchemaSynthesesTotal.WithLabelValues("ok").Inc()

	if s.cache != nil {
		s.toCache(ctx, key, sc)
	}
	return sc, nil
}

func (s *CatalogService) fromCache(ctx context.Context, key redisclient.SchemaKey) (*schema.Schema, bool) {
	data, ok, err := s.cache.GetSchema(ctx, key)
	if err != nil {
		s.logger.Warn("Schema cache read failed", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var sc schema.Schema
	if err := json.Unmarshal(data, &sc); err != nil {
		s.logger.Warn("Discarding undecodable cached schema", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	return &sc, true
}

func (s *CatalogService) toCache(ctx context.Context, key redisclient.SchemaKey, sc *schema.Schema) {
	data, err := json.Marshal(sc)
	if err != nil {
		s.logger.Warn("Failed to encode schema for cache", zap.Error(err))
		return
	}
	if err := s.cache.SetSchema(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Schema cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// Invalidate drops the cached schemas of a sub-category.
func (s *CatalogService) Invalidate(ctx context.Context, subCategory string) error {
	if s.cache == nil {
		return nil
	}
	removed, err := s.cache.InvalidateSchemas(ctx, subCategory)
	if err != nil {
		return fmt.Errorf("failed to invalidate schemas for %s: %w", subCategory, err)
	}
	util.SchemaInvalidationsTotal.Add(float64(removed))
	s.logger.Debug("Schema cache invalidated",
		zap.String("sub_category", subCategory),
		zap.Int64("removed", removed))
	return nil
}

// MatrixRequest asks for the variant rows of a selection.
type MatrixRequest struct {
	schema.Request
	variant.Selection
}

// BuildMatrix validates the selection against the sub-category's schema
// and expands it into variant rows.
func (s *CatalogService) BuildMatrix(ctx context.Context, req MatrixRequest) (*variant.Result, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.BuildMatrix")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var sc *schema.Schema
	sc, err = s.Schema(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	if err = sc.ValidateVariation(req.Varying); err != nil {
		return nil, err
	}

	var res variant.Result
	res, err = variant.Build(req.Selection)
	if err != nil {
		return nil, err
	}
	if res.SchemaStale {
		// The operator cleared every value; the next build starts from a
		// fresh schema.
		if ierr := s.Invalidate(ctx, req.SubCategory); ierr != nil {
			s.logger.Warn("Failed to reset stale schema", zap.Error(ierr))
		}
	}
	return &res, nil
}

func synthesisResult(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInactive):
		return "inactive"
	case errors.Is(err, models.ErrNoSizeOptionsFound):
		return "no_size_options"
	}
	return "error"
}
