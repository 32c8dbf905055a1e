package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"

	"github.com/lib/pq"
)

// FindSubCategory returns the platform-default schema for name, or nil.
func (s *Store) FindSubCategory(ctx context.Context, name string) (*models.SubCategorySchema, error) {
	var sc models.SubCategorySchema
	err := s.db.GetContext(ctx, &sc,
		"SELECT * FROM sub_categories WHERE name = $1 AND store_id IS NULL", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sub-category %s: %w", name, err)
	}
	return &sc, nil
}

// FindSubCategoryForStore prefers a store's own schema for name over the
// platform default. Returns nil if neither exists.
func (s *Store) FindSubCategoryForStore(ctx context.Context, name, storeID string) (*models.SubCategorySchema, error) {
	var sc models.SubCategorySchema
	err := s.db.GetContext(ctx, &sc, `
		SELECT * FROM sub_categories
		WHERE name = $1 AND (store_id = $2 OR store_id IS NULL)
		ORDER BY store_id NULLS LAST
		LIMIT 1`, name, storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sub-category %s: %w", name, err)
	}
	return &sc, nil
}

// FindOptionSets returns option sets matching the query, global or owned by
// the query's store.
func (s *Store) FindOptionSets(ctx context.Context, q schema.OptionQuery) ([]models.AttributeOptionSet, error) {
	var sets []models.AttributeOptionSet
	err := s.db.SelectContext(ctx, &sets, `
		SELECT * FROM attribute_option_sets
		WHERE attribute = $1 AND brand = $2 AND gender = ANY($3)
		  AND (store_id IS NULL OR store_id = $4)
		ORDER BY created_at, id`,
		q.Attribute, q.Brand, pq.Array(q.Genders), q.StoreID)
	if err != nil {
		return nil, fmt.Errorf("failed to list option sets for %s: %w", q.Attribute, err)
	}
	return sets, nil
}
