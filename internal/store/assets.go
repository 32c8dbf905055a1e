package store

import (
	"context"
	"fmt"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateAsset inserts a pending asset
func (s *Store) CreateAsset(ctx context.Context, a *models.Asset) error {
	query := `
		INSERT INTO assets (id, store_id, url, mime_type, kind, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return s.db.GetContext(ctx, &a.CreatedAt, query,
		a.ID, a.StoreID, a.URL, a.MimeType, a.Kind, a.Status)
}

// GetAssetsByIDs retrieves a store's non-deleted assets by ID
func (s *Store) GetAssetsByIDs(ctx context.Context, storeID string, ids []string) ([]models.Asset, error) {
	if len(ids) == 0 {
		return []models.Asset{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM assets WHERE id IN (?) AND store_id = ? AND status <> ?",
		ids, storeID, models.AssetStatusDeleted)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var assets []models.Asset
	if err := s.db.SelectContext(ctx, &assets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to resolve assets: %w", err)
	}
	return assets, nil
}

// MarkAssetsDeleted soft-deletes a store's assets and returns the IDs that
// were changed.
func (s *Store) MarkAssetsDeleted(ctx context.Context, storeID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	query, args, err := sqlx.In(
		"UPDATE assets SET status = ? WHERE id IN (?) AND store_id = ? AND status <> ? RETURNING id",
		models.AssetStatusDeleted, ids, storeID, models.AssetStatusDeleted)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var deleted []string
	if err := s.db.SelectContext(ctx, &deleted, query, args...); err != nil {
		return nil, fmt.Errorf("failed to delete assets: %w", err)
	}
	return deleted, nil
}
