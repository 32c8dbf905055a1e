package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type productRow struct {
	ID        string                 `db:"id"`
	StoreID   string                 `db:"store_id"`
	Policy    models.InventoryPolicy `db:"policy"`
	Channels  pq.StringArray         `db:"channels"`
	CreatedAt time.Time              `db:"created_at"`
	UpdatedAt time.Time              `db:"updated_at"`
}

// SaveProductGraph writes a product's variants, channel entries and asset
// links in one transaction. A product owned by another store is reported as
// not found. The graph is the complete variant list of the product: saved
// variants missing from it were removed by the editor and are deleted with
// their entries and links. Linked assets are marked active.
func (s *Store) SaveProductGraph(ctx context.Context, g *models.ProductGraph) error {
	channels := make([]string, 0, len(g.Channels))
	for _, ch := range g.Channels {
		channels = append(channels, string(ch))
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, store_id, policy, channels)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET policy = EXCLUDED.policy, channels = EXCLUDED.channels, updated_at = NOW()
			WHERE products.store_id = EXCLUDED.store_id`,
			g.ProductID, g.StoreID, g.Policy, pq.Array(channels))
		if err != nil {
			return fmt.Errorf("failed to upsert product: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to upsert product: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: product %s", models.ErrNotFound, g.ProductID)
		}

		keep := make([]string, 0, len(g.Variants))
		for _, rec := range g.Variants {
			keep = append(keep, rec.Variant.ID)
		}
		_, err = tx.ExecContext(ctx,
			"DELETE FROM variants WHERE product_id = $1 AND NOT (id = ANY($2))",
			g.ProductID, pq.Array(keep))
		if err != nil {
			return fmt.Errorf("failed to prune variants: %w", err)
		}

		var assetIDs []string
		for i := range g.Variants {
			rec := &g.Variants[i]
			rec.Variant.ProductID = g.ProductID
			if err := saveVariant(ctx, tx, rec); err != nil {
				return err
			}
			for _, a := range rec.Assets {
				assetIDs = append(assetIDs, a.AssetID)
			}
		}

		if len(assetIDs) > 0 {
			_, err = tx.ExecContext(ctx,
				"UPDATE assets SET status = $1 WHERE id = ANY($2) AND store_id = $3",
				models.AssetStatusActive, pq.Array(assetIDs), g.StoreID)
			if err != nil {
				return fmt.Errorf("failed to activate assets: %w", err)
			}
		}
		return nil
	})
}

func saveVariant(ctx context.Context, tx *sqlx.Tx, rec *models.VariantRecord) error {
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO variants (id, product_id, tuple_key, attributes, external_id_type, external_id_value, total_quantity)
		VALUES (:id, :product_id, :tuple_key, :attributes, :external_id_type, :external_id_value, :total_quantity)
		ON CONFLICT (id) DO UPDATE
		SET tuple_key = EXCLUDED.tuple_key,
		    attributes = EXCLUDED.attributes,
		    external_id_type = EXCLUDED.external_id_type,
		    external_id_value = EXCLUDED.external_id_value,
		    total_quantity = EXCLUDED.total_quantity,
		    updated_at = NOW()
		WHERE variants.product_id = EXCLUDED.product_id`, &rec.Variant)
	if err != nil {
		return fmt.Errorf("failed to upsert variant %s: %w", rec.Variant.TupleKey, err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to upsert variant %s: %w", rec.Variant.TupleKey, err)
	} else if rows == 0 {
		return fmt.Errorf("%w: variant %s belongs to another product", models.ErrVariantNotFound, rec.Variant.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM channel_entries WHERE variant_id = $1", rec.Variant.ID); err != nil {
		return fmt.Errorf("failed to clear channel entries: %w", err)
	}
	for _, e := range rec.Entries {
		e.VariantID = rec.Variant.ID
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO channel_entries (variant_id, channel, price, quantity, mrp)
			VALUES (:variant_id, :channel, :price, :quantity, :mrp)`, &e)
		if err != nil {
			return fmt.Errorf("failed to insert %s entry: %w", e.Channel, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM variant_assets WHERE variant_id = $1", rec.Variant.ID); err != nil {
		return fmt.Errorf("failed to clear asset links: %w", err)
	}
	for _, a := range rec.Assets {
		a.VariantID = rec.Variant.ID
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO variant_assets (variant_id, asset_id, position, back_view)
			VALUES (:variant_id, :asset_id, :position, :back_view)`, &a)
		if err != nil {
			return fmt.Errorf("failed to link asset %s: %w", a.AssetID, err)
		}
	}
	return nil
}

// GetProductGraph retrieves a product of storeID with its variants, channel
// entries and asset links.
func (s *Store) GetProductGraph(ctx context.Context, storeID, productID string) (*models.ProductGraph, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row,
		"SELECT id, store_id, policy, channels, created_at, updated_at FROM products WHERE id = $1 AND store_id = $2",
		productID, storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	g := &models.ProductGraph{
		ProductID: row.ID,
		StoreID:   row.StoreID,
		Policy:    row.Policy,
		Channels:  make([]models.Channel, 0, len(row.Channels)),
	}
	for _, ch := range row.Channels {
		g.Channels = append(g.Channels, models.Channel(ch))
	}
	if g.Variants, err = s.productVariants(ctx, row.ID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) productVariants(ctx context.Context, productID string) ([]models.VariantRecord, error) {
	var variants []models.Variant
	err := s.db.SelectContext(ctx, &variants,
		"SELECT * FROM variants WHERE product_id = $1 ORDER BY tuple_key", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}

	records := make([]models.VariantRecord, 0, len(variants))
	for _, v := range variants {
		rec := models.VariantRecord{Variant: v}
		if err := s.db.SelectContext(ctx, &rec.Entries,
			"SELECT * FROM channel_entries WHERE variant_id = $1 ORDER BY channel", v.ID); err != nil {
			return nil, fmt.Errorf("failed to list channel entries: %w", err)
		}
		if err := s.db.SelectContext(ctx, &rec.Assets,
			"SELECT * FROM variant_assets WHERE variant_id = $1 ORDER BY position", v.ID); err != nil {
			return nil, fmt.Errorf("failed to list asset links: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExternalIDExists reports whether any variant already carries the code.
func (s *Store) ExternalIDExists(ctx context.Context, id models.ExternalProductID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM variants WHERE external_id_type = $1 AND external_id_value = $2)",
		id.Type, id.Value)
	if err != nil {
		return false, fmt.Errorf("failed to check external id: %w", err)
	}
	return exists, nil
}
