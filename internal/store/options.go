package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ExtendParams describes a value to add to a sub-category's option set.
type ExtendParams struct {
	SubCategory *models.SubCategorySchema
	StoreID     string
	Attribute   string
	Brand       string
	Gender      string
	Value       models.AttributeValue
}

// ExtendResult is the persisted set and whether it was newly created.
type ExtendResult struct {
	Set     *models.AttributeOptionSet
	ValueID string
	Created bool
}

// ExtendOptionSet appends a value to the set linked to the sub-category for
// (attribute, brand, gender), preferring the store's own set over a global
// one. If no set is linked, a new editable set holding only the value is
// created and linked. Both paths run in one transaction.
func (s *Store) ExtendOptionSet(ctx context.Context, p ExtendParams) (*ExtendResult, error) {
	value := p.Value
	value.ID = uuid.New().String()

	var res *ExtendResult
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		set, err := lockLinkedOptionSet(ctx, tx, p)
		if err != nil {
			return err
		}

		if set != nil {
			if !set.Editable {
				return fmt.Errorf("%w: option set %s", models.ErrNotEditable, set.ID)
			}
			if set.Values.HasDisplayName(value.DisplayName) {
				return fmt.Errorf("%w: %q already exists in %s", models.ErrValidationFailed, value.DisplayName, set.Name)
			}
			set.Values = append(set.Values, value)
			err = tx.GetContext(ctx, &set.UpdatedAt,
				`UPDATE attribute_option_sets SET "values" = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
				set.Values, set.ID)
			if err != nil {
				return fmt.Errorf("failed to update option set: %w", err)
			}
			res = &ExtendResult{Set: set, ValueID: value.ID}
			return nil
		}

		set = &models.AttributeOptionSet{
			ID:        uuid.New().String(),
			StoreID:   newSetScope(p),
			Brand:     p.Brand,
			Gender:    p.Gender,
			Attribute: p.Attribute,
			Name:      p.Attribute,
			Editable:  true,
			Values:    models.AttributeValues{value},
		}
		err = tx.GetContext(ctx, set, `
			INSERT INTO attribute_option_sets (id, store_id, brand, gender, attribute, name, editable, "values")
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *`,
			set.ID, set.StoreID, set.Brand, set.Gender, set.Attribute, set.Name, set.Editable, set.Values)
		if err != nil {
			return fmt.Errorf("failed to create option set: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO category_option_links (sub_category_id, option_set_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, p.SubCategory.ID, set.ID)
		if err != nil {
			return fmt.Errorf("failed to link option set: %w", err)
		}
		res = &ExtendResult{Set: set, ValueID: value.ID, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// lockLinkedOptionSet finds the linked set and locks its row until the
// transaction ends.
func lockLinkedOptionSet(ctx context.Context, tx *sqlx.Tx, p ExtendParams) (*models.AttributeOptionSet, error) {
	var set models.AttributeOptionSet
	err := tx.GetContext(ctx, &set, `
		SELECT os.* FROM attribute_option_sets os
		JOIN category_option_links l ON l.option_set_id = os.id
		WHERE l.sub_category_id = $1
		  AND os.attribute = $2 AND os.brand = $3 AND os.gender = $4
		  AND (os.store_id = $5 OR os.store_id IS NULL)
		ORDER BY os.store_id NULLS LAST
		LIMIT 1
		FOR UPDATE OF os`,
		p.SubCategory.ID, p.Attribute, p.Brand, p.Gender, p.StoreID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock option set: %w", err)
	}
	return &set, nil
}

// newSetScope is the requesting store, or global when the sub-category
// itself is global.
func newSetScope(p ExtendParams) *string {
	if p.SubCategory.StoreID == nil || p.StoreID == "" {
		return nil
	}
	id := p.StoreID
	return &id
}

// GetOptionSet retrieves an option set by ID
func (s *Store) GetOptionSet(ctx context.Context, id string) (*models.AttributeOptionSet, error) {
	var set models.AttributeOptionSet
	err := s.db.GetContext(ctx, &set, "SELECT * FROM attribute_option_sets WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: option set %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}
