package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/scope"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// ProductService reads persisted variant graphs
type ProductService struct {
	store  ProductStore
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store ProductStore) *ProductService {
	return &ProductService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Variants returns the saved variants of a product of the current store with
// their channel entries and asset links.
func (s *ProductService) Variants(ctx context.Context, productID string) ([]models.VariantRecord, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Variants")
	var err error
	defer func() { util.EndSpan(span, err) }()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		err = fmt.Errorf("%w: product id is required", models.ErrValidationFailed)
		return nil, err
	}

	storeID := scope.Store(ctx)
	var graph *models.ProductGraph
	graph, err = s.store.GetProductGraph(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Loaded product variants",
		zap.String("product_id", productID),
		zap.String("store_id", storeID),
		zap.Int("variants", len(graph.Variants)))
	return graph.Variants, nil
}
