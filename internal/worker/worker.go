package worker

import (
	"context"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// Source delivers catalog events.
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// SchemaInvalidator drops cached schemas of a sub-category.
type SchemaInvalidator interface {
	Invalidate(ctx context.Context, subCategory string) error
}

// SchemaCacheWorker keeps every replica's schema cache in step with option
// set changes made elsewhere.
type SchemaCacheWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	invalidator  SchemaInvalidator
	logger       *zap.Logger
}

// NewSchemaCacheWorker creates a new schema cache worker
func NewSchemaCacheWorker(source Source, invalidator SchemaInvalidator) *SchemaCacheWorker {
	w := &SchemaCacheWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		invalidator:  invalidator,
		logger:       util.ComponentLogger("schema-cache-worker"),
	}

	w.eventHandler.OnOptionSetChanged(w.handleOptionSetChanged)
	w.eventHandler.OnProductVariantsSaved(w.handleProductVariantsSaved)
	return w
}

func (w *SchemaCacheWorker) handleOptionSetChanged(ctx context.Context, event *models.OptionSetChangedEvent) error {
	if event.SubCategory == "" {
		w.logger.Warn("Option set event without sub-category", zap.String("event_id", event.EventID))
		return nil
	}
	if err := w.invalidator.Invalidate(ctx, event.SubCategory); err != nil {
		return err
	}
	w.logger.Info("Schema cache invalidated from event",
		zap.String("event_type", event.EventType),
		zap.String("sub_category", event.SubCategory),
		zap.String("option_set_id", event.OptionSetID))
	return nil
}

func (w *SchemaCacheWorker) handleProductVariantsSaved(_ context.Context, event *models.ProductVariantsSavedEvent) error {
	w.logger.Info("Product variants saved",
		zap.String("product_id", event.ProductID),
		zap.String("store_id", event.StoreID),
		zap.Int("variants", event.VariantCount))
	return nil
}

// Start starts the worker
func (w *SchemaCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting schema cache worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SchemaCacheWorker) Stop() error {
	w.logger.Info("Stopping schema cache worker")
	return w.source.Close()
}
