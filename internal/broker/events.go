package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing catalog events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOptionSetChanged publishes OPTION_SET_CREATED or OPTION_SET_UPDATED.
// Keyed by sub-category so invalidations for one category stay ordered.
func (ep *EventPublisher) PublishOptionSetChanged(ctx context.Context, event *models.OptionSetChangedEvent) error {
	key := fmt.Sprintf("sub-category-%s", event.SubCategory)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductVariantsSaved publishes PRODUCT_VARIANTS_SAVED
func (ep *EventPublisher) PublishProductVariantsSaved(ctx context.Context, event *models.ProductVariantsSavedEvent) error {
	key := fmt.Sprintf("product-%s", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming catalog events
type EventHandler struct {
	onOptionSetChanged     func(context.Context, *models.OptionSetChangedEvent) error
	onProductVariantsSaved func(context.Context, *models.ProductVariantsSavedEvent) error
	logger                 *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOptionSetChanged registers a handler for option set created/updated events
func (eh *EventHandler) OnOptionSetChanged(handler func(context.Context, *models.OptionSetChangedEvent) error) {
	eh.onOptionSetChanged = handler
}

// OnProductVariantsSaved registers a handler for saved product graphs
func (eh *EventHandler) OnProductVariantsSaved(handler func(context.Context, *models.ProductVariantsSavedEvent) error) {
	eh.onProductVariantsSaved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOptionSetCreated, models.EventTypeOptionSetUpdated:
		if eh.onOptionSetChanged != nil {
			var event models.OptionSetChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onOptionSetChanged(ctx, &event)
		}

	case models.EventTypeProductVariantsSaved:
		if eh.onProductVariantsSaved != nil {
			var event models.ProductVariantsSavedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onProductVariantsSaved(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
