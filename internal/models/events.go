package models

import "time"

// Event types
const (
	EventTypeOptionSetCreated     = "OPTION_SET_CREATED"
	EventTypeOptionSetUpdated     = "OPTION_SET_UPDATED"
	EventTypeProductVariantsSaved = "PRODUCT_VARIANTS_SAVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OptionSetChangedEvent published after an option set is created or extended
type OptionSetChangedEvent struct {
	BaseEvent
	OptionSetID string  `json:"option_set_id"`
	SubCategory string  `json:"sub_category"`
	Attribute   string  `json:"attribute"`
	StoreID     *string `json:"store_id,omitempty"`
	ValueID     string  `json:"value_id"`
}

// ProductVariantsSavedEvent published after a product graph is persisted
type ProductVariantsSavedEvent struct {
	BaseEvent
	ProductID    string    `json:"product_id"`
	StoreID      string    `json:"store_id"`
	VariantCount int       `json:"variant_count"`
	Channels     []Channel `json:"channels"`
}
