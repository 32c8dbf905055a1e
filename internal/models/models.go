package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Defaults applied when a schema or extension request omits gender or brand.
const (
	DefaultGender = "N/A"
	DefaultBrand  = "default"
)

// AttributeValue is one allowed value inside an option set. The optional
// fields form the attribute-specific payload: HexCode for colors, Unit for
// weights, Codes for size unit systems (UK, US, EU, ...).
type AttributeValue struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Value       string            `json:"value"`
	HexCode     string            `json:"hexCode,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Codes       map[string]string `json:"codes,omitempty"`
}

// AttributeValues is stored as a JSONB array.
type AttributeValues []AttributeValue

// Value implements driver.Valuer
func (v AttributeValues) Value() (driver.Value, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner
func (v *AttributeValues) Scan(src interface{}) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = AttributeValues{}
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("unsupported attribute values type %T", src)
	}
	return json.Unmarshal(raw, v)
}

// HasDisplayName reports whether a value with the same display name exists.
func (v AttributeValues) HasDisplayName(name string) bool {
	for _, existing := range v {
		if strings.EqualFold(strings.TrimSpace(existing.DisplayName), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// AttributeOptionSet is a reusable catalog of values for one attribute,
// keyed by (store scope, brand, gender, attribute). A nil StoreID is global.
type AttributeOptionSet struct {
	ID        string          `db:"id" json:"id"`
	StoreID   *string         `db:"store_id" json:"store_id,omitempty"`
	Brand     string          `db:"brand" json:"brand"`
	Gender    string          `db:"gender" json:"gender"`
	Attribute string          `db:"attribute" json:"attribute"`
	Name      string          `db:"name" json:"name"`
	Editable  bool            `db:"editable" json:"editable"`
	Values    AttributeValues `db:"values" json:"values"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// IsStoreScoped reports whether the set belongs to a single store.
func (s *AttributeOptionSet) IsStoreScoped() bool {
	return s.StoreID != nil && *s.StoreID != ""
}

// SubCategorySchema lists the attributes applicable to a sub-category.
type SubCategorySchema struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	StoreID    *string        `db:"store_id" json:"store_id,omitempty"`
	Attributes pq.StringArray `db:"attributes" json:"attributes"`
	Active     bool           `db:"active" json:"active"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// HasAttribute reports whether name is one of the declared attributes.
func (s *SubCategorySchema) HasAttribute(name string) bool {
	for _, a := range s.Attributes {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// CategoryOptionLink joins a sub-category to an option set.
type CategoryOptionLink struct {
	SubCategoryID string    `db:"sub_category_id" json:"sub_category_id"`
	OptionSetID   string    `db:"option_set_id" json:"option_set_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Channel is a sales destination.
type Channel string

const (
	ChannelDefault  Channel = "DEFAULT"
	ChannelONDC     Channel = "ONDC"
	ChannelAmazon   Channel = "AMAZON"
	ChannelFlipkart Channel = "FLIPKART"
	ChannelMeesho   Channel = "MEESHO"
)

// KnownChannels in display order.
var KnownChannels = []Channel{ChannelDefault, ChannelONDC, ChannelAmazon, ChannelFlipkart, ChannelMeesho}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range KnownChannels {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// InventoryPolicy decides whether stock is pooled across channels.
type InventoryPolicy string

const (
	PolicyUnified InventoryPolicy = "UNIFIED"
	PolicySplit   InventoryPolicy = "SPLIT"
)

// ParsePolicy validates an inventory policy name.
func ParsePolicy(s string) (InventoryPolicy, error) {
	switch p := InventoryPolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case PolicyUnified, PolicySplit:
		return p, nil
	}
	return "", fmt.Errorf("unknown inventory policy %q", s)
}

// ExternalProductID is a marketplace code such as an EAN.
type ExternalProductID struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AssetKind classifies an asset by mime type.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// Asset statuses
const (
	AssetStatusPending = "PENDING"
	AssetStatusActive  = "ACTIVE"
	AssetStatusDeleted = "DELETED"
)

// Asset is a stored image or video. URL is opaque to the catalog.
type Asset struct {
	ID        string    `db:"id" json:"id"`
	StoreID   string    `db:"store_id" json:"store_id"`
	URL       string    `db:"url" json:"url"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	Kind      AssetKind `db:"kind" json:"kind"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttributePair is one element of a variant's attribute tuple.
type AttributePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AttributePairs is stored as a JSONB array.
type AttributePairs []AttributePair

// Value implements driver.Valuer
func (p AttributePairs) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *AttributePairs) Scan(src interface{}) error {
	switch s := src.(type) {
	case nil:
		*p = AttributePairs{}
		return nil
	case []byte:
		return json.Unmarshal(s, p)
	case string:
		return json.Unmarshal([]byte(s), p)
	}
	return fmt.Errorf("unsupported attribute pairs type %T", src)
}

// Variant is a persisted SKU row.
type Variant struct {
	ID              string         `db:"id" json:"id"`
	ProductID       string         `db:"product_id" json:"product_id"`
	TupleKey        string         `db:"tuple_key" json:"tuple_key"`
	Attributes      AttributePairs `db:"attributes" json:"attributes"`
	ExternalIDType  string         `db:"external_id_type" json:"external_id_type"`
	ExternalIDValue string         `db:"external_id_value" json:"external_id_value"`
	TotalQuantity   *int           `db:"total_quantity" json:"total_quantity,omitempty"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ChannelEntry is the persisted price/quantity of a variant on one channel.
type ChannelEntry struct {
	VariantID string          `db:"variant_id" json:"variant_id"`
	Channel   Channel         `db:"channel" json:"channel"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	MRP       decimal.Decimal `db:"mrp" json:"mrp"`
}

// VariantAsset links an asset to a variant at a position.
type VariantAsset struct {
	VariantID string `db:"variant_id" json:"variant_id"`
	AssetID   string `db:"asset_id" json:"asset_id"`
	Position  int    `db:"position" json:"position"`
	BackView  bool   `db:"back_view" json:"back_view"`
}

// VariantRecord bundles a variant with its channel entries and asset links.
type VariantRecord struct {
	Variant Variant        `json:"variant"`
	Entries []ChannelEntry `json:"entries"`
	Assets  []VariantAsset `json:"assets"`
}

// ProductGraph is written atomically on submit.
type ProductGraph struct {
	ProductID string          `json:"product_id"`
	StoreID   string          `json:"store_id"`
	Policy    InventoryPolicy `json:"policy"`
	Channels  []Channel       `json:"channels"`
	Variants  []VariantRecord `json:"variants"`
}
