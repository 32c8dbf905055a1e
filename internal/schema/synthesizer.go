package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"catalog-service/internal/models"
)

// MaxVaryingAttributes is the largest variation a product may declare.
const MaxVaryingAttributes = 2

// Catalog is the read side of the attribute catalog.
type Catalog interface {
	// FindSubCategory returns the global schema for name, or nil if none exists.
	FindSubCategory(ctx context.Context, name string) (*models.SubCategorySchema, error)
	// FindOptionSets returns every set matching attribute and brand for any of
	// genders, global or scoped to storeID.
	FindOptionSets(ctx context.Context, q OptionQuery) ([]models.AttributeOptionSet, error)
}

// OptionQuery selects option sets by exact key.
type OptionQuery struct {
	StoreID   string
	Attribute string
	Brand     string
	Genders   []string
}

// Request identifies the schema to synthesize.
type Request struct {
	SubCategory string `json:"ptype" form:"ptype"`
	Gender      string `json:"gender" form:"gender"`
	Brand       string `json:"brand" form:"brand"`
	StoreID     string `json:"-" form:"-"`
}

// Normalize applies the gender and brand defaults.
func (r Request) Normalize() Request {
	r.SubCategory = strings.TrimSpace(r.SubCategory)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Brand = strings.TrimSpace(r.Brand)
	if r.Gender == "" {
		r.Gender = models.DefaultGender
	}
	if r.Brand == "" {
		r.Brand = models.DefaultBrand
	}
	return r
}

// Attribute is the synthesized description of one required attribute: a
// free-entry shape plus the closed enumeration of known values.
type Attribute struct {
	Name         string                  `json:"name"`
	ResolvedAs   string                  `json:"resolvedAs"`
	OptionSetIDs []string                `json:"optionSetIds"`
	Editable     bool                    `json:"editable"`
	Entry        *Node                   `json:"entry"`
	Fields       []FieldDescriptor       `json:"fields"`
	Values       []models.AttributeValue `json:"values"`
}

// Accepts reports whether v is one of the known values or a valid free entry.
func (a *Attribute) Accepts(v models.AttributeValue) bool {
	for _, known := range a.Values {
		if v.ID != "" && known.ID == v.ID {
			return true
		}
	}
	return a.Entry.Validate(Document(a.Name, v)) == nil
}

// Schema is the synthesized, non-persisted shape description.
type Schema struct {
	SubCategory string      `json:"subCategory"`
	Gender      string      `json:"gender"`
	Brand       string      `json:"brand"`
	Required    []string    `json:"required"`
	Attributes  []Attribute `json:"attributes"`
	Variation   *Node       `json:"variation"`
}

// Attribute looks up a synthesized attribute by name.
func (s *Schema) Attribute(name string) (*Attribute, bool) {
	for i := range s.Attributes {
		if strings.EqualFold(s.Attributes[i].Name, name) {
			return &s.Attributes[i], true
		}
	}
	return nil, false
}

// ValidateVariation checks a variation selector against the schema.
func (s *Schema) ValidateVariation(varying []string) error {
	if err := s.Variation.Validate(varying); err != nil {
		return fmt.Errorf("%w: variation %v", models.ErrValidationFailed, err)
	}
	return nil
}

// Synthesizer builds schemas from the attribute catalog. It holds no state
// between calls.
type Synthesizer struct {
	catalog Catalog
	aliases map[string]map[string]string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithAliases replaces the alias table.
func WithAliases(aliases map[string]map[string]string) Option {
	return func(s *Synthesizer) {
		s.aliases = aliases
	}
}

// NewSynthesizer creates a synthesizer over catalog.
func NewSynthesizer(catalog Catalog, opts ...Option) *Synthesizer {
	s := &Synthesizer{catalog: catalog, aliases: DefaultAliases}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Aliases returns the alias table the synthesizer resolves attributes with.
func (s *Synthesizer) Aliases() map[string]map[string]string {
	return s.aliases
}

// Synthesize resolves the schema for req. It fails with models.ErrNotFound,
// models.ErrInactive or models.ErrNoSizeOptionsFound.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Schema, error) {
	req = req.Normalize()

	sub, err := s.catalog.FindSubCategory(ctx, req.SubCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-category: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, req.SubCategory)
	}
	if !sub.Active {
		return nil, fmt.Errorf("%w: %s", models.ErrInactive, req.SubCategory)
	}

	required := make([]string, 0, len(sub.Attributes))
	attrs := make([]Attribute, 0, len(sub.Attributes))
	for _, name := range sub.Attributes {
		attr, err := s.resolveAttribute(ctx, req, name)
		if err != nil {
			return nil, err
		}
		required = append(required, name)
		attrs = append(attrs, *attr)
	}

	return &Schema{
		SubCategory: sub.Name,
		Gender:      req.Gender,
		Brand:       req.Brand,
		Required:    required,
		Attributes:  attrs,
		Variation: &Node{
			Kind:     KindArray,
			Items:    &Node{Kind: KindString, Enum: append([]string(nil), required...)},
			MinItems: 0,
			MaxItems: MaxVaryingAttributes,
			Unique:   true,
		},
	}, nil
}

func (s *Synthesizer) resolveAttribute(ctx context.Context, req Request, name string) (*Attribute, error) {
	resolvedAs := name
	var sets []models.AttributeOptionSet

	if strings.EqualFold(name, SizeAttribute) {
		if alias, ok := s.aliases[strings.ToLower(req.SubCategory)][SizeAttribute]; ok {
			found, err := s.find(ctx, req, alias)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				sets, resolvedAs = found, alias
			}
		}
		if sets == nil {
			found, err := s.find(ctx, req, name)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("%w: %s", models.ErrNoSizeOptionsFound, req.SubCategory)
			}
			sets = found
		}
	} else {
		found, err := s.find(ctx, req, name)
		if err != nil {
			return nil, err
		}
		sets = found
	}

	entry := EntryShape(resolvedAs)
	attr := &Attribute{
		Name:         name,
		ResolvedAs:   resolvedAs,
		OptionSetIDs: []string{},
		Entry:        entry,
		Fields:       Describe(entry),
		Values:       []models.AttributeValue{},
	}

	sets = preferred(sets, req.Gender)
	for _, set := range sets {
		attr.OptionSetIDs = append(attr.OptionSetIDs, set.ID)
		attr.Editable = attr.Editable || set.Editable
		for _, v := range set.Values {
			if models.AttributeValues(attr.Values).HasDisplayName(v.DisplayName) {
				continue
			}
			attr.Values = append(attr.Values, v)
		}
	}
	return attr, nil
}

func (s *Synthesizer) find(ctx context.Context, req Request, attribute string) ([]models.AttributeOptionSet, error) {
	genders := []string{req.Gender}
	if req.Gender != models.DefaultGender {
		genders = append(genders, models.DefaultGender)
	}
	sets, err := s.catalog.FindOptionSets(ctx, OptionQuery{
		StoreID:   req.StoreID,
		Attribute: attribute,
		Brand:     req.Brand,
		Genders:   genders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load option sets for %s: %w", attribute, err)
	}

	// Guard against a catalog returning another store's sets.
	out := sets[:0:0]
	for _, set := range sets {
		if set.IsStoreScoped() && *set.StoreID != req.StoreID {
			continue
		}
		out = append(out, set)
	}
	return out, nil
}

// preferred keeps the sets of the most specific gender tier and orders
// store-scoped sets ahead of global ones.
func preferred(sets []models.AttributeOptionSet, gender string) []models.AttributeOptionSet {
	exact := make([]models.AttributeOptionSet, 0, len(sets))
	fallback := make([]models.AttributeOptionSet, 0, len(sets))
	for _, set := range sets {
		if set.Gender == gender {
			exact = append(exact, set)
		} else {
			fallback = append(fallback, set)
		}
	}
	tier := exact
	if len(tier) == 0 {
		tier = fallback
	}
	sort.SliceStable(tier, func(i, j int) bool {
		si, sj := tier[i].IsStoreScoped(), tier[j].IsStoreScoped()
		if si != sj {
			return si
		}
		return tier[i].ID < tier[j].ID
	})
	return tier
}
