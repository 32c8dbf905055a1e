package schema

import (
	"strconv"
	"strings"

	"catalog-service/internal/models"

	"github.com/gosimple/slug"
)

// SizeAttribute is the attribute name subject to alias resolution.
const SizeAttribute = "size"

// WeightUnits accepted for weight values.
var WeightUnits = []string{"g", "kg", "ml", "l"}

// SizeSystems are the unit-system codes a size value may carry.
var SizeSystems = []string{"EU", "INT", "UK", "US"}

// DefaultAliases maps a sub-category (lowercased) to attribute synonyms.
var DefaultAliases = map[string]map[string]string{
	"footwear": {SizeAttribute: "footwear_size"},
	"shoes":    {SizeAttribute: "footwear_size"},
	"sandals":  {SizeAttribute: "footwear_size"},
	"bras":     {SizeAttribute: "bra_size"},
	"rings":    {SizeAttribute: "ring_size"},
}

// DeclaredAs returns the declared attribute of sub that attribute refers to,
// either directly or as the sub-category's alias for it.
func DeclaredAs(sub *models.SubCategorySchema, attribute string, aliases map[string]map[string]string) (string, bool) {
	if sub.HasAttribute(attribute) {
		return attribute, true
	}
	for declared, alias := range aliases[strings.ToLower(sub.Name)] {
		if strings.EqualFold(alias, attribute) && sub.HasAttribute(declared) {
			return declared, true
		}
	}
	return "", false
}

func isSizeLike(attribute string) bool {
	a := strings.ToLower(attribute)
	return a == SizeAttribute || strings.HasSuffix(a, "_"+SizeAttribute)
}

// EntryShape returns the free-entry shape for a value of attribute.
func EntryShape(attribute string) *Node {
	props := []Property{
		{Name: "displayName", Required: true, Node: &Node{Kind: KindString}},
		{Name: "value", Required: true, Node: &Node{Kind: KindString}},
	}

	zero := 0.0
	switch a := strings.ToLower(attribute); {
	case a == "color" || a == "colour":
		props = append(props, Property{
			Name: "hexCode", Required: true,
			Node: &Node{Kind: KindString, Pattern: `^#[0-9A-Fa-f]{6}$`},
		})
	case a == "weight" || a == "net_quantity":
		props[1] = Property{Name: "value", Required: true, Node: &Node{Kind: KindNumber, Min: &zero}}
		props = append(props, Property{
			Name: "unit", Required: true,
			Node: &Node{Kind: KindString, Enum: WeightUnits},
		})
	case isSizeLike(a):
		codes := make([]Property, 0, len(SizeSystems))
		for _, sys := range SizeSystems {
			codes = append(codes, Property{Name: sys, Node: &Node{Kind: KindString}})
		}
		props = append(props, Property{Name: "codes", Node: &Node{Kind: KindObject, Properties: codes}})
	}

	return &Node{Kind: KindObject, Properties: props}
}

// Document converts a value to the decoded form the attribute's shape
// validates. Numeric attributes carry their value as a number.
func Document(attribute string, v models.AttributeValue) map[string]interface{} {
	doc := map[string]interface{}{
		"displayName": v.DisplayName,
		"value":       v.Value,
	}
	if entry := EntryShape(attribute); len(entry.Properties) > 1 && entry.Properties[1].Node.Kind == KindNumber {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64); err == nil {
			doc["value"] = f
		}
	}
	if v.HexCode != "" {
		doc["hexCode"] = v.HexCode
	}
	if v.Unit != "" {
		doc["unit"] = v.Unit
	}
	if len(v.Codes) > 0 {
		codes := make(map[string]interface{}, len(v.Codes))
		for k, c := range v.Codes {
			codes[k] = c
		}
		doc["codes"] = codes
	}
	return doc
}

// Normalize fills a missing value from the display name.
func Normalize(v models.AttributeValue) models.AttributeValue {
	v.DisplayName = strings.TrimSpace(v.DisplayName)
	if strings.TrimSpace(v.Value) == "" {
		v.Value = slug.Make(v.DisplayName)
	}
	return v
}

// ValidateValue checks a free-entry value against the attribute's shape.
func ValidateValue(attribute string, v models.AttributeValue) error {
	return EntryShape(attribute).Validate(Document(attribute, v))
}
