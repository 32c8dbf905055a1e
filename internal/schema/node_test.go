package schema

import (
	"testing"

	"catalog-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeValidateKinds(t *testing.T) {
	min := 1.0
	tests := []struct {
		name    string
		node    *Node
		doc     interface{}
		wantErr bool
	}{
		{"string ok", &Node{Kind: KindString}, "red", false},
		{"string wrong type", &Node{Kind: KindString}, 12.0, true},
		{"string enum miss", &Node{Kind: KindString, Enum: []string{"a", "b"}}, "c", true},
		{"string pattern", &Node{Kind: KindString, Pattern: `^#[0-9a-f]{6}$`}, "#00ff00", false},
		{"number ok", &Node{Kind: KindNumber, Min: &min}, 2.0, false},
		{"number below min", &Node{Kind: KindNumber, Min: &min}, 0.5, true},
		{"number wrong type", &Node{Kind: KindNumber}, "2", true},
		{"array max", &Node{Kind: KindArray, MaxItems: 1}, []interface{}{"a", "b"}, true},
		{"array unique", &Node{Kind: KindArray, Unique: true}, []string{"a", "a"}, true},
		{"array items", &Node{Kind: KindArray, Items: &Node{Kind: KindString}}, []interface{}{"a", 1.0}, true},
		{"object missing required", &Node{Kind: KindObject, Properties: []Property{
			{Name: "x", Required: true, Node: &Node{Kind: KindString}},
		}}, map[string]interface{}{}, true},
		{"object optional absent", &Node{Kind: KindObject, Properties: []Property{
			{Name: "x", Node: &Node{Kind: KindString}},
		}}, map[string]interface{}{}, false},
		{"unknown kind", &Node{Kind: "tuple"}, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate(tt.doc)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldErrorPath(t *testing.T) {
	err := EntryShape("color").Validate(map[string]interface{}{
		"displayName": "Red",
		"value":       "red",
		"hexCode":     "red",
	})
	require.Error(t, err)

	fe, ok := err.(*FieldError)
	require.True(t, ok)
	assert.Equal(t, "hexCode", fe.Path)
}

func TestDescribe(t *testing.T) {
	fields := Describe(EntryShape("size"))

	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"codes.EU", "codes.INT", "codes.UK", "codes.US", "displayName", "value"}, paths)
	assert.False(t, fields[0].Required)
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue("color", models.AttributeValue{DisplayName: "Teal", Value: "teal", HexCode: "#008080"}))
	assert.Error(t, ValidateValue("color", models.AttributeValue{DisplayName: "Teal", Value: "teal"}))
	assert.NoError(t, ValidateValue("weight", models.AttributeValue{DisplayName: "1 kg", Value: "1", Unit: "kg"}))
	assert.Error(t, ValidateValue("weight", models.AttributeValue{DisplayName: "1 kg", Value: "one", Unit: "kg"}))
	assert.Error(t, ValidateValue("weight", models.AttributeValue{DisplayName: "1 kg", Value: "1", Unit: "lb"}))
	assert.NoError(t, ValidateValue("footwear_size", models.AttributeValue{
		DisplayName: "UK 8", Value: "uk-8", Codes: map[string]string{"UK": "8", "EU": "42"},
	}))
}

func TestNormalize(t *testing.T) {
	v := Normalize(models.AttributeValue{DisplayName: "  Navy Blue "})
	assert.Equal(t, "Navy Blue", v.DisplayName)
	assert.Equal(t, "navy-blue", v.Value)

	v = Normalize(models.AttributeValue{DisplayName: "XL", Value: "xl-custom"})
	assert.Equal(t, "xl-custom", v.Value)
}

func TestDeclaredAs(t *testing.T) {
	shoes := &models.SubCategorySchema{Name: "Shoes", Attributes: []string{"size", "color"}}

	got, ok := DeclaredAs(shoes, "footwear_size", DefaultAliases)
	assert.True(t, ok)
	assert.Equal(t, "size", got)

	got, ok = DeclaredAs(shoes, "color", DefaultAliases)
	assert.True(t, ok)
	assert.Equal(t, "color", got)

	_, ok = DeclaredAs(shoes, "bra_size", DefaultAliases)
	assert.False(t, ok)
}
