package variant

import (
	"fmt"
	"sort"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/schema"
)

// DefaultKey identifies the single variant of a product that varies on nothing.
const DefaultKey = "default"

// Row is one variant combination.
type Row struct {
	Key        string                `json:"key"`
	Attributes models.AttributePairs `json:"attributes"`
	Custom     bool                  `json:"custom,omitempty"`
}

// Value returns the row's value for attribute.
func (r Row) Value(attribute string) (string, bool) {
	for _, p := range r.Attributes {
		if strings.EqualFold(p.Name, attribute) {
			return p.Value, true
		}
	}
	return "", false
}

// Selection is the operator's choice of varying attributes and the values
// picked for each, in pick order.
type Selection struct {
	Varying []string            `json:"varying"`
	Values  map[string][]string `json:"values"`
}

// Result of a build. SchemaStale is set when every varying attribute lost
// all of its values, in which case the caller must re-request the schema.
type Result struct {
	Rows        []Row `json:"rows"`
	SchemaStale bool  `json:"schemaStale"`
}

// Key is the canonical identity of an attribute tuple, independent of the
// order attributes were listed in.
func Key(pairs []models.AttributePair) string {
	if len(pairs) == 0 {
		return DefaultKey
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, strings.ToLower(strings.TrimSpace(p.Name))+"="+strings.TrimSpace(p.Value))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Build expands the selection into the Cartesian product of picked values.
// The first varying attribute is the outermost loop.
func Build(sel Selection) (Result, error) {
	if len(sel.Varying) > schema.MaxVaryingAttributes {
		return Result{}, fmt.Errorf("%w: at most %d attributes may vary", models.ErrValidationFailed, schema.MaxVaryingAttributes)
	}
	seen := make(map[string]bool, len(sel.Varying))
	for _, attr := range sel.Varying {
		a := strings.ToLower(strings.TrimSpace(attr))
		if a == "" || seen[a] {
			return Result{}, fmt.Errorf("%w: invalid varying attribute %q", models.ErrValidationFailed, attr)
		}
		seen[a] = true
	}

	if len(sel.Varying) == 0 {
		return Result{Rows: []Row{{Key: DefaultKey, Attributes: models.AttributePairs{}}}}, nil
	}

	picked := make([][]string, len(sel.Varying))
	empty := 0
	for i, attr := range sel.Varying {
		picked[i] = dedupe(sel.Values[attr])
		if len(picked[i]) == 0 {
			empty++
		}
	}
	if empty == len(sel.Varying) {
		return Result{Rows: []Row{}, SchemaStale: true}, nil
	}
	if empty > 0 {
		return Result{Rows: []Row{}}, nil
	}

	tuples := [][]models.AttributePair{{}}
	for i, attr := range sel.Varying {
		next := make([][]models.AttributePair, 0, len(tuples)*len(picked[i]))
		for _, prefix := range tuples {
			for _, v := range picked[i] {
				tuple := make([]models.AttributePair, len(prefix), len(prefix)+1)
				copy(tuple, prefix)
				next = append(next, append(tuple, models.AttributePair{Name: attr, Value: v}))
			}
		}
		tuples = next
	}

	rows := make([]Row, 0, len(tuples))
	for _, tuple := range tuples {
		rows = append(rows, Row{Key: Key(tuple), Attributes: tuple})
	}
	return Result{Rows: rows}, nil
}

// Custom creates an ad-hoc row outside the Cartesian expansion. It fails
// with models.ErrDuplicateVariant if the tuple already exists.
func Custom(pairs []models.AttributePair, existing []Row) (Row, error) {
	clean := make(models.AttributePairs, 0, len(pairs))
	for _, p := range pairs {
		name, value := strings.TrimSpace(p.Name), strings.TrimSpace(p.Value)
		if name == "" || value == "" {
			return Row{}, fmt.Errorf("%w: attribute name and value are required", models.ErrValidationFailed)
		}
		clean = append(clean, models.AttributePair{Name: name, Value: value})
	}
	row := Row{Key: Key(clean), Attributes: clean, Custom: true}
	for _, r := range existing {
		if r.Key == row.Key {
			return Row{}, fmt.Errorf("%w: %s", models.ErrDuplicateVariant, row.Key)
		}
	}
	return row, nil
}

// Group is the set of rows sharing one value of the grouping attribute.
type Group struct {
	Value string   `json:"value"`
	Keys  []string `json:"keys"`
}

// GroupBy partitions rows by attribute, in order of first appearance. Rows
// without the attribute fall into the group with an empty value.
func GroupBy(rows []Row, attribute string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, r := range rows {
		v, _ := r.Value(attribute)
		i, ok := index[v]
		if !ok {
			i = len(groups)
			index[v] = i
			groups = append(groups, Group{Value: v})
		}
		groups[i].Keys = append(groups[i].Keys, r.Key)
	}
	return groups
}

func dedupe(vals []string) []string {
	out := make([]string, 0, len(vals))
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
