package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind is the closed set of shapes an attribute field can take.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Property is a named member of an object node.
type Property struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Node     *Node  `json:"node"`
}

// Node describes one field. Only the members relevant to Kind are set.
type Node struct {
	Kind       Kind       `json:"kind"`
	Enum       []string   `json:"enum,omitempty"`
	Pattern    string     `json:"pattern,omitempty"`
	Min        *float64   `json:"min,omitempty"`
	Properties []Property `json:"properties,omitempty"`
	Items      *Node      `json:"items,omitempty"`
	MinItems   int        `json:"minItems,omitempty"`
	MaxItems   int        `json:"maxItems,omitempty"`
	Unique     bool       `json:"uniqueItems,omitempty"`
}

// FieldError reports a validation failure at a path such as "codes.UK".
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks a decoded document (string, float64, map[string]interface{},
// []interface{}) against the node.
func (n *Node) Validate(doc interface{}) error {
	return n.validate("", doc)
}

func (n *Node) validate(path string, doc interface{}) error {
	switch n.Kind {
	case KindString:
		return n.validateString(path, doc)
	case KindNumber:
		return n.validateNumber(path, doc)
	case KindObject:
		return n.validateObject(path, doc)
	case KindArray:
		return n.validateArray(path, doc)
	}
	return &FieldError{Path: path, Message: fmt.Sprintf("unknown kind %q", n.Kind)}
}

func (n *Node) validateString(path string, doc interface{}) error {
	s, ok := doc.(string)
	if !ok {
		return &FieldError{Path: path, Message: "must be a string"}
	}
	if len(n.Enum) > 0 && !contains(n.Enum, s) {
		return &FieldError{Path: path, Message: fmt.Sprintf("must be one of %s", strings.Join(n.Enum, ", "))}
	}
	if n.Pattern != "" {
		re, err := regexp.Compile(n.Pattern)
		if err != nil {
			return &FieldError{Path: path, Message: "invalid pattern"}
		}
		if !re.MatchString(s) {
			return &FieldError{Path: path, Message: fmt.Sprintf("must match %s", n.Pattern)}
		}
	}
	return nil
}

func (n *Node) validateNumber(path string, doc interface{}) error {
	var f float64
	switch v := doc.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return &FieldError{Path: path, Message: "must be numeric"}
	}
	if n.Min != nil && f < *n.Min {
		return &FieldError{Path: path, Message: fmt.Sprintf("must be at least %g", *n.Min)}
	}
	return nil
}

func (n *Node) validateObject(path string, doc interface{}) error {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return &FieldError{Path: path, Message: "must be an object"}
	}
	for _, p := range n.Properties {
		child := join(path, p.Name)
		val, present := obj[p.Name]
		if !present || val == nil || val == "" {
			if p.Required {
				return &FieldError{Path: child, Message: "is required"}
			}
			continue
		}
		if err := p.Node.validate(child, val); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) validateArray(path string, doc interface{}) error {
	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return &FieldError{Path: path, Message: "must be an array"}
	}
	if len(items) < n.MinItems {
		return &FieldError{Path: path, Message: fmt.Sprintf("must have at least %d items", n.MinItems)}
	}
	if n.MaxItems > 0 && len(items) > n.MaxItems {
		return &FieldError{Path: path, Message: fmt.Sprintf("must have at most %d items", n.MaxItems)}
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if n.Unique {
			key := fmt.Sprint(item)
			if seen[key] {
				return &FieldError{Path: fmt.Sprintf("%s[%d]", path, i), Message: "duplicate item"}
			}
			seen[key] = true
		}
		if n.Items != nil {
			if err := n.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Visitor receives every node of a tree in depth-first order.
type Visitor interface {
	VisitString(path string, required bool, n *Node)
	VisitNumber(path string, required bool, n *Node)
	VisitObject(path string, required bool, n *Node)
	VisitArray(path string, required bool, n *Node)
}

// Walk dispatches v over n and its children.
func Walk(n *Node, v Visitor) {
	walk("", true, n, v)
}

func walk(path string, required bool, n *Node, v Visitor) {
	switch n.Kind {
	case KindString:
		v.VisitString(path, required, n)
	case KindNumber:
		v.VisitNumber(path, required, n)
	case KindObject:
		v.VisitObject(path, required, n)
		for _, p := range n.Properties {
			walk(join(path, p.Name), p.Required, p.Node, v)
		}
	case KindArray:
		v.VisitArray(path, required, n)
		if n.Items != nil {
			walk(path+"[]", required, n.Items, v)
		}
	}
}

// FieldDescriptor is a flattened leaf of a node tree, used by editors to
// render inputs.
type FieldDescriptor struct {
	Path     string   `json:"path"`
	Kind     Kind     `json:"kind"`
	Required bool     `json:"required"`
	Enum     []string `json:"enum,omitempty"`
}

type describer struct {
	fields []FieldDescriptor
}

func (d *describer) VisitString(path string, required bool, n *Node) {
	d.fields = append(d.fields, FieldDescriptor{Path: path, Kind: KindString, Required: required, Enum: n.Enum})
}

func (d *describer) VisitNumber(path string, required bool, n *Node) {
	d.fields = append(d.fields, FieldDescriptor{Path: path, Kind: KindNumber, Required: required})
}

func (d *describer) VisitObject(string, bool, *Node) {}

func (d *describer) VisitArray(string, bool, *Node) {}

// Describe flattens the leaves of n, sorted by path.
func Describe(n *Node) []FieldDescriptor {
	d := &describer{}
	Walk(n, d)
	sort.SliceStable(d.fields, func(i, j int) bool { return d.fields[i].Path < d.fields[j].Path })
	return d.fields
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
