package models

import "errors"

// Schema synthesis
var (
	ErrNotFound           = errors.New("sub-category not found")
	ErrInactive           = errors.New("sub-category is inactive")
	ErrNoSizeOptionsFound = errors.New("no size options found")
)

// Attribute option extension
var (
	ErrAttributeNotApplicable = errors.New("attribute is not applicable to this sub-category")
	ErrNotEditable            = errors.New("option set is not editable")
)

// Variant editing
var (
	ErrValidationFailed    = errors.New("validation failed")
	ErrDuplicateIdentifier = errors.New("a product with this identifier already exists")
	ErrVariantNotFound     = errors.New("variant not found")
	ErrDuplicateVariant    = errors.New("variant with these attribute values already exists")
	ErrReadOnlyField       = errors.New("field is not editable in the current mode")
	ErrSessionNotFound     = errors.New("editing session not found")
)
