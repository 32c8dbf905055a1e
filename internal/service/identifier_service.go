package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/identifier"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// IdentifierService answers external identifier uniqueness lookups
type IdentifierService struct {
	store   ProductStore
	lengths []int
	logger  *zap.Logger
}

// NewIdentifierService creates a new identifier service
func NewIdentifierService(store ProductStore, codeLengths []int) *IdentifierService {
	if len(codeLengths) == 0 {
		codeLengths = identifier.DefaultCodeLengths
	}
	return &IdentifierService{
		store:   store,
		lengths: codeLengths,
		logger:  util.GetLogger(),
	}
}

// CodeLengths returns the accepted code lengths.
func (s *IdentifierService) CodeLengths() []int {
	return s.lengths
}

// Exists reports whether a variant already carries id.
func (s *IdentifierService) Exists(ctx context.Context, id models.ExternalProductID) (bool, error) {
	ctx, span := util.StartSpan(ctx, "IdentifierService.Exists")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var exists bool
	exists, err = s.store.ExternalIDExists(ctx, id)
	if err != nil {
		util.IdentifierChecksTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if exists {
		util.IdentifierChecksTotal.WithLabelValues("taken").Inc()
	} else {
		util.IdentifierChecksTotal.WithLabelValues("free").Inc()
	}
	return exists, nil
}

// CheckResult is the answer to a direct uniqueness query.
type CheckResult struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Exists bool   `json:"exists"`
}

// Check validates the code format and looks it up.
func (s *IdentifierService) Check(ctx context.Context, codeType, value string) (*CheckResult, error) {
	id := models.ExternalProductID{Type: strings.ToUpper(strings.TrimSpace(codeType)), Value: strings.TrimSpace(value)}
	if !identifier.Checkable(id.Value, s.lengths) {
		return nil, fmt.Errorf("%w: code must be numeric with length in %v", models.ErrValidationFailed, s.lengths)
	}
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Type: id.Type, Value: id.Value, Exists: exists}, nil
}
