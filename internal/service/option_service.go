package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/schema"
	"catalog-service/internal/scope"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	optionLockTTL      = 10 * time.Second
	optionLockAttempts = 5
	optionLockBackoff  = 50 * time.Millisecond
)

// OptionService adds values to attribute option sets
type OptionService struct {
	store     CatalogStore
	locker    Locker
	catalog   *CatalogService
	publisher Publisher
	logger    *zap.Logger
}

// NewOptionService creates a new option service. locker and publisher may
// be nil.
func NewOptionService(store CatalogStore, locker Locker, catalog *CatalogService, publisher Publisher) *OptionService {
	return &OptionService{
		store:     store,
		locker:    locker,
		catalog:   catalog,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ExtendRequest adds one value to an attribute of a sub-category
type ExtendRequest struct {
	SubCategory string                `json:"ptype" binding:"required"`
	Attribute   string                `json:"attribute" binding:"required"`
	Gender      string                `json:"gender"`
	Brand       string                `json:"brand"`
	Value       models.AttributeValue `json:"value"`
}

// ExtendResponse is the resulting option set
type ExtendResponse struct {
	OptionSet *models.AttributeOptionSet `json:"optionSet"`
	ValueID   string                     `json:"valueId"`
	Created   bool                       `json:"created"`
	Message   string                     `json:"message"`
}

// Extend appends req.Value to the matching option set, creating the set if
// none is linked to the sub-category yet.
func (s *OptionService) Extend(ctx context.Context, req *ExtendRequest) (*ExtendResponse, error) {
	ctx, span := util.StartSpan(ctx, "OptionService.Extend")
	var err error
	defer func() { util.EndSpan(span, err) }()

	resp, err := s.extend(ctx, req)
	if err != nil {
		util.OptionExtensionsTotal.WithLabelValues(extensionOutcome(err)).Inc()
		return nil, err
	}
	if resp.Created {
		util.OptionExtensionsTotal.WithLabelValues("created").Inc()
	} else {
		util.OptionExtensionsTotal.WithLabelValues("updated").Inc()
	}
	return resp, nil
}

func (s *OptionService) extend(ctx context.Context, req *ExtendRequest) (*ExtendResponse, error) {
	storeID := scope.Store(ctx)
	normalized := schema.Request{SubCategory: req.SubCategory, Gender: req.Gender, Brand: req.Brand}.Normalize()
	attribute := strings.TrimSpace(req.Attribute)

	sub, err := s.store.FindSubCategoryForStore(ctx, normalized.SubCategory, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-category: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, normalized.SubCategory)
	}
	if _, ok := schema.DeclaredAs(sub, attribute, s.catalog.Aliases()); !ok {
		return nil, fmt.Errorf("%w: %s is not an attribute of %s", models.ErrAttributeNotApplicable, attribute, sub.Name)
	}

	value := schema.Normalize(req.Value)
	if err := schema.ValidateValue(attribute, value); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
	}

	lock, err := s.acquire(ctx, fmt.Sprintf("option-set:%s:%s:%s:%s", sub.ID, strings.ToLower(attribute), normalized.Brand, normalized.Gender))
	if err != nil {
		return nil, err
	}
	defer s.release(lock)

	res, err := s.store.ExtendOptionSet(ctx, store.ExtendParams{
		SubCategory: sub,
		StoreID:     storeID,
		Attribute:   attribute,
		Brand:       normalized.Brand,
		Gender:      normalized.Gender,
		Value:       value,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Option set extended",
		zap.String("sub_category", sub.Name),
		zap.String("attribute", attribute),
		zap.String("store_id", storeID),
		zap.String("option_set_id", res.Set.ID),
		zap.Bool("created", res.Created))

	if err := s.catalog.Invalidate(ctx, sub.Name); err != nil {
		s.logger.Warn("Failed to invalidate schema cache", zap.String("sub_category", sub.Name), zap.Error(err))
	}
	s.publish(ctx, sub.Name, res)

	resp := &ExtendResponse{OptionSet: res.Set, ValueID: res.ValueID, Created: res.Created}
	if res.Created {
		resp.Message = "Option set created"
	} else {
		resp.Message = "Option set updated"
	}
	return resp, nil
}

// Get returns an option set by id.
func (s *OptionService) Get(ctx context.Context, id string) (*models.AttributeOptionSet, error) {
	ctx, span := util.StartSpan(ctx, "OptionService.Get")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var set *models.AttributeOptionSet
	set, err = s.store.GetOptionSet(ctx, id)
	return set, err
}

func (s *OptionService) acquire(ctx context.Context, key string) (*redisclient.Lock, error) {
	if s.locker == nil {
		return nil, nil
	}
	for attempt := 1; ; attempt++ {
		lock, err := s.locker.AcquireLock(ctx, key, optionLockTTL)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, redisclient.ErrLockHeld) || attempt == optionLockAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(optionLockBackoff * time.Duration(attempt)):
		}
	}
}

func (s *OptionService) release(lock *redisclient.Lock) {
	if s.locker == nil || lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.locker.ReleaseLock(ctx, lock); err != nil {
		s.logger.Warn("Failed to release option set lock", zap.Error(err))
	}
}

func (s *OptionService) publish(ctx context.Context, subCategory string, res *store.ExtendResult) {
	if s.publisher == nil {
		return
	}
	eventType := models.EventTypeOptionSetUpdated
	if res.Created {
		eventType = models.EventTypeOptionSetCreated
	}
	event := &models.OptionSetChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		OptionSetID: res.Set.ID,
		SubCategory: subCategory,
		Attribute:   res.Set.Attribute,
		StoreID:     res.Set.StoreID,
		ValueID:     res.ValueID,
	}
	if err := s.publisher.PublishOptionSetChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish option set event",
			zap.String("option_set_id", res.Set.ID),
			zap.Error(err))
	}
}

func extensionOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAttributeNotApplicable):
		return "not_applicable"
	case errors.Is(err, models.ErrNotEditable):
		return "not_editable"
	case errors.Is(err, models.ErrValidationFailed):
		return "invalid"
	case errors.Is(err, redisclient.ErrLockHeld):
		return "contended"
	}
	return "error"
}
