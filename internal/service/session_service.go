package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"catalog-service/internal/channel"
	"catalog-service/internal/identifier"
	"catalog-service/internal/models"
	"catalog-service/internal/schema"
	"catalog-service/internal/scope"
	"catalog-service/internal/util"
	"catalog-service/internal/variant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Action types accepted by SessionService.Apply.
const (
	ActionSetPricing         = "set_pricing"
	ActionSetProductQuantity = "set_product_quantity"
	ActionApplyMatrix        = "apply_matrix"
	ActionAddVariant         = "add_variant"
	ActionRemoveVariant      = "remove_variant"
	ActionEnableChannel      = "enable_channel"
	ActionDisableChannel     = "disable_channel"
	ActionSetSamePrice       = "set_same_price"
	ActionSetPolicy          = "set_policy"
	ActionSetTotalQuantity   = "set_total_quantity"
	ActionSetChannelQuantity = "set_channel_quantity"
	ActionSetChannelPrice    = "set_channel_price"
	ActionSetChannelMRP      = "set_channel_mrp"
	ActionSetExternalID      = "set_external_id"
	ActionAttachAssets       = "attach_assets"
	ActionDetachAsset        = "detach_asset"
	ActionMarkBackView       = "mark_back_view"
)

// SessionConfig holds the editor defaults.
type SessionConfig struct {
	TTL             time.Duration
	IdentifierDelay time.Duration
	CodeLengths     []int
	MinAssets       int
	DefaultPolicy   models.InventoryPolicy
	Apportion       channel.ApportionMode
}

// Session is one product being edited. The engine owns the variant state;
// the validator feeds uniqueness results back into it.
type Session struct {
	ID        string
	StoreID   string
	ProductID string
	request   schema.Request
	engine    *channel.Engine
	validator *identifier.Validator

	// edit serializes actions and submit. Taken before mu.
	edit sync.Mutex

	mu        sync.Mutex
	schema    *schema.Schema
	persisted bool
	expiresAt time.Time
}

func (s *Session) currentSchema() *schema.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

func (s *Session) isPersisted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

// InvalidSessionError is returned when a session with errors is submitted.
type InvalidSessionError struct {
	Errors channel.Errors
}

func (e *InvalidSessionError) Error() string {
	return fmt.Sprintf("%s: channel data has errors", models.ErrValidationFailed)
}

func (e *InvalidSessionError) Unwrap() error {
	return models.ErrValidationFailed
}

// SessionService manages in-memory variant editing sessions
type SessionService struct {
	catalog   *CatalogService
	products  ProductStore
	assets    AssetResolver
	lookup    identifier.Lookup
	publisher Publisher
	cfg       SessionConfig
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a new session service. assets and publisher
// may be nil.
func NewSessionService(
	catalog *CatalogService,
	products ProductStore,
	assets AssetResolver,
	lookup identifier.Lookup,
	publisher Publisher,
	cfg SessionConfig,
) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = models.PolicyUnified
	}
	return &SessionService{
		catalog:   catalog,
		products:  products,
		assets:    assets,
		lookup:    lookup,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// CreateSessionRequest opens an editing session for one product
type CreateSessionRequest struct {
	SubCategory string   `json:"ptype" binding:"required"`
	Gender      string   `json:"gender"`
	Brand       string   `json:"brand"`
	ProductID   string   `json:"productId"`
	Policy      string   `json:"policy"`
	Channels    []string `json:"channels"`
	SamePrice   bool     `json:"samePrice"`
}

// ActionRequest is one discrete edit. Only the fields the action needs are
// read.
type ActionRequest struct {
	Type       string                    `json:"type" binding:"required"`
	Key        string                    `json:"key"`
	Channel    string                    `json:"channel"`
	Price      *decimal.Decimal          `json:"price"`
	MRP        *decimal.Decimal          `json:"mrp"`
	Quantity   *int                      `json:"quantity"`
	Enabled    *bool                     `json:"enabled"`
	Policy     string                    `json:"policy"`
	Varying    []string                  `json:"varying"`
	Values     map[string][]string       `json:"values"`
	Attributes []models.AttributePair    `json:"attributes"`
	ExternalID *models.ExternalProductID `json:"externalId"`
	AssetIDs   []string                  `json:"assetIds"`
	AssetID    string                    `json:"assetId"`
}

// SessionView is the snapshot returned after every call.
type SessionView struct {
	ID            string                 `json:"id"`
	ProductID     string                 `json:"productId"`
	SubCategory   string                 `json:"subCategory"`
	Persisted     bool                   `json:"persisted"`
	State         channel.State          `json:"state"`
	Errors        channel.Errors         `json:"errors"`
	Valid         bool                   `json:"valid"`
	PendingChecks int                    `json:"pendingChecks"`
	SchemaStale   bool                   `json:"schemaStale,omitempty"`
	Groups        []channel.GroupSummary `json:"groups,omitempty"`
	ExpiresAt     time.Time              `json:"expiresAt"`
}

// SubmitResult maps variant keys to their persisted ids.
type SubmitResult struct {
	ProductID string            `json:"productId"`
	Variants  map[string]string `json:"variants"`
}

// Create opens a session after synthesizing the sub-category's schema. With
// a ProductID the saved product of the current store is reopened with its
// variants, policy and channels, and its identifiers are no longer checked.
func (s *SessionService) Create(ctx context.Context, req *CreateSessionRequest) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Create")
	var err error
	defer func() { util.EndSpan(span, err) }()

	storeID := scope.Store(ctx)
	schemaReq := schema.Request{
		SubCategory: req.SubCategory,
		Gender:      req.Gender,
		Brand:       req.Brand,
		StoreID:     storeID,
	}.Normalize()

	var sc *schema.Schema
	sc, err = s.catalog.Schema(ctx, schemaReq)
	if err != nil {
		return nil, err
	}

	policy := s.cfg.DefaultPolicy
	if req.Policy != "" {
		if policy, err = models.ParsePolicy(req.Policy); err != nil {
			err = fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
			return nil, err
		}
	}
	var channels []models.Channel
	channels, err = parseChannels(req.Channels)
	if err != nil {
		return nil, err
	}

	var saved *models.ProductGraph
	if req.ProductID != "" {
		saved, err = s.products.GetProductGraph(ctx, storeID, req.ProductID)
		if err != nil {
			return nil, err
		}
	}

	sess := &Session{
		ID:        uuid.New().String(),
		StoreID:   storeID,
		ProductID: req.ProductID,
		request:   schemaReq,
		schema:    sc,
		persisted: saved != nil,
		expiresAt: s.now().Add(s.cfg.TTL),
	}
	if saved != nil {
		sess.engine = channel.Restore(s.restoreState(ctx, saved))
	} else {
		sess.ProductID = uuid.New().String()
		sess.engine = channel.NewEngine(channel.Options{
			Policy:    policy,
			Apportion: s.cfg.Apportion,
			MinAssets: s.cfg.MinAssets,
			Channels:  channels,
		})
	}
	if req.SamePrice {
		_ = sess.engine.SetSamePrice(true)
	}
	sess.validator = identifier.NewValidator(s.lookup, identifier.Config{
		Delay:       s.cfg.IdentifierDelay,
		CodeLengths: s.cfg.CodeLengths,
	}, s.identifierResultHandler(sess), s.logger)
	if sess.persisted {
		sess.validator.Freeze()
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	util.EditingSessionsActive.Inc()

	s.logger.Info("Editing session opened",
		zap.String("session_id", sess.ID),
		zap.String("product_id", sess.ProductID),
		zap.String("sub_category", schemaReq.SubCategory),
		zap.String("store_id", storeID),
		zap.Bool("reopened", saved != nil))
	return s.view(sess, ""), nil
}

// restoreState rebuilds the editor state of a saved product.
func (s *SessionService) restoreState(ctx context.Context, g *models.ProductGraph) channel.State {
	st := channel.State{
		Policy:    g.Policy,
		Apportion: s.cfg.Apportion,
		MinAssets: s.cfg.MinAssets,
		Channels:  append([]models.Channel(nil), g.Channels...),
		Variants:  make([]channel.Variant, 0, len(g.Variants)),
	}
	if st.Policy == "" {
		st.Policy = s.cfg.DefaultPolicy
	}
	known := s.savedAssets(ctx, g)

	for _, rec := range g.Variants {
		v := channel.Variant{
			Key:        rec.Variant.TupleKey,
			ID:         rec.Variant.ID,
			Attributes: rec.Variant.Attributes,
			ExternalID: models.ExternalProductID{
				Type:  rec.Variant.ExternalIDType,
				Value: rec.Variant.ExternalIDValue,
			},
			TotalQuantity: rec.Variant.TotalQuantity,
			Entries:       make([]channel.Entry, 0, len(rec.Entries)),
			Assets:        make([]channel.Asset, 0, len(rec.Assets)),
		}

		sum := 0
		for _, e := range rec.Entries {
			price, qty := e.Price, e.Quantity
			entry := channel.Entry{Channel: e.Channel, CellPrice: &price, Quantity: &qty}
			if !e.MRP.IsZero() {
				mrp := e.MRP
				entry.MRP = &mrp
			}
			v.Entries = append(v.Entries, entry)
			sum += qty
		}
		if st.Policy == models.PolicyUnified && v.TotalQuantity == nil && len(rec.Entries) > 0 {
			v.TotalQuantity = &sum
		}

		for _, link := range rec.Assets {
			a := known[link.AssetID]
			a.ID, a.BackView = link.AssetID, link.BackView
			v.Assets = append(v.Assets, a)
		}
		st.Variants = append(st.Variants, v)
	}
	return st
}

// savedAssets resolves the assets linked to g. Assets that no longer resolve
// keep their link with only the id.
func (s *SessionService) savedAssets(ctx context.Context, g *models.ProductGraph) map[string]channel.Asset {
	out := make(map[string]channel.Asset)
	if s.assets == nil {
		return out
	}
	var ids []string
	for _, rec := range g.Variants {
		for _, link := range rec.Assets {
			ids = append(ids, link.AssetID)
		}
	}
	if len(ids) == 0 {
		return out
	}

	res, err := s.assets.Resolve(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve saved assets",
			zap.String("product_id", g.ProductID),
			zap.Error(err))
		return out
	}
	for _, a := range res.Assets {
		out[a.ID] = channel.Asset{ID: a.ID, URL: a.URL, Kind: a.Kind}
	}
	return out
}

func (s *SessionService) identifierResultHandler(sess *Session) func(identifier.Result) {
	return func(r identifier.Result) {
		if r.Err != nil {
			return
		}
		if err := sess.engine.ApplyIdentifierResult(r.Key, r.ID.Value, r.Taken); err != nil {
			s.logger.Debug("Dropping identifier result for removed variant",
				zap.String("session_id", sess.ID),
				zap.String("key", r.Key))
		}
	}
}

// Get returns the session view, optionally grouped by an attribute.
func (s *SessionService) Get(ctx context.Context, id, groupBy string) (*SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.view(sess, groupBy), nil
}

// Apply runs one action against the session's engine.
func (s *SessionService) Apply(ctx context.Context, id string, req *ActionRequest) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Apply")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var sess *Session
	sess, err = s.get(id)
	if err != nil {
		return nil, err
	}
	ctx = scope.WithStore(ctx, sess.StoreID)

	sess.edit.Lock()
	defer sess.edit.Unlock()

	var stale bool
	stale, err = s.apply(ctx, sess, req)
	if err != nil {
		return nil, err
	}

	v := s.view(sess, "")
	v.SchemaStale = stale
	return v, nil
}

func (s *SessionService) apply(ctx context.Context, sess *Session, req *ActionRequest) (bool, error) {
	e := sess.engine

	switch req.Type {
	case ActionSetPricing:
		return false, e.SetPricing(req.Price, req.MRP)

	case ActionSetProductQuantity:
		return false, e.SetProductQuantity(req.Quantity)

	case ActionApplyMatrix:
		return s.applyMatrix(ctx, sess, variant.Selection{Varying: req.Varying, Values: req.Values})

	case ActionAddVariant:
		if err := checkAttributes(sess.currentSchema(), req.Attributes); err != nil {
			return false, err
		}
		var extID models.ExternalProductID
		if req.ExternalID != nil {
			extID = normalizeExternalID(*req.ExternalID)
		}
		assets, err := s.resolveAssets(ctx, req.AssetIDs)
		if err != nil {
			return false, err
		}
		key, err := e.AddVariant(req.Attributes, extID, assets)
		if err != nil {
			return false, err
		}
		if extID.Value != "" && !sess.isPersisted() {
			sess.validator.Schedule(key, extID)
		}
		return false, nil

	case ActionRemoveVariant:
		if err := e.RemoveVariant(req.Key); err != nil {
			return false, err
		}
		sess.validator.Cancel(req.Key)
		return false, nil

	case ActionEnableChannel, ActionDisableChannel:
		ch, err := models.ParseChannel(req.Channel)
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
		}
		if req.Type == ActionEnableChannel {
			return false, e.EnableChannel(ch)
		}
		return false, e.DisableChannel(ch)

	case ActionSetSamePrice:
		if req.Enabled == nil {
			return false, fmt.Errorf("%w: enabled is required", models.ErrValidationFailed)
		}
		return false, e.SetSamePrice(*req.Enabled)

	case ActionSetPolicy:
		p, err := models.ParsePolicy(req.Policy)
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
		}
		return false, e.SetPolicy(p)

	case ActionSetTotalQuantity:
		return false, e.SetTotalQuantity(req.Key, req.Quantity)

	case ActionSetChannelQuantity, ActionSetChannelPrice, ActionSetChannelMRP:
		ch, err := models.ParseChannel(req.Channel)
		if err != nil {
			return false, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
		}
		switch req.Type {
		case ActionSetChannelQuantity:
			return false, e.SetChannelQuantity(req.Key, ch, req.Quantity)
		case ActionSetChannelPrice:
			return false, e.SetChannelPrice(req.Key, ch, req.Price)
		}
		return false, e.SetChannelMRP(req.Key, ch, req.MRP)

	case ActionSetExternalID:
		if sess.isPersisted() {
			return false, fmt.Errorf("%w: identifiers of a saved product cannot change", models.ErrReadOnlyField)
		}
		if req.ExternalID == nil {
			return false, fmt.Errorf("%w: externalId is required", models.ErrValidationFailed)
		}
		extID := normalizeExternalID(*req.ExternalID)
		if err := e.SetExternalID(req.Key, extID); err != nil {
			return false, err
		}
		sess.validator.Schedule(req.Key, extID)
		return false, nil

	case ActionAttachAssets:
		assets, err := s.resolveAssets(ctx, req.AssetIDs)
		if err != nil {
			return false, err
		}
		return false, e.AttachAssets(req.Key, assets...)

	case ActionDetachAsset:
		return false, e.DetachAsset(req.Key, req.AssetID)

	case ActionMarkBackView:
		return false, e.MarkBackView(req.Key, req.AssetID)
	}

	return false, fmt.Errorf("%w: unknown action %q", models.ErrValidationFailed, req.Type)
}

// applyMatrix expands the selection into rows. When every value was
// cleared the session's schema is re-synthesized.
func (s *SessionService) applyMatrix(ctx context.Context, sess *Session, sel variant.Selection) (bool, error) {
	if err := sess.currentSchema().ValidateVariation(sel.Varying); err != nil {
		return false, err
	}
	res, err := sess.engine.ApplyMatrix(sel)
	if err != nil {
		return false, err
	}
	if !res.SchemaStale {
		return false, nil
	}

	if err := s.catalog.Invalidate(ctx, sess.request.SubCategory); err != nil {
		s.logger.Warn("Failed to invalidate stale schema", zap.Error(err))
	}
	sc, err := s.catalog.Schema(ctx, sess.request)
	if err != nil {
		return true, err
	}
	sess.mu.Lock()
	sess.schema = sc
	sess.mu.Unlock()
	return true, nil
}

func (s *SessionService) resolveAssets(ctx context.Context, ids []string) ([]channel.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if s.assets == nil {
		out := make([]channel.Asset, 0, len(ids))
		for _, id := range ids {
			out = append(out, channel.Asset{ID: id})
		}
		return out, nil
	}

	res, err := s.assets.Resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assets: %w", err)
	}
	if len(res.Missing) > 0 {
		return nil, fmt.Errorf("%w: unknown assets %s", models.ErrValidationFailed, strings.Join(res.Missing, ", "))
	}
	out := make([]channel.Asset, 0, len(res.Assets))
	for _, a := range res.Assets {
		out = append(out, channel.Asset{ID: a.ID, URL: a.URL, Kind: a.Kind})
	}
	return out, nil
}

// Submit persists the session's product graph. The session must have no
// errors and every new identifier must be unused.
func (s *SessionService) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	ctx, span := util.StartSpan(ctx, "SessionService.Submit")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var sess *Session
	sess, err = s.get(id)
	if err != nil {
		return nil, err
	}

	sess.edit.Lock()
	defer sess.edit.Unlock()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	ctx = scope.WithStore(ctx, sess.StoreID)

	snap := sess.engine.Snapshot()
	if len(snap.Variants) == 0 {
		err = fmt.Errorf("%w: product has no variants", models.ErrValidationFailed)
		return nil, err
	}
	if errs := sess.engine.Errors(); !errs.Valid() {
		err = &InvalidSessionError{Errors: errs}
		return nil, err
	}
	if err = s.checkIdentifiers(ctx, sess, snap); err != nil {
		return nil, err
	}

	// Identifier results can still arrive; only the state Finalize
	// validated is saved.
	snap, errs := sess.engine.Finalize(func() string { return uuid.New().String() })
	if errs != nil {
		err = &InvalidSessionError{Errors: errs}
		return nil, err
	}
	graph := buildGraph(sess, snap)

	if err = s.products.SaveProductGraph(ctx, graph); err != nil {
		err = fmt.Errorf("failed to save product graph: %w", err)
		return nil, err
	}

	sess.persisted = true
	sess.validator.Freeze()
	util.VariantGraphsSavedTotal.Inc()
	util.VariantsSavedTotal.Add(float64(len(graph.Variants)))

	s.logger.Info("Product variants saved",
		zap.String("session_id", sess.ID),
		zap.String("product_id", graph.ProductID),
		zap.Int("variants", len(graph.Variants)))

	if s.publisher != nil {
		event := &models.ProductVariantsSavedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeProductVariantsSaved,
				Timestamp: time.Now(),
			},
			ProductID:    graph.ProductID,
			StoreID:      graph.StoreID,
			VariantCount: len(graph.Variants),
			Channels:     graph.Channels,
		}
		if perr := s.publisher.PublishProductVariantsSaved(ctx, event); perr != nil {
			s.logger.Error("Failed to publish variants saved event",
				zap.String("product_id", graph.ProductID),
				zap.Error(perr))
		}
	}

	result := &SubmitResult{ProductID: graph.ProductID, Variants: make(map[string]string, len(snap.Variants))}
	for _, v := range snap.Variants {
		result.Variants[v.Key] = v.ID
	}
	return result, nil
}

// checkIdentifiers runs a final uniqueness check for variants that have
// not been saved yet, including duplicates inside the product itself.
func (s *SessionService) checkIdentifiers(ctx context.Context, sess *Session, snap channel.State) error {
	seen := make(map[models.ExternalProductID]string)
	for _, v := range snap.Variants {
		if v.ExternalID.Value == "" {
			continue
		}
		if other, ok := seen[v.ExternalID]; ok {
			return fmt.Errorf("%w: %s is used by %s and %s", models.ErrDuplicateIdentifier, v.ExternalID.Value, other, v.Key)
		}
		seen[v.ExternalID] = v.Key

		if v.ID != "" || s.lookup == nil {
			continue
		}
		taken, err := s.lookup.Exists(ctx, v.ExternalID)
		if err != nil {
			return fmt.Errorf("failed to check identifier %s: %w", v.ExternalID.Value, err)
		}
		if taken {
			_ = sess.engine.ApplyIdentifierResult(v.Key, v.ExternalID.Value, true)
			return fmt.Errorf("%w: %s", models.ErrDuplicateIdentifier, v.ExternalID.Value)
		}
	}
	return nil
}

func buildGraph(sess *Session, snap channel.State) *models.ProductGraph {
	graph := &models.ProductGraph{
		ProductID: sess.ProductID,
		StoreID:   sess.StoreID,
		Policy:    snap.Policy,
		Channels:  snap.Channels,
		Variants:  make([]models.VariantRecord, 0, len(snap.Variants)),
	}

	for _, v := range snap.Variants {
		rec := models.VariantRecord{
			Variant: models.Variant{
				ID:              v.ID,
				ProductID:       sess.ProductID,
				TupleKey:        v.Key,
				Attributes:      v.Attributes,
				ExternalIDType:  v.ExternalID.Type,
				ExternalIDValue: v.ExternalID.Value,
			},
			Entries: make([]models.ChannelEntry, 0, len(v.Entries)),
			Assets:  make([]models.VariantAsset, 0, len(v.Assets)),
		}
		for _, e := range v.Entries {
			entry := models.ChannelEntry{VariantID: v.ID, Channel: e.Channel}
			if e.Price != nil {
				entry.Price = *e.Price
			}
			if e.Quantity != nil {
				entry.Quantity = *e.Quantity
			}
			switch {
			case e.MRP != nil:
				entry.MRP = *e.MRP
			case snap.MRP != nil:
				entry.MRP = *snap.MRP
			}
			rec.Entries = append(rec.Entries, entry)
		}
		if snap.Policy == models.PolicyUnified && v.TotalQuantity != nil {
			total := *v.TotalQuantity
			rec.Variant.TotalQuantity = &total
		}
		for i, a := range v.Assets {
			rec.Assets = append(rec.Assets, models.VariantAsset{
				VariantID: v.ID,
				AssetID:   a.ID,
				Position:  i,
				BackView:  a.BackView,
			})
		}
		graph.Variants = append(graph.Variants, rec)
	}
	return graph
}

// Close discards a session and cancels its pending checks.
func (s *SessionService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	sess.validator.CancelAll()
	util.EditingSessionsActive.Dec()
	return nil
}

// Sweep closes sessions idle past their TTL and returns how many it closed.
func (s *SessionService) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		sess.mu.Lock()
		dead := now.After(sess.expiresAt)
		sess.mu.Unlock()
		if dead {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.validator.CancelAll()
		util.EditingSessionsActive.Dec()
	}
	if len(expired) > 0 {
		s.logger.Info("Expired editing sessions closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// RunSweeper sweeps expired sessions every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *SessionService) get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	sess.expiresAt = s.now().Add(s.cfg.TTL)
	sess.mu.Unlock()
	return sess, nil
}

func (s *SessionService) view(sess *Session, groupBy string) *SessionView {
	errs := sess.engine.Errors()
	v := &SessionView{
		ID:            sess.ID,
		ProductID:     sess.ProductID,
		SubCategory:   sess.request.SubCategory,
		State:         sess.engine.Snapshot(),
		Errors:        errs,
		Valid:         errs.Valid(),
		PendingChecks: sess.validator.Pending(),
	}
	sess.mu.Lock()
	v.Persisted = sess.persisted
	v.ExpiresAt = sess.expiresAt
	sess.mu.Unlock()

	if groupBy != "" {
		v.Groups = sess.engine.Groups(groupBy)
	}
	return v
}

func parseChannels(raw []string) ([]models.Channel, error) {
	out := make([]models.Channel, 0, len(raw))
	for _, r := range raw {
		ch, err := models.ParseChannel(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrValidationFailed, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

func checkAttributes(sc *schema.Schema, pairs []models.AttributePair) error {
	if sc == nil {
		return nil
	}
	for _, p := range pairs {
		if _, ok := sc.Attribute(p.Name); !ok {
			return fmt.Errorf("%w: %s is not an attribute of %s", models.ErrValidationFailed, p.Name, sc.SubCategory)
		}
	}
	return nil
}

func normalizeExternalID(id models.ExternalProductID) models.ExternalProductID {
	return models.ExternalProductID{
		Type:  strings.ToUpper(strings.TrimSpace(id.Type)),
		Value: strings.TrimSpace(id.Value),
	}
}
