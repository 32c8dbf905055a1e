package service

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/scope"
	"catalog-service/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssetService allocates, resolves and deletes asset slots. Storage URLs
// are opaque; only the mime type is interpreted.
type AssetService struct {
	store   AssetStore
	baseURL string
	logger  *zap.Logger
}

// NewAssetService creates a new asset service
func NewAssetService(store AssetStore, baseURL string) *AssetService {
	return &AssetService{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  util.GetLogger(),
	}
}

// AllocateFile describes one file the client wants to upload
type AllocateFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType" binding:"required"`
}

// AllocateRequest asks for N upload slots
type AllocateRequest struct {
	Files []AllocateFile `json:"files" binding:"required,min=1,dive"`
}

// BatchItem is the per-file outcome of a batch operation.
type BatchItem struct {
	Index     int              `json:"index"`
	ID        string           `json:"id,omitempty"`
	UploadURL string           `json:"uploadUrl,omitempty"`
	Kind      models.AssetKind `json:"kind,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BatchReport lists every item of a batch. Items that succeeded stay
// persisted even when others failed.
type BatchReport struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Classify maps a mime type to an asset kind.
func Classify(mimeType string) (models.AssetKind, *mimetype.MIME, error) {
	raw := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	mt := mimetype.Lookup(raw)
	if mt == nil {
		return "", nil, fmt.Errorf("%w: unsupported mime type %q", models.ErrValidationFailed, mimeType)
	}
	switch {
	case strings.HasPrefix(mt.String(), "image/"):
		return models.AssetImage, mt, nil
	case strings.HasPrefix(mt.String(), "video/"):
		return models.AssetVideo, mt, nil
	}
	return "", nil, fmt.Errorf("%w: %s is neither an image nor a video", models.ErrValidationFailed, mt.String())
}

// Allocate creates one pending asset per file and returns its upload target.
func (s *AssetService) Allocate(ctx context.Context, req *AllocateRequest) (*BatchReport, error) {
	ctx, span := util.StartSpan(ctx, "AssetService.Allocate")
	defer span.End()

	storeID := scope.Store(ctx)
	if storeID == "" {
		return nil, fmt.Errorf("%w: store scope is required", models.ErrValidationFailed)
	}

	report := &BatchReport{Items: make([]BatchItem, 0, len(req.Files))}
	for i, f := range req.Files {
		item := BatchItem{Index: i}

		kind, mt, err := Classify(f.MimeType)
		if err != nil {
			item.Error = err.Error()
			report.add(item, "allocate")
			continue
		}

		asset := &models.Asset{
			ID:       uuid.New().String(),
			StoreID:  storeID,
			MimeType: mt.String(),
			Kind:     kind,
			Status:   models.AssetStatusPending,
		}
		asset.URL = fmt.Sprintf("%s/%s/%s%s", s.baseURL, storeID, asset.ID, mt.Extension())

		if err := s.store.CreateAsset(ctx, asset); err != nil {
			s.logger.Error("Failed to allocate asset",
				zap.String("store_id", storeID),
				zap.String("name", f.Name),
				zap.Error(err))
			item.Error = "failed to allocate asset"
			report.add(item, "allocate")
			continue
		}

		item.ID, item.UploadURL, item.Kind = asset.ID, asset.URL, asset.Kind
		report.add(item, "allocate")
	}

	s.logger.Info("Asset batch allocated",
		zap.String("store_id", storeID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *BatchReport) add(item BatchItem, operation string) {
	r.Items = append(r.Items, item)
	if item.Error == "" {
		r.Succeeded++
		util.AssetBatchItemsTotal.WithLabelValues(operation, "ok").Inc()
	} else {
		r.Failed++
		util.AssetBatchItemsTotal.WithLabelValues(operation, "failed").Inc()
	}
}

// IDsRequest carries a list of asset ids
type IDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// ResolveResult holds resolved assets in request order plus unknown ids.
type ResolveResult struct {
	Assets  []models.Asset `json:"assets"`
	Missing []string       `json:"missing"`
}

// Resolve maps ids to assets of the current store.
func (s *AssetService) Resolve(ctx context.Context, ids []string) (*ResolveResult, error) {
	ctx, span := util.StartSpan(ctx, "AssetService.Resolve")
	defer span.End()

	found, err := s.store.GetAssetsByIDs(ctx, scope.Store(ctx), ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Asset, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	res := &ResolveResult{Assets: make([]models.Asset, 0, len(ids)), Missing: []string{}}
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			res.Assets = append(res.Assets, a)
		} else {
			res.Missing = append(res.Missing, id)
		}
	}
	return res, nil
}

// Delete marks the given assets deleted. Unknown or already deleted ids
// are reported per item.
func (s *AssetService) Delete(ctx context.Context, ids []string) (*BatchReport, error) {
	ctx, span := util.StartSpan(ctx, "AssetService.Delete")
	defer span.End()

	deleted, err := s.store.MarkAssetsDeleted(ctx, scope.Store(ctx), ids)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		done[id] = true
	}

	report := &BatchReport{Items: make([]BatchItem, 0, len(ids))}
	for i, id := range ids {
		item := BatchItem{Index: i, ID: id}
		if !done[id] {
			item.Error = "asset not found"
		}
		report.add(item, "delete")
	}
	return report, nil
}
