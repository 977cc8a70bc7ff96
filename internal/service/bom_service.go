package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bom-order-service/internal/kicad"
	"bom-order-service/internal/models"
	"bom-order-service/internal/pricing"
	"bom-order-service/internal/redisclient"
	"bom-order-service/internal/repository"
	"bom-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrResolutionInProgress is returned when another run holds the BOM's lock
var ErrResolutionInProgress = errors.New("resolution already in progress for this bom")

// ManufacturerWildcard in a part search matches every manufacturer
const ManufacturerWildcard = "*"

// BOMService handles schematic ingestion and part resolution
type BOMService struct {
	store     repository.Store
	resolver  *Resolver
	locker    Locker
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewBOMService creates a new BOM service. locker and publisher may be nil.
func NewBOMService(
	store repository.Store,
	resolver *Resolver,
	locker Locker,
	publisher EventPublisher,
	lockTTL time.Duration,
) *BOMService {
	return &BOMService{
		store:     store,
		resolver:  resolver,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.ComponentLogger("bom-service"),
	}
}

// UploadBOMRequest describes an uploaded schematic archive
type UploadBOMRequest struct {
	Name        string
	Version     string
	UserID      int64
	ArchiveName string
	Archive     io.ReaderAt
	Size        int64
}

// UploadBOM parses the archive and stores the resulting BOM with its parts
func (s *BOMService) UploadBOM(ctx context.Context, req *UploadBOMRequest) (*models.BillOfMaterials, error) {
	ctx, span := util.StartSpan(ctx, "BOMService.UploadBOM")
	defer span.End()

	parts, err := kicad.ParseArchive(req.Archive, req.Size)
	if err != nil {
		util.SchematicArchivesParsedTotal.WithLabelValues("failed").Inc()
		util.RecordError(span, err)
		return nil, err
	}
	util.SchematicArchivesParsedTotal.WithLabelValues("parsed").Inc()
	util.BOMPartsExtractedTotal.Add(float64(len(parts)))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.ArchiveName
	}
	bom := &models.BillOfMaterials{
		Name:       name,
		Archive:    req.ArchiveName,
		Version:    req.Version,
		UploadedAt: time.Now(),
		UserID:     req.UserID,
		Parts:      parts,
	}
	if err := s.store.CreateBOM(ctx, bom); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create bom: %w", err)
	}

	s.logger.Info("BOM uploaded",
		zap.Int64("bom_id", bom.ID),
		zap.String("archive", bom.Archive),
		zap.Int("parts", len(bom.Parts)))

	if s.publisher != nil {
		event := &models.BOMUploadedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBOMUploaded,
				Timestamp: time.Now(),
			},
			BOMID:     bom.ID,
			UserID:    bom.UserID,
			PartCount: len(bom.Parts),
		}
		if err := s.publisher.PublishBOMUploaded(ctx, event); err != nil {
			s.logger.Error("Failed to publish BOMUploaded event", zap.Error(err))
		}
	}
	return bom, nil
}

// ResolutionReport summarises one pass over a BOM
type ResolutionReport struct {
	BOMID    int64            `json:"bom_id"`
	Resolved int              `json:"resolved"`
	Fetched  int              `json:"fetched"`
	Unmapped []string         `json:"unmapped"`
	Failures []*LookupFailure `json:"failures"`
}

// ResolveBOM resolves every part of a BOM. A failing part never stops the
// pass: unmapped parts are listed by reference and adapter errors are
// collected as failures.
func (s *BOMService) ResolveBOM(ctx context.Context, bomID int64) (*ResolutionReport, error) {
	ctx, span := util.StartSpan(ctx, "BOMService.ResolveBOM")
	defer span.End()

	bom, err := s.store.GetBOM(ctx, bomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bom %d: %w", bomID, err)
	}

	if s.locker != nil {
		lockKey := fmt.Sprintf("resolve-bom:%d", bomID)
		token, err := s.locker.AcquireLock(ctx, lockKey, s.lockTTL)
		if errors.Is(err, redisclient.ErrLockHeld) {
			return nil, ErrResolutionInProgress
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
				s.logger.Warn("Failed to release resolution lock", zap.Int64("bom_id", bomID), zap.Error(err))
			}
		}()
	}

	report := &ResolutionReport{BOMID: bomID, Unmapped: []string{}, Failures: []*LookupFailure{}}
	for i := range bom.Parts {
		bp := &bom.Parts[i]
		res, err := s.resolver.Resolve(ctx, bp)
		if err != nil {
			var lf *LookupFailure
			if !errors.As(err, &lf) {
				return nil, err
			}
			if lf.Reason == NoVendorMapping {
				report.Unmapped = append(report.Unmapped, bp.Reference)
				continue
			}
			s.logger.Warn("Part lookup failed",
				zap.Int64("bom_id", bomID),
				zap.String("reference", bp.Reference),
				zap.String("detail", lf.Detail))
			report.Failures = append(report.Failures, lf)
			continue
		}
		report.Resolved++
		if res.Fetched {
			report.Fetched++
		}
	}

	s.logger.Info("BOM resolved",
		zap.Int64("bom_id", bomID),
		zap.Int("resolved", report.Resolved),
		zap.Int("fetched", report.Fetched),
		zap.Int("unmapped", len(report.Unmapped)),
		zap.Int("failed", len(report.Failures)))

	if s.publisher != nil {
		event := &models.BOMResolvedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBOMResolved,
				Timestamp: time.Now(),
			},
			BOMID:    bomID,
			Resolved: report.Resolved,
			Unmapped: len(report.Unmapped),
			Failed:   len(report.Failures),
		}
		if err := s.publisher.PublishBOMResolved(ctx, event); err != nil {
			s.logger.Error("Failed to publish BOMResolved event", zap.Error(err))
		}
	}
	return report, nil
}

// HandleBOMUploaded resolves a freshly uploaded BOM in the background.
// A concurrent run already covers the BOM, so the event is dropped.
func (s *BOMService) HandleBOMUploaded(ctx context.Context, event *models.BOMUploadedEvent) error {
	_, err := s.ResolveBOM(ctx, event.BOMID)
	if errors.Is(err, ErrResolutionInProgress) {
		s.logger.Info("Skipping BOM already being resolved", zap.Int64("bom_id", event.BOMID))
		return nil
	}
	return err
}

// GetBOM retrieves a BOM with its parts
func (s *BOMService) GetBOM(ctx context.Context, bomID int64) (*models.BillOfMaterials, error) {
	return s.store.GetBOM(ctx, bomID)
}

// ListBOMs retrieves every BOM without parts
func (s *BOMService) ListBOMs(ctx context.Context) ([]models.BillOfMaterials, error) {
	return s.store.ListBOMs(ctx)
}

// VendorListing is one snapshot of a part with its rendered price breaks
type VendorListing struct {
	models.VendorPart
	Breaks string `json:"breaks"`
}

// PartListing is a catalog part with every snapshot on record
type PartListing struct {
	models.Part
	VendorParts []VendorListing `json:"vendor_parts"`
}

// SearchParts filters the catalog by manufacturer set and exact MPN.
// ManufacturerWildcard anywhere in manufacturers disables that filter.
func (s *BOMService) SearchParts(ctx context.Context, manufacturers []string, mpn string) ([]PartListing, error) {
	ctx, span := util.StartSpan(ctx, "BOMService.SearchParts")
	defer span.End()

	filter := make([]string, 0, len(manufacturers))
	for _, m := range manufacturers {
		if m == ManufacturerWildcard {
			filter = nil
			break
		}
		if m = strings.TrimSpace(m); m != "" {
			filter = append(filter, m)
		}
	}

	parts, err := s.store.SearchParts(ctx, filter, strings.TrimSpace(mpn))
	if err != nil {
		return nil, fmt.Errorf("failed to search parts: %w", err)
	}
	if len(parts) == 0 {
		return []PartListing{}, nil
	}

	ids := make([]int64, len(parts))
	for i := range parts {
		ids[i] = parts[i].ID
	}
	vps, err := s.store.ListVendorPartsByPartIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor parts: %w", err)
	}
	byPart := make(map[int64][]VendorListing, len(parts))
	for _, vp := range vps {
		byPart[vp.PartID] = append(byPart[vp.PartID], VendorListing{VendorPart: vp, Breaks: pricing.FormatBreaks(vp.PriceBreaks)})
	}

	out := make([]PartListing, len(parts))
	for i, p := range parts {
		listings := byPart[p.ID]
		if listings == nil {
			listings = []VendorListing{}
		}
		out[i] = PartListing{Part: p, VendorParts: listings}
	}
	return out, nil
}
