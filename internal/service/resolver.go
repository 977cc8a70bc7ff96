package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"
	"bom-order-service/internal/util"
	"bom-order-service/internal/vendor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LookupReason classifies a failed part resolution
type LookupReason string

const (
	// NoVendorMapping means the schematic named no vendor for the component
	NoVendorMapping LookupReason = "NoVendorMapping"
	// AdapterError covers every failure to obtain or store a vendor snapshot
	AdapterError LookupReason = "AdapterError"
)

// LookupFailure is the only error Resolve returns
type LookupFailure struct {
	Reason    LookupReason `json:"reason"`
	Reference string       `json:"reference"`
	Vendor    string       `json:"vendor,omitempty"`
	LookupID  string       `json:"lookup_id,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Err       error        `json:"-"`
}

func (e *LookupFailure) Error() string {
	if e.Reason == NoVendorMapping {
		return fmt.Sprintf("%s: no vendor mapping for %s", e.Reason, e.Reference)
	}
	return fmt.Sprintf("%s: error looking up part %s from %s: %s", e.Reason, e.LookupID, e.Vendor, e.Detail)
}

func (e *LookupFailure) Unwrap() error {
	return e.Err
}

// ResolvedPart is the outcome of a successful resolution
type ResolvedPart struct {
	BOMPart    models.BOMPart
	Part       models.Part
	VendorPart models.VendorPart
	// Fetched is true when the vendor adapter was queried
	Fetched    bool
	Retargeted int64
}

// ResolverConfig holds the tunables of the resolution cache
type ResolverConfig struct {
	FreshnessWindow     time.Duration
	QueryTimeout        time.Duration
	PlaceholderImageURL string
}

// Resolver is the staleness-aware vendor resolution cache
type Resolver struct {
	store      repository.Store
	registry   *vendor.Registry
	propagator *Propagator
	publisher  EventPublisher
	cfg        ResolverConfig
	now        func() time.Time
	logger     *zap.Logger
}

// NewResolver creates a resolver
func NewResolver(
	store repository.Store,
	registry *vendor.Registry,
	propagator *Propagator,
	publisher EventPublisher,
	cfg ResolverConfig,
) *Resolver {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 24 * time.Hour
	}
	return &Resolver{
		store:      store,
		registry:   registry,
		propagator: propagator,
		publisher:  publisher,
		cfg:        cfg,
		now:        time.Now,
		logger:     util.ComponentLogger("resolver"),
	}
}

// Resolve attaches a Part to bp, querying the vendor only when no fresh
// snapshot exists. On success bp.PartID is set. Any error is a *LookupFailure.
func (r *Resolver) Resolve(ctx context.Context, bp *models.BOMPart) (*ResolvedPart, error) {
	ctx, span := util.StartSpan(ctx, "Resolver.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, bp)
	if err != nil {
		var lf *LookupFailure
		if errors.As(err, &lf) {
			util.PartLookupsTotal.WithLabelValues(string(lf.Reason)).Inc()
		}
		util.RecordError(span, err)
		return nil, err
	}
	if res.Fetched {
		util.PartLookupsTotal.WithLabelValues("fetched").Inc()
	} else {
		util.PartLookupsTotal.WithLabelValues("cache_hit").Inc()
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, bp *models.BOMPart) (*ResolvedPart, error) {
	source, lookupID := bp.Source(), bp.Lookup()
	fail := func(detail string, err error) *LookupFailure {
		return &LookupFailure{
			Reason:    AdapterError,
			Reference: bp.Reference,
			Vendor:    source,
			LookupID:  lookupID,
			Detail:    detail,
			Err:       err,
		}
	}

	if source != "" {
		latest, err := r.store.GetLatestVendorPart(ctx, source, lookupID)
		switch {
		case err == nil && latest.IsFresh(r.now(), r.cfg.FreshnessWindow):
			return r.attachCached(ctx, bp, latest)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			r.logger.Error("Failed to read vendor part snapshot", zap.String("vendor", source), zap.Error(err))
			return nil, fail("store error", err)
		}
	}

	if source == "" {
		return nil, &LookupFailure{Reason: NoVendorMapping, Reference: bp.Reference}
	}

	adapter, err := r.registry.Get(source)
	if err != nil {
		return nil, fail(err.Error(), err)
	}
	if !adapter.IsAuthenticated(ctx) {
		return nil, fail(vendor.ErrNotAuthenticated.Error(), vendor.ErrNotAuthenticated)
	}

	resp, err := r.query(ctx, adapter, lookupID)
	if err != nil {
		util.VendorQueryFailuresTotal.WithLabelValues(source).Inc()
		r.logger.Warn("Vendor query failed",
			zap.String("vendor", source),
			zap.String("lookup_id", lookupID),
			zap.Error(err))
		return nil, fail(err.Error(), err)
	}

	res, err := r.storeSnapshot(ctx, bp, adapter.Name(), lookupID, resp)
	if err != nil {
		r.logger.Error("Failed to store vendor snapshot",
			zap.String("vendor", source),
			zap.String("lookup_id", lookupID),
			zap.Error(err))
		return nil, fail("store error", err)
	}

	if res.Retargeted > 0 {
		util.LineItemsRetargetedTotal.Add(float64(res.Retargeted))
	}
	r.publishRefreshed(ctx, res)
	return res, nil
}

func (r *Resolver) query(ctx context.Context, adapter vendor.Adapter, lookupID string) (*vendor.CatalogResponse, error) {
	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		util.VendorQueryLatency.WithLabelValues(adapter.Name()).Observe(time.Since(start).Seconds())
	}()

	resp, err := adapter.Query(ctx, lookupID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("vendor query timed out: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

func (r *Resolver) attachCached(ctx context.Context, bp *models.BOMPart, vp *models.VendorPart) (*ResolvedPart, error) {
	part, err := r.store.GetPartByID(ctx, vp.PartID)
	if err != nil {
		return nil, &LookupFailure{Reason: AdapterError, Reference: bp.Reference, Vendor: vp.Vendor,
			LookupID: vp.VendorPartNumber, Detail: "store error", Err: err}
	}
	if bp.ID != 0 {
		if err := r.store.SetBOMPartPart(ctx, bp.ID, part.ID); err != nil {
			return nil, &LookupFailure{Reason: AdapterError, Reference: bp.Reference, Vendor: vp.Vendor,
				LookupID: vp.VendorPartNumber, Detail: "store error", Err: err}
		}
	}
	bp.PartID = &part.ID
	return &ResolvedPart{BOMPart: *bp, Part: *part, VendorPart: *vp}, nil
}

// storeSnapshot writes the part, the new snapshot, the BOM part link and the
// open-order propagation as one unit.
func (r *Resolver) storeSnapshot(
	ctx context.Context,
	bp *models.BOMPart,
	vendorName, lookupID string,
	resp *vendor.CatalogResponse,
) (*ResolvedPart, error) {
	res := &ResolvedPart{Fetched: true}

	err := r.store.RunInTx(ctx, func(tx repository.Writer) error {
		part, err := r.matchPart(ctx, tx, resp)
		if err != nil {
			return err
		}

		vp := models.VendorPart{
			PartID:           part.ID,
			Vendor:           vendorName,
			VendorPartNumber: lookupID,
			FetchedAt:        r.now(),
			PriceBreaks:      resp.PriceBreaks,
			URL:              resp.DetailURL,
			Raw:              resp.Raw,
		}
		if err := tx.CreateVendorPart(ctx, &vp); err != nil {
			return fmt.Errorf("failed to create vendor part: %w", err)
		}

		if bp.ID != 0 {
			if err := tx.SetBOMPartPart(ctx, bp.ID, part.ID); err != nil {
				return fmt.Errorf("failed to attach part: %w", err)
			}
		}

		n, err := r.propagator.Propagate(ctx, tx, &vp)
		if err != nil {
			return err
		}

		res.Part = *part
		res.VendorPart = vp
		res.Retargeted = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	bp.PartID = &res.Part.ID
	res.BOMPart = *bp
	return res, nil
}

// matchPart finds the Part by exact manufacturer and MPN, creating it when
// unknown and filling blank fields when it exists.
func (r *Resolver) matchPart(ctx context.Context, tx repository.Writer, resp *vendor.CatalogResponse) (*models.Part, error) {
	image := resp.ImageURL
	if image == "" {
		image = r.cfg.PlaceholderImageURL
	}

	part, err := tx.FindPartByMPN(ctx, resp.Manufacturer, resp.ManufacturerPartNumber)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		part = &models.Part{
			Manufacturer:           resp.Manufacturer,
			ManufacturerPartNumber: resp.ManufacturerPartNumber,
			ShortDescription:       resp.Description,
			ImageURL:               image,
		}
		if err := tx.CreatePart(ctx, part); err != nil {
			return nil, fmt.Errorf("failed to create part: %w", err)
		}
		return part, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find part: %w", err)
	}

	if part.ShortDescription == "" || part.ImageURL == "" {
		fill := *part
		fill.ShortDescription = resp.Description
		fill.ImageURL = image
		if err := tx.BackfillPart(ctx, &fill); err != nil {
			return nil, fmt.Errorf("failed to backfill part: %w", err)
		}
		if part.ShortDescription == "" {
			part.ShortDescription = resp.Description
		}
		if part.ImageURL == "" {
			part.ImageURL = image
		}
	}
	return part, nil
}

func (r *Resolver) publishRefreshed(ctx context.Context, res *ResolvedPart) {
	if r.publisher == nil {
		return
	}
	event := &models.VendorPartRefreshedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeVendorPartRefreshed,
			Timestamp: time.Now(),
		},
		VendorPartID:     res.VendorPart.ID,
		Vendor:           res.VendorPart.Vendor,
		VendorPartNumber: res.VendorPart.VendorPartNumber,
		LinesRetargeted:  res.Retargeted,
	}
	if err := r.publisher.PublishVendorPartRefreshed(ctx, event); err != nil {
		r.logger.Error("Failed to publish VendorPartRefreshed event", zap.Error(err))
	}
}
