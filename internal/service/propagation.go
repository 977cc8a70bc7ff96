package service

import (
	"context"
	"fmt"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"
)

// Propagator moves line items of open orders onto a freshly fetched snapshot.
// It runs inside the resolution transaction so the archived filter is
// evaluated at commit time.
type Propagator struct {
	enabled bool
}

// NewPropagator creates a propagator; a disabled one never touches line items
func NewPropagator(enabled bool) *Propagator {
	return &Propagator{enabled: enabled}
}

// Enabled reports whether propagation is switched on
func (p *Propagator) Enabled() bool {
	return p != nil && p.enabled
}

// Propagate retargets every line item of a non-archived order whose snapshot
// shares vp's vendor and vendor part number. It returns the number of lines moved.
func (p *Propagator) Propagate(ctx context.Context, tx repository.Writer, vp *models.VendorPart) (int64, error) {
	if !p.Enabled() {
		return 0, nil
	}
	n, err := tx.RetargetOpenLineItems(ctx, vp.Vendor, vp.VendorPartNumber, vp.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to retarget open line items: %w", err)
	}
	return n, nil
}
