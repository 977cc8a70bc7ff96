package service

import (
	"errors"

	"bom-order-service/internal/models"

	"go.uber.org/zap"
)

// ErrEmptyOrder is returned when a selection yields no orderable line
var ErrEmptyOrder = errors.New("order must include at least one orderable part")

// AggregationPart is one BOM part together with the snapshots of its resolved Part
type AggregationPart struct {
	BOMPart     models.BOMPart
	VendorParts []models.VendorPart
}

// AggregationInput is one selected BOM and how many copies are built
type AggregationInput struct {
	BOMID      int64
	Multiplier int
	Parts      []AggregationPart
}

// AggregatedLine is a line item ready to be written
type AggregatedLine struct {
	VendorPart    models.VendorPart
	NumberUsed    int
	NumberOrdered int
}

// AggregateLineItems merges the parts of every input into one line per
// vendor and vendor part number. number_used is the sum of the multipliers of
// every contributing BOM part. Lines come out in order of first appearance.
func AggregateLineItems(inputs []AggregationInput, logger *zap.Logger) ([]AggregatedLine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	index := make(map[models.VendorKey]int)
	var lines []AggregatedLine

	for _, in := range inputs {
		for _, ap := range in.Parts {
			vp, ok := chooseVendorPart(&ap)
			if !ok {
				logger.Debug("Skipping part without a matching vendor snapshot",
					zap.Int64("bom_id", in.BOMID),
					zap.String("reference", ap.BOMPart.Reference),
					zap.String("lookup_source", ap.BOMPart.Source()))
				continue
			}

			key := vp.Key()
			i, seen := index[key]
			if !seen {
				index[key] = len(lines)
				lines = append(lines, AggregatedLine{VendorPart: vp})
				i = len(lines) - 1
			} else if newerSnapshot(&vp, &lines[i].VendorPart) {
				lines[i].VendorPart = vp
			}
			lines[i].NumberUsed += in.Multiplier
		}
	}

	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for i := range lines {
		lines[i].NumberOrdered = lines[i].NumberUsed
	}
	return lines, nil
}

// chooseVendorPart picks the snapshot sold by the part's lookup source,
// preferring the listing the schematic named and then the most recent fetch.
func chooseVendorPart(ap *AggregationPart) (models.VendorPart, bool) {
	bp := &ap.BOMPart
	if !bp.Resolved() || bp.Source() == "" {
		return models.VendorPart{}, false
	}

	var best *models.VendorPart
	bestNamed := false
	for i := range ap.VendorParts {
		vp := &ap.VendorParts[i]
		if vp.Vendor != bp.Source() {
			continue
		}
		named := vp.VendorPartNumber == bp.Lookup()
		switch {
		case best == nil,
			named && !bestNamed,
			named == bestNamed && newerSnapshot(vp, best):
			best, bestNamed = vp, named
		}
	}
	if best == nil {
		return models.VendorPart{}, false
	}
	return *best, true
}

func newerSnapshot(a, b *models.VendorPart) bool {
	if a.FetchedAt.Equal(b.FetchedAt) {
		return a.ID > b.ID
	}
	return a.FetchedAt.After(b.FetchedAt)
}
