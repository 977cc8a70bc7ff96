package store

import (
	"context"
	"encoding/json"
	"fmt"

	"bom-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const vendorPartColumns = `id, part_id, vendor, vendor_part_number, fetch_timestamp, price_breaks, url, raw`

// GetLatestVendorPart retrieves the most recently fetched snapshot for a vendor part number
func (s *Store) GetLatestVendorPart(ctx context.Context, vendor, vendorPartNumber string) (*models.VendorPart, error) {
	var vp models.VendorPart
	err := s.db.GetContext(ctx, &vp, `
		SELECT `+vendorPartColumns+`
		FROM vendor_parts
		WHERE vendor = $1 AND vendor_part_number = $2
		ORDER BY fetch_timestamp DESC, id DESC
		LIMIT 1`, vendor, vendorPartNumber)
	if err != nil {
		return nil, notFound(err)
	}
	return &vp, nil
}

// GetPartByID retrieves a part by ID
func (s *Store) GetPartByID(ctx context.Context, id int64) (*models.Part, error) {
	var part models.Part
	err := s.db.GetContext(ctx, &part, "SELECT * FROM parts WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &part, nil
}

// SearchParts filters parts by manufacturer set and exact MPN; empty filters match all
func (s *Store) SearchParts(ctx context.Context, manufacturers []string, mpn string) ([]models.Part, error) {
	query := "SELECT * FROM parts WHERE 1=1"
	args := []interface{}{}

	if len(manufacturers) > 0 {
		query += " AND manufacturer IN (?)"
		args = append(args, manufacturers)
	}
	if mpn != "" {
		query += " AND manufacturer_part_number = ?"
		args = append(args, mpn)
	}
	query += " ORDER BY manufacturer, manufacturer_part_number"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	parts := []models.Part{}
	err = s.db.SelectContext(ctx, &parts, s.db.Rebind(query), args...)
	return parts, err
}

// ListVendorPartsByPartIDs retrieves every snapshot of the given parts, newest first
func (s *Store) ListVendorPartsByPartIDs(ctx context.Context, partIDs []int64) ([]models.VendorPart, error) {
	if len(partIDs) == 0 {
		return []models.VendorPart{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+vendorPartColumns+`
		FROM vendor_parts
		WHERE part_id IN (?)
		ORDER BY fetch_timestamp DESC, id DESC`, partIDs)
	if err != nil {
		return nil, err
	}

	var vps []models.VendorPart
	err = s.db.SelectContext(ctx, &vps, s.db.Rebind(query), args...)
	return vps, err
}

// FindPartByMPN retrieves a part by exact manufacturer and part number
func (w *writer) FindPartByMPN(ctx context.Context, manufacturer, mpn string) (*models.Part, error) {
	var part models.Part
	err := sqlx.GetContext(ctx, w.q, &part,
		"SELECT * FROM parts WHERE manufacturer = $1 AND manufacturer_part_number = $2",
		manufacturer, mpn)
	if err != nil {
		return nil, notFound(err)
	}
	return &part, nil
}

// CreatePart inserts a canonical part
func (w *writer) CreatePart(ctx context.Context, part *models.Part) error {
	query := `
		INSERT INTO parts (manufacturer, manufacturer_part_number, short_description, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return sqlx.GetContext(ctx, w.q, &part.ID, query,
		part.Manufacturer, part.ManufacturerPartNumber, part.ShortDescription, part.ImageURL)
}

// BackfillPart fills description and image only where they are still blank
func (w *writer) BackfillPart(ctx context.Context, part *models.Part) error {
	_, err := w.q.ExecContext(ctx, `
		UPDATE parts SET
			short_description = CASE WHEN short_description = '' THEN $1 ELSE short_description END,
			image_url = CASE WHEN image_url = '' THEN $2 ELSE image_url END
		WHERE id = $3`,
		part.ShortDescription, part.ImageURL, part.ID)
	return err
}

// CreateVendorPart inserts a new snapshot; snapshots are never updated
func (w *writer) CreateVendorPart(ctx context.Context, vp *models.VendorPart) error {
	raw := vp.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	query := `
		INSERT INTO vendor_parts (part_id, vendor, vendor_part_number, fetch_timestamp, price_breaks, url, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if err := sqlx.GetContext(ctx, w.q, &vp.ID, query,
		vp.PartID, vp.Vendor, vp.VendorPartNumber, vp.FetchedAt, vp.PriceBreaks, vp.URL, []byte(raw)); err != nil {
		return fmt.Errorf("failed to insert vendor part: %w", err)
	}
	return nil
}

// RetargetOpenLineItems moves open-order line items of a vendor part number onto a new snapshot
func (w *writer) RetargetOpenLineItems(ctx context.Context, vendor, vendorPartNumber string, vendorPartID int64) (int64, error) {
	result, err := w.q.ExecContext(ctx, `
		UPDATE order_line_items AS li
		SET vendor_part_id = $1
		FROM vendor_parts AS vp, orders AS o
		WHERE li.vendor_part_id = vp.id
		  AND li.order_id = o.id
		  AND vp.vendor = $2
		  AND vp.vendor_part_number = $3
		  AND o.archived = FALSE
		  AND li.vendor_part_id <> $1`,
		vendorPartID, vendor, vendorPartNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to retarget line items: %w", err)
	}
	return result.RowsAffected()
}
