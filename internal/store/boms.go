package store

import (
	"context"
	"fmt"

	"bom-order-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetBOM retrieves a BOM with its parts in schematic order
func (s *Store) GetBOM(ctx context.Context, id int64) (*models.BillOfMaterials, error) {
	var bom models.BillOfMaterials
	err := s.db.GetContext(ctx, &bom, "SELECT * FROM boms WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}

	if err := s.db.SelectContext(ctx, &bom.Parts,
		"SELECT * FROM bom_parts WHERE bom_id = $1 ORDER BY id", id); err != nil {
		return nil, fmt.Errorf("failed to load bom parts: %w", err)
	}
	return &bom, nil
}

// GetBOMsByIDs retrieves several BOMs with their parts
func (s *Store) GetBOMsByIDs(ctx context.Context, ids []int64) ([]models.BillOfMaterials, error) {
	if len(ids) == 0 {
		return []models.BillOfMaterials{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM boms WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	var boms []models.BillOfMaterials
	if err := s.db.SelectContext(ctx, &boms, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	query, args, err = sqlx.In("SELECT * FROM bom_parts WHERE bom_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	var parts []models.BOMPart
	if err := s.db.SelectContext(ctx, &parts, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load bom parts: %w", err)
	}

	index := make(map[int64]int, len(boms))
	for i := range boms {
		index[boms[i].ID] = i
	}
	for _, p := range parts {
		if i, ok := index[p.BOMID]; ok {
			boms[i].Parts = append(boms[i].Parts, p)
		}
	}
	return boms, nil
}

// ListBOMs retrieves all BOMs without parts, newest first
func (s *Store) ListBOMs(ctx context.Context) ([]models.BillOfMaterials, error) {
	boms := []models.BillOfMaterials{}
	err := s.db.SelectContext(ctx, &boms, "SELECT * FROM boms ORDER BY uploaded_at DESC")
	return boms, err
}

// CreateBOM inserts a BOM and all of its parts, assigning IDs in place
func (w *writer) CreateBOM(ctx context.Context, bom *models.BillOfMaterials) error {
	query := `
		INSERT INTO boms (name, archive, version, uploaded_at, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if err := sqlx.GetContext(ctx, w.q, &bom.ID, query,
		bom.Name, bom.Archive, bom.Version, bom.UploadedAt, bom.UserID); err != nil {
		return fmt.Errorf("failed to insert bom: %w", err)
	}

	for i := range bom.Parts {
		part := &bom.Parts[i]
		part.BOMID = bom.ID
		if err := sqlx.GetContext(ctx, w.q, &part.ID, `
			INSERT INTO bom_parts (bom_id, reference, lookup_source, lookup_id, part_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			part.BOMID, part.Reference, part.LookupSource, part.LookupID, part.PartID); err != nil {
			return fmt.Errorf("failed to insert bom part %s: %w", part.Reference, err)
		}
	}
	return nil
}

// SetBOMPartPart records the resolved part of a BOM part
func (w *writer) SetBOMPartPart(ctx context.Context, bomPartID, partID int64) error {
	_, err := w.q.ExecContext(ctx,
		"UPDATE bom_parts SET part_id = $1 WHERE id = $2", partID, bomPartID)
	return err
}
