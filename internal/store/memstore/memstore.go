// Package memstore is an in-memory repository.Store for local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"
)

type state struct {
	parts       map[int64]models.Part
	vendorParts map[int64]models.VendorPart
	boms        map[int64]models.BillOfMaterials
	bomParts    map[int64]models.BOMPart
	orders      map[int64]models.Order
	orderBOMs   map[int64]models.OrderBOM
	lines       map[int64]models.OrderLineItem
	seq         map[string]int64
}

func newState() *state {
	return &state{
		parts:       map[int64]models.Part{},
		vendorParts: map[int64]models.VendorPart{},
		boms:        map[int64]models.BillOfMaterials{},
		bomParts:    map[int64]models.BOMPart{},
		orders:      map[int64]models.Order{},
		orderBOMs:   map[int64]models.OrderBOM{},
		lines:       map[int64]models.OrderLineItem{},
		seq:         map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.parts {
		c.parts[k] = v
	}
	for k, v := range s.vendorParts {
		c.vendorParts[k] = v
	}
	for k, v := range s.boms {
		c.boms[k] = v
	}
	for k, v := range s.bomParts {
		c.bomParts[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderBOMs {
		c.orderBOMs[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store keeps every table in maps guarded by one mutex. Transactions work
// on a copy that replaces the live state only when fn succeeds.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes the named write operation return err until cleared with a nil err
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// RunInTx applies fn atomically
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(&writer{st: draft, failures: s.failures}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *Store) write(fn func(w *writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&writer{st: s.st, failures: s.failures})
}

// Reader

func (s *Store) GetLatestVendorPart(ctx context.Context, vendor, vendorPartNumber string) (*models.VendorPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.VendorPart
	for _, vp := range s.st.vendorParts {
		if vp.Vendor != vendor || vp.VendorPartNumber != vendorPartNumber {
			continue
		}
		if latest == nil || vp.FetchedAt.After(latest.FetchedAt) ||
			(vp.FetchedAt.Equal(latest.FetchedAt) && vp.ID > latest.ID) {
			v := vp
			latest = &v
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (s *Store) GetPartByID(ctx context.Context, id int64) (*models.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.parts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SearchParts(ctx context.Context, manufacturers []string, mpn string) ([]models.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := make(map[string]bool, len(manufacturers))
	for _, m := range manufacturers {
		allowed[m] = true
	}

	out := []models.Part{}
	for _, p := range s.st.parts {
		if len(allowed) > 0 && !allowed[p.Manufacturer] {
			continue
		}
		if mpn != "" && p.ManufacturerPartNumber != mpn {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Manufacturer != out[j].Manufacturer {
			return out[i].Manufacturer < out[j].Manufacturer
		}
		return out[i].ManufacturerPartNumber < out[j].ManufacturerPartNumber
	})
	return out, nil
}

func (s *Store) ListVendorPartsByPartIDs(ctx context.Context, partIDs []int64) ([]models.VendorPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(partIDs))
	for _, id := range partIDs {
		wanted[id] = true
	}

	out := []models.VendorPart{}
	for _, vp := range s.st.vendorParts {
		if wanted[vp.PartID] {
			out = append(out, vp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FetchedAt.Equal(out[j].FetchedAt) {
			return out[i].FetchedAt.After(out[j].FetchedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) GetBOM(ctx context.Context, id int64) (*models.BillOfMaterials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bom, ok := s.st.boms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	bom.Parts = s.st.partsOf(id)
	return &bom, nil
}

func (s *Store) GetBOMsByIDs(ctx context.Context, ids []int64) ([]models.BillOfMaterials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[int64]bool{}
	out := []models.BillOfMaterials{}
	for _, id := range ids {
		bom, ok := s.st.boms[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		bom.Parts = s.st.partsOf(id)
		out = append(out, bom)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBOMs(ctx context.Context) ([]models.BillOfMaterials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.BillOfMaterials, 0, len(s.st.boms))
	for _, bom := range s.st.boms {
		out = append(out, bom)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (st *state) partsOf(bomID int64) []models.BOMPart {
	var parts []models.BOMPart
	for _, p := range st.bomParts {
		if p.BOMID == bomID {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })
	return parts
}

func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) GetOrderLineDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.LineItemDetail{}
	for _, li := range s.st.lines {
		if li.OrderID != orderID {
			continue
		}
		vp := s.st.vendorParts[li.VendorPartID]
		out = append(out, models.LineItemDetail{
			OrderLineItem: li,
			VendorPart:    vp,
			Part:          s.st.parts[vp.PartID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetOrderBOMs(ctx context.Context, orderID int64) ([]models.OrderBOM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.OrderBOM{}
	for _, ob := range s.st.orderBOMs {
		if ob.OrderID == orderID {
			out = append(out, ob)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Writer outside a transaction

func (s *Store) FindPartByMPN(ctx context.Context, manufacturer, mpn string) (*models.Part, error) {
	var out *models.Part
	err := s.write(func(w *writer) error {
		p, err := w.FindPartByMPN(ctx, manufacturer, mpn)
		out = p
		return err
	})
	return out, err
}

func (s *Store) CreatePart(ctx context.Context, part *models.Part) error {
	return s.write(func(w *writer) error { return w.CreatePart(ctx, part) })
}

func (s *Store) BackfillPart(ctx context.Context, part *models.Part) error {
	return s.write(func(w *writer) error { return w.BackfillPart(ctx, part) })
}

func (s *Store) CreateVendorPart(ctx context.Context, vp *models.VendorPart) error {
	return s.write(func(w *writer) error { return w.CreateVendorPart(ctx, vp) })
}

func (s *Store) SetBOMPartPart(ctx context.Context, bomPartID, partID int64) error {
	return s.write(func(w *writer) error { return w.SetBOMPartPart(ctx, bomPartID, partID) })
}

func (s *Store) RetargetOpenLineItems(ctx context.Context, vendor, vendorPartNumber string, vendorPartID int64) (int64, error) {
	var n int64
	err := s.write(func(w *writer) error {
		var err error
		n, err = w.RetargetOpenLineItems(ctx, vendor, vendorPartNumber, vendorPartID)
		return err
	})
	return n, err
}

func (s *Store) CreateBOM(ctx context.Context, bom *models.BillOfMaterials) error {
	return s.write(func(w *writer) error { return w.CreateBOM(ctx, bom) })
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.write(func(w *writer) error { return w.CreateOrder(ctx, order) })
}

func (s *Store) CreateOrderBOM(ctx context.Context, ob *models.OrderBOM) error {
	return s.write(func(w *writer) error { return w.CreateOrderBOM(ctx, ob) })
}

func (s *Store) CreateOrderLineItem(ctx context.Context, item *models.OrderLineItem) error {
	return s.write(func(w *writer) error { return w.CreateOrderLineItem(ctx, item) })
}

func (s *Store) UpdateNumberOrdered(ctx context.Context, orderID, lineID int64, numberOrdered int) error {
	return s.write(func(w *writer) error { return w.UpdateNumberOrdered(ctx, orderID, lineID, numberOrdered) })
}

func (s *Store) ArchiveOrder(ctx context.Context, orderID int64) error {
	return s.write(func(w *writer) error { return w.ArchiveOrder(ctx, orderID) })
}

// writer mutates one state, live or draft
type writer struct {
	st       *state
	failures map[string]error
}

func (w *writer) fail(op string) error {
	if err, ok := w.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (w *writer) FindPartByMPN(ctx context.Context, manufacturer, mpn string) (*models.Part, error) {
	for _, p := range w.st.parts {
		if p.Manufacturer == manufacturer && p.ManufacturerPartNumber == mpn {
			out := p
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (w *writer) CreatePart(ctx context.Context, part *models.Part) error {
	if err := w.fail("CreatePart"); err != nil {
		return err
	}
	if _, err := w.FindPartByMPN(ctx, part.Manufacturer, part.ManufacturerPartNumber); err == nil {
		return fmt.Errorf("part %s %s already exists", part.Manufacturer, part.ManufacturerPartNumber)
	}
	part.ID = w.st.next("parts")
	w.st.parts[part.ID] = *part
	return nil
}

func (w *writer) BackfillPart(ctx context.Context, part *models.Part) error {
	if err := w.fail("BackfillPart"); err != nil {
		return err
	}
	existing, ok := w.st.parts[part.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.ShortDescription == "" {
		existing.ShortDescription = part.ShortDescription
	}
	if existing.ImageURL == "" {
		existing.ImageURL = part.ImageURL
	}
	w.st.parts[part.ID] = existing
	return nil
}

func (w *writer) CreateVendorPart(ctx context.Context, vp *models.VendorPart) error {
	if err := w.fail("CreateVendorPart"); err != nil {
		return err
	}
	if _, ok := w.st.parts[vp.PartID]; !ok {
		return fmt.Errorf("vendor part references unknown part %d", vp.PartID)
	}
	vp.ID = w.st.next("vendor_parts")
	stored := *vp
	stored.PriceBreaks = append(models.PriceBreaks(nil), vp.PriceBreaks...)
	w.st.vendorParts[vp.ID] = stored
	return nil
}

func (w *writer) SetBOMPartPart(ctx context.Context, bomPartID, partID int64) error {
	if err := w.fail("SetBOMPartPart"); err != nil {
		return err
	}
	bp, ok := w.st.bomParts[bomPartID]
	if !ok {
		return repository.ErrNotFound
	}
	bp.PartID = &partID
	w.st.bomParts[bomPartID] = bp
	return nil
}

func (w *writer) RetargetOpenLineItems(ctx context.Context, vendor, vendorPartNumber string, vendorPartID int64) (int64, error) {
	if err := w.fail("RetargetOpenLineItems"); err != nil {
		return 0, err
	}
	var n int64
	for id, li := range w.st.lines {
		if li.VendorPartID == vendorPartID {
			continue
		}
		if w.st.orders[li.OrderID].Archived {
			continue
		}
		vp := w.st.vendorParts[li.VendorPartID]
		if vp.Vendor != vendor || vp.VendorPartNumber != vendorPartNumber {
			continue
		}
		li.VendorPartID = vendorPartID
		w.st.lines[id] = li
		n++
	}
	return n, nil
}

func (w *writer) CreateBOM(ctx context.Context, bom *models.BillOfMaterials) error {
	if err := w.fail("CreateBOM"); err != nil {
		return err
	}
	bom.ID = w.st.next("boms")
	stored := *bom
	stored.Parts = nil
	w.st.boms[bom.ID] = stored

	for i := range bom.Parts {
		bom.Parts[i].BOMID = bom.ID
		bom.Parts[i].ID = w.st.next("bom_parts")
		w.st.bomParts[bom.Parts[i].ID] = bom.Parts[i]
	}
	return nil
}

func (w *writer) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := w.fail("CreateOrder"); err != nil {
		return err
	}
	order.ID = w.st.next("orders")
	order.CreatedAt = time.Now()
	w.st.orders[order.ID] = *order
	return nil
}

func (w *writer) CreateOrderBOM(ctx context.Context, ob *models.OrderBOM) error {
	if err := w.fail("CreateOrderBOM"); err != nil {
		return err
	}
	ob.ID = w.st.next("order_boms")
	w.st.orderBOMs[ob.ID] = *ob
	return nil
}

func (w *writer) CreateOrderLineItem(ctx context.Context, item *models.OrderLineItem) error {
	if err := w.fail("CreateOrderLineItem"); err != nil {
		return err
	}
	if _, ok := w.st.vendorParts[item.VendorPartID]; !ok {
		return fmt.Errorf("line item references unknown vendor part %d", item.VendorPartID)
	}
	item.ID = w.st.next("order_line_items")
	w.st.lines[item.ID] = *item
	return nil
}

func (w *writer) UpdateNumberOrdered(ctx context.Context, orderID, lineID int64, numberOrdered int) error {
	if err := w.fail("UpdateNumberOrdered"); err != nil {
		return err
	}
	li, ok := w.st.lines[lineID]
	if !ok || li.OrderID != orderID {
		return fmt.Errorf("line item %d of order %d: %w", lineID, orderID, repository.ErrNotFound)
	}
	li.NumberOrdered = numberOrdered
	w.st.lines[lineID] = li
	return nil
}

func (w *writer) ArchiveOrder(ctx context.Context, orderID int64) error {
	if err := w.fail("ArchiveOrder"); err != nil {
		return err
	}
	o, ok := w.st.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.Archived = true
	w.st.orders[orderID] = o
	return nil
}
