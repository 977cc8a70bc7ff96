package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Part is the canonical catalog entity, unique by manufacturer and MPN
type Part struct {
	ID                     int64  `db:"id" json:"id"`
	Manufacturer           string `db:"manufacturer" json:"manufacturer"`
	ManufacturerPartNumber string `db:"manufacturer_part_number" json:"manufacturer_part_number"`
	ShortDescription       string `db:"short_description" json:"short_description"`
	ImageURL               string `db:"image_url" json:"image_url"`
}

// PriceBreak is one quantity tier of a vendor listing
type PriceBreak struct {
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PriceBreaks is stored as a JSON column
type PriceBreaks []PriceBreak

// Value implements driver.Valuer
func (pb PriceBreaks) Value() (driver.Value, error) {
	if pb == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(pb)
}

// Scan implements sql.Scanner
func (pb *PriceBreaks) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*pb = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported price breaks column type %T", src)
	}
	return json.Unmarshal(raw, pb)
}

// VendorPart is an immutable snapshot of a vendor listing at FetchedAt
type VendorPart struct {
	ID               int64           `db:"id" json:"id"`
	PartID           int64           `db:"part_id" json:"part_id"`
	Vendor           string          `db:"vendor" json:"vendor"`
	VendorPartNumber string          `db:"vendor_part_number" json:"vendor_part_number"`
	FetchedAt        time.Time       `db:"fetch_timestamp" json:"fetch_timestamp"`
	PriceBreaks      PriceBreaks     `db:"price_breaks" json:"price_breaks"`
	URL              string          `db:"url" json:"url"`
	Raw              json.RawMessage `db:"raw" json:"-"`
}

// IsFresh reports whether the snapshot is younger than window at now
func (vp *VendorPart) IsFresh(now time.Time, window time.Duration) bool {
	return now.Sub(vp.FetchedAt) < window
}

// Key returns the vendor/part-number pair that identifies the listing
func (vp *VendorPart) Key() VendorKey {
	return VendorKey{Vendor: vp.Vendor, VendorPartNumber: vp.VendorPartNumber}
}

// VendorKey identifies a vendor listing independently of snapshot
type VendorKey struct {
	Vendor           string
	VendorPartNumber string
}

// BOMPart is one component instance found in a schematic
type BOMPart struct {
	ID           int64   `db:"id" json:"id"`
	BOMID        int64   `db:"bom_id" json:"bom_id"`
	Reference    string  `db:"reference" json:"reference"`
	LookupSource *string `db:"lookup_source" json:"lookup_source,omitempty"`
	LookupID     *string `db:"lookup_id" json:"lookup_id,omitempty"`
	PartID       *int64  `db:"part_id" json:"part_id,omitempty"`
}

// Source returns the lookup source or "" when unmapped
func (bp *BOMPart) Source() string {
	if bp.LookupSource == nil {
		return ""
	}
	return *bp.LookupSource
}

// Lookup returns the lookup id or ""
func (bp *BOMPart) Lookup() string {
	if bp.LookupID == nil {
		return ""
	}
	return *bp.LookupID
}

// Resolved reports whether a Part has been attached
func (bp *BOMPart) Resolved() bool {
	return bp.PartID != nil
}

// BillOfMaterials is the set of parts extracted from one archive
type BillOfMaterials struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Archive    string    `db:"archive" json:"archive"`
	Version    string    `db:"version" json:"version"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Parts      []BOMPart `db:"-" json:"parts,omitempty"`
}

// Order is a purchasing request
type Order struct {
	ID             int64     `db:"id" json:"id"`
	OrderName      string    `db:"order_name" json:"order_name"`
	Description    string    `db:"description" json:"description"`
	DeliveryDate   time.Time `db:"delivery_date" json:"delivery_date"`
	CostObject     string    `db:"cost_object" json:"cost_object"`
	RequestorName  string    `db:"requestor_name" json:"requestor_name"`
	RequestorPhone string    `db:"requestor_phone" json:"requestor_phone"`
	SupervisorName string    `db:"supervisor_name" json:"supervisor_name"`
	Archived       bool      `db:"archived" json:"archived"`
	UserID         int64     `db:"user_id" json:"user_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// OrderBOM records a BOM and how many copies of it an order builds
type OrderBOM struct {
	ID       int64 `db:"id" json:"id"`
	OrderID  int64 `db:"order_id" json:"order_id"`
	BOMID    int64 `db:"bom_id" json:"bom_id"`
	BOMCount int   `db:"bom_count" json:"bom_count"`
}

// OrderLineItem links an order to exactly one vendor part snapshot
type OrderLineItem struct {
	ID            int64 `db:"id" json:"id"`
	OrderID       int64 `db:"order_id" json:"order_id"`
	VendorPartID  int64 `db:"vendor_part_id" json:"vendor_part_id"`
	NumberUsed    int   `db:"number_used" json:"number_used"`
	NumberOrdered int   `db:"number_ordered" json:"number_ordered"`
}

// LineItemDetail is a line item joined with its snapshot and part
type LineItemDetail struct {
	OrderLineItem
	VendorPart VendorPart `db:"vendor_part" json:"vendor_part"`
	Part       Part       `db:"part" json:"part"`
}

var ErrInvalidQuantity = errors.New("quantity must not be negative")
