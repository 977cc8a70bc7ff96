package models

import "time"

// Event types
const (
	EventTypeBOMUploaded         = "BOM_UPLOADED"
	EventTypeBOMResolved         = "BOM_RESOLVED"
	EventTypeVendorPartRefreshed = "VENDOR_PART_REFRESHED"
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderArchived       = "ORDER_ARCHIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BOMUploadedEvent published when a schematic archive has been parsed and stored
type BOMUploadedEvent struct {
	BaseEvent
	BOMID     int64 `json:"bom_id"`
	UserID    int64 `json:"user_id"`
	PartCount int   `json:"part_count"`
}

// BOMResolvedEvent published after a resolution pass over a BOM
type BOMResolvedEvent struct {
	BaseEvent
	BOMID    int64 `json:"bom_id"`
	Resolved int   `json:"resolved"`
	Unmapped int   `json:"unmapped"`
	Failed   int   `json:"failed"`
}

// VendorPartRefreshedEvent published when a new snapshot replaces a stale one
type VendorPartRefreshedEvent struct {
	BaseEvent
	VendorPartID     int64  `json:"vendor_part_id"`
	Vendor           string `json:"vendor"`
	VendorPartNumber string `json:"vendor_part_number"`
	LinesRetargeted  int64  `json:"lines_retargeted"`
}

// OrderCreatedEvent published when an order is aggregated from BOMs
type OrderCreatedEvent struct {
	BaseEvent
	OrderID   int64   `json:"order_id"`
	UserID    int64   `json:"user_id"`
	BOMIDs    []int64 `json:"bom_ids"`
	LineCount int     `json:"line_count"`
}

// OrderArchivedEvent published when an order is frozen
type OrderArchivedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}
