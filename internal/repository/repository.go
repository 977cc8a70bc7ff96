// Package repository declares the persistence ports shared by the Postgres
// store and the in-memory store.
package repository

import (
	"context"
	"errors"

	"bom-order-service/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing
var ErrNotFound = errors.New("record not found")

// Reader holds the queries that need no transaction
type Reader interface {
	// GetLatestVendorPart returns the snapshot with the greatest fetch time
	// for the key, or ErrNotFound.
	GetLatestVendorPart(ctx context.Context, vendor, vendorPartNumber string) (*models.VendorPart, error)
	GetPartByID(ctx context.Context, id int64) (*models.Part, error)
	SearchParts(ctx context.Context, manufacturers []string, mpn string) ([]models.Part, error)
	ListVendorPartsByPartIDs(ctx context.Context, partIDs []int64) ([]models.VendorPart, error)

	GetBOM(ctx context.Context, id int64) (*models.BillOfMaterials, error)
	GetBOMsByIDs(ctx context.Context, ids []int64) ([]models.BillOfMaterials, error)
	ListBOMs(ctx context.Context) ([]models.BillOfMaterials, error)

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	GetOrderLineDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error)
	GetOrderBOMs(ctx context.Context, orderID int64) ([]models.OrderBOM, error)
}

// Writer holds every mutation. Inside RunInTx it is bound to the transaction.
type Writer interface {
	FindPartByMPN(ctx context.Context, manufacturer, mpn string) (*models.Part, error)
	CreatePart(ctx context.Context, part *models.Part) error
	BackfillPart(ctx context.Context, part *models.Part) error
	CreateVendorPart(ctx context.Context, vp *models.VendorPart) error
	SetBOMPartPart(ctx context.Context, bomPartID, partID int64) error

	// RetargetOpenLineItems points every line item of a non-archived order
	// whose snapshot has the same vendor and part number at vendorPartID.
	RetargetOpenLineItems(ctx context.Context, vendor, vendorPartNumber string, vendorPartID int64) (int64, error)

	CreateBOM(ctx context.Context, bom *models.BillOfMaterials) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderBOM(ctx context.Context, ob *models.OrderBOM) error
	CreateOrderLineItem(ctx context.Context, item *models.OrderLineItem) error
	UpdateNumberOrdered(ctx context.Context, orderID, lineID int64, numberOrdered int) error
	ArchiveOrder(ctx context.Context, orderID int64) error
}

// Store is the full persistence port
type Store interface {
	Reader
	Writer

	// RunInTx runs fn in one transaction; any error from fn rolls back
	// every write it made.
	RunInTx(ctx context.Context, fn func(tx Writer) error) error
}
