package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTxDiscardsDraftOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx repository.Writer) error {
		require.NoError(t, tx.CreatePart(ctx, &models.Part{Manufacturer: "TI", ManufacturerPartNumber: "LM358"}))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.FindPartByMPN(ctx, "TI", "LM358")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFailOnInjectsWriteErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.FailOn("CreatePart", errors.New("disk full"))

	err := s.CreatePart(ctx, &models.Part{Manufacturer: "TI", ManufacturerPartNumber: "LM358"})
	assert.Error(t, err)

	s.FailOn("CreatePart", nil)
	assert.NoError(t, s.CreatePart(ctx, &models.Part{Manufacturer: "TI", ManufacturerPartNumber: "LM358"}))
}

func TestGetLatestVendorPart(t *testing.T) {
	s := New()
	ctx := context.Background()
	part := &models.Part{Manufacturer: "Samtec", ManufacturerPartNumber: "QTH-090"}
	require.NoError(t, s.CreatePart(ctx, part))

	now := time.Now()
	older := &models.VendorPart{PartID: part.ID, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND", FetchedAt: now.Add(-time.Hour)}
	newer := &models.VendorPart{PartID: part.ID, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND", FetchedAt: now}
	require.NoError(t, s.CreateVendorPart(ctx, newer))
	require.NoError(t, s.CreateVendorPart(ctx, older))

	got, err := s.GetLatestVendorPart(ctx, "Digikey", "SAM8195-ND")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	_, err = s.GetLatestVendorPart(ctx, "Digikey", "OTHER-ND")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRetargetSkipsArchivedOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	part := &models.Part{Manufacturer: "Samtec", ManufacturerPartNumber: "QTH-090"}
	require.NoError(t, s.CreatePart(ctx, part))
	old := &models.VendorPart{PartID: part.ID, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND"}
	require.NoError(t, s.CreateVendorPart(ctx, old))
	fresh := &models.VendorPart{PartID: part.ID, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND", FetchedAt: time.Now()}
	require.NoError(t, s.CreateVendorPart(ctx, fresh))

	open := &models.Order{OrderName: "open"}
	archived := &models.Order{OrderName: "archived", Archived: true}
	require.NoError(t, s.CreateOrder(ctx, open))
	require.NoError(t, s.CreateOrder(ctx, archived))
	require.NoError(t, s.CreateOrderLineItem(ctx, &models.OrderLineItem{OrderID: open.ID, VendorPartID: old.ID}))
	require.NoError(t, s.CreateOrderLineItem(ctx, &models.OrderLineItem{OrderID: archived.ID, VendorPartID: old.ID}))

	n, err := s.RetargetOpenLineItems(ctx, "Digikey", "SAM8195-ND", fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	openLines, _ := s.GetOrderLineDetails(ctx, open.ID)
	archivedLines, _ := s.GetOrderLineDetails(ctx, archived.ID)
	assert.Equal(t, fresh.ID, openLines[0].VendorPartID)
	assert.Equal(t, old.ID, archivedLines[0].VendorPartID)
}
