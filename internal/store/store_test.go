package store

import (
	"context"
	"os"
	"testing"
	"time"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests: set TEST_DATABASE_URL to a disposable Postgres database.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func strPtr(s string) *string { return &s }

func TestLatestVendorPartAndRetarget(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	vpn := "IT-" + time.Now().Format("150405.000000")

	var openOrder, archivedOrder models.Order
	var oldSnap, newSnap models.VendorPart
	var openLine, archivedLine models.OrderLineItem

	err := store.RunInTx(ctx, func(tx repository.Writer) error {
		part := &models.Part{Manufacturer: "Samtec", ManufacturerPartNumber: vpn}
		require.NoError(t, tx.CreatePart(ctx, part))

		oldSnap = models.VendorPart{
			PartID: part.ID, Vendor: "Digikey", VendorPartNumber: vpn,
			FetchedAt:   time.Now().Add(-48 * time.Hour),
			PriceBreaks: models.PriceBreaks{{Quantity: 1, UnitPrice: decimal.RequireFromString("1.5")}},
		}
		require.NoError(t, tx.CreateVendorPart(ctx, &oldSnap))

		openOrder = models.Order{OrderName: "open", DeliveryDate: time.Now(), UserID: 1}
		archivedOrder = models.Order{OrderName: "archived", DeliveryDate: time.Now(), UserID: 1, Archived: true}
		require.NoError(t, tx.CreateOrder(ctx, &openOrder))
		require.NoError(t, tx.CreateOrder(ctx, &archivedOrder))

		openLine = models.OrderLineItem{OrderID: openOrder.ID, VendorPartID: oldSnap.ID, NumberUsed: 2, NumberOrdered: 2}
		archivedLine = models.OrderLineItem{OrderID: archivedOrder.ID, VendorPartID: oldSnap.ID, NumberUsed: 3, NumberOrdered: 3}
		require.NoError(t, tx.CreateOrderLineItem(ctx, &openLine))
		require.NoError(t, tx.CreateOrderLineItem(ctx, &archivedLine))

		newSnap = models.VendorPart{PartID: part.ID, Vendor: "Digikey", VendorPartNumber: vpn, FetchedAt: time.Now()}
		require.NoError(t, tx.CreateVendorPart(ctx, &newSnap))

		n, err := tx.RetargetOpenLineItems(ctx, "Digikey", vpn, newSnap.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	latest, err := store.GetLatestVendorPart(ctx, "Digikey", vpn)
	require.NoError(t, err)
	assert.Equal(t, newSnap.ID, latest.ID)

	openLines, err := store.GetOrderLineDetails(ctx, openOrder.ID)
	require.NoError(t, err)
	require.Len(t, openLines, 1)
	assert.Equal(t, newSnap.ID, openLines[0].VendorPartID)

	archivedLines, err := store.GetOrderLineDetails(ctx, archivedOrder.ID)
	require.NoError(t, err)
	require.Len(t, archivedLines, 1)
	assert.Equal(t, oldSnap.ID, archivedLines[0].VendorPartID)
	assert.True(t, decimal.RequireFromString("1.5").Equal(archivedLines[0].VendorPart.PriceBreaks[0].UnitPrice))
}

func TestRunInTxRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mpn := "ROLLBACK-" + time.Now().Format("150405.000000")

	err := store.RunInTx(ctx, func(tx repository.Writer) error {
		require.NoError(t, tx.CreatePart(ctx, &models.Part{Manufacturer: "Yageo", ManufacturerPartNumber: mpn}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = store.FindPartByMPN(ctx, "Yageo", mpn)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateBOMAssignsIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	bom := &models.BillOfMaterials{
		Name: "preamp", Archive: "preamp.zip", Version: "rev B", UploadedAt: time.Now(), UserID: 7,
		Parts: []models.BOMPart{
			{Reference: "P1", LookupSource: strPtr("Digikey"), LookupID: strPtr("SAM8195-ND")},
			{Reference: "R7"},
		},
	}
	require.NoError(t, store.CreateBOM(ctx, bom))
	assert.NotZero(t, bom.ID)

	got, err := store.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	require.Len(t, got.Parts, 2)
	assert.Equal(t, "P1", got.Parts[0].Reference)
	assert.Equal(t, "SAM8195-ND", got.Parts[0].Lookup())
	assert.Nil(t, got.Parts[1].LookupSource)
}
