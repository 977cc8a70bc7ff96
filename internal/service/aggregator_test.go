package service

import (
	"testing"
	"time"

	"bom-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedPart(ref, vendorName, vpn string, partID int64, vps ...models.VendorPart) AggregationPart {
	bp := models.BOMPart{Reference: ref, LookupSource: strPtr(vendorName), LookupID: strPtr(vpn), PartID: &partID}
	return AggregationPart{BOMPart: bp, VendorParts: vps}
}

func TestAggregateSumsMultipliersAcrossBOMs(t *testing.T) {
	vp := models.VendorPart{ID: 11, PartID: 1, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND"}

	lines, err := AggregateLineItems([]AggregationInput{
		{BOMID: 1, Multiplier: 2, Parts: []AggregationPart{resolvedPart("P1", "Digikey", "SAM8195-ND", 1, vp)}},
		{BOMID: 2, Multiplier: 3, Parts: []AggregationPart{resolvedPart("J4", "Digikey", "SAM8195-ND", 1, vp)}},
	}, nil)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(11), lines[0].VendorPart.ID)
	assert.Equal(t, 5, lines[0].NumberUsed)
	assert.Equal(t, 5, lines[0].NumberOrdered)
}

func TestAggregateCountsEveryInstanceInOneBOM(t *testing.T) {
	vp := models.VendorPart{ID: 11, PartID: 1, Vendor: "Digikey", VendorPartNumber: "311-10.0KHRCT-ND"}

	lines, err := AggregateLineItems([]AggregationInput{{
		BOMID: 1, Multiplier: 4,
		Parts: []AggregationPart{
			resolvedPart("R1", "Digikey", "311-10.0KHRCT-ND", 1, vp),
			resolvedPart("R2", "Digikey", "311-10.0KHRCT-ND", 1, vp),
		},
	}}, nil)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 8, lines[0].NumberUsed)
}

func TestAggregateSkipsUnorderableParts(t *testing.T) {
	mouserOnly := models.VendorPart{ID: 21, PartID: 2, Vendor: "Mouser", VendorPartNumber: "595-LM358"}
	vp := models.VendorPart{ID: 11, PartID: 1, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND"}

	lines, err := AggregateLineItems([]AggregationInput{{
		BOMID: 1, Multiplier: 1,
		Parts: []AggregationPart{
			{BOMPart: models.BOMPart{Reference: "R7"}},
			{BOMPart: models.BOMPart{Reference: "U2", LookupSource: strPtr("Digikey"), LookupID: strPtr("296-1395-5-ND")}},
			resolvedPart("U3", "Digikey", "296-1395-5-ND", 2, mouserOnly),
			resolvedPart("P1", "Digikey", "SAM8195-ND", 1, vp),
		},
	}}, nil)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "SAM8195-ND", lines[0].VendorPart.VendorPartNumber)
}

func TestAggregatePrefersNamedListingThenNewest(t *testing.T) {
	now := time.Now()
	otherListing := models.VendorPart{ID: 30, PartID: 1, Vendor: "Digikey", VendorPartNumber: "SAM8195TR-ND", FetchedAt: now}
	older := models.VendorPart{ID: 10, PartID: 1, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND", FetchedAt: now.Add(-48 * time.Hour)}
	newer := models.VendorPart{ID: 20, PartID: 1, Vendor: "Digikey", VendorPartNumber: "SAM8195-ND", FetchedAt: now.Add(-time.Hour)}

	lines, err := AggregateLineItems([]AggregationInput{{
		BOMID: 1, Multiplier: 1,
		Parts: []AggregationPart{resolvedPart("P1", "Digikey", "SAM8195-ND", 1, otherListing, older, newer)},
	}}, nil)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(20), lines[0].VendorPart.ID)
}

func TestAggregateKeepsFirstAppearanceOrder(t *testing.T) {
	a := models.VendorPart{ID: 1, PartID: 1, Vendor: "Digikey", VendorPartNumber: "A-ND"}
	b := models.VendorPart{ID: 2, PartID: 2, Vendor: "Digikey", VendorPartNumber: "B-ND"}

	lines, err := AggregateLineItems([]AggregationInput{
		{BOMID: 1, Multiplier: 1, Parts: []AggregationPart{resolvedPart("U1", "Digikey", "B-ND", 2, b)}},
		{BOMID: 2, Multiplier: 1, Parts: []AggregationPart{resolvedPart("U1", "Digikey", "A-ND", 1, a), resolvedPart("U2", "Digikey", "B-ND", 2, b)}},
	}, nil)

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "B-ND", lines[0].VendorPart.VendorPartNumber)
	assert.Equal(t, 2, lines[0].NumberUsed)
	assert.Equal(t, "A-ND", lines[1].VendorPart.VendorPartNumber)
}

func TestAggregateEmptySelection(t *testing.T) {
	_, err := AggregateLineItems(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = AggregateLineItems([]AggregationInput{{BOMID: 1, Multiplier: 1, Parts: []AggregationPart{
		{BOMPart: models.BOMPart{Reference: "R7"}},
	}}}, nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}
