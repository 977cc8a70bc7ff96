package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"bom-order-service/internal/models"

	"github.com/shopspring/decimal"
)

// ErrPriceNotFound matches every PriceNotFoundError via errors.Is
var ErrPriceNotFound = errors.New("price not found")

// PriceNotFoundError means no break applies to the requested quantity
type PriceNotFoundError struct {
	Quantity         int
	VendorPartNumber string
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("no price-cut found for quantity %d of vendor part %s", e.Quantity, e.VendorPartNumber)
}

func (e *PriceNotFoundError) Is(target error) bool {
	return target == ErrPriceNotFound
}

// PriceFor selects the unit price for quantity from the vendor part's breaks.
//
// A quantity of zero yields the smallest-cutoff (list) price. Any other
// quantity takes the highest cutoff that does not exceed it; a positive
// quantity below every cutoff has no price.
func PriceFor(vp *models.VendorPart, quantity int) (decimal.Decimal, error) {
	breaks := sortedDesc(vp.PriceBreaks)
	notFound := &PriceNotFoundError{Quantity: quantity, VendorPartNumber: vp.VendorPartNumber}

	if len(breaks) == 0 {
		return decimal.Zero, notFound
	}

	if quantity == 0 {
		return breaks[len(breaks)-1].UnitPrice, nil
	}

	for _, b := range breaks {
		if quantity >= b.Quantity {
			return b.UnitPrice, nil
		}
	}

	return decimal.Zero, notFound
}

// ExtendedPrice is the unit price for quantity multiplied by quantity
func ExtendedPrice(vp *models.VendorPart, quantity int) (decimal.Decimal, error) {
	unit, err := PriceFor(vp, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// FormatBreaks renders breaks ascending as "qty:price~qty:price"
func FormatBreaks(breaks models.PriceBreaks) string {
	sorted := sortedDesc(breaks)
	parts := make([]string, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%d:%s", sorted[i].Quantity, sorted[i].UnitPrice.StringFixed(4)))
	}
	return strings.Join(parts, "~")
}

// sortedDesc copies so the stored snapshot is never reordered
func sortedDesc(breaks models.PriceBreaks) []models.PriceBreak {
	out := make([]models.PriceBreak, len(breaks))
	copy(out, breaks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].UnitPrice.GreaterThan(out[j].UnitPrice)
	})
	return out
}
