// Package export renders orders into the files purchasing submits: a vendor
// cart upload and the paper requisition form.
package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"unicode"

	"bom-order-service/internal/models"
	"bom-order-service/internal/vendor"
)

// LineSource supplies an order and its line items to an exporter
type LineSource interface {
	Order() models.Order
	Lines() []models.LineItemDetail
}

// OrderSheet is the plain LineSource built from stored rows
type OrderSheet struct {
	order models.Order
	lines []models.LineItemDetail
}

// NewOrderSheet creates a LineSource over already loaded rows
func NewOrderSheet(order models.Order, lines []models.LineItemDetail) *OrderSheet {
	return &OrderSheet{order: order, lines: lines}
}

func (s *OrderSheet) Order() models.Order            { return s.order }
func (s *OrderSheet) Lines() []models.LineItemDetail { return s.lines }

// SanitizeFilename keeps letters, digits and spaces of name, trims trailing
// spaces, turns the rest into underscores and appends ext.
func SanitizeFilename(name, ext string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	clean := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	return clean + "." + ext
}

// DigikeyCart renders the Digikey bulk-add cart: one
// "vendor_part_number,number_ordered," record per Digikey line.
func DigikeyCart(src LineSource) (string, []byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, line := range src.Lines() {
		if line.VendorPart.Vendor != vendor.DigikeyName {
			continue
		}
		record := []string{line.VendorPart.VendorPartNumber, strconv.Itoa(line.NumberOrdered), ""}
		if err := w.Write(record); err != nil {
			return "", nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, err
	}
	return SanitizeFilename(src.Order().OrderName, "csv"), buf.Bytes(), nil
}
