package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"
	"time"

	"bom-order-service/internal/pricing"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// LinesPerSheet is how many line items fit on one requisition form
const LinesPerSheet = 10

// PriceNotAvailable fills the price cell of a line without a qualifying break
const PriceNotAvailable = "N/A"

// VendorForm is the supplier block printed on the requisition
type VendorForm struct {
	LongName  string
	AddrLine1 string
	AddrLine2 string
	Phone     string
	Fax       string
	Website   string
}

// DigikeyForm is the supplier block for Digikey
var DigikeyForm = VendorForm{
	LongName:  "Digikey inc.",
	AddrLine1: "701 Brooks Avenue South",
	AddrLine2: "Thief River Falls, MN 56701 USA",
	Phone:     "218-681-6674",
	Fax:       "218-681-3380",
	Website:   "www.digikey.com",
}

// RequisitionLine is one printed row
type RequisitionLine struct {
	VendorPartNumber string
	Description      string
	NumberOrdered    int
	UnitPrice        string
}

// Requisition renders an order as a zip of PDF requisition sheets
type Requisition struct {
	form VendorForm
	now  func() time.Time
}

// NewRequisition creates a requisition exporter for one supplier
func NewRequisition(form VendorForm) *Requisition {
	return &Requisition{form: form, now: time.Now}
}

// Sheets splits the order's lines into pages of LinesPerSheet, priced at
// number_ordered. An order without lines still yields one blank sheet.
func Sheets(src LineSource) [][]RequisitionLine {
	lines := src.Lines()
	rows := make([]RequisitionLine, len(lines))
	for i := range lines {
		price := PriceNotAvailable
		if unit, err := pricing.PriceFor(&lines[i].VendorPart, lines[i].NumberOrdered); err == nil {
			price = unit.String()
		}
		rows[i] = RequisitionLine{
			VendorPartNumber: lines[i].VendorPart.VendorPartNumber,
			Description:      lines[i].Part.ShortDescription,
			NumberOrdered:    lines[i].NumberOrdered,
			UnitPrice:        price,
		}
	}

	if len(rows) == 0 {
		return [][]RequisitionLine{{}}
	}
	var sheets [][]RequisitionLine
	for start := 0; start < len(rows); start += LinesPerSheet {
		end := start + LinesPerSheet
		if end > len(rows) {
			end = len(rows)
		}
		sheets = append(sheets, rows[start:end])
	}
	return sheets
}

// Export returns the zip file name and contents
func (r *Requisition) Export(src LineSource) (string, []byte, error) {
	sheets := Sheets(src)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, sheet := range sheets {
		pdf, err := r.renderSheet(src, sheet, i+1, len(sheets))
		if err != nil {
			return "", nil, fmt.Errorf("failed to render sheet %d: %w", i+1, err)
		}
		w, err := zw.Create(fmt.Sprintf("digikey_req%02d.pdf", i+1))
		if err != nil {
			return "", nil, err
		}
		if _, err := w.Write(pdf); err != nil {
			return "", nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return "", nil, err
	}
	return SanitizeFilename(src.Order().OrderName, "zip"), buf.Bytes(), nil
}

func (r *Requisition) renderSheet(src LineSource, lines []RequisitionLine, n, total int) ([]byte, error) {
	order := src.Order()
	m := maroto.New(config.NewBuilder().Build())

	m.AddRow(12,
		text.NewCol(12, "Purchase Requisition", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(r.form.LongName, props.Text{Style: fontstyle.Bold}),
			text.New(r.form.AddrLine1, props.Text{Top: 5}),
			text.New(r.form.AddrLine2, props.Text{Top: 9}),
			text.New("Phone: "+r.form.Phone+"  Fax: "+r.form.Fax, props.Text{Top: 14}),
			text.New(r.form.Website, props.Text{Top: 19}),
		),
		col.New(6).Add(
			text.New("Description: "+order.Description, props.Text{}),
			text.New("Delivery date: "+order.DeliveryDate.Format("2006-01-02"), props.Text{Top: 5}),
			text.New("Cost object: "+order.CostObject, props.Text{Top: 10}),
			text.New("Date: "+r.now().Format("Jan. 02, 2006"), props.Text{Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(3, "Vendor part #", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range lines {
		m.AddRow(8,
			text.NewCol(3, line.VendorPartNumber, props.Text{Size: 9}),
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(2, strconv.Itoa(line.NumberOrdered), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.UnitPrice, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(20,
		col.New(6).Add(
			text.New("Requestor: "+order.RequestorName, props.Text{Top: 5}),
			text.New("Phone: "+order.RequestorPhone, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Supervisor: "+order.SupervisorName, props.Text{Top: 5}),
		),
	)

	m.AddRow(8,
		text.NewCol(12, fmt.Sprintf("Sheet %d of %d", n, total), props.Text{Size: 9}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
