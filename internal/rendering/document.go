package rendering

import (
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// Document is the print model shared by invoices and credit notes. Every
// amount is preformatted; the layout never does arithmetic.
type Document struct {
	Title     string
	Number    string
	IssueDate string
	DueDate   string
	Reference string

	BillToName    string
	BillToAddress string
	BillToEmail   string
	BillToTaxID   string

	Lines  []DocumentLine
	Totals []TotalLine
	Memo   string
}

type DocumentLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	Discount    string
	Tax         string
	Amount      string
}

type TotalLine struct {
	Label  string
	Value  string
	Strong bool
}

// RenderPDF lays out doc as an A4 PDF.
func RenderPDF(doc Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, doc.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	meta := col.New(6).Add(
		text.New("Number: "+doc.Number, props.Text{Top: 0}),
		text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
	)
	if doc.DueDate != "" {
		meta.Add(text.New("Date due: "+doc.DueDate, props.Text{Top: 8}))
	}
	if doc.Reference != "" {
		meta.Add(text.New(doc.Reference, props.Text{Top: 12}))
	}
	m.AddRow(20, meta, col.New(6))

	billTo := col.New(6).Add(
		text.New("Bill to", props.Text{Style: fontstyle.Bold}),
		text.New(doc.BillToName, props.Text{Top: 5}),
		text.New(doc.BillToAddress, props.Text{Top: 9}),
		text.New(doc.BillToEmail, props.Text{Top: 17}),
	)
	if doc.BillToTaxID != "" {
		billTo.Add(text.New("Tax ID: "+doc.BillToTaxID, props.Text{Top: 21}))
	}
	m.AddRow(30, billTo, col.New(6))

	header := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(10,
		text.NewCol(4, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Qty", header),
		text.NewCol(2, "Unit price", header),
		text.NewCol(1, "Discount", header),
		text.NewCol(2, "Tax", header),
		text.NewCol(2, "Amount", header),
	)
	m.AddRow(2, line.NewCol(12))

	cell := props.Text{Size: 9, Align: align.Right}
	for _, l := range doc.Lines {
		m.AddRow(8,
			text.NewCol(4, l.Description, props.Text{Size: 9}),
			text.NewCol(1, l.Quantity, cell),
			text.NewCol(2, l.UnitPrice, cell),
			text.NewCol(1, l.Discount, cell),
			text.NewCol(2, l.Tax, cell),
			text.NewCol(2, l.Amount, cell),
		)
	}
	m.AddRow(2, line.NewCol(12))

	for _, total := range doc.Totals {
		style := props.Text{Size: 9}
		if total.Strong {
			style.Style = fontstyle.Bold
		}
		value := style
		value.Align = align.Right
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, total.Label, style),
			text.NewCol(2, total.Value, value),
		)
	}

	if doc.Memo != "" {
		m.AddRow(15, text.NewCol(12, doc.Memo, props.Text{Size: 9, Top: 5}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}
