package statement

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/congo-pay/accountledger/internal/ledger"
)

const (
	pageMargin = 15.0
	rowHeight  = 6.0
)

var lineColumns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 30, "L"},
	{"Type", 60, "L"},
	{"Value", 45, "R"},
	{"Balance", 45, "R"},
}

// RenderPDF lays out st as a printable A4 document.
func RenderPDF(st Statement) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Account statement "+st.ClientID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Account statement", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, rowHeight, tr(fmt.Sprintf("Client: %s (%s)", st.ClientName, st.ClientID)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, rowHeight, "Period: "+periodLabel(st), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, a := range st.Accounts {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Account %s - %s", a.Number, a.Type)), "B", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, rowHeight, "Initial balance: "+a.InitialBalance.StringFixed(2), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range lineColumns {
			pdf.CellFormat(col.width, rowHeight, col.title, "1", 0, col.align, true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		if len(a.Movements) == 0 {
			pdf.CellFormat(0, rowHeight, "No movements in period", "", 1, "L", false, 0, "")
		}
		for _, l := range a.Movements {
			cells := []string{ledger.FormatDate(l.Date), tr(l.Type), l.Value.StringFixed(2), l.Balance.StringFixed(2)}
			for i, col := range lineColumns {
				pdf.CellFormat(col.width, rowHeight, cells[i], "1", 0, col.align, false, 0, "")
			}
			pdf.Ln(-1)
		}

		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, rowHeight, "Closing balance: "+a.ClosingBalance.StringFixed(2), "", 1, "R", false, 0, "")
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, rowHeight, "Total credits: "+st.Summary.TotalCredits.StringFixed(2), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, rowHeight, "Total debits: "+st.Summary.TotalDebits.StringFixed(2), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, rowHeight, "Closing balance: "+st.Summary.ClosingBalance.StringFixed(2), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func periodLabel(st Statement) string {
	from, to := "beginning", "today"
	if !st.From.IsZero() {
		from = ledger.FormatDate(st.From)
	}
	if !st.To.IsZero() {
		to = ledger.FormatDate(st.To)
	}
	return from + " to " + to
}
