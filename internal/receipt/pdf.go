package receipt

import (
	"fmt"
	"io"
	"time"

	"storefront/internal/models"

	"github.com/go-pdf/fpdf"
)

const (
	storeName      = "SmartHome"
	maxNameLength  = 40
	compactAfter   = 8
	pageMarginSide = 15.0
	pageMarginTop  = 10.0
)

var brandGreen = [3]int{76, 175, 80}

// Filename is the download name of a receipt PDF.
func Filename(r models.LastOrderReceipt) string {
	if r.OrderID == "" {
		return "order-receipt.pdf"
	}
	return fmt.Sprintf("order-%s.pdf", r.OrderID)
}

// WritePDF renders the receipt as an A4 order confirmation.
func WritePDF(w io.Writer, r models.LastOrderReceipt, now time.Time) error {
	c := NewConfirmation(r, now)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMarginSide, pageMarginTop, pageMarginSide)
	pdf.SetTitle(fmt.Sprintf("Order %s", c.OrderID), true)
	pdf.SetCreator(storeName, true)
	pdf.SetCreationDate(now)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*pageMarginSide

	// header
	pdf.SetTextColor(brandGreen[0], brandGreen[1], brandGreen[2])
	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(contentWidth, 10, storeName, "", 1, "C", false, 0, "")
	pdf.SetTextColor(102, 102, 102)
	pdf.SetFont("Arial", "", 16)
	pdf.CellFormat(contentWidth, 8, "Order Confirmation Receipt", "", 1, "C", false, 0, "")
	pdf.SetDrawColor(brandGreen[0], brandGreen[1], brandGreen[2])
	pdf.SetLineWidth(1)
	pdf.Line(pageMarginSide, pdf.GetY()+2, pageWidth-pageMarginSide, pdf.GetY()+2)
	pdf.SetLineWidth(0.2)
	pdf.Ln(6)

	section(pdf, contentWidth, "Order Information")
	half := contentWidth / 2
	infoRow(pdf, tr, half, "Order ID:", c.OrderID)
	infoRow(pdf, tr, half, "Order Date:", c.Date)
	pdf.Ln(5)
	infoRow(pdf, tr, half, "Customer Name:", c.CustomerName)
	infoRow(pdf, tr, half, "Email:", c.Email)
	pdf.Ln(8)

	section(pdf, contentWidth, "Shipping Address")
	addr := r.ShippingAddress
	infoRow(pdf, tr, contentWidth, "Address:", orDefault(addr.Street, placeholder))
	pdf.Ln(5)
	infoRow(pdf, tr, contentWidth, "City:", orDefault(addr.City, placeholder))
	pdf.Ln(5)
	infoRow(pdf, tr, contentWidth, "State/ZIP:", orDefault(addr.State, placeholder)+" "+addr.Zip)
	pdf.Ln(8)

	section(pdf, contentWidth, "Order Items")
	itemsTable(pdf, tr, contentWidth, c.Items)
	pdf.Ln(4)

	section(pdf, contentWidth, "Order Summary")
	summaryLine(pdf, contentWidth, "Subtotal:", c.Subtotal, false)
	summaryLine(pdf, contentWidth, "Tax (6%):", c.Tax, false)
	summaryLine(pdf, contentWidth, "Shipping:", c.Shipping, false)
	summaryLine(pdf, contentWidth, "Total Amount:", c.Total, true)
	pdf.Ln(6)

	pdf.SetTextColor(brandGreen[0], brandGreen[1], brandGreen[2])
	pdf.SetFont("Arial", "I", 11)
	pdf.CellFormat(contentWidth, 8, "Thank you for your purchase! We appreciate your business.", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(102, 102, 102)
	pdf.SetFont("Arial", "B", 8)
	pdf.CellFormat(contentWidth, 4, storeName+" - Your Smart Living Partner", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(contentWidth, 4, "Contact: support@smarthome.com | Website: www.smarthome.com", "", 1, "C", false, 0, "")
	pdf.CellFormat(contentWidth, 4, "Generated on: "+now.Format("1/2/2006, 3:04:05 PM"), "", 1, "C", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}
	return pdf.Output(w)
}

func section(pdf *fpdf.Fpdf, width float64, title string) {
	pdf.SetTextColor(brandGreen[0], brandGreen[1], brandGreen[2])
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(width, 7, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func infoRow(pdf *fpdf.Fpdf, tr func(string) string, width float64, label, value string) {
	pdf.SetTextColor(85, 85, 85)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(32, 5, label, "", 0, "L", false, 0, "")
	pdf.SetTextColor(51, 51, 51)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(width-32, 5, tr(value), "", 0, "L", false, 0, "")
}

func itemsTable(pdf *fpdf.Fpdf, tr func(string) string, width float64, lines []Line) {
	fontSize := 10.0
	if len(lines) > compactAfter {
		fontSize = 9
	}
	cols := []float64{width * 0.50, width * 0.15, width * 0.20, width * 0.15}

	pdf.SetFillColor(brandGreen[0], brandGreen[1], brandGreen[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", fontSize)
	for i, h := range []string{"Product Name", "Qty", "Unit Price", "Total"} {
		pdf.CellFormat(cols[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(51, 51, 51)
	pdf.SetFont("Arial", "", fontSize)
	if len(lines) == 0 {
		pdf.CellFormat(width, 7, "No items in order", "1", 1, "C", false, 0, "")
		return
	}

	pdf.SetFillColor(249, 249, 249)
	for i, l := range lines {
		fill := i%2 == 1
		pdf.CellFormat(cols[0], 6, tr(truncate(l.Name)), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(cols[1], 6, fmt.Sprintf("%d", l.Quantity), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(cols[2], 6, "$"+l.UnitPrice, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(cols[3], 6, "$"+l.Total, "1", 0, "L", fill, 0, "")
		pdf.Ln(-1)
	}
}

func summaryLine(pdf *fpdf.Fpdf, width float64, label, amount string, grand bool) {
	size := 10.0
	if grand {
		size = 12
		pdf.SetTextColor(brandGreen[0], brandGreen[1], brandGreen[2])
	} else {
		pdf.SetTextColor(51, 51, 51)
	}
	pdf.SetFont("Arial", "B", size)
	pdf.CellFormat(width-40, 6, label, "", 0, "R", false, 0, "")
	pdf.SetFont("Arial", "", size)
	pdf.CellFormat(40, 6, "$"+amount, "", 1, "R", false, 0, "")
}

// truncate shortens long product names for the items table.
func truncate(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNameLength {
		return name
	}
	return string(runes[:maxNameLength]) + "..."
}
