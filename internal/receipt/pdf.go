package receipt

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"ms-booking/internal/models"
	"os"

	"github.com/signintech/gopdf"
)

// PDFRenderer lays a receipt out on one A4 page. The font must be a TrueType
// file with the glyphs used by vendor and currency text.
type PDFRenderer struct {
	fontPath string
}

func NewPDFRenderer(fontPath string) (*PDFRenderer, error) {
	if fontPath == "" {
		return nil, errors.New("receipt font path is empty")
	}
	if _, err := os.Stat(fontPath); err != nil {
		return nil, fmt.Errorf("receipt font: %w", err)
	}
	return &PDFRenderer{fontPath: fontPath}, nil
}

// Render returns the PDF bytes. qr, when present, is a PNG placed under the totals.
func (g *PDFRenderer) Render(r *models.Receipt, qr []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("receipt", g.fontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("receipt", "", 18); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(40)
	pdf.Cell(nil, "OFFICIAL RECEIPT")

	if err := pdf.SetFont("receipt", "", 12); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetY(80)
	for _, line := range lines(r) {
		pdf.SetX(40)
		pdf.Cell(nil, line[0]+": "+line[1])
		pdf.Br(20)
	}

	if len(qr) > 0 {
		img, err := png.Decode(bytes.NewReader(qr))
		if err != nil {
			return nil, fmt.Errorf("decode receipt QR: %w", err)
		}
		if err := pdf.ImageFrom(img, 40, pdf.GetY()+20, &gopdf.Rect{W: 140, H: 140}); err != nil {
			return nil, fmt.Errorf("draw receipt QR: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func lines(r *models.Receipt) [][2]string {
	return [][2]string{
		{"Receipt No.", r.Number},
		{"Booking", r.BookingReference},
		{"Payment type", string(r.PaymentType)},
		{"Amount", FormatAmount(r.Amount, r.Currency)},
		{"Total paid", FormatAmount(r.TotalPaid, r.Currency)},
		{"Remaining balance", FormatAmount(r.RemainingBalance, r.Currency)},
		{"Issued", r.IssuedAt.UTC().Format("2006-01-02 15:04 MST")},
	}
}

// FormatAmount renders minor units as "PHP 15,000.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	whole, cents := minor/100, minor%100

	digits := fmt.Sprintf("%d", whole)
	var grouped []byte
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, digits[i])
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, grouped, cents)
}
