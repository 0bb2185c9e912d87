package receipt

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tiffinbill/internal/domain"
)

func paidBill() domain.Bill {
	received := decimal.NewFromInt(100)
	change := decimal.RequireFromString("10.75")
	completedAt := time.Date(2024, 1, 1, 8, 5, 0, 0, time.UTC)
	return domain.Bill{
		ID:        "BILL-20240101-001",
		CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Items: []domain.OrderLine{
			{CatalogItem: domain.CatalogItem{ID: "idly", DisplayName: "Idly", LocalizedName: "இட்லி", UnitPrice: decimal.NewFromInt(30)}, Quantity: 2},
			{CatalogItem: domain.CatalogItem{ID: "vada", DisplayName: "Vada", LocalizedName: "வடை", UnitPrice: decimal.NewFromInt(25)}, Quantity: 1},
		},
		Subtotal:      decimal.NewFromInt(85),
		Tax:           decimal.RequireFromString("4.25"),
		Total:         decimal.RequireFromString("89.25"),
		PaymentMethod: domain.PaymentCash,
		PaymentStatus: domain.PaymentCompleted,
		PaymentDetails: &domain.PaymentDetails{
			Method:       domain.PaymentCash,
			CashReceived: &received,
			ChangeGiven:  &change,
		},
		CompletedAt: &completedAt,
	}
}

func TestBuildRendersPreviewAndEscpos(t *testing.T) {
	p := NewPrinter(32, time.UTC)
	r, err := p.Build(paidBill(), domain.DefaultSettings())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if r.BillID != "BILL-20240101-001" || r.FileName != "receipt-BILL-20240101-001.bin" {
		t.Fatalf("unexpected receipt metadata %+v", r)
	}

	for _, want := range []string{"Tiffin Shop", "2x Idly", "Rs.60.00", "TOTAL", "Rs.89.25", "Change", "Rs.10.75", "2024-01-01 08:00"} {
		if !strings.Contains(r.PreviewText, want) {
			t.Fatalf("expected preview to contain %q:\n%s", want, r.PreviewText)
		}
	}
	for _, line := range strings.Split(r.PreviewText, "\n") {
		if n := len([]rune(line)); n > 32 {
			t.Fatalf("line wider than paper (%d): %q", n, line)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(r.EscposBase64)
	if err != nil {
		t.Fatalf("escpos payload is not base64: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{esc, '@'}) {
		t.Fatalf("expected printer init at start")
	}
	if !bytes.HasSuffix(raw, []byte{gs, 'V', 0x41, 0x10}) {
		t.Fatalf("expected paper cut at end")
	}
}

func TestBuildRejectsPendingBill(t *testing.T) {
	bill := paidBill()
	bill.PaymentStatus = domain.PaymentPending

	p := NewPrinter(32, time.UTC)
	if _, err := p.Build(bill, domain.DefaultSettings()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected pending bill to be rejected, got %v", err)
	}
	if _, err := p.HTML(bill, domain.DefaultSettings()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected pending bill to be rejected for html, got %v", err)
	}
}

func TestHTMLEscapesShopName(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.ShopName = "<b>Amma</b>"

	page, err := NewPrinter(32, time.UTC).HTML(paidBill(), settings)
	if err != nil {
		t.Fatalf("html failed: %v", err)
	}
	if strings.Contains(page, "<b>Amma</b>") || !strings.Contains(page, "&lt;b&gt;Amma&lt;/b&gt;") {
		t.Fatalf("expected shop name to be escaped")
	}
	if !strings.Contains(page, "₹89.25") || !strings.Contains(page, "இட்லி") {
		t.Fatalf("expected currency and tamil names in printable page")
	}
}

func TestPairRightAlignsValue(t *testing.T) {
	doc := NewDocument(20)
	doc.Pair("Total", "89.25")
	if got := doc.Preview(); got != "Total          89.25" {
		t.Fatalf("unexpected pair line %q", got)
	}

	doc = NewDocument(10)
	doc.Pair("Masala Dosa", "60.00")
	if got := doc.Preview(); got != "Masala Dosa 60.00" {
		t.Fatalf("overflowing pair must keep one space, got %q", got)
	}
}
