package receipt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tiffinbill/internal/domain"
)

type Receipt struct {
	BillID       string `json:"billId"`
	PreviewText  string `json:"previewText"`
	EscposBase64 string `json:"escposBase64"`
	FileName     string `json:"fileName"`
}

// Printer renders completed bills for the thermal printer and the browser
// print dialog.
type Printer struct {
	width int
	loc   *time.Location
}

func NewPrinter(width int, loc *time.Location) *Printer {
	if loc == nil {
		loc = time.Local
	}
	return &Printer{width: width, loc: loc}
}

func (p *Printer) Build(bill domain.Bill, settings domain.Settings) (Receipt, error) {
	if !bill.Completed() {
		return Receipt{}, fmt.Errorf("%w: bill %s is not paid", domain.ErrInvalidTransition, bill.ID)
	}
	currency := asciiCurrency(settings.CurrencySymbol)

	doc := NewDocument(p.width)
	doc.Align(AlignCenter).Bold(true).DoubleSize(true).Text(settings.ShopName).DoubleSize(false).Bold(false)
	doc.Text(settings.ShopAddress)
	doc.Align(AlignLeft).Separator('=')
	doc.Pair("Bill", bill.ID)
	doc.Pair("Date", bill.CreatedAt.In(p.loc).Format("2006-01-02 15:04"))
	doc.Separator('-')
	for _, line := range bill.Items {
		doc.Item(line.Quantity, line.DisplayName, money(currency, line.LineTotal()))
	}
	doc.Separator('-')
	doc.Pair("Subtotal", money(currency, bill.Subtotal))
	doc.Pair(fmt.Sprintf("Tax (%s%%)", settings.TaxPercentage.String()), money(currency, bill.Tax))
	doc.Bold(true).Pair("TOTAL", money(currency, bill.Total)).Bold(false)
	doc.Separator('-')
	doc.Pair("Payment", strings.ToUpper(string(bill.PaymentMethod)))
	if details := bill.PaymentDetails; details != nil {
		switch details.Method {
		case domain.PaymentCash:
			if details.CashReceived != nil {
				doc.Pair("Cash", money(currency, *details.CashReceived))
			}
			if details.ChangeGiven != nil {
				doc.Pair("Change", money(currency, *details.ChangeGiven))
			}
		case domain.PaymentUPI:
			doc.Pair("UPI", details.UPIID)
		}
	}
	doc.Separator('=')
	doc.Align(AlignCenter).Text("Thank you! Visit again")
	doc.Feed(3).Cut()

	return Receipt{
		BillID:       bill.ID,
		PreviewText:  doc.Preview(),
		EscposBase64: base64.StdEncoding.EncodeToString(doc.Bytes()),
		FileName:     fmt.Sprintf("receipt-%s.bin", bill.ID),
	}, nil
}

type htmlLine struct {
	Name     string
	Tamil    string
	Quantity int
	Price    string
	Total    string
}

type htmlReceipt struct {
	Settings    domain.Settings
	Bill        domain.Bill
	Date        string
	Lines       []htmlLine
	Subtotal    string
	Tax         string
	Total       string
	Cash        string
	Change      string
	UPIID       string
	PaymentName string
}

var receiptHTMLTmpl = template.Must(template.New("receipt").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Bill.ID}}</title>
  <style>
    body { font-family: monospace; width: 300px; margin: 12px auto; }
    h2, p { text-align: center; margin: 2px 0; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    td { padding: 2px 0; font-size: 13px; }
    .num { text-align: right; }
    .total td { font-weight: bold; border-top: 1px dashed #000; }
    small { color: #555; }
  </style>
</head>
<body onload="window.print()">
  <h2>{{.Settings.ShopName}}</h2>
  <p>{{.Settings.ShopAddress}}</p>
  <p>{{.Bill.ID}} | {{.Date}}</p>
  <table>
    <tbody>{{range .Lines}}<tr><td>{{.Name}}<br /><small>{{.Tamil}}</small></td><td class="num">{{.Quantity}} x {{.Price}}</td><td class="num">{{.Total}}</td></tr>{{end}}</tbody>
    <tfoot>
      <tr><td colspan="2">Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
      <tr><td colspan="2">Tax ({{.Settings.TaxPercentage}}%)</td><td class="num">{{.Tax}}</td></tr>
      <tr class="total"><td colspan="2">Total</td><td class="num">{{.Total}}</td></tr>
      <tr><td colspan="2">Payment</td><td class="num">{{.PaymentName}}</td></tr>
      {{if .Cash}}<tr><td colspan="2">Cash received</td><td class="num">{{.Cash}}</td></tr><tr><td colspan="2">Change</td><td class="num">{{.Change}}</td></tr>{{end}}
      {{if .UPIID}}<tr><td colspan="2">UPI</td><td class="num">{{.UPIID}}</td></tr>{{end}}
    </tfoot>
  </table>
  <p>Thank you! Visit again</p>
</body>
</html>
`))

// HTML renders a printable page for the host print dialog.
func (p *Printer) HTML(bill domain.Bill, settings domain.Settings) (string, error) {
	if !bill.Completed() {
		return "", fmt.Errorf("%w: bill %s is not paid", domain.ErrInvalidTransition, bill.ID)
	}
	currency := settings.CurrencySymbol
	view := htmlReceipt{
		Settings:    settings,
		Bill:        bill,
		Date:        bill.CreatedAt.In(p.loc).Format("2006-01-02 15:04"),
		Subtotal:    money(currency, bill.Subtotal),
		Tax:         money(currency, bill.Tax),
		Total:       money(currency, bill.Total),
		PaymentName: strings.ToUpper(string(bill.PaymentMethod)),
	}
	for _, line := range bill.Items {
		view.Lines = append(view.Lines, htmlLine{
			Name:     line.DisplayName,
			Tamil:    line.LocalizedName,
			Quantity: line.Quantity,
			Price:    money(currency, line.UnitPrice),
			Total:    money(currency, line.LineTotal()),
		})
	}
	if details := bill.PaymentDetails; details != nil {
		if details.CashReceived != nil {
			view.Cash = money(currency, *details.CashReceived)
		}
		if details.ChangeGiven != nil {
			view.Change = money(currency, *details.ChangeGiven)
		}
		view.UPIID = details.UPIID
	}

	var buf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func money(currency string, amount decimal.Decimal) string {
	return currency + amount.StringFixed(2)
}

// asciiCurrency keeps thermal output within the printer's default code page.
func asciiCurrency(symbol string) string {
	for _, r := range symbol {
		if r > 127 {
			return "Rs."
		}
	}
	return symbol
}
