package billing

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"tiffinbill/internal/domain"
	"tiffinbill/internal/ident"
	"tiffinbill/internal/order"
)

type State string

const (
	StateEmpty           State = "empty"
	StateGenerated       State = "generated"
	StateAwaitingPayment State = "awaiting_payment"
	StateCompleted       State = "completed"
)

// Lifecycle tracks the single bill being worked on at the counter.
type Lifecycle struct {
	state State
	bill  *domain.Bill
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateEmpty}
}

func (l *Lifecycle) State() State {
	return l.state
}

func (l *Lifecycle) Current() (domain.Bill, bool) {
	if l.bill == nil {
		return domain.Bill{}, false
	}
	return cloneBill(*l.bill), true
}

// Generate turns the order lines into a pending bill. Only allowed from the
// empty state: a pending or completed bill must be cancelled or reset first.
func (l *Lifecycle) Generate(lines []domain.OrderLine, settings domain.Settings, existing []domain.Bill, now time.Time) (domain.Bill, error) {
	if l.state != StateEmpty {
		return domain.Bill{}, fmt.Errorf("%w: current bill is %s", domain.ErrBillInProgress, l.state)
	}
	if len(lines) == 0 {
		return domain.Bill{}, domain.ErrEmptyOrder
	}

	summary := order.Summarize(lines, settings.TaxPercentage)
	bill := domain.Bill{
		ID:            NextBillID(existing, now),
		CreatedAt:     now,
		Items:         slices.Clone(lines),
		Subtotal:      summary.Subtotal,
		Tax:           summary.Tax,
		Total:         summary.Total,
		PaymentMethod: domain.PaymentNone,
		PaymentStatus: domain.PaymentPending,
	}
	l.bill = &bill
	l.state = StateGenerated
	return cloneBill(bill), nil
}

// AwaitPayment marks the generated bill as presented for payment.
func (l *Lifecycle) AwaitPayment() error {
	switch l.state {
	case StateGenerated:
		l.state = StateAwaitingPayment
		return nil
	case StateAwaitingPayment:
		return nil
	default:
		return fmt.Errorf("%w: cannot await payment from %s", domain.ErrInvalidTransition, l.state)
	}
}

// RecordPayment completes the pending bill. The returned bill is final and
// belongs at the head of the bill log.
func (l *Lifecycle) RecordPayment(req domain.PaymentRequest, settings domain.Settings, now time.Time) (domain.Bill, error) {
	if l.state != StateGenerated && l.state != StateAwaitingPayment {
		return domain.Bill{}, fmt.Errorf("%w: cannot record payment from %s", domain.ErrInvalidTransition, l.state)
	}

	bill := cloneBill(*l.bill)
	details := &domain.PaymentDetails{Method: req.Method}
	switch req.Method {
	case domain.PaymentCash:
		if !req.CashReceived.IsPositive() || req.CashReceived.LessThan(bill.Total) {
			return domain.Bill{}, &domain.InsufficientCashError{Received: req.CashReceived, Total: bill.Total}
		}
		received := req.CashReceived
		change := received.Sub(bill.Total)
		details.CashReceived = &received
		details.ChangeGiven = &change
	case domain.PaymentUPI:
		details.UPIID = strings.TrimSpace(req.UPIID)
		if details.UPIID == "" {
			details.UPIID = settings.DefaultPaymentID
		}
	default:
		return domain.Bill{}, fmt.Errorf("%w: unknown payment method %q", domain.ErrInvalidInput, req.Method)
	}

	completedAt := now
	bill.PaymentMethod = req.Method
	bill.PaymentStatus = domain.PaymentCompleted
	bill.PaymentDetails = details
	bill.CompletedAt = &completedAt

	l.bill = &bill
	l.state = StateCompleted
	return cloneBill(bill), nil
}

// CancelToEdit discards a pending bill. The order lines stay with the caller.
func (l *Lifecycle) CancelToEdit() error {
	if l.state != StateGenerated && l.state != StateAwaitingPayment {
		return fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidTransition, l.state)
	}
	l.bill = nil
	l.state = StateEmpty
	return nil
}

func (l *Lifecycle) ResetForNext() error {
	if l.state != StateCompleted {
		return fmt.Errorf("%w: cannot start the next bill from %s", domain.ErrInvalidTransition, l.state)
	}
	l.bill = nil
	l.state = StateEmpty
	return nil
}

// NextBillID numbers bills per calendar day of at, counting the ids already
// in the log that carry the same day prefix.
func NextBillID(existing []domain.Bill, at time.Time) string {
	prefix := ident.BillPrefix(at)
	count := 0
	for _, bill := range existing {
		if strings.HasPrefix(bill.ID, prefix) {
			count++
		}
	}
	return ident.BillID(at, count+1)
}

// UPIPayload builds the upi://pay request encoded into the payment QR code.
func UPIPayload(settings domain.Settings, bill domain.Bill, upiID string) domain.UPIRequest {
	payee := strings.TrimSpace(upiID)
	if payee == "" {
		payee = settings.DefaultPaymentID
	}
	amount := bill.Total.Round(2)

	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(escapePayee(payee))
	b.WriteString("&pn=")
	b.WriteString(escapeComponent(settings.ShopName))
	b.WriteString("&am=")
	b.WriteString(amount.StringFixed(2))
	b.WriteString("&cu=INR&tn=")
	b.WriteString(escapeComponent("Bill: " + bill.ID))

	return domain.UPIRequest{
		BillID: bill.ID,
		URI:    b.String(),
		Payee:  payee,
		Amount: amount,
	}
}

// escapeComponent percent-encodes s with spaces as %20, the form UPI apps expect.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// escapePayee encodes a virtual payment address, keeping the handle
// separator readable.
func escapePayee(s string) string {
	return strings.ReplaceAll(escapeComponent(s), "%40", "@")
}

func cloneBill(b domain.Bill) domain.Bill {
	b.Items = slices.Clone(b.Items)
	if b.PaymentDetails != nil {
		details := *b.PaymentDetails
		b.PaymentDetails = &details
	}
	if b.CompletedAt != nil {
		at := *b.CompletedAt
		b.CompletedAt = &at
	}
	return b
}
