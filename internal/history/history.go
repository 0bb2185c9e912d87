package history

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"tiffinbill/internal/domain"
)

const (
	DateLayout = "2006-01-02"
	MethodAll  = "all"
)

// Day returns the calendar date of t in loc.
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

func Month(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// DefaultFilter spans the first of the current month through today.
func DefaultFilter(now time.Time, loc *time.Location) domain.HistoryFilter {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return domain.HistoryFilter{
		From:   first.Format(DateLayout),
		To:     local.Format(DateLayout),
		Method: MethodAll,
	}
}

// Apply returns the bills matching every predicate of f, in log order.
// Empty bounds are open. The source slice is never modified.
func Apply(bills []domain.Bill, f domain.HistoryFilter, loc *time.Location) []domain.Bill {
	method := strings.ToLower(strings.TrimSpace(f.Method))
	fold := cases.Fold()
	search := fold.String(strings.TrimSpace(f.Search))

	out := make([]domain.Bill, 0, len(bills))
	for _, bill := range bills {
		day := Day(bill.CreatedAt, loc)
		if f.From != "" && day < f.From {
			continue
		}
		if f.To != "" && day > f.To {
			continue
		}
		if method != "" && method != MethodAll && string(bill.PaymentMethod) != method {
			continue
		}
		if search != "" && !strings.Contains(fold.String(bill.ID), search) {
			continue
		}
		out = append(out, bill)
	}
	return out
}

// Dashboard summarizes the whole log relative to ref.
func Dashboard(bills []domain.Bill, ref time.Time, loc *time.Location) domain.DashboardStats {
	today := Day(ref, loc)
	month := Month(ref, loc)

	stats := domain.DashboardStats{
		TodaySales:  decimal.Zero,
		MonthSales:  decimal.Zero,
		AverageBill: decimal.Zero,
		TopItem:     "-",
	}
	overall := decimal.Zero
	quantities := make(map[string]int)
	var order []string

	for _, bill := range bills {
		overall = overall.Add(bill.Total)
		if Day(bill.CreatedAt, loc) == today {
			stats.TodaySales = stats.TodaySales.Add(bill.Total)
			stats.TodayBills++
		}
		if Month(bill.CreatedAt, loc) == month {
			stats.MonthSales = stats.MonthSales.Add(bill.Total)
			stats.MonthBills++
		}
		for _, line := range bill.Items {
			if _, seen := quantities[line.DisplayName]; !seen {
				order = append(order, line.DisplayName)
			}
			quantities[line.DisplayName] += line.Quantity
		}
	}

	if len(bills) > 0 {
		stats.AverageBill = overall.Div(decimal.NewFromInt(int64(len(bills))))
	}
	// Strictly greater replaces, so the first-seen name keeps a tie.
	for _, name := range order {
		if quantities[name] > stats.TopItemCount {
			stats.TopItem = name
			stats.TopItemCount = quantities[name]
		}
	}
	return stats
}

func SalesByDay(bills []domain.Bill, loc *time.Location) []domain.DailySales {
	byDay := make(map[string]*domain.DailySales)
	for _, bill := range bills {
		day := Day(bill.CreatedAt, loc)
		entry, ok := byDay[day]
		if !ok {
			entry = &domain.DailySales{Date: day, Total: decimal.Zero}
			byDay[day] = entry
		}
		entry.Bills++
		entry.Total = entry.Total.Add(bill.Total)
	}

	out := make([]domain.DailySales, 0, len(byDay))
	for _, entry := range byDay {
		out = append(out, *entry)
	}
	slices.SortFunc(out, func(a, b domain.DailySales) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

func PaymentSplit(bills []domain.Bill) domain.PaymentSplit {
	var split domain.PaymentSplit
	for _, bill := range bills {
		switch bill.PaymentMethod {
		case domain.PaymentCash:
			split.Cash++
		case domain.PaymentUPI:
			split.UPI++
		}
	}
	split.Total = split.Cash + split.UPI
	if split.Total == 0 {
		split.Empty = true
		return split
	}
	split.CashPercent = float64(split.Cash) * 100 / float64(split.Total)
	split.UPIPercent = float64(split.UPI) * 100 / float64(split.Total)
	return split
}

// RemoveDay drops every bill created on day, returning the kept bills and
// how many were removed.
func RemoveDay(bills []domain.Bill, day string, loc *time.Location) ([]domain.Bill, int) {
	kept := make([]domain.Bill, 0, len(bills))
	for _, bill := range bills {
		if Day(bill.CreatedAt, loc) == day {
			continue
		}
		kept = append(kept, bill)
	}
	return kept, len(bills) - len(kept)
}

// InMonth keeps the bills created in the same calendar month as ref.
func InMonth(bills []domain.Bill, ref time.Time, loc *time.Location) []domain.Bill {
	month := Month(ref, loc)
	out := make([]domain.Bill, 0, len(bills))
	for _, bill := range bills {
		if Month(bill.CreatedAt, loc) == month {
			out = append(out, bill)
		}
	}
	return out
}
