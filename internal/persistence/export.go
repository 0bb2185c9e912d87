package persistence

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiffinbill/internal/domain"
	"tiffinbill/internal/history"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{"Bill ID", "Date", "Time", "Items", "Subtotal", "Tax", "Total", "Payment Method"}

type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Export renders snap in the requested format and records the backup time.
// A failure to record the timestamp is returned alongside a usable export.
func (g *Gateway) Export(ctx context.Context, snap domain.Snapshot, format string, now time.Time) (Export, error) {
	var (
		out Export
		err error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		out, err = g.exportJSON(snap, now)
	case FormatCSV:
		out, err = g.exportCSV(snap.Bills, now)
	default:
		return Export{}, fmt.Errorf("%w: unsupported export format %q", domain.ErrInvalidInput, format)
	}
	if err != nil {
		return Export{}, err
	}

	if err := g.RecordBackup(ctx, now); err != nil {
		g.logger.Warn("record last backup", zap.Error(err))
		return out, err
	}
	return out, nil
}

func (g *Gateway) exportJSON(snap domain.Snapshot, now time.Time) (Export, error) {
	backup := domain.Backup{
		Settings:   snap.Settings,
		MenuItems:  snap.Catalog,
		Bills:      nonNilBills(snap.Bills),
		ExportDate: now.UTC(),
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return Export{}, err
	}
	return Export{
		FileName:    fmt.Sprintf("tiffin-shop-backup-%s.json", now.In(g.loc).Format(history.DateLayout)),
		ContentType: "application/json",
		Data:        data,
	}, nil
}

// exportCSV lists the bills of the current month, one row per bill.
func (g *Gateway) exportCSV(bills []domain.Bill, now time.Time) (Export, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return Export{}, err
	}
	for _, bill := range history.InMonth(bills, now, g.loc) {
		local := bill.CreatedAt.In(g.loc)
		row := []string{
			bill.ID,
			local.Format(history.DateLayout),
			local.Format("15:04:05"),
			itemSummary(bill.Items),
			bill.Subtotal.String(),
			bill.Tax.String(),
			bill.Total.String(),
			string(bill.PaymentMethod),
		}
		if err := w.Write(row); err != nil {
			return Export{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Export{}, err
	}
	return Export{
		FileName:    fmt.Sprintf("tiffin-shop-sales-%s.csv", history.Month(now, g.loc)),
		ContentType: "text/csv; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

func itemSummary(lines []domain.OrderLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s x%d", line.DisplayName, line.Quantity))
	}
	return strings.Join(parts, "; ")
}
