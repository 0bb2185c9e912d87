package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiffinbill/internal/domain"
	"tiffinbill/internal/store"
	"tiffinbill/internal/store/memory"
)

func newGateway(kv store.KV) *Gateway {
	return New(kv, zap.NewNop(), time.UTC)
}

func sampleSnapshot(at time.Time) domain.Snapshot {
	cash := decimal.NewFromInt(100)
	change := decimal.RequireFromString("10.75")
	completed := at.Add(2 * time.Minute)
	return domain.Snapshot{
		Settings: domain.DefaultSettings(),
		Catalog:  domain.DefaultCatalog(),
		Theme:    domain.ThemeDark,
		Bills: []domain.Bill{
			{
				ID:        "BILL-20240315-001",
				CreatedAt: at,
				Items: []domain.OrderLine{
					{CatalogItem: domain.DefaultCatalog()[0], Quantity: 2},
					{CatalogItem: domain.DefaultCatalog()[5], Quantity: 1},
				},
				Subtotal:       decimal.NewFromInt(85),
				Tax:            decimal.RequireFromString("4.25"),
				Total:          decimal.RequireFromString("89.25"),
				PaymentMethod:  domain.PaymentCash,
				PaymentStatus:  domain.PaymentCompleted,
				PaymentDetails: &domain.PaymentDetails{Method: domain.PaymentCash, CashReceived: &cash, ChangeGiven: &change},
				CompletedAt:    &completed,
			},
		},
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	g := newGateway(memory.New())
	snap, report := g.Load(context.Background())

	if snap.Settings.ShopName != "Tiffin Shop" || len(snap.Catalog) != 7 || len(snap.Bills) != 0 || snap.Theme != domain.ThemeLight {
		t.Fatalf("unexpected defaults %+v", snap)
	}
	if snap.Bills == nil {
		t.Fatalf("bill log must be an empty slice, not nil")
	}
	if len(report.Defaulted) != 4 {
		t.Fatalf("expected four defaulted keys, got %v", report.Defaulted)
	}
}

func TestLoadFallsBackPerKey(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	keys := DefaultKeys()
	_ = kv.Set(ctx, keys.Settings, []byte(`{"shopName":"Murugan Idli Kadai"}`))
	_ = kv.Set(ctx, keys.Catalog, []byte(`{not json`))
	_ = kv.Set(ctx, keys.Bills, []byte(`[{"id":"BILL-20240315-001","date":"2024-03-15T10:00:00.000Z","items":[],"subtotal":10,"tax":0.5,"total":10.5,"paymentMethod":"upi","paymentStatus":"completed"}]`))
	_ = kv.Set(ctx, keys.Theme, []byte("purple"))

	snap, report := newGateway(kv).Load(ctx)

	if snap.Settings.ShopName != "Murugan Idli Kadai" || snap.Settings.ShopAddress != "Chennai, Tamil Nadu" {
		t.Fatalf("expected saved settings merged over defaults, got %+v", snap.Settings)
	}
	if !snap.Settings.TaxPercentage.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected default tax to survive the merge, got %s", snap.Settings.TaxPercentage)
	}
	if len(snap.Catalog) != 7 {
		t.Fatalf("expected default catalog for corrupt record, got %d items", len(snap.Catalog))
	}
	if len(snap.Bills) != 1 || !snap.Bills[0].Total.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("expected stored bill to load, got %+v", snap.Bills)
	}
	if snap.Theme != domain.ThemeLight {
		t.Fatalf("expected unknown theme to fall back, got %s", snap.Theme)
	}
	if strings.Join(report.Defaulted, ",") != keys.Catalog+","+keys.Theme {
		t.Fatalf("unexpected defaulted keys %v", report.Defaulted)
	}
}

func TestImageMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	keys := DefaultKeys()
	stale := []domain.CatalogItem{
		{ID: "dosa", DisplayName: "Dosa", LocalizedName: "தோசை", UnitPrice: decimal.NewFromInt(40), ImageRef: "https://images.example.com/dosa.jpg"},
		{ID: "pongal", DisplayName: "Pongal", LocalizedName: "பொங்கல்", UnitPrice: decimal.NewFromInt(40), ImageRef: "uploads/my-pongal.png"},
		{ID: "vada", DisplayName: "Vada", LocalizedName: "வடை", UnitPrice: decimal.NewFromInt(25), ImageRef: "https://images.example.com/vada.jpg"},
	}
	_ = kv.Set(ctx, keys.Catalog, []byte(mustJSON(t, stale)))

	g := newGateway(kv)
	first, report := g.Load(ctx)
	if report.Migrated != 1 {
		t.Fatalf("expected one migrated item, got %d", report.Migrated)
	}
	if first.Catalog[0].ImageRef != "asset/dosa.jpg" {
		t.Fatalf("expected dosa to point at bundled asset, got %s", first.Catalog[0].ImageRef)
	}
	if first.Catalog[1].ImageRef != "uploads/my-pongal.png" || first.Catalog[2].ImageRef != "https://images.example.com/vada.jpg" {
		t.Fatalf("migration touched items outside the remap table")
	}

	second, report := g.Load(ctx)
	if report.Migrated != 0 {
		t.Fatalf("second load must not migrate again, got %d", report.Migrated)
	}
	if mustJSON(t, first.Catalog) != mustJSON(t, second.Catalog) {
		t.Fatalf("catalog changed on second load")
	}
}

func TestSaveIsolatesKeyFailures(t *testing.T) {
	ctx := context.Background()
	snap := sampleSnapshot(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	settingsSize := len(mustJSON(t, snap.Settings))
	catalogSize := len(mustJSON(t, snap.Catalog))
	kv := memory.NewWithQuota(settingsSize + catalogSize + 10)
	g := newGateway(kv)

	err := g.Save(ctx, snap)
	var writeErr *domain.StorageWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected StorageWriteError, got %v", err)
	}
	if _, failed := writeErr.Failures[DefaultKeys().Bills]; !failed {
		t.Fatalf("expected bills key to fail, got %v", writeErr.Keys())
	}
	if !errors.Is(err, store.ErrQuotaExceeded) {
		t.Fatalf("expected quota cause to unwrap, got %v", err)
	}

	stored := kv.Snapshot()
	if string(stored[DefaultKeys().Settings]) != mustJSON(t, snap.Settings) {
		t.Fatalf("settings written before the failing key must stay committed")
	}
	if string(stored[DefaultKeys().Theme]) != "dark" {
		t.Fatalf("theme written after the failing key must still be committed, got %q", stored[DefaultKeys().Theme])
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	snap := sampleSnapshot(at)
	g := newGateway(memory.New())

	out, err := g.Export(ctx, snap, FormatJSON, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if out.FileName != "tiffin-shop-backup-2024-03-15.json" {
		t.Fatalf("unexpected file name %s", out.FileName)
	}
	if !strings.Contains(string(out.Data), "\n  \"settings\"") {
		t.Fatalf("expected pretty-printed export")
	}

	backup, err := ParseBackup(out.Data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	restored := backup.Apply(domain.Snapshot{Settings: domain.DefaultSettings(), Catalog: domain.DefaultCatalog()[:1], Theme: domain.ThemeLight})

	if mustJSON(t, restored.Settings) != mustJSON(t, snap.Settings) {
		t.Fatalf("settings differ after round trip")
	}
	if mustJSON(t, restored.Catalog) != mustJSON(t, snap.Catalog) {
		t.Fatalf("catalog differs after round trip")
	}
	if mustJSON(t, restored.Bills) != mustJSON(t, snap.Bills) {
		t.Fatalf("bills differ after round trip:\n%s\n%s", mustJSON(t, restored.Bills), mustJSON(t, snap.Bills))
	}
	if restored.Theme != domain.ThemeLight {
		t.Fatalf("import must not touch the theme")
	}

	last, err := g.LastBackup(ctx)
	if err != nil || last == nil || !last.Equal(at.Add(time.Hour)) {
		t.Fatalf("expected last backup to be recorded, got %v (%v)", last, err)
	}
}

func TestParseBackupMergesOnlyPresentSections(t *testing.T) {
	backup, err := ParseBackup([]byte(`{"settings":{"shopName":"Saravana","shopAddress":"Madurai","taxPercentage":0},"extra":true}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	current := sampleSnapshot(time.Now().UTC())
	merged := backup.Apply(current)

	if merged.Settings.ShopName != "Saravana" || !merged.Settings.TaxPercentage.IsZero() {
		t.Fatalf("expected imported settings, got %+v", merged.Settings)
	}
	if len(merged.Bills) != 1 || len(merged.Catalog) != 7 {
		t.Fatalf("absent sections must be left untouched")
	}
}

func TestParseBackupRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":          `hello`,
		"array":             `[1,2,3]`,
		"null":              `null`,
		"no sections":       `{"exportDate":"2024-03-15T10:00:00Z"}`,
		"empty menu":        `{"menuItems":[]}`,
		"bad price":         `{"menuItems":[{"id":"idly","english":"Idly","tamil":"இட்லி","price":0}]}`,
		"negative tax":      `{"settings":{"shopName":"A","shopAddress":"B","taxPercentage":-1}}`,
		"bills wrong shape": `{"bills":{"id":"x"}}`,
	}
	for name, input := range cases {
		if _, err := ParseBackup([]byte(input)); !errors.Is(err, domain.ErrInvalidBackup) {
			t.Fatalf("%s: expected ErrInvalidBackup, got %v", name, err)
		}
	}
}

func TestExportCSVCurrentMonthOnly(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	snap := sampleSnapshot(at)
	old := snap.Bills[0]
	old.ID = "BILL-20240215-001"
	old.CreatedAt = at.AddDate(0, -1, 0)
	snap.Bills = append(snap.Bills, old)

	out, err := newGateway(memory.New()).Export(ctx, snap, FormatCSV, at)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if out.FileName != "tiffin-shop-sales-2024-03.csv" {
		t.Fatalf("unexpected file name %s", out.FileName)
	}

	lines := strings.Split(strings.TrimSpace(string(out.Data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "Bill ID,Date,Time,Items,Subtotal,Tax,Total,Payment Method" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "BILL-20240315-001,2024-03-15,10:30:00,Idly x2; Vada x1,85,4.25,89.25,cash" {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestFootprintCountsSnapshotKeys(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	g := newGateway(kv)
	snap := sampleSnapshot(time.Now().UTC())
	if err := g.Save(ctx, snap); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := g.SaveCart(ctx, snap.Bills[0].Items); err != nil {
		t.Fatalf("save cart failed: %v", err)
	}

	want := len(mustJSON(t, snap.Settings)) + len(mustJSON(t, snap.Catalog)) + len(mustJSON(t, snap.Bills)) + len("dark")
	got, err := g.Footprint(ctx)
	if err != nil {
		t.Fatalf("footprint failed: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d bytes, got %d", want, got)
	}
	if FormatKB(2048) != "2.00" {
		t.Fatalf("unexpected KB formatting %s", FormatKB(2048))
	}
}

func TestWipeAndCart(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	g := newGateway(kv)
	snap := sampleSnapshot(time.Now().UTC())
	_ = g.Save(ctx, snap)
	_ = g.SaveCart(ctx, snap.Bills[0].Items)

	if lines := g.LoadCart(ctx); len(lines) != 2 || lines[0].Quantity != 2 {
		t.Fatalf("expected cart to reload, got %+v", lines)
	}
	if err := g.Wipe(ctx); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	if len(kv.Snapshot()) != 0 {
		t.Fatalf("expected wipe to remove every key, left %v", kv.Snapshot())
	}
}
