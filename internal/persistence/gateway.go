package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiffinbill/internal/domain"
	"tiffinbill/internal/store"
)

// Keys names the independently stored records.
type Keys struct {
	Settings   string
	Catalog    string
	Bills      string
	Theme      string
	LastBackup string
	Cart       string
}

func DefaultKeys() Keys {
	return Keys{
		Settings:   "tiffinShopSettings",
		Catalog:    "tiffinShopMenu",
		Bills:      "tiffinShopBills",
		Theme:      "tiffinShopTheme",
		LastBackup: "tiffinShopLastBackup",
		Cart:       "currentCart",
	}
}

func (k Keys) snapshot() []string {
	return []string{k.Settings, k.Catalog, k.Bills, k.Theme}
}

func (k Keys) all() []string {
	return append(k.snapshot(), k.LastBackup, k.Cart)
}

// imageRemap points known items at bundled assets instead of remote hosts.
var imageRemap = map[string]string{
	"dosa":     "asset/dosa.jpg",
	"pongal":   "asset/pongal.jpg",
	"poori":    "asset/poori.jpg",
	"chapathi": "asset/chappathi.jpg",
}

type Gateway struct {
	kv     store.KV
	keys   Keys
	logger *zap.Logger
	loc    *time.Location
}

func New(kv store.KV, logger *zap.Logger, loc *time.Location) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Gateway{kv: kv, keys: DefaultKeys(), logger: logger, loc: loc}
}

// LoadReport lists the keys that fell back to defaults during Load.
type LoadReport struct {
	Defaulted []string
	Migrated  int
}

// Load reads each record on its own. A missing or unreadable record is
// replaced by its default without affecting the others.
func (g *Gateway) Load(ctx context.Context) (domain.Snapshot, LoadReport) {
	var report LoadReport
	snap := domain.Snapshot{
		Settings: domain.DefaultSettings(),
		Catalog:  domain.DefaultCatalog(),
		Bills:    []domain.Bill{},
		Theme:    domain.ThemeLight,
	}

	if raw, ok := g.read(ctx, g.keys.Settings, &report); ok {
		settings, err := decodeSettings(raw)
		if err != nil {
			g.fallback(g.keys.Settings, err, &report)
		} else {
			snap.Settings = settings
		}
	}

	if raw, ok := g.read(ctx, g.keys.Catalog, &report); ok {
		items, err := decodeCatalog(raw, false)
		if err != nil {
			g.fallback(g.keys.Catalog, err, &report)
		} else {
			snap.Catalog = items
		}
	}

	if raw, ok := g.read(ctx, g.keys.Bills, &report); ok {
		bills, err := decodeBills(raw)
		if err != nil {
			g.fallback(g.keys.Bills, err, &report)
		} else {
			snap.Bills = bills
		}
	}

	if raw, ok := g.read(ctx, g.keys.Theme, &report); ok {
		theme := domain.Theme(strings.Trim(strings.TrimSpace(string(raw)), `"`))
		if theme.Valid() {
			snap.Theme = theme
		} else {
			g.fallback(g.keys.Theme, fmt.Errorf("unknown theme %q", theme), &report)
		}
	}

	var migrated int
	snap.Catalog, migrated = MigrateImageRefs(snap.Catalog)
	report.Migrated = migrated
	if migrated > 0 {
		g.logger.Info("migrated catalog image references", zap.Int("items", migrated))
		if err := g.write(ctx, g.keys.Catalog, snap.Catalog); err != nil {
			g.logger.Warn("persist migrated catalog", zap.Error(err))
		}
	}

	return snap, report
}

// Save writes every snapshot record. Keys that fail are reported together in
// a *domain.StorageWriteError; the rest stay committed.
func (g *Gateway) Save(ctx context.Context, snap domain.Snapshot) error {
	failures := map[string]error{}
	records := []struct {
		key   string
		value any
	}{
		{g.keys.Settings, snap.Settings},
		{g.keys.Catalog, snap.Catalog},
		{g.keys.Bills, nonNilBills(snap.Bills)},
	}
	for _, record := range records {
		if err := g.write(ctx, record.key, record.value); err != nil {
			failures[record.key] = err
		}
	}
	if err := g.kv.Set(ctx, g.keys.Theme, []byte(snap.Theme)); err != nil {
		failures[g.keys.Theme] = err
	}

	if len(failures) > 0 {
		g.logger.Warn("snapshot save incomplete", zap.Int("failed_keys", len(failures)))
		return &domain.StorageWriteError{Failures: failures}
	}
	return nil
}

func (g *Gateway) SaveTheme(ctx context.Context, theme domain.Theme) error {
	if err := g.kv.Set(ctx, g.keys.Theme, []byte(theme)); err != nil {
		return &domain.StorageWriteError{Failures: map[string]error{g.keys.Theme: err}}
	}
	return nil
}

func (g *Gateway) SaveCart(ctx context.Context, lines []domain.OrderLine) error {
	if lines == nil {
		lines = []domain.OrderLine{}
	}
	if err := g.write(ctx, g.keys.Cart, lines); err != nil {
		return &domain.StorageWriteError{Failures: map[string]error{g.keys.Cart: err}}
	}
	return nil
}

func (g *Gateway) LoadCart(ctx context.Context) []domain.OrderLine {
	raw, err := g.kv.Get(ctx, g.keys.Cart)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("read cart", zap.Error(err))
		}
		return nil
	}
	var lines []domain.OrderLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		g.logger.Warn("discarding unreadable cart", zap.Error(err))
		return nil
	}
	return lines
}

// Footprint is the byte size of the four snapshot records as stored.
func (g *Gateway) Footprint(ctx context.Context) (int, error) {
	total := 0
	for _, key := range g.keys.snapshot() {
		raw, err := g.kv.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", key, err)
		}
		total += len(raw)
	}
	return total, nil
}

func FormatKB(bytes int) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1024)
}

func (g *Gateway) LastBackup(ctx context.Context) (*time.Time, error) {
	raw, err := g.kv.Get(ctx, g.keys.LastBackup)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		g.logger.Warn("unreadable last backup timestamp", zap.Error(err))
		return nil, nil
	}
	return &at, nil
}

func (g *Gateway) RecordBackup(ctx context.Context, at time.Time) error {
	if err := g.kv.Set(ctx, g.keys.LastBackup, []byte(at.UTC().Format(time.RFC3339Nano))); err != nil {
		return &domain.StorageWriteError{Failures: map[string]error{g.keys.LastBackup: err}}
	}
	return nil
}

// Wipe removes every record this gateway owns.
func (g *Gateway) Wipe(ctx context.Context) error {
	return g.kv.Delete(ctx, g.keys.all()...)
}

// MigrateImageRefs rewrites remote image URLs of the remapped items to their
// bundled asset paths. Items already pointing elsewhere are left alone.
func MigrateImageRefs(items []domain.CatalogItem) ([]domain.CatalogItem, int) {
	out := make([]domain.CatalogItem, len(items))
	copy(out, items)
	changed := 0
	for i, item := range out {
		asset, ok := imageRemap[item.ID]
		if !ok || !isRemote(item.ImageRef) {
			continue
		}
		out[i].ImageRef = asset
		changed++
	}
	return out, changed
}

func isRemote(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func (g *Gateway) read(ctx context.Context, key string, report *LoadReport) ([]byte, bool) {
	raw, err := g.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		report.Defaulted = append(report.Defaulted, key)
		return nil, false
	}
	if err != nil {
		g.fallback(key, err, report)
		return nil, false
	}
	return raw, true
}

func (g *Gateway) fallback(key string, err error, report *LoadReport) {
	g.logger.Warn("using default for stored record", zap.String("key", key), zap.Error(err))
	report.Defaulted = append(report.Defaulted, key)
}

func (g *Gateway) write(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return g.kv.Set(ctx, key, payload)
}

func decodeSettings(raw []byte) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// decodeCatalog parses a menu array. Loading skips bad items; strict mode
// (imports) rejects the whole array instead.
func decodeCatalog(raw []byte, strict bool) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	kept := make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		err := item.Validate()
		if err == nil && seen[item.ID] {
			err = fmt.Errorf("%w: %s", domain.ErrDuplicateItem, item.ID)
		}
		if err != nil {
			if strict {
				return nil, err
			}
			continue
		}
		seen[item.ID] = true
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return nil, errors.New("menu has no valid items")
	}
	return kept, nil
}

func decodeBills(raw []byte) ([]domain.Bill, error) {
	var bills []domain.Bill
	if err := json.Unmarshal(raw, &bills); err != nil {
		return nil, err
	}
	for i, bill := range bills {
		if strings.TrimSpace(bill.ID) == "" {
			return nil, fmt.Errorf("bill %d has no id", i)
		}
	}
	return nonNilBills(bills), nil
}

func nonNilBills(bills []domain.Bill) []domain.Bill {
	if bills == nil {
		return []domain.Bill{}
	}
	return bills
}
