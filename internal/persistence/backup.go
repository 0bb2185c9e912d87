package persistence

import (
	"encoding/json"
	"fmt"
	"slices"

	"tiffinbill/internal/domain"
)

// Backup holds the sections found in an imported file. Nil sections were
// absent (or null) and leave the current state untouched.
type Backup struct {
	Settings *domain.Settings
	Catalog  []domain.CatalogItem
	Bills    []domain.Bill
}

func (b Backup) HasCatalog() bool {
	return b.Catalog != nil
}

func (b Backup) HasBills() bool {
	return b.Bills != nil
}

// ParseBackup validates an exported snapshot. Every error wraps
// domain.ErrInvalidBackup.
func ParseBackup(data []byte) (Backup, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return Backup{}, fmt.Errorf("%w: %v", domain.ErrInvalidBackup, err)
	}
	if sections == nil {
		return Backup{}, fmt.Errorf("%w: expected a JSON object", domain.ErrInvalidBackup)
	}

	var backup Backup
	if raw, ok := present(sections, "settings"); ok {
		settings, err := decodeSettings(raw)
		if err != nil {
			return Backup{}, fmt.Errorf("%w: settings: %v", domain.ErrInvalidBackup, err)
		}
		backup.Settings = &settings
	}
	if raw, ok := present(sections, "menuItems"); ok {
		items, err := decodeCatalog(raw, true)
		if err != nil {
			return Backup{}, fmt.Errorf("%w: menuItems: %v", domain.ErrInvalidBackup, err)
		}
		backup.Catalog, _ = MigrateImageRefs(items)
	}
	if raw, ok := present(sections, "bills"); ok {
		bills, err := decodeBills(raw)
		if err != nil {
			return Backup{}, fmt.Errorf("%w: bills: %v", domain.ErrInvalidBackup, err)
		}
		backup.Bills = bills
	}

	if backup.Settings == nil && !backup.HasCatalog() && !backup.HasBills() {
		return Backup{}, fmt.Errorf("%w: no settings, menuItems or bills found", domain.ErrInvalidBackup)
	}
	return backup, nil
}

// Apply shallow-merges the present sections over snap.
func (b Backup) Apply(snap domain.Snapshot) domain.Snapshot {
	if b.Settings != nil {
		snap.Settings = *b.Settings
	}
	if b.HasCatalog() {
		snap.Catalog = slices.Clone(b.Catalog)
	}
	if b.HasBills() {
		snap.Bills = slices.Clone(b.Bills)
	}
	return snap
}

func present(sections map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := sections[key]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}
