// Package registry loads sheet manifests from a directory of YAML files and
// serves them as an immutable, concurrently readable schema set. A reload
// swaps the whole set at once; a manifest that fails to parse or validate
// keeps the last good set in place.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// Registry is the schema provider: sheet ID → SheetSchema.
type Registry struct {
	mu sync.RWMutex

	// byID maps sheet IDs to their schemas
	byID map[string]*schema.SheetSchema

	// byTable maps backing table names to sheet IDs
	byTable map[string]string

	dir    string
	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		byID:    make(map[string]*schema.SheetSchema),
		byTable: make(map[string]string),
		logger:  logger,
	}
}

// LoadDir parses every .yaml/.yml manifest in dir (one sheet per file),
// validates the full set, and swaps it in. On any error the registry keeps
// serving the previously loaded set.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read sheets directory: %w", err)
	}

	byID := make(map[string]*schema.SheetSchema)
	byTable := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		sheet, err := loadManifest(path)
		if err != nil {
			return err
		}

		if _, dup := byID[sheet.ID]; dup {
			return fmt.Errorf("%w: duplicate sheet id %q in %s", schema.ErrValidation, sheet.ID, entry.Name())
		}
		byID[sheet.ID] = sheet
		byTable[sheet.Table] = sheet.ID
	}

	r.mu.Lock()
	r.byID = byID
	r.byTable = byTable
	r.dir = dir
	r.mu.Unlock()

	r.logger.Debug("sheet manifests loaded", "dir", dir, "sheets", len(byID))
	return nil
}

// loadManifest parses and validates one sheet manifest file.
func loadManifest(path string) (*schema.SheetSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var sheet schema.SheetSchema
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &sheet, nil
}

// Get returns the schema for a sheet ID.
func (r *Registry) Get(sheetID string) (*schema.SheetSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sheetID]
	return s, ok
}

// ResolveTable returns the sheet ID backed by a table name.
func (r *Registry) ResolveTable(table string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTable[table]
	return id, ok
}

// All returns the registered schemas sorted by sheet ID.
func (r *Registry) All() []*schema.SheetSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sheets := make([]*schema.SheetSchema, 0, len(r.byID))
	for _, s := range r.byID {
		sheets = append(sheets, s)
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].ID < sheets[j].ID })
	return sheets
}

// Count returns the number of registered sheets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
