// Package schema defines the sheet schema model: the declarative description
// of a logical sheet backed by a single relational table. Schemas are loaded
// from YAML manifests by the registry and are immutable once validated.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is the sentinel wrapped by all client-correctable validation
// failures (bad schema, unknown column, malformed filter). Callers use
// errors.Is to distinguish these from storage faults.
var ErrValidation = errors.New("validation failed")

// DataType is the closed set of column types a sheet may declare.
type DataType string

const (
	TypeText      DataType = "text"
	TypeInteger   DataType = "integer"
	TypeDecimal   DataType = "decimal"
	TypeBoolean   DataType = "boolean"
	TypeTimestamp DataType = "timestamp"
)

// Valid reports whether the data type is one of the recognized types.
func (t DataType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeDecimal, TypeBoolean, TypeTimestamp:
		return true
	}
	return false
}

// Attribution columns are maintained by the save path and excluded from
// content hashing. MetaPrefix marks internally generated columns (staging
// tables, scratch fields) that are likewise never part of row content.
const (
	ColModifiedBy = "modified_by"
	ColModifiedAt = "modified_at"
	MetaPrefix    = "_lg_"
)

// IsMetadataColumn reports whether a column name is attribution or internal
// metadata and therefore excluded from row hashing.
func IsMetadataColumn(name string) bool {
	return name == ColModifiedBy || name == ColModifiedAt || strings.HasPrefix(name, MetaPrefix)
}

// ColumnSpec describes one declared column of a sheet.
type ColumnSpec struct {
	Name string `yaml:"name"`

	// Type is the declared data type (text, integer, decimal, boolean, timestamp)
	Type DataType `yaml:"type"`

	// Editable indicates the column accepts values on insert/update
	Editable bool `yaml:"editable"`

	// Key indicates the column is part of the composite primary key
	Key bool `yaml:"key"`

	// Computed columns are produced by the backend and never accepted as input
	Computed bool `yaml:"computed"`
}

// SheetSchema describes a sheet: its identity, backing table, key columns
// and the ordered, closed column set.
type SheetSchema struct {
	// ID is the stable sheet identifier used by the API surface
	ID string `yaml:"id"`

	// Table is the backing table name
	Table string `yaml:"table"`

	// KeyColumns lists the primary key column names in declared order
	KeyColumns []string `yaml:"key_columns"`

	// Columns is the ordered column set; names are unique within the sheet
	Columns []ColumnSpec `yaml:"columns"`
}

// Column returns the spec for a named column.
func (s *SheetSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// HasColumn reports whether the sheet declares the named column.
func (s *SheetSchema) HasColumn(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// ColumnNames returns the declared column names in order.
func (s *SheetSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// InsertColumns returns the columns accepted as insert input: every declared
// column that is a key or editable, excluding computed columns.
func (s *SheetSchema) InsertColumns() []ColumnSpec {
	var cols []ColumnSpec
	for _, c := range s.Columns {
		if c.Computed {
			continue
		}
		if c.Key || c.Editable {
			cols = append(cols, c)
		}
	}
	return cols
}

// Validate checks the structural invariants of the schema. It is called once
// at load time; the core treats a validated schema as trusted afterwards.
func (s *SheetSchema) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: sheet id is required", ErrValidation)
	}
	if s.Table == "" {
		return fmt.Errorf("%w: sheet %q: table name is required", ErrValidation, s.ID)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: sheet %q: at least one column is required", ErrValidation, s.ID)
	}
	if len(s.KeyColumns) == 0 {
		return fmt.Errorf("%w: sheet %q: at least one key column is required", ErrValidation, s.ID)
	}

	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: sheet %q: column name is required", ErrValidation, s.ID)
		}
		if IsMetadataColumn(c.Name) {
			return fmt.Errorf("%w: sheet %q: column %q is a reserved metadata name", ErrValidation, s.ID, c.Name)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: sheet %q: column %q has unknown type %q", ErrValidation, s.ID, c.Name, c.Type)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: sheet %q: duplicate column %q", ErrValidation, s.ID, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	keySeen := make(map[string]struct{}, len(s.KeyColumns))
	for _, k := range s.KeyColumns {
		if _, dup := keySeen[k]; dup {
			return fmt.Errorf("%w: sheet %q: duplicate key column %q", ErrValidation, s.ID, k)
		}
		keySeen[k] = struct{}{}

		col, ok := s.Column(k)
		if !ok {
			return fmt.Errorf("%w: sheet %q: key column %q is not declared", ErrValidation, s.ID, k)
		}
		if !col.Key {
			return fmt.Errorf("%w: sheet %q: key column %q is not flagged as key", ErrValidation, s.ID, k)
		}
	}

	// Every column flagged as key must appear in the key sequence.
	for _, c := range s.Columns {
		if c.Key {
			if _, ok := keySeen[c.Name]; !ok {
				return fmt.Errorf("%w: sheet %q: column %q flagged as key but missing from key_columns", ErrValidation, s.ID, c.Name)
			}
		}
	}

	return nil
}
