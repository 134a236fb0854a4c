package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSheet() *SheetSchema {
	return &SheetSchema{
		ID:         "expenses",
		Table:      "expenses",
		KeyColumns: []string{"id"},
		Columns: []ColumnSpec{
			{Name: "id", Type: TypeInteger, Key: true},
			{Name: "category", Type: TypeText, Editable: true},
			{Name: "amount", Type: TypeDecimal, Editable: true},
			{Name: "total", Type: TypeDecimal, Computed: true},
		},
	}
}

func TestSheetSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SheetSchema)
		wantErr string
	}{
		{
			name:   "valid sheet",
			mutate: func(*SheetSchema) {},
		},
		{
			name:    "missing id",
			mutate:  func(s *SheetSchema) { s.ID = "" },
			wantErr: "sheet id is required",
		},
		{
			name:    "missing table",
			mutate:  func(s *SheetSchema) { s.Table = "" },
			wantErr: "table name is required",
		},
		{
			name:    "no key columns",
			mutate:  func(s *SheetSchema) { s.KeyColumns = nil },
			wantErr: "at least one key column",
		},
		{
			name:    "key column not declared",
			mutate:  func(s *SheetSchema) { s.KeyColumns = []string{"missing"} },
			wantErr: "not declared",
		},
		{
			name: "key column not flagged",
			mutate: func(s *SheetSchema) {
				s.KeyColumns = []string{"category"}
				s.Columns[0].Key = false
			},
			wantErr: "not flagged as key",
		},
		{
			name: "duplicate column",
			mutate: func(s *SheetSchema) {
				s.Columns = append(s.Columns, ColumnSpec{Name: "amount", Type: TypeDecimal})
			},
			wantErr: "duplicate column",
		},
		{
			name: "unknown type",
			mutate: func(s *SheetSchema) {
				s.Columns[1].Type = "varchar"
			},
			wantErr: "unknown type",
		},
		{
			name: "reserved column name",
			mutate: func(s *SheetSchema) {
				s.Columns = append(s.Columns, ColumnSpec{Name: "modified_by", Type: TypeText})
			},
			wantErr: "reserved metadata name",
		},
		{
			name: "key flag without key_columns entry",
			mutate: func(s *SheetSchema) {
				s.Columns[1].Key = true
			},
			wantErr: "missing from key_columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSheet()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSheetSchemaLookups(t *testing.T) {
	s := validSheet()

	col, ok := s.Column("amount")
	require.True(t, ok)
	assert.Equal(t, TypeDecimal, col.Type)

	_, ok = s.Column("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "category", "amount", "total"}, s.ColumnNames())

	insertable := s.InsertColumns()
	names := make([]string, len(insertable))
	for i, c := range insertable {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"id", "category", "amount"}, names, "computed columns are never insertable")
}

func TestIsMetadataColumn(t *testing.T) {
	assert.True(t, IsMetadataColumn("modified_by"))
	assert.True(t, IsMetadataColumn("modified_at"))
	assert.True(t, IsMetadataColumn("_lg_stage_x"))
	assert.False(t, IsMetadataColumn("amount"))
	assert.False(t, IsMetadataColumn("modified"))
}
