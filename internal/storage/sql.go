package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// maxBindParams caps the placeholders per statement; bulk merges chunk their
// staging inserts to stay under the SQLite limit.
const maxBindParams = 900

// Store implements Executor over a database/sql connection pool.
type Store struct {
	db     *sql.DB
	d      *dialect.Dialect
	logger *slog.Logger
}

// Dialect returns the SQL dialect for the connected backend.
func (s *Store) Dialect() *dialect.Dialect { return s.d }

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Count executes a scalar count query.
func (s *Store) Count(ctx context.Context, query string, args []any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	return n, nil
}

// Select executes a data query and maps the results onto typed rows.
func (s *Store) Select(ctx context.Context, sheet *schema.SheetSchema, query string, args []any) ([]schema.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute data query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows, sheet)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Begin opens the transaction used by a save batch.
func (s *Store) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, d: s.d, logger: s.logger}, nil
}

// scanRows maps a result set onto rows using the sheet's declared types.
// Result columns are matched by name so column order never matters.
func scanRows(rows *sql.Rows, sheet *schema.SheetSchema) ([]schema.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var out []schema.Row
	for rows.Next() {
		holders := make([]any, len(cols))
		for i := range holders {
			holders[i] = new(any)
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(schema.Row, len(cols))
		for i, name := range cols {
			spec, ok := sheet.Column(name)
			if !ok {
				// Attribution columns may be selected without being declared.
				continue
			}
			v, err := schema.Coerce(spec.Type, *(holders[i].(*any)))
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// sqlTx implements Tx over *sql.Tx.
type sqlTx struct {
	tx     *sql.Tx
	d      *dialect.Dialect
	logger *slog.Logger
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// keyPredicate renders "k1 = ph AND k2 = ph" for the sheet's key sequence
// and appends the key values to args. Placeholder numbering continues from
// startPos.
func (t *sqlTx) keyPredicate(sheet *schema.SheetSchema, key schema.Row, startPos int, args *[]any) string {
	parts := make([]string, 0, len(sheet.KeyColumns))
	for i, k := range sheet.KeyColumns {
		parts = append(parts, t.d.QuoteIdentifier(k)+" = "+t.d.Placeholder(startPos+i))
		*args = append(*args, key[k].Native())
	}
	return strings.Join(parts, " AND ")
}

// FetchOne retrieves the current persisted row by key, locked against
// concurrent writers where the backend supports it. The check-then-act
// sequence of the save path relies on this lock (or on the backend's writer
// serialization) to stay atomic per row.
func (t *sqlTx) FetchOne(ctx context.Context, sheet *schema.SheetSchema, key schema.Row) (schema.Row, bool, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, name := range sheet.ColumnNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.d.QuoteIdentifier(name))
	}
	b.WriteString(" FROM ")
	b.WriteString(t.d.QuoteIdentifier(sheet.Table))
	b.WriteString(" WHERE ")

	var args []any
	b.WriteString(t.keyPredicate(sheet, key, 1, &args))
	if t.d.RowLock {
		b.WriteString(" FOR UPDATE")
	}

	rows, err := t.tx.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch row: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRows(rows, sheet)
	if err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out[0], true, nil
}

// setColumns returns the columns of a set/insert row in deterministic order:
// declared schema order first, then the attribution columns.
func setColumns(sheet *schema.SheetSchema, row schema.Row) []string {
	var cols []string
	for _, c := range sheet.Columns {
		if _, ok := row[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	for _, name := range []string{schema.ColModifiedBy, schema.ColModifiedAt} {
		if _, ok := row[name]; ok && !sheet.HasColumn(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

// Update overwrites the given columns of the row addressed by key.
func (t *sqlTx) Update(ctx context.Context, sheet *schema.SheetSchema, key, set schema.Row) (int64, error) {
	cols := setColumns(sheet, set)
	if len(cols) == 0 {
		return 0, fmt.Errorf("update has no columns to set")
	}

	var b strings.Builder
	var args []any
	b.WriteString("UPDATE ")
	b.WriteString(t.d.QuoteIdentifier(sheet.Table))
	b.WriteString(" SET ")
	for i, name := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.d.QuoteIdentifier(name) + " = " + t.d.Placeholder(i+1))
		args = append(args, set[name].Native())
	}
	b.WriteString(" WHERE ")
	b.WriteString(t.keyPredicate(sheet, key, len(cols)+1, &args))

	res, err := t.tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// Delete removes the row addressed by key.
func (t *sqlTx) Delete(ctx context.Context, sheet *schema.SheetSchema, key schema.Row) (int64, error) {
	var args []any
	query := "DELETE FROM " + t.d.QuoteIdentifier(sheet.Table) + " WHERE " + t.keyPredicate(sheet, key, 1, &args)

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// BulkMerge stages the rows into a scratch table and reconciles them into
// the target in one INSERT..SELECT. Duplicate keys surface as a statement
// error from the merge step, not per row.
func (t *sqlTx) BulkMerge(ctx context.Context, sheet *schema.SheetSchema, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := mergeColumns(sheet)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = t.d.QuoteIdentifier(c)
	}
	colList := strings.Join(quoted, ", ")

	staging := schema.MetaPrefix + "stage_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	target := t.d.QuoteIdentifier(sheet.Table)
	stagingQ := t.d.QuoteIdentifier(staging)

	create := fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT %s FROM %s WHERE 1 = 0", stagingQ, colList, target)
	if _, err := t.tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	chunk := maxBindParams / len(cols)
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := t.insertChunk(ctx, stagingQ, colList, cols, rows[start:end]); err != nil {
			return err
		}
	}

	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, colList, colList, stagingQ)
	if _, err := t.tx.ExecContext(ctx, merge); err != nil {
		return fmt.Errorf("failed to merge staged rows: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, "DROP TABLE "+stagingQ); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}

	t.logger.Debug("bulk merge applied", "table", sheet.Table, "rows", len(rows))
	return nil
}

// insertChunk writes one multi-row VALUES insert into the staging table.
func (t *sqlTx) insertChunk(ctx context.Context, table, colList string, cols []string, rows []schema.Row) error {
	var b strings.Builder
	var args []any
	b.WriteString("INSERT INTO " + table + " (" + colList + ") VALUES ")

	pos := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, name := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.d.Placeholder(pos))
			pos++
			args = append(args, row[name].Native())
		}
		b.WriteString(")")
	}

	if _, err := t.tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("failed to stage rows: %w", err)
	}
	return nil
}

// mergeColumns is the column list for a bulk merge: every insertable declared
// column plus the attribution columns. Missing cells stage as NULL since a
// Row lookup of an absent column yields the null value.
func mergeColumns(sheet *schema.SheetSchema) []string {
	var cols []string
	for _, c := range sheet.InsertColumns() {
		cols = append(cols, c.Name)
	}
	for _, name := range []string{schema.ColModifiedBy, schema.ColModifiedAt} {
		if !sheet.HasColumn(name) {
			cols = append(cols, name)
		}
	}
	return cols
}

var _ Executor = (*Store)(nil)
