package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/schema"
)

func expenseSheet() *schema.SheetSchema {
	return &schema.SheetSchema{
		ID:         "expenses",
		Table:      "expenses",
		KeyColumns: []string{"id"},
		Columns: []schema.ColumnSpec{
			{Name: "id", Type: schema.TypeInteger, Key: true},
			{Name: "category", Type: schema.TypeText, Editable: true},
			{Name: "amount", Type: schema.TypeDecimal, Editable: true},
		},
	}
}

// newMockStore builds a Store over sqlmock with exact-string matching, which
// the deterministic statement rendering makes practical.
func newMockStore(t *testing.T, dialectName string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, ok := dialect.Get(dialectName)
	require.True(t, ok)
	return NewWithDB(db, d, nil), mock
}

func TestStoreCount(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")

	mock.ExpectQuery(`SELECT COUNT(*) FROM "expenses"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.Count(context.Background(), `SELECT COUNT(*) FROM "expenses"`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSelect(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()

	query := `SELECT "id", "category", "amount" FROM "expenses" ORDER BY "id" ASC LIMIT 50 OFFSET 0`
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id", "category", "amount"}).
			AddRow(int64(1), "Travel", 12.5).
			AddRow(int64(2), "Office", nil))

	rows, err := store.Select(context.Background(), sheet, query, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.True(t, schema.Integer(1).Equal(rows[0]["id"]))
	assert.True(t, schema.Text("Travel").Equal(rows[0]["category"]))
	assert.True(t, schema.Decimal(12.5).Equal(rows[0]["amount"]))
	assert.True(t, schema.Null().Equal(rows[1]["amount"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSelectSkipsUndeclaredColumns(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()

	query := `SELECT * FROM "expenses"`
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id", "modified_by"}).AddRow(int64(1), "alice"))

	rows, err := store.Select(context.Background(), sheet, query, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, present := rows[0]["modified_by"]
	assert.False(t, present, "columns outside the schema are dropped from the row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxFetchOne(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "category", "amount" FROM "expenses" WHERE "id" = ?`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "amount"}).AddRow(int64(7), "Travel", 9.0))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	row, found, err := tx.FetchOne(ctx, sheet, schema.Row{"id": schema.Integer(7)})
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, schema.Text("Travel").Equal(row["category"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxFetchOneMissing(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "category", "amount" FROM "expenses" WHERE "id" = ?`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "amount"}))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	_, found, err := tx.FetchOne(ctx, sheet, schema.Row{"id": schema.Integer(404)})
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxFetchOneRowLock(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	sheet := expenseSheet()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id", "category", "amount" FROM "expenses" WHERE "id" = $1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "amount"}).AddRow(int64(7), "Travel", 9.0))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	_, found, err := tx.FetchOne(ctx, sheet, schema.Row{"id": schema.Integer(7)})
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxUpdate(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "expenses" SET "amount" = ?, "modified_by" = ?, "modified_at" = ? WHERE "id" = ?`).
		WithArgs(20.0, "alice", at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	affected, err := tx.Update(ctx, sheet,
		schema.Row{"id": schema.Integer(7)},
		schema.Row{
			"amount":             schema.Decimal(20),
			schema.ColModifiedBy: schema.Text("alice"),
			schema.ColModifiedAt: schema.Timestamp(at),
		})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxDelete(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")
	sheet := expenseSheet()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "expenses" WHERE "id" = ?`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	affected, err := tx.Delete(ctx, sheet, schema.Row{"id": schema.Integer(7)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The staging table name embeds a random suffix, so the bulk merge tests use
// sqlmock's default regexp matcher instead of exact strings.
func newRegexStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, _ := dialect.Get("sqlite")
	return NewWithDB(db, d, nil), mock
}

func TestTxBulkMerge(t *testing.T) {
	store, mock := newRegexStore(t)
	sheet := expenseSheet()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMPORARY TABLE "_lg_stage_`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "_lg_stage_\w+" \("id", "category", "amount", "modified_by", "modified_at"\) VALUES`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "expenses" \(.+\) SELECT .+ FROM "_lg_stage_`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DROP TABLE "_lg_stage_`).WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	rows := []schema.Row{
		{"id": schema.Integer(10), "category": schema.Text("Travel"), "amount": schema.Decimal(1)},
		{"id": schema.Integer(11), "category": schema.Text("Office"), "amount": schema.Decimal(2)},
	}
	require.NoError(t, tx.BulkMerge(ctx, sheet, rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxBulkMergeChunksStagingInserts(t *testing.T) {
	store, mock := newRegexStore(t)
	sheet := expenseSheet()
	ctx := context.Background()

	// 5 staged columns means 180 rows per chunk under the bind cap; 181 rows
	// must produce exactly two staging inserts.
	n := maxBindParams/5 + 1
	rows := make([]schema.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, schema.Row{
			"id":       schema.Integer(int64(i)),
			"category": schema.Text("c" + strconv.Itoa(i)),
			"amount":   schema.Decimal(float64(i)),
		})
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMPORARY TABLE "_lg_stage_`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "_lg_stage_\w+" .+ VALUES`).WillReturnResult(sqlmock.NewResult(0, int64(n-1)))
	mock.ExpectExec(`INSERT INTO "_lg_stage_\w+" .+ VALUES`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "expenses" \(.+\) SELECT`).WillReturnResult(sqlmock.NewResult(0, int64(n)))
	mock.ExpectExec(`DROP TABLE "_lg_stage_`).WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.BulkMerge(ctx, sheet, rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxBulkMergeEmpty(t *testing.T) {
	store, mock := newRegexStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.BulkMerge(ctx, expenseSheet(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{"sqlite default", Config{Driver: "sqlite"}, "sqlite", ":memory:", false},
		{"sqlite file", Config{Driver: "sqlite", Path: "data.db"}, "sqlite", "data.db", false},
		{"duckdb", Config{Driver: "duckdb", Path: "data.duckdb"}, "duckdb", "data.duckdb", false},
		{
			"postgres",
			Config{Driver: "postgres", Host: "db.internal", Port: 5433, Database: "grid", Username: "svc", Password: "s3cret"},
			"pgx",
			"host=db.internal port=5433 dbname=grid sslmode=disable user=svc password=s3cret",
			false,
		},
		{
			"postgres defaults",
			Config{Driver: "postgres", Database: "grid"},
			"pgx",
			"host=localhost port=5432 dbname=grid sslmode=disable",
			false,
		},
		{"unknown", Config{Driver: "oracle"}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := driverDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}
