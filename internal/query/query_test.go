package query

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/predicate"
	"github.com/leapstack-labs/leapgrid/internal/rowhash"
	"github.com/leapstack-labs/leapgrid/internal/schema"
	"github.com/leapstack-labs/leapgrid/internal/storage"
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

func newEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, _ := dialect.Get("sqlite")
	return New(storage.NewWithDB(db, d, nil), d, nil), mock
}

func TestQueryAssemblesPage(t *testing.T) {
	engine, mock := newEngine(t)
	sheet := expenseSheet()

	mock.ExpectQuery(`SELECT COUNT(*) FROM "expenses" WHERE "category" = ?`).
		WithArgs("Travel").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT "id", "category", "amount" FROM "expenses" WHERE "category" = ? ORDER BY "id" ASC LIMIT 10 OFFSET 10`).
		WithArgs("Travel").
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "amount"}).
			AddRow(int64(11), "Travel", 5.0).
			AddRow(int64(12), "Travel", 7.5))

	page, err := engine.Query(context.Background(), sheet, Request{
		Page:     2,
		PageSize: 10,
		Filters:  []predicate.Filter{{Column: "category", Op: predicate.OpEq, Value: schema.Text("Travel")}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Rows, 2)

	for _, env := range page.Rows {
		assert.True(t, strings.HasPrefix(env.Hash, rowhash.Prefix))
		assert.Equal(t, rowhash.Hash(env.Data), env.Hash)
		assert.Equal(t, page.Rows[0].Version, env.Version, "all rows in a page share one version stamp")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEmptyPage(t *testing.T) {
	engine, mock := newEngine(t)
	sheet := expenseSheet()

	mock.ExpectQuery(`SELECT COUNT(*) FROM "expenses"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT "id", "category", "amount" FROM "expenses" ORDER BY "id" ASC LIMIT 50 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "category", "amount"}))

	page, err := engine.Query(context.Background(), sheet, Request{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.NotNil(t, page.Rows)
	assert.Empty(t, page.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRejectsInvalidFilterBeforeIO(t *testing.T) {
	engine, mock := newEngine(t)
	sheet := expenseSheet()

	// No query expectations: a bad criterion must fail before anything runs.
	_, err := engine.Query(context.Background(), sheet, Request{
		Page:     1,
		PageSize: 10,
		Filters:  []predicate.Filter{{Column: "nope", Op: predicate.OpEq, Value: schema.Integer(1)}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPropagatesStorageErrors(t *testing.T) {
	engine, mock := newEngine(t)
	sheet := expenseSheet()

	mock.ExpectQuery(`SELECT COUNT(*) FROM "expenses"`).
		WillReturnError(assert.AnError)

	_, err := engine.Query(context.Background(), sheet, Request{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
