// Package query composes predicate output into count and data queries,
// executes them, and assembles a page of rows annotated with content hash
// and version metadata.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/predicate"
	"github.com/leapstack-labs/leapgrid/internal/rowhash"
	"github.com/leapstack-labs/leapgrid/internal/schema"
	"github.com/leapstack-labs/leapgrid/internal/storage"
)

// Request is a validated read request. Page is 1-based; the transport
// boundary enforces page and pageSize ranges before the request reaches the
// engine.
type Request struct {
	Page     int
	PageSize int
	Filters  []predicate.Filter
	Sorts    []predicate.Sort
}

// RowEnvelope is one returned row with its concurrency token and a coarse
// version stamp. The stamp is a display/debug aid only; conflict detection
// relies solely on the hash.
type RowEnvelope struct {
	Data    schema.Row `json:"data"`
	Hash    string     `json:"hash"`
	Version int64      `json:"version"`
}

// Page is the result of one query.
type Page struct {
	Rows     []RowEnvelope `json:"rows"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Took     int64         `json:"tookMs"`
}

// Engine executes read queries against a storage backend.
type Engine struct {
	exec   storage.Executor
	d      *dialect.Dialect
	logger *slog.Logger
	now    func() time.Time
}

// New creates a query engine.
func New(exec storage.Executor, d *dialect.Dialect, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{exec: exec, d: d, logger: logger, now: time.Now}
}

// Query runs the count and data phases for one request and assembles the
// page. The two phases are separate statements; a writer committing between
// them can make Total disagree with the returned rows. That race is accepted
// — no snapshot isolation is assumed at this layer. Storage errors propagate
// unchanged with no retry.
func (e *Engine) Query(ctx context.Context, sheet *schema.SheetSchema, req Request) (*Page, error) {
	started := e.now()

	pred, err := predicate.Build(sheet, req.Filters, req.Sorts, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	countSQL, countArgs := predicate.RenderCount(e.d, sheet, pred)
	total, err := e.exec.Count(ctx, countSQL, countArgs)
	if err != nil {
		return nil, err
	}

	dataSQL, dataArgs := predicate.RenderSelect(e.d, sheet, pred)
	rows, err := e.exec.Select(ctx, sheet, dataSQL, dataArgs)
	if err != nil {
		return nil, err
	}

	version := e.now().UnixMilli()
	page := &Page{
		Rows:     make([]RowEnvelope, 0, len(rows)),
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	for _, row := range rows {
		page.Rows = append(page.Rows, RowEnvelope{
			Data:    row,
			Hash:    rowhash.Hash(row),
			Version: version,
		})
	}
	page.Took = e.now().Sub(started).Milliseconds()

	e.logger.Debug("query executed",
		"sheet", sheet.ID,
		"page", req.Page,
		"rows", len(page.Rows),
		"total", total,
		"took_ms", page.Took,
	)
	return page, nil
}
