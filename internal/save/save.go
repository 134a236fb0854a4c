// Package save orchestrates a batch of row operations against a sheet:
// hash-checked updates and deletes, bulk-merged inserts, fixed category
// ordering, and per-row outcome reporting.
package save

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapgrid/internal/audit"
	"github.com/leapstack-labs/leapgrid/internal/rowhash"
	"github.com/leapstack-labs/leapgrid/internal/schema"
	"github.com/leapstack-labs/leapgrid/internal/storage"
)

// Status is the outcome of one operation.
type Status string

const (
	StatusMerged   Status = "merged"
	StatusConflict Status = "conflict"
	StatusMissing  Status = "missing"
	StatusDeleted  Status = "deleted"
	StatusError    Status = "error"
)

// Insert adds a new row. Data must cover the key columns and may cover any
// editable column; computed columns are rejected.
type Insert struct {
	Data schema.Row
}

// Update overwrites columns of an existing row. BeforeHash is the client's
// last-known content fingerprint and acts as the optimistic-concurrency
// token.
type Update struct {
	Key        schema.Row
	BeforeHash string
	After      schema.Row
}

// Delete removes an existing row, guarded by BeforeHash like Update.
type Delete struct {
	Key        schema.Row
	BeforeHash string
}

// Batch is one save call: all operations execute inside a single
// transaction, in the fixed order deletes, updates, inserts.
type Batch struct {
	SessionID string
	Actor     string
	Inserts   []Insert
	Updates   []Update
	Deletes   []Delete
}

// OperationResult is the outcome of one operation. CurrentData and
// CurrentHash are populated only on conflict so the client can re-base.
type OperationResult struct {
	Key         schema.Row `json:"key"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	CurrentData schema.Row `json:"currentData,omitempty"`
	CurrentHash string     `json:"currentHash,omitempty"`
}

// Result is the outcome of one batch. OK is false only when the whole batch
// rolled back on a storage fault; business-level conflicts and missing rows
// commit with mixed per-row outcomes.
type Result struct {
	OK      bool              `json:"ok"`
	Results []OperationResult `json:"results"`
	Err     string            `json:"errorMessage,omitempty"`
}

// Orchestrator applies save batches.
type Orchestrator struct {
	exec   storage.Executor
	sink   audit.Sink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a save orchestrator.
func New(exec storage.Executor, sink audit.Sink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	return &Orchestrator{exec: exec, sink: sink, logger: logger, now: time.Now}
}

// Save validates and applies one batch. A validation failure rejects the
// whole batch before any I/O and returns an error with no per-row results.
// After validation, every submitted operation produces exactly one result.
func (o *Orchestrator) Save(ctx context.Context, sheet *schema.SheetSchema, b Batch) (*Result, error) {
	if err := validateBatch(sheet, b); err != nil {
		return nil, err
	}

	tx, err := o.exec.Begin(ctx)
	if err != nil {
		return &Result{OK: false, Err: err.Error()}, nil
	}

	res := &Result{OK: true}
	if err := o.apply(ctx, tx, sheet, b, res); err != nil {
		_ = tx.Rollback()
		o.logger.Error("save batch rolled back", "sheet", sheet.ID, "session", b.SessionID, "error", err)
		return &Result{OK: false, Err: err.Error()}, nil
	}

	if err := tx.Commit(); err != nil {
		return &Result{OK: false, Err: fmt.Sprintf("failed to commit save batch: %v", err)}, nil
	}

	o.emitAudit(ctx, sheet, b)
	return res, nil
}

// apply runs the three phases in fixed order: deletes, then updates, then
// inserts. The order makes a delete plus re-insert of the same key within
// one batch behave as a replace, and keeps updates from racing batch-local
// inserts. A returned error aborts the whole batch.
func (o *Orchestrator) apply(ctx context.Context, tx storage.Tx, sheet *schema.SheetSchema, b Batch, res *Result) error {
	stampBy := schema.Text(b.Actor)
	stampAt := schema.Timestamp(o.now())

	for _, del := range b.Deletes {
		current, found, err := tx.FetchOne(ctx, sheet, del.Key)
		if err != nil {
			return err
		}
		if !found {
			res.Results = append(res.Results, OperationResult{Key: del.Key, Status: StatusMissing, Reason: "row not found"})
			continue
		}
		if h := rowhash.Hash(current); h != del.BeforeHash {
			res.Results = append(res.Results, conflictResult(del.Key, current, h))
			continue
		}

		affected, err := tx.Delete(ctx, sheet, del.Key)
		if err != nil {
			return err
		}
		if affected > 0 {
			res.Results = append(res.Results, OperationResult{Key: del.Key, Status: StatusDeleted})
		} else {
			res.Results = append(res.Results, OperationResult{Key: del.Key, Status: StatusError, Reason: "delete affected no rows"})
		}
	}

	for _, upd := range b.Updates {
		current, found, err := tx.FetchOne(ctx, sheet, upd.Key)
		if err != nil {
			return err
		}
		if !found {
			res.Results = append(res.Results, OperationResult{Key: upd.Key, Status: StatusMissing, Reason: "row not found"})
			continue
		}
		if h := rowhash.Hash(current); h != upd.BeforeHash {
			res.Results = append(res.Results, conflictResult(upd.Key, current, h))
			continue
		}

		set := upd.After.Clone()
		set[schema.ColModifiedBy] = stampBy
		set[schema.ColModifiedAt] = stampAt

		affected, err := tx.Update(ctx, sheet, upd.Key, set)
		if err != nil {
			return err
		}
		if affected > 0 {
			res.Results = append(res.Results, OperationResult{Key: upd.Key, Status: StatusMerged})
		} else {
			res.Results = append(res.Results, OperationResult{Key: upd.Key, Status: StatusError, Reason: "update affected no rows"})
		}
	}

	if len(b.Inserts) > 0 {
		rows := make([]schema.Row, 0, len(b.Inserts))
		for _, ins := range b.Inserts {
			row := ins.Data.Clone()
			row[schema.ColModifiedBy] = stampBy
			row[schema.ColModifiedAt] = stampAt
			rows = append(rows, row)
		}

		// Inserts carry the coarser bulk guarantee: no per-row existence
		// check, duplicate keys fail the whole batch at the storage layer.
		if err := tx.BulkMerge(ctx, sheet, rows); err != nil {
			return err
		}
		for _, ins := range b.Inserts {
			res.Results = append(res.Results, OperationResult{Key: keyOf(sheet, ins.Data), Status: StatusMerged})
		}
	}

	return nil
}

// emitAudit records one event per non-empty category. Audit is best-effort:
// failures are logged and never fail the committed save.
func (o *Orchestrator) emitAudit(ctx context.Context, sheet *schema.SheetSchema, b Batch) {
	at := o.now().UTC()
	emit := func(cat audit.Category, count int) {
		if count == 0 {
			return
		}
		ev := audit.Event{
			SheetID:   sheet.ID,
			SessionID: b.SessionID,
			Category:  cat,
			Count:     count,
			Actor:     b.Actor,
			At:        at,
		}
		if err := o.sink.Record(ctx, ev); err != nil {
			o.logger.Warn("audit record failed", "sheet", sheet.ID, "category", string(cat), "error", err)
		}
	}
	emit(audit.CategoryInsert, len(b.Inserts))
	emit(audit.CategoryUpdate, len(b.Updates))
	emit(audit.CategoryDelete, len(b.Deletes))
}

func conflictResult(key, current schema.Row, currentHash string) OperationResult {
	return OperationResult{
		Key:         key,
		Status:      StatusConflict,
		Reason:      "row was modified by another user",
		CurrentData: current,
		CurrentHash: currentHash,
	}
}

// keyOf extracts the key tuple of an insert row for result reporting.
func keyOf(sheet *schema.SheetSchema, row schema.Row) schema.Row {
	key := make(schema.Row, len(sheet.KeyColumns))
	for _, k := range sheet.KeyColumns {
		key[k] = row[k]
	}
	return key
}

// validateBatch rejects the whole batch before any I/O when any operation
// references unknown columns, writes computed or non-editable columns, or
// supplies an incomplete key.
func validateBatch(sheet *schema.SheetSchema, b Batch) error {
	for i, ins := range b.Inserts {
		for name := range ins.Data {
			col, ok := sheet.Column(name)
			if !ok {
				return fmt.Errorf("%w: insert %d: sheet %q has no column %q", schema.ErrValidation, i, sheet.ID, name)
			}
			if col.Computed {
				return fmt.Errorf("%w: insert %d: column %q is computed", schema.ErrValidation, i, name)
			}
			if !col.Key && !col.Editable {
				return fmt.Errorf("%w: insert %d: column %q is not editable", schema.ErrValidation, i, name)
			}
		}
		for _, k := range sheet.KeyColumns {
			if _, ok := ins.Data[k]; !ok {
				return fmt.Errorf("%w: insert %d: missing key column %q", schema.ErrValidation, i, k)
			}
		}
	}

	for i, upd := range b.Updates {
		if err := validateKey(sheet, upd.Key); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
		if len(upd.After) == 0 {
			return fmt.Errorf("%w: update %d: no columns to set", schema.ErrValidation, i)
		}
		for name := range upd.After {
			col, ok := sheet.Column(name)
			if !ok {
				return fmt.Errorf("%w: update %d: sheet %q has no column %q", schema.ErrValidation, i, sheet.ID, name)
			}
			if col.Computed {
				return fmt.Errorf("%w: update %d: column %q is computed", schema.ErrValidation, i, name)
			}
			if col.Key {
				return fmt.Errorf("%w: update %d: key column %q cannot be updated", schema.ErrValidation, i, name)
			}
			if !col.Editable {
				return fmt.Errorf("%w: update %d: column %q is not editable", schema.ErrValidation, i, name)
			}
		}
	}

	for i, del := range b.Deletes {
		if err := validateKey(sheet, del.Key); err != nil {
			return fmt.Errorf("delete %d: %w", i, err)
		}
	}

	return nil
}

// validateKey checks a key tuple: one entry per key column, no extras.
func validateKey(sheet *schema.SheetSchema, key schema.Row) error {
	for _, k := range sheet.KeyColumns {
		if _, ok := key[k]; !ok {
			return fmt.Errorf("%w: missing key column %q", schema.ErrValidation, k)
		}
	}
	if len(key) != len(sheet.KeyColumns) {
		for name := range key {
			found := false
			for _, k := range sheet.KeyColumns {
				if k == name {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: %q is not a key column", schema.ErrValidation, name)
			}
		}
	}
	return nil
}
