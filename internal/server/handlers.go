package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapgrid/internal/predicate"
	"github.com/leapstack-labs/leapgrid/internal/query"
	"github.com/leapstack-labs/leapgrid/internal/save"
	"github.com/leapstack-labs/leapgrid/internal/schema"
	"github.com/leapstack-labs/leapgrid/internal/service"
)

// Default page window applied when the request omits pagination.
const (
	defaultPage     = 1
	defaultPageSize = 50
)

// Wire operator tokens. Both the long spec names and the short internal
// tokens are accepted.
var operatorTokens = map[string]predicate.Operator{
	"eq": predicate.OpEq, "equals": predicate.OpEq,
	"ne": predicate.OpNe, "not-equals": predicate.OpNe,
	"gt": predicate.OpGt, "greater-than": predicate.OpGt,
	"lt": predicate.OpLt, "less-than": predicate.OpLt,
	"ge": predicate.OpGe, "greater-or-equal": predicate.OpGe,
	"le": predicate.OpLe, "less-or-equal": predicate.OpLe,
	"contains":   predicate.OpContains,
	"startswith": predicate.OpStartsWith, "starts-with": predicate.OpStartsWith,
	"endswith": predicate.OpEndsWith, "ends-with": predicate.OpEndsWith,
	"in": predicate.OpIn, "in-set": predicate.OpIn,
	"notin": predicate.OpNotIn, "not-in-set": predicate.OpNotIn,
	"isnull": predicate.OpIsNull, "is-null": predicate.OpIsNull,
	"notnull": predicate.OpNotNull, "is-not-null": predicate.OpNotNull,
}

type filterDTO struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Values   []any  `json:"values"`
}

type sortDTO struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

type queryRequestDTO struct {
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Filters  []filterDTO `json:"filters"`
	Sorts    []sortDTO   `json:"sorts"`
}

type insertDTO struct {
	Data map[string]any `json:"data"`
}

type updateDTO struct {
	Key        map[string]any `json:"key"`
	BeforeHash string         `json:"beforeHash"`
	After      map[string]any `json:"after"`
}

type deleteDTO struct {
	Key        map[string]any `json:"key"`
	BeforeHash string         `json:"beforeHash"`
}

type saveRequestDTO struct {
	ClientSessionID string      `json:"clientSessionId"`
	Inserts         []insertDTO `json:"inserts"`
	Updates         []updateDTO `json:"updates"`
	Deletes         []deleteDTO `json:"deletes"`
}

type sheetDTO struct {
	ID         string              `json:"id"`
	Table      string              `json:"table"`
	KeyColumns []string            `json:"keyColumns"`
	Columns    []schema.ColumnSpec `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSheets(w http.ResponseWriter, _ *http.Request) {
	sheets := s.svc.Sheets()
	out := make([]sheetDTO, 0, len(sheets))
	for _, sh := range sheets {
		out = append(out, sheetDTO{ID: sh.ID, Table: sh.Table, KeyColumns: sh.KeyColumns, Columns: sh.Columns})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sheetID := chi.URLParam(r, "sheetID")

	var dto queryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if dto.Page == 0 {
		dto.Page = defaultPage
	}
	if dto.PageSize == 0 {
		dto.PageSize = defaultPageSize
	}
	if dto.Page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1")
		return
	}
	if dto.PageSize < 1 || dto.PageSize > service.MaxPageSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("pageSize must be between 1 and %d", service.MaxPageSize))
		return
	}

	sheet, err := s.svc.Schema(sheetID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	req := query.Request{Page: dto.Page, PageSize: dto.PageSize}
	for _, f := range dto.Filters {
		filter, err := decodeFilter(sheet, f)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		req.Filters = append(req.Filters, filter)
	}
	for _, so := range dto.Sorts {
		req.Sorts = append(req.Sorts, predicate.Sort{Column: so.Column, Direction: so.Direction})
	}

	page, err := s.svc.Query(r.Context(), sheetID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sheetID := chi.URLParam(r, "sheetID")

	var dto saveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	sheet, err := s.svc.Schema(sheetID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	batch := save.Batch{
		SessionID: dto.ClientSessionID,
		Actor:     actorFrom(r),
	}
	for _, ins := range dto.Inserts {
		data, err := schema.CoerceRow(sheet, ins.Data)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		batch.Inserts = append(batch.Inserts, save.Insert{Data: data})
	}
	for _, upd := range dto.Updates {
		key, err := schema.CoerceRow(sheet, upd.Key)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		after, err := schema.CoerceRow(sheet, upd.After)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		batch.Updates = append(batch.Updates, save.Update{Key: key, BeforeHash: upd.BeforeHash, After: after})
	}
	for _, del := range dto.Deletes {
		key, err := schema.CoerceRow(sheet, del.Key)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		batch.Deletes = append(batch.Deletes, save.Delete{Key: key, BeforeHash: del.BeforeHash})
	}

	result, err := s.svc.Save(r.Context(), sheetID, batch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !result.OK {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeFilter resolves the operator token and coerces the filter value(s)
// against the column's declared type. Unknown columns fall through as text
// and are rejected by the predicate builder.
func decodeFilter(sheet *schema.SheetSchema, dto filterDTO) (predicate.Filter, error) {
	op, ok := operatorTokens[dto.Operator]
	if !ok {
		return predicate.Filter{}, fmt.Errorf("%w: unknown operator %q", schema.ErrValidation, dto.Operator)
	}

	f := predicate.Filter{Column: dto.Column, Op: op}

	colType := schema.TypeText
	if col, ok := sheet.Column(dto.Column); ok {
		colType = col.Type
	}

	if dto.Value != nil {
		v, err := schema.Coerce(colType, dto.Value)
		if err != nil {
			return predicate.Filter{}, fmt.Errorf("filter on %q: %w", dto.Column, err)
		}
		f.Value = v
	}
	for _, raw := range dto.Values {
		v, err := schema.Coerce(colType, raw)
		if err != nil {
			return predicate.Filter{}, fmt.Errorf("filter on %q: %w", dto.Column, err)
		}
		f.Values = append(f.Values, v)
	}
	return f, nil
}

// actorFrom resolves the actor identity from the request.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get(ActorHeader); actor != "" {
		return actor
	}
	return "anonymous"
}

// writeServiceError maps service errors onto HTTP statuses: unknown sheet is
// 404, validation failures are 400, everything else is 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSheetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schema.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
