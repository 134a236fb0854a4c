// Package service is the surface exposed to the transport layer: it resolves
// sheet schemas from the registry and delegates to the query engine and the
// save orchestrator, threading the authenticated actor through to row
// attribution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgrid/internal/audit"
	"github.com/leapstack-labs/leapgrid/internal/query"
	"github.com/leapstack-labs/leapgrid/internal/registry"
	"github.com/leapstack-labs/leapgrid/internal/save"
	"github.com/leapstack-labs/leapgrid/internal/schema"
	"github.com/leapstack-labs/leapgrid/internal/storage"
)

// ErrSheetNotFound reports an unknown sheet identifier.
var ErrSheetNotFound = errors.New("sheet not found")

// MaxPageSize bounds a single page of results. The transport boundary
// enforces it before a request reaches the query engine.
const MaxPageSize = 500

// Service ties the registry, storage backend, query engine and save
// orchestrator together. It is stateless between calls; the registry is the
// only shared state and is safely concurrent.
type Service struct {
	registry *registry.Registry
	engine   *query.Engine
	orch     *save.Orchestrator
	logger   *slog.Logger
}

// Config holds service dependencies.
type Config struct {
	Registry *registry.Registry
	Store    *storage.Store
	Audit    audit.Sink
	Logger   *slog.Logger
}

// New creates the service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		registry: cfg.Registry,
		engine:   query.New(cfg.Store, cfg.Store.Dialect(), logger),
		orch:     save.New(cfg.Store, cfg.Audit, logger),
		logger:   logger,
	}
}

// Schema resolves a sheet schema by ID.
func (s *Service) Schema(sheetID string) (*schema.SheetSchema, error) {
	sheet, ok := s.registry.Get(sheetID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheetID)
	}
	return sheet, nil
}

// Sheets returns all registered schemas.
func (s *Service) Sheets() []*schema.SheetSchema {
	return s.registry.All()
}

// Query runs a read request against a sheet.
func (s *Service) Query(ctx context.Context, sheetID string, req query.Request) (*query.Page, error) {
	sheet, err := s.Schema(sheetID)
	if err != nil {
		return nil, err
	}
	return s.engine.Query(ctx, sheet, req)
}

// Save applies a batch of operations to a sheet. A missing session ID is
// assigned a fresh one so audit records always correlate.
func (s *Service) Save(ctx context.Context, sheetID string, batch save.Batch) (*save.Result, error) {
	sheet, err := s.Schema(sheetID)
	if err != nil {
		return nil, err
	}
	if batch.SessionID == "" {
		batch.SessionID = uuid.New().String()
	}
	if batch.Actor == "" {
		batch.Actor = "anonymous"
	}
	return s.orch.Save(ctx, sheet, batch)
}
