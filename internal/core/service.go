package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/importer/internal/formula"
	"github.com/stockflow/importer/internal/logging"
	"github.com/stockflow/importer/internal/mapping"
	"github.com/stockflow/importer/internal/schema"
	"github.com/stockflow/importer/internal/tabular"
)

// ErrDuplicateFile is returned when a file's checksum matches a batch
// that already completed for the same client.
var ErrDuplicateFile = errors.New("file already imported")

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// previewSampleRows bounds how many rows feed the mapping engine, the
// formula detector, and the sample validation shown in previews.
const previewSampleRows = 100

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	MaxConcurrentImports int
	MaxSlotWait          time.Duration
}

// Service is the entry point the HTTP layer talks to. Preview is pure
// and safe to call concurrently; Commit serializes per client and is
// bounded by the import limiter.
type Service struct {
	repo      Repository
	rules     *schema.RuleSet
	engine    *mapping.Engine
	processor *Processor
	limiter   *ImportLimiter
	locks     *clientLocks
}

func NewService(repo Repository, rules *schema.RuleSet, hook CompletionHook, opts Options) *Service {
	if rules == nil {
		rules = schema.DefaultRules()
	}
	return &Service{
		repo:      repo,
		rules:     rules,
		engine:    mapping.NewEngine(rules),
		processor: NewProcessor(repo, hook),
		limiter:   NewImportLimiter(opts.MaxConcurrentImports, opts.MaxSlotWait),
		locks:     newClientLocks(),
	}
}

// PreviewRequest carries an uploaded file and the caller's type hint.
type PreviewRequest struct {
	ClientID uuid.UUID
	Filename string
	Data     []byte
	TypeHint tabular.ImportType
}

// PreviewResponse is everything a reviewer needs before committing: the
// proposed mappings, detected relationships, suspicious column pairs,
// and a validation dry run over the sampled rows.
type PreviewResponse struct {
	ImportType       tabular.ImportType              `json:"importType"`
	Headers          []string                        `json:"headers"`
	RowCount         int                             `json:"rowCount"`
	Mappings         []mapping.ColumnMapping         `json:"mappings"`
	Formulas         []formula.Relationship          `json:"formulas,omitempty"`
	Quantities       []formula.QuantityRelationship  `json:"quantities,omitempty"`
	DuplicateColumns []formula.DuplicateColumns      `json:"duplicateColumns,omitempty"`
	SampleFindings   []Finding                       `json:"sampleFindings,omitempty"`
	Suggestions      []string                        `json:"suggestions,omitempty"`
	Warnings         []string                        `json:"warnings,omitempty"`
}

// Preview parses the file and reports how it would be interpreted
// without persisting anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResponse, error) {
	if req.ClientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}

	table, err := tabular.Parse(req.Data, req.Filename)
	if err != nil {
		return nil, err
	}

	importType := resolveImportType(req.TypeHint, table.Headers)
	sample := table.Rows
	if len(sample) > previewSampleRows {
		sample = sample[:previewSampleRows]
	}

	mappings := s.engine.MapColumns(importType, table.Headers, sample)
	resp := &PreviewResponse{
		ImportType:       importType,
		Headers:          table.Headers,
		RowCount:         len(table.Rows),
		Mappings:         mappings,
		Formulas:         formula.DetectRelationships(table.Headers, sample),
		Quantities:       formula.DetectQuantityRelationships(table.Headers, sample),
		DuplicateColumns: formula.DetectDuplicateColumns(table.Headers, sample),
		Warnings:         table.Warnings,
	}

	fieldMappings := ConfirmedMappings(mappings)
	for i, raw := range sample {
		row, _ := BuildCanonicalRow(raw, fieldMappings)
		resp.SampleFindings = append(resp.SampleFindings, ValidateRow(importType, row, i+1)...)
	}

	for _, rel := range resp.Formulas {
		text := fmt.Sprintf("detected %s", rel.Formula)
		if rel.Label != "" {
			text += fmt.Sprintf(" (%s)", rel.Label)
		}
		resp.Suggestions = append(resp.Suggestions, text)
	}
	for _, q := range resp.Quantities {
		resp.Suggestions = append(resp.Suggestions, fmt.Sprintf("pack size %d links %q and %q", q.PackSize, q.Related[0], q.Primary))
	}
	for _, dup := range resp.DuplicateColumns {
		resp.Suggestions = append(resp.Suggestions, fmt.Sprintf(
			"%q and %q hold identical values in %.0f%% of rows and may be duplicate columns",
			dup.HeaderA, dup.HeaderB, dup.MatchRatio*100))
	}
	return resp, nil
}

// CommitRequest carries a confirmed import. Empty Mappings means accept
// the engine's suggestions as-is.
type CommitRequest struct {
	ClientID          uuid.UUID
	Filename          string
	Data              []byte
	TypeHint          tabular.ImportType
	Mappings          []FieldMapping
	Strategy          DuplicateStrategy
	DuplicateKeyField string
}

// Commit runs the full import. The same file committed twice for the
// same client is rejected by checksum before any row is touched.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*ProcessResult, error) {
	if req.ClientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}
	if req.Strategy == "" {
		req.Strategy = DuplicateSkip
	}
	if !req.Strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown duplicate strategy %q", ErrInvalidRequest, req.Strategy)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	lock := s.locks.forClient(req.ClientID)
	lock.Lock()
	defer lock.Unlock()

	checksum := Checksum(req.Data)
	prior, err := s.repo.CompletedChecksums(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load prior checksums: %w", err)
	}
	if slices.Contains(prior, checksum) {
		return nil, fmt.Errorf("%w: checksum %s matches a completed batch", ErrDuplicateFile, checksum[:12])
	}

	procReq := ProcessRequest{
		ClientID:          req.ClientID,
		Filename:          req.Filename,
		Checksum:          checksum,
		ImportType:        req.TypeHint,
		Strategy:          req.Strategy,
		DuplicateKeyField: req.DuplicateKeyField,
	}

	table, err := tabular.Parse(req.Data, req.Filename)
	if err != nil {
		logging.FromContext(ctx).Warn("parse failed", "client_id", req.ClientID, "filename", req.Filename, "error", err)
		batch, failErr := s.processor.FailParse(ctx, procReq, err)
		if failErr != nil {
			return nil, failErr
		}
		return &ProcessResult{Batch: batch}, nil
	}

	procReq.ImportType = resolveImportType(req.TypeHint, table.Headers)
	procReq.Table = table
	procReq.Mappings = req.Mappings
	if len(procReq.Mappings) == 0 {
		sample := table.Rows
		if len(sample) > previewSampleRows {
			sample = sample[:previewSampleRows]
		}
		procReq.Mappings = ConfirmedMappings(s.engine.MapColumns(procReq.ImportType, table.Headers, sample))
	}

	return s.processor.Run(ctx, procReq)
}

// Batch fetches one import batch for status reporting.
func (s *Service) Batch(ctx context.Context, id uuid.UUID) (*ImportBatch, error) {
	return s.repo.FindImportBatch(ctx, id)
}

// WaitForDrain lets graceful shutdown wait for in-flight imports.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ConfirmedMappings converts engine output into the committed form,
// keeping only headers that resolved to a target.
func ConfirmedMappings(mappings []mapping.ColumnMapping) []FieldMapping {
	out := make([]FieldMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.TargetField == "" {
			continue
		}
		out = append(out, FieldMapping{Source: m.SourceHeader, Target: m.TargetField})
	}
	return out
}

// Checksum returns the hex SHA-256 of the raw file bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func resolveImportType(hint tabular.ImportType, headers []string) tabular.ImportType {
	if hint == "" || hint == tabular.ImportDetect || !hint.Valid() {
		return tabular.Classify(headers)
	}
	return hint
}
