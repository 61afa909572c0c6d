package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxFileSize bounds uploads accepted by the service.
const DefaultMaxFileSize = 10 << 20

// DefaultPreviewRows is the number of sample rows returned by Inspect and Preview.
const DefaultPreviewRows = 5

// DefaultResultTTL is how long a finished run stays in memory.
const DefaultResultTTL = 30 * time.Minute

// MemberCreator is the remote create-member operation.
type MemberCreator interface {
	CreateMember(ctx context.Context, scope Scope, rec NormalizedRecord) (CreatedIdentity, error)
}

// HistoryStore persists finished import reports.
type HistoryStore interface {
	SaveRun(ctx context.Context, report *ImportReport) error
	GetRun(ctx context.Context, id string) (*ImportReport, error)
	ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error)
	PurgeRuns(ctx context.Context, before time.Time) (int64, error)
}

// Store is the persistence used by the service. It is optional.
type Store interface {
	HistoryStore
	PresetStore
}

// RunSummary is a history list entry.
type RunSummary struct {
	ID             string    `json:"id"`
	FileName       string    `json:"fileName"`
	OrganisationID string    `json:"organisationId"`
	BranchID       string    `json:"branchId,omitempty"`
	TotalProcessed int       `json:"totalProcessed"`
	SuccessCount   int       `json:"successCount"`
	ErrorCount     int       `json:"errorCount"`
	InvalidRows    int       `json:"invalidRows"`
	Failure        string    `json:"failure,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// ServiceConfig holds the service's tunables. Zero values take defaults,
// except SubmitDelay where zero disables pacing.
type ServiceConfig struct {
	SubmitDelay   time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	MaxFileSize   int64
	PreviewRows   int
	ResultTTL     time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.SubmitDelay < 0 {
		c.SubmitDelay = 0
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = DefaultPreviewRows
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
	return c
}

// Service runs member imports. It is safe for concurrent use.
type Service struct {
	creator MemberCreator
	store   Store
	limiter *ImportLimiter
	cfg     ServiceConfig

	mu   sync.RWMutex
	runs map[string]*activeRun
}

// NewService creates a Service. store may be nil, in which case history and
// presets are unavailable and finished runs live only for ResultTTL.
func NewService(creator MemberCreator, store Store, cfg ServiceConfig) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		creator: creator,
		store:   store,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

// Fields returns the target schema.
func (s *Service) Fields() []FieldSpec {
	return Catalog()
}

// MaxFileSize returns the largest accepted upload in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// HistoryEnabled reports whether a store is configured.
func (s *Service) HistoryEnabled() bool {
	return s.store != nil
}

// LimiterStatus returns the import limiter's state.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// load checks size limits and ingests data.
func (s *Service) load(fileName string, data []byte) (*SourceTable, error) {
	if len(data) == 0 {
		return nil, &ParseError{FileName: fileName, Err: fmt.Errorf("no file provided")}
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, &ParseError{
			FileName: fileName,
			Err:      fmt.Errorf("file too large: %d bytes exceeds limit of %d", len(data), s.cfg.MaxFileSize),
		}
	}
	return Ingest(data, fileName)
}

// Inspection describes an uploaded file before mapping.
type Inspection struct {
	FileName  string              `json:"fileName"`
	Headers   []string            `json:"headers"`
	RowCount  int                 `json:"rowCount"`
	Sample    []map[string]string `json:"sample"`
	Suggested ColumnMapping       `json:"suggested"`
	Presets   []PresetMatch       `json:"presets"`
}

// Inspect parses a file and proposes a mapping for it. When a saved preset
// matches the headers, the best preset is used as the suggestion.
func (s *Service) Inspect(ctx context.Context, fileName string, data []byte) (*Inspection, error) {
	table, err := s.load(fileName, data)
	if err != nil {
		return nil, err
	}

	presets, err := s.MatchPresets(ctx, table.Headers)
	if err != nil {
		slog.Warn("preset lookup failed", "file", fileName, "error", err)
		presets = nil
	}

	suggested := SuggestMapping(table.Headers)
	if len(presets) > 0 {
		if m := ApplyPreset(table.Headers, presets[0].Preset); m.IsComplete() {
			suggested = m
		}
	}

	if presets == nil {
		presets = []PresetMatch{}
	}
	return &Inspection{
		FileName:  fileName,
		Headers:   table.Headers,
		RowCount:  table.Len(),
		Sample:    table.Sample(s.cfg.PreviewRows),
		Suggested: suggested,
		Presets:   presets,
	}, nil
}

// PreviewResult is the outcome of transforming a file without submitting it.
type PreviewResult struct {
	FileName     string             `json:"fileName"`
	RowCount     int                `json:"rowCount"`
	MappedCount  int                `json:"mappedCount"`
	ValidCount   int                `json:"validCount"`
	RejectedRows int                `json:"rejectedRows"`
	Errors       []ValidationError  `json:"errors"`
	Sample       []NormalizedRecord `json:"sample"`
}

// Preview transforms a file with the given column -> field assignments and
// reports what would be submitted. Nothing is submitted or stored.
func (s *Service) Preview(ctx context.Context, fileName string, data []byte, assignments map[string]string) (*PreviewResult, error) {
	table, err := s.load(fileName, data)
	if err != nil {
		return nil, err
	}

	mapping, err := MappingFromAssignments(table.Headers, assignments)
	if err != nil {
		return nil, err
	}

	result, err := Transform(table, mapping)
	if err != nil {
		return nil, err
	}

	sample := result.Records
	if len(sample) > s.cfg.PreviewRows {
		sample = sample[:s.cfg.PreviewRows]
	}
	return &PreviewResult{
		FileName:     fileName,
		RowCount:     table.Len(),
		MappedCount:  mapping.MappedCount(),
		ValidCount:   len(result.Records),
		RejectedRows: result.RejectedRows(),
		Errors:       result.Errors,
		Sample:       sample,
	}, nil
}

// scopedSubmitter binds a MemberCreator to one organisation and branch.
type scopedSubmitter struct {
	creator MemberCreator
	scope   Scope
}

func (s scopedSubmitter) Submit(ctx context.Context, rec NormalizedRecord) (CreatedIdentity, error) {
	return s.creator.CreateMember(ctx, s.scope, rec)
}

func (s scopedSubmitter) Ping(ctx context.Context) error {
	if p, ok := s.creator.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
