package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImportPhase indicates the current stage of a run.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseSubmitting ImportPhase = "submitting"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
)

// RunProgress is a snapshot of a running import, sent to subscribers.
type RunProgress struct {
	ImportID    string      `json:"importId"`
	FileName    string      `json:"fileName"`
	Phase       ImportPhase `json:"phase"`
	Total       int         `json:"total"`
	Completed   int         `json:"completed"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	InvalidRows int         `json:"invalidRows"`
	Error       string      `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	if p.Total == 0 {
		if p.Phase == PhaseComplete || p.Phase == PhaseFailed {
			return 100
		}
		return 0
	}
	return p.Completed * 100 / p.Total
}

// Done reports whether the run has finished.
func (p RunProgress) Done() bool {
	return p.Phase == PhaseComplete || p.Phase == PhaseFailed
}

// ImportRequest starts a run.
type ImportRequest struct {
	FileName string
	Data     []byte
	Mapping  map[string]string // column -> field key
	Policy   ImportPolicy
	Scope    Scope
}

type activeRun struct {
	ID       string
	FileName string
	Result   *ImportReport
	Done     chan struct{}

	mu        sync.Mutex
	progress  RunProgress
	listeners []chan RunProgress
}

// StartImport parses, maps and transforms the file synchronously, then
// submits the valid records in the background. It returns the run id
// immediately; use SubscribeProgress and GetResult to follow the run.
//
// Parse and mapping problems are returned directly and nothing is
// submitted. When req.Scope has no organisation, the scope attached to ctx
// with ContextWithScope is used. Returns ErrTooManyImports if no import slot frees up in time.
// A run cannot be cancelled once started.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if req.Scope.OrganisationID == "" {
		if scope, ok := ScopeFromContext(ctx); ok {
			req.Scope = scope
		}
	}
	if req.Scope.OrganisationID == "" {
		return "", fmt.Errorf("organisation id is required")
	}

	table, err := s.load(req.FileName, req.Data)
	if err != nil {
		return "", err
	}
	mapping, err := MappingFromAssignments(table.Headers, req.Mapping)
	if err != nil {
		return "", err
	}
	transformed, err := Transform(table, mapping)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	importID := uuid.New().String()
	run := &activeRun{
		ID:       importID,
		FileName: req.FileName,
		Done:     make(chan struct{}),
		progress: RunProgress{
			ImportID:    importID,
			FileName:    req.FileName,
			Phase:       PhaseStarting,
			Total:       len(transformed.Records),
			InvalidRows: transformed.RejectedRows(),
		},
	}

	s.mu.Lock()
	s.runs[importID] = run
	s.mu.Unlock()

	batch := Batch{
		ID:               importID,
		FileName:         req.FileName,
		Scope:            req.Scope,
		Policy:           req.Policy,
		Records:          transformed.Records,
		ValidationErrors: transformed.Errors,
	}

	// Detached from the request: the run outlives it.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import",
					"import_id", importID,
					"panic", r,
				)
				report := FailedReport(batch.Records, batch.ValidationErrors, fmt.Errorf("internal error: %v", r))
				report.ID = importID
				report.FileName = req.FileName
				s.finishRun(run, report)
			}
		}()
		s.processImport(runCtx, run, batch)
	}()

	return importID, nil
}

func (s *Service) processImport(ctx context.Context, run *activeRun, batch Batch) {
	// The orchestrator adds import_id.
	logger := slog.Default().With("file", run.FileName)
	if ip := ClientIPFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}

	var sub Submitter
	if s.creator != nil {
		sub = scopedSubmitter{creator: s.creator, scope: batch.Scope}
	}
	orch := NewOrchestrator(sub, WithDelay(s.cfg.SubmitDelay), WithLogger(logger))

	run.update(func(p *RunProgress) { p.Phase = PhaseSubmitting })

	report := orch.RunBatch(ctx, batch, func(pr Progress) {
		run.update(func(p *RunProgress) {
			p.Completed = pr.Completed
			p.Succeeded = pr.Succeeded
			p.Failed = pr.Failed
		})
	})

	if s.store != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := s.store.SaveRun(saveCtx, report); err != nil {
			logger.Error("save import history failed", "import_id", run.ID, "error", err)
		}
		cancel()
	}

	s.finishRun(run, report)
}

// finishRun publishes the report, closes subscribers and schedules removal.
func (s *Service) finishRun(run *activeRun, report *ImportReport) {
	if !run.finish(report) {
		return
	}
	s.cleanup(run.ID, s.cfg.ResultTTL)
}

// update applies fn to the run's progress and notifies listeners.
func (run *activeRun) update(fn func(*RunProgress)) {
	run.mu.Lock()
	defer run.mu.Unlock()

	fn(&run.progress)
	run.notify()
}

// notify must be called with run.mu held.
func (run *activeRun) notify() {
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish records the final state once. It reports false if the run had
// already finished.
func (run *activeRun) finish(report *ImportReport) bool {
	run.mu.Lock()
	defer run.mu.Unlock()

	select {
	case <-run.Done:
		return false
	default:
	}

	run.Result = report
	p := &run.progress
	p.Completed = report.TotalProcessed
	p.Succeeded = report.SuccessCount
	p.Failed = report.ErrorCount
	if report.Failure != "" {
		p.Phase = PhaseFailed
		p.Error = report.Failure
	} else {
		p.Phase = PhaseComplete
	}
	run.notify()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	close(run.Done)
	return true
}

func (run *activeRun) snapshot() RunProgress {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.progress
}

// cleanup removes the run from memory after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, importID)
		s.mu.Unlock()
	})
}

func (s *Service) getRun(importID string) (*activeRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[importID]
	return run, ok
}

// SubscribeProgress returns a channel of progress updates for a run. The
// current state is sent immediately and the channel is closed when the run
// finishes.
func (s *Service) SubscribeProgress(importID string) (<-chan RunProgress, error) {
	run, ok := s.getRun(importID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}

	ch := make(chan RunProgress, 10)

	run.mu.Lock()
	defer run.mu.Unlock()

	ch <- run.progress
	select {
	case <-run.Done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(importID string) (RunProgress, error) {
	run, ok := s.getRun(importID)
	if !ok {
		return RunProgress{}, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return run.snapshot(), nil
}

// GetResult returns the report of a run, waiting for it to finish if it is
// still in progress. Runs no longer in memory are read from history.
func (s *Service) GetResult(ctx context.Context, importID string) (*ImportReport, error) {
	run, ok := s.getRun(importID)
	if !ok {
		return s.GetHistory(ctx, importID)
	}

	select {
	case <-run.Done:
		return run.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListHistory returns past runs, newest first.
func (s *Service) ListHistory(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListRuns(ctx, limit, offset)
}

// GetHistory returns a stored report.
func (s *Service) GetHistory(ctx context.Context, importID string) (*ImportReport, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return s.store.GetRun(ctx, importID)
}

// PurgeHistory deletes runs that finished before cutoff.
func (s *Service) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	if s.store == nil {
		return 0, ErrHistoryUnavailable
	}
	return s.store.PurgeRuns(ctx, before)
}

// WriteFailuresCSV writes the validation errors and rejected submissions of
// a run as CSV, ordered by row.
func (s *Service) WriteFailuresCSV(ctx context.Context, importID string, w io.Writer) error {
	report, err := s.GetResult(ctx, importID)
	if err != nil {
		return err
	}
	return WriteFailures(w, report)
}

// WriteFailures writes a report's failures as CSV with the columns
// Row, Stage, Field, Name, Email, Error.
func WriteFailures(w io.Writer, report *ImportReport) error {
	type failure struct {
		row                       int
		stage, field, name, email string
		msg                       string
	}

	var rows []failure
	for _, v := range report.ValidationErrors {
		rows = append(rows, failure{row: v.Row, stage: "validation", field: v.Field, msg: v.Message})
	}
	for _, r := range report.Failed() {
		rows = append(rows, failure{
			row:   r.Row,
			stage: "submission",
			name:  r.Identity.DisplayName(),
			email: r.Identity.Email,
			msg:   r.Error,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].row < rows[j].row })

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Row", "Stage", "Field", "Name", "Email", "Error"}); err != nil {
		return err
	}
	for _, f := range rows {
		if err := cw.Write([]string{strconv.Itoa(f.row), f.stage, f.field, f.name, f.email, f.msg}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
