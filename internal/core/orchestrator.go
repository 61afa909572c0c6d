package core

// orchestrator.go submits normalized records to the remote create operation.
//
// Records are submitted one at a time in input order. A rate limiter spaces
// successive submissions as courtesy backpressure toward the downstream
// service. A rejected record is recorded and the run continues; nothing
// aborts a run once the first record has been attempted.

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSubmitDelay is the pause between successive submissions.
const DefaultSubmitDelay = 100 * time.Millisecond

// ErrNoSubmitter is reported when an orchestrator has nothing to submit to.
var ErrNoSubmitter = errors.New("no member submitter configured")

// CreatedIdentity is returned by the remote create operation.
type CreatedIdentity struct {
	ID string `json:"id"`
}

// Submitter creates one member remotely. Timeouts and retries are the
// submitter's concern.
type Submitter interface {
	Submit(ctx context.Context, rec NormalizedRecord) (CreatedIdentity, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, rec NormalizedRecord) (CreatedIdentity, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, rec NormalizedRecord) (CreatedIdentity, error) {
	return f(ctx, rec)
}

// Pinger is implemented by submitters that can check the remote side is
// reachable before a run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Progress is emitted after each record.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Ratio     float64 `json:"ratio"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
}

// ProgressFunc receives progress updates. It is called synchronously from the
// run and should not block.
type ProgressFunc func(Progress)

// Batch is the input to a run.
type Batch struct {
	ID               string
	FileName         string
	Scope            Scope
	Policy           ImportPolicy
	Records          []NormalizedRecord
	ValidationErrors []ValidationError
}

// Orchestrator runs batches against a Submitter.
type Orchestrator struct {
	submitter Submitter
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithDelay sets the pause between submissions. Zero or negative disables it.
func WithDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.delay = d }
}

// WithLogger sets the logger used for run events.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator returns an orchestrator that submits through sub.
func NewOrchestrator(sub Submitter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		submitter: sub,
		delay:     DefaultSubmitDelay,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OutcomeStream is a lazy, single-use sequence of per-record outcomes.
type OutcomeStream struct {
	orch    *Orchestrator
	ctx     context.Context
	records []NormalizedRecord
	used    atomic.Bool
}

// Stream returns the outcomes of submitting records. Nothing is submitted
// until the stream is ranged over. Caller cancellation does not stop a
// stream that has started.
func (o *Orchestrator) Stream(ctx context.Context, records []NormalizedRecord) *OutcomeStream {
	return &OutcomeStream{
		orch:    o,
		ctx:     context.WithoutCancel(ctx),
		records: records,
	}
}

// Len returns the number of records in the stream.
func (s *OutcomeStream) Len() int { return len(s.records) }

// All yields (index, result) for each record in input order. The stream can
// be consumed once; later calls yield nothing. Breaking out of the loop stops
// further submissions.
func (s *OutcomeStream) All() iter.Seq2[int, ImportRecordResult] {
	return func(yield func(int, ImportRecordResult) bool) {
		if s.used.Swap(true) {
			return
		}

		limiter := rate.NewLimiter(rate.Inf, 1)
		if s.orch.delay > 0 {
			limiter = rate.NewLimiter(rate.Every(s.orch.delay), 1)
		}

		for i, rec := range s.records {
			if err := limiter.Wait(s.ctx); err != nil {
				// Only reachable if the limiter is misconfigured.
				s.orch.logger.Warn("submit pacing failed", "error", err)
			}
			if !yield(i, s.orch.submitOne(s.ctx, rec)) {
				return
			}
		}
	}
}

// submitOne submits rec and converts the outcome into a result. A panicking
// submitter is recorded as a failed record.
func (o *Orchestrator) submitOne(ctx context.Context, rec NormalizedRecord) (res ImportRecordResult) {
	res = ImportRecordResult{
		Row:      rec.Row(),
		Identity: rec.Identity(),
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in submit", "row", rec.Row(), "panic", r)
			res.Success = false
			res.CreatedID = ""
			res.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	created, err := o.submitter.Submit(ctx, rec)
	if err != nil {
		o.logger.Debug("record rejected", "error", &SubmissionError{Row: rec.Row(), Err: err})
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.CreatedID = created.ID
	return res
}

// Run submits records under policy and returns the report.
func (o *Orchestrator) Run(ctx context.Context, records []NormalizedRecord, policy ImportPolicy, progress ProgressFunc) *ImportReport {
	return o.RunBatch(ctx, Batch{Records: records, Policy: policy}, progress)
}

// RunBatch submits every record in b and returns the report. It never
// returns an error: a run that cannot start yields a report where every
// record is counted as failed.
func (o *Orchestrator) RunBatch(ctx context.Context, b Batch, progress ProgressFunc) *ImportReport {
	ctx = context.WithoutCancel(ctx)
	started := o.now()
	logger := o.logger.With("import_id", b.ID, "records", len(b.Records))

	if b.Policy.SkipDuplicates || b.Policy.UpdateExisting {
		logger.Warn("duplicate handling requested but not performed",
			"skip_duplicates", b.Policy.SkipDuplicates,
			"update_existing", b.Policy.UpdateExisting)
	}

	if err := o.preflight(ctx); err != nil {
		logger.Error("import could not start", "error", err)
		report := FailedReport(b.Records, b.ValidationErrors, err)
		return o.finish(report, b, started)
	}

	total := len(b.Records)
	results := make([]ImportRecordResult, 0, total)
	var p Progress
	p.Total = total
	for i, res := range o.Stream(ctx, b.Records).All() {
		results = append(results, res)
		if res.Success {
			p.Succeeded++
		} else {
			p.Failed++
		}
		p.Completed = i + 1
		p.Ratio = float64(p.Completed) / float64(total)
		if progress != nil {
			progress(p)
		}
	}

	report := o.finish(NewReport(results, b.ValidationErrors), b, started)
	logger.Info("import finished",
		"succeeded", report.SuccessCount,
		"failed", report.ErrorCount,
		"invalid_rows", report.InvalidRows(),
		"duration_ms", report.Duration().Milliseconds())
	return report
}

func (o *Orchestrator) preflight(ctx context.Context) error {
	if o.submitter == nil {
		return ErrNoSubmitter
	}
	if p, ok := o.submitter.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("remote service unavailable: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) finish(r *ImportReport, b Batch, started time.Time) *ImportReport {
	r.ID = b.ID
	r.FileName = b.FileName
	r.Scope = b.Scope
	r.Policy = b.Policy
	r.StartedAt = started
	r.FinishedAt = o.now()
	return r
}
