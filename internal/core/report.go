package core

import (
	"fmt"
	"time"
)

// Identity holds the fields shown next to a result row.
type Identity struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}

// DisplayName returns "First Last", trimmed when either part is empty.
func (i Identity) DisplayName() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	default:
		return i.FirstName + " " + i.LastName
	}
}

// ImportRecordResult is the outcome of submitting one record.
type ImportRecordResult struct {
	Row       int      `json:"row"`
	Identity  Identity `json:"identity"`
	Success   bool     `json:"success"`
	CreatedID string   `json:"createdId,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ImportPolicy carries the caller's duplicate-handling intent. Neither flag
// is acted on: no lookup of existing members is performed before submission.
type ImportPolicy struct {
	SkipDuplicates bool `json:"skipDuplicates"`
	UpdateExisting bool `json:"updateExisting"`
}

// Scope identifies where imported members are created.
type Scope struct {
	OrganisationID string `json:"organisationId"`
	BranchID       string `json:"branchId,omitempty"`
}

// ImportReport is the terminal result of an import run. It is built once by
// NewReport or FailedReport and not modified afterwards.
type ImportReport struct {
	ID       string       `json:"id"`
	FileName string       `json:"fileName,omitempty"`
	Policy   ImportPolicy `json:"policy"`
	Scope    Scope        `json:"scope"`

	TotalProcessed int `json:"totalProcessed"`
	SuccessCount   int `json:"successCount"`
	ErrorCount     int `json:"errorCount"`
	SkippedCount   int `json:"skippedCount"`

	Results          []ImportRecordResult `json:"results"`
	ValidationErrors []ValidationError    `json:"validationErrors"`
	Summary          string               `json:"summary"`

	// Failure is set when the run could not start at all.
	Failure string `json:"failure,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration returns how long the run took.
func (r *ImportReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// InvalidRows returns the number of distinct source rows excluded by
// validation.
func (r *ImportReport) InvalidRows() int {
	return distinctRows(r.ValidationErrors)
}

// Failed returns the results that were rejected.
func (r *ImportReport) Failed() []ImportRecordResult {
	var out []ImportRecordResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// NewReport aggregates per-record results into a report.
func NewReport(results []ImportRecordResult, validation []ValidationError) *ImportReport {
	r := &ImportReport{
		TotalProcessed:   len(results),
		Results:          results,
		ValidationErrors: validation,
	}
	if r.Results == nil {
		r.Results = []ImportRecordResult{}
	}
	if r.ValidationErrors == nil {
		r.ValidationErrors = []ValidationError{}
	}
	for _, res := range results {
		if res.Success {
			r.SuccessCount++
		} else {
			r.ErrorCount++
		}
	}
	r.Summary = summarize(r.SuccessCount, r.ErrorCount, r.SkippedCount)
	return r
}

// FailedReport builds the report for a run that failed before any record was
// attempted. Every record counts as an error and cause is recorded once.
func FailedReport(records []NormalizedRecord, validation []ValidationError, cause error) *ImportReport {
	r := NewReport(nil, validation)
	r.TotalProcessed = len(records)
	r.ErrorCount = len(records)
	r.Failure = cause.Error()
	r.Summary = fmt.Sprintf("Import failed: %s. %s", cause.Error(), summarize(0, r.ErrorCount, 0))
	return r
}

func summarize(success, failed, skipped int) string {
	return fmt.Sprintf("%d %s imported successfully, %d failed, %d skipped.",
		success, plural(success, "member", "members"), failed, skipped)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
