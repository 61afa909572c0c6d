package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(t *testing.T, n int) []NormalizedRecord {
	t.Helper()
	recs := make([]NormalizedRecord, n)
	for i := range recs {
		rec, err := NewRecord(i+2, map[FieldKey]string{
			KeyFirstName: fmt.Sprintf("First%d", i),
			KeyLastName:  fmt.Sprintf("Last%d", i),
			KeyEmail:     fmt.Sprintf("m%d@example.com", i),
		})
		require.NoError(t, err)
		recs[i] = rec
	}
	return recs
}

// recordingSubmitter fails rows listed in failRows and records call order.
type recordingSubmitter struct {
	mu       sync.Mutex
	failRows map[int]error
	calls    []int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *recordingSubmitter) Submit(_ context.Context, rec NormalizedRecord) (CreatedIdentity, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}

	s.mu.Lock()
	s.calls = append(s.calls, rec.Row())
	s.mu.Unlock()

	if err, ok := s.failRows[rec.Row()]; ok {
		return CreatedIdentity{}, err
	}
	return CreatedIdentity{ID: fmt.Sprintf("id-%d", rec.Row())}, nil
}

func TestOrchestrator_PartialFailure(t *testing.T) {
	records := makeRecords(t, 5)
	sub := &recordingSubmitter{failRows: map[int]error{4: errors.New("email already exists")}}

	var progress []Progress
	report := NewOrchestrator(sub, WithDelay(0)).Run(context.Background(), records, ImportPolicy{}, func(p Progress) {
		progress = append(progress, p)
	})

	assert.Equal(t, 5, report.TotalProcessed)
	assert.Equal(t, 4, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 0, report.SkippedCount)
	assert.Equal(t, report.TotalProcessed, report.SuccessCount+report.ErrorCount+report.SkippedCount)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 4, failed[0].Row)
	assert.Equal(t, "email already exists", failed[0].Error)
	assert.Equal(t, "First2", failed[0].Identity.FirstName)
	assert.Empty(t, failed[0].CreatedID)

	// Strict input order, one at a time.
	assert.Equal(t, []int{2, 3, 4, 5, 6}, sub.calls)
	assert.EqualValues(t, 1, sub.maxSeen.Load())

	for i, r := range report.Results {
		assert.Equal(t, records[i].Row(), r.Row)
	}

	require.Len(t, progress, 5)
	for i, p := range progress {
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 5, p.Total)
		assert.InDelta(t, float64(i+1)/5, p.Ratio, 1e-9)
	}
	assert.Equal(t, 1, progress[4].Failed)
	assert.Equal(t, 4, progress[4].Succeeded)
	assert.Equal(t, "4 members imported successfully, 1 failed, 0 skipped.", report.Summary)
}

func TestOrchestrator_PanickingSubmitterIsRecorded(t *testing.T) {
	records := makeRecords(t, 3)
	sub := SubmitFunc(func(_ context.Context, rec NormalizedRecord) (CreatedIdentity, error) {
		if rec.Row() == 3 {
			panic("boom")
		}
		return CreatedIdentity{ID: "ok"}, nil
	})

	report := NewOrchestrator(sub, WithDelay(0)).Run(context.Background(), records, ImportPolicy{}, nil)

	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Contains(t, report.Results[1].Error, "boom")
	assert.False(t, report.Results[1].Success)
}

type failingPinger struct {
	SubmitFunc
}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestOrchestrator_PreflightFailure(t *testing.T) {
	records := makeRecords(t, 4)
	var called atomic.Bool
	sub := failingPinger{SubmitFunc: func(context.Context, NormalizedRecord) (CreatedIdentity, error) {
		called.Store(true)
		return CreatedIdentity{}, nil
	}}
	validation := []ValidationError{{Row: 9, Field: "Last Name", Message: "Last Name is required"}}

	report := NewOrchestrator(sub).RunBatch(context.Background(), Batch{
		ID:               "run-1",
		Records:          records,
		ValidationErrors: validation,
	}, nil)

	assert.False(t, called.Load())
	assert.Equal(t, "run-1", report.ID)
	assert.Equal(t, 4, report.TotalProcessed)
	assert.Equal(t, 4, report.ErrorCount)
	assert.Equal(t, 0, report.SuccessCount)
	assert.Contains(t, report.Failure, "remote service unavailable")
	assert.Equal(t, validation, report.ValidationErrors)
	assert.Empty(t, report.Results)
}

func TestOrchestrator_NilSubmitter(t *testing.T) {
	report := NewOrchestrator(nil).Run(context.Background(), makeRecords(t, 2), ImportPolicy{}, nil)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, ErrNoSubmitter.Error(), report.Failure)
}

func TestOrchestrator_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	records := makeRecords(t, 3)

	sub := SubmitFunc(func(ctx context.Context, _ NormalizedRecord) (CreatedIdentity, error) {
		cancel()
		if err := ctx.Err(); err != nil {
			return CreatedIdentity{}, err
		}
		return CreatedIdentity{ID: "x"}, nil
	})

	report := NewOrchestrator(sub, WithDelay(0)).Run(ctx, records, ImportPolicy{SkipDuplicates: true}, nil)
	assert.Equal(t, 3, report.SuccessCount)
	assert.True(t, report.Policy.SkipDuplicates)
	assert.Equal(t, 0, report.SkippedCount)
}

func TestOrchestrator_DelayBetweenSubmissions(t *testing.T) {
	records := makeRecords(t, 3)
	var times []time.Time
	sub := SubmitFunc(func(context.Context, NormalizedRecord) (CreatedIdentity, error) {
		times = append(times, time.Now())
		return CreatedIdentity{}, nil
	})

	NewOrchestrator(sub, WithDelay(20*time.Millisecond)).Run(context.Background(), records, ImportPolicy{}, nil)

	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 15*time.Millisecond)
	}
}

func TestOutcomeStream_LazyAndSingleUse(t *testing.T) {
	records := makeRecords(t, 4)
	sub := &recordingSubmitter{}
	stream := NewOrchestrator(sub, WithDelay(0)).Stream(context.Background(), records)

	assert.Empty(t, sub.calls, "nothing is submitted before iteration")
	assert.Equal(t, 4, stream.Len())

	var rows []int
	for i, res := range stream.All() {
		rows = append(rows, res.Row)
		if i == 1 {
			break
		}
	}
	assert.Equal(t, []int{2, 3}, rows)
	assert.Equal(t, []int{2, 3}, sub.calls, "breaking stops further submissions")

	count := 0
	for range stream.All() {
		count++
	}
	assert.Zero(t, count, "a consumed stream yields nothing")
}

func TestImportReport_InvalidRowsCountsDistinctRows(t *testing.T) {
	report := NewReport(nil, []ValidationError{
		{Row: 3, Field: "First Name", Message: "First Name is required"},
		{Row: 3, Field: "Last Name", Message: "Last Name is required"},
		{Row: 5, Field: "Last Name", Message: "Last Name is required"},
	})
	assert.Equal(t, 2, report.InvalidRows())
	assert.Len(t, report.ValidationErrors, 3)
}

func TestImportReport_Duration(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := []time.Time{start, start.Add(1500 * time.Millisecond)}
	orch := NewOrchestrator(SubmitFunc(func(context.Context, NormalizedRecord) (CreatedIdentity, error) {
		return CreatedIdentity{ID: "m"}, nil
	}), WithDelay(0))
	orch.now = func() time.Time {
		now := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return now
	}

	report := orch.Run(context.Background(), nil, ImportPolicy{}, nil)
	assert.Equal(t, 1500*time.Millisecond, report.Duration())
}

func TestNewReport_Empty(t *testing.T) {
	report := NewReport(nil, nil)
	assert.Equal(t, 0, report.TotalProcessed)
	assert.NotNil(t, report.Results)
	assert.NotNil(t, report.ValidationErrors)
	assert.Equal(t, "0 members imported successfully, 0 failed, 0 skipped.", report.Summary)
}
