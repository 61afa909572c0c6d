package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/memberimport/internal/core"
)

// SaveRun stores a finished report. Saving the same run twice replaces it.
func (s *Store) SaveRun(ctx context.Context, report *core.ImportReport) error {
	id := toPgUUID(report.ID)
	if !id.Valid {
		return fmt.Errorf("save run: invalid import id %q", report.ID)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO import_runs (
			id, file_name, organisation_id, branch_id,
			total_processed, success_count, error_count, invalid_rows,
			failure, report, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			total_processed = EXCLUDED.total_processed,
			success_count   = EXCLUDED.success_count,
			error_count     = EXCLUDED.error_count,
			invalid_rows    = EXCLUDED.invalid_rows,
			failure         = EXCLUDED.failure,
			report          = EXCLUDED.report,
			finished_at     = EXCLUDED.finished_at`,
		id,
		report.FileName,
		report.Scope.OrganisationID,
		report.Scope.BranchID,
		report.TotalProcessed,
		report.SuccessCount,
		report.ErrorCount,
		report.InvalidRows(),
		report.Failure,
		payload,
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun returns a stored report, or core.ErrImportNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*core.ImportReport, error) {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return nil, fmt.Errorf("%w: %s", core.ErrImportNotFound, id)
	}

	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT report FROM import_runs WHERE id = $1`, pgID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrImportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var report core.ImportReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &report, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]core.RunSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, organisation_id, branch_id,
		       total_processed, success_count, error_count, invalid_rows,
		       failure, started_at, finished_at
		FROM import_runs
		ORDER BY finished_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []core.RunSummary{}
	for rows.Next() {
		var (
			id  pgtype.UUID
			sum core.RunSummary
		)
		if err := rows.Scan(
			&id, &sum.FileName, &sum.OrganisationID, &sum.BranchID,
			&sum.TotalProcessed, &sum.SuccessCount, &sum.ErrorCount, &sum.InvalidRows,
			&sum.Failure, &sum.StartedAt, &sum.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.ID = pgUUIDToString(id)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// PurgeRuns deletes runs that finished before the cutoff.
func (s *Store) PurgeRuns(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_runs WHERE finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
