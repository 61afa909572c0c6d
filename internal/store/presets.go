package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/memberimport/internal/core"
)

const presetColumns = `id, name, headers, mapping, created_at, updated_at`

// ListPresets returns all presets, most recently updated first.
func (s *Store) ListPresets(ctx context.Context) ([]core.MappingPreset, error) {
	rows, err := s.db.Query(ctx, `SELECT `+presetColumns+` FROM mapping_presets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	out := []core.MappingPreset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return out, nil
}

// GetPreset returns a preset, or core.ErrPresetNotFound.
func (s *Store) GetPreset(ctx context.Context, id string) (*core.MappingPreset, error) {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return nil, core.ErrPresetNotFound
	}

	row := s.db.QueryRow(ctx, `SELECT `+presetColumns+` FROM mapping_presets WHERE id = $1`, pgID)
	return presetResult(scanPreset(row))
}

// CreatePreset inserts p with a new id. A duplicate name (case-insensitive)
// returns core.ErrPresetExists.
func (s *Store) CreatePreset(ctx context.Context, p core.MappingPreset) (*core.MappingPreset, error) {
	headers, mapping, err := encodePreset(p)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO mapping_presets (id, name, headers, mapping)
		VALUES ($1, $2, $3, $4)
		RETURNING `+presetColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, p.Name, headers, mapping)
	return presetResult(scanPreset(row))
}

// UpdatePreset replaces a preset's name, headers and mapping.
func (s *Store) UpdatePreset(ctx context.Context, p core.MappingPreset) (*core.MappingPreset, error) {
	pgID := toPgUUID(p.ID)
	if !pgID.Valid {
		return nil, core.ErrPresetNotFound
	}
	headers, mapping, err := encodePreset(p)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE mapping_presets
		SET name = $2, headers = $3, mapping = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+presetColumns,
		pgID, p.Name, headers, mapping)
	return presetResult(scanPreset(row))
}

// DeletePreset removes a preset, or returns core.ErrPresetNotFound.
func (s *Store) DeletePreset(ctx context.Context, id string) error {
	pgID := toPgUUID(id)
	if !pgID.Valid {
		return core.ErrPresetNotFound
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM mapping_presets WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrPresetNotFound
	}
	return nil
}

func encodePreset(p core.MappingPreset) (headers, mapping []byte, err error) {
	if headers, err = json.Marshal(p.Headers); err != nil {
		return nil, nil, fmt.Errorf("encode preset headers: %w", err)
	}
	if mapping, err = json.Marshal(p.Mapping); err != nil {
		return nil, nil, fmt.Errorf("encode preset mapping: %w", err)
	}
	return headers, mapping, nil
}

func scanPreset(row pgx.Row) (*core.MappingPreset, error) {
	var (
		p                core.MappingPreset
		id               pgtype.UUID
		headers, mapping []byte
	)
	if err := row.Scan(&id, &p.Name, &headers, &mapping, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = pgUUIDToString(id)
	if err := json.Unmarshal(headers, &p.Headers); err != nil {
		return nil, fmt.Errorf("decode preset headers: %w", err)
	}
	if err := json.Unmarshal(mapping, &p.Mapping); err != nil {
		return nil, fmt.Errorf("decode preset mapping: %w", err)
	}
	return &p, nil
}

// presetResult maps driver errors to the core preset errors.
func presetResult(p *core.MappingPreset, err error) (*core.MappingPreset, error) {
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, core.ErrPresetNotFound
	case isUniqueViolation(err):
		return nil, core.ErrPresetExists
	default:
		return nil, fmt.Errorf("preset query: %w", err)
	}
}
