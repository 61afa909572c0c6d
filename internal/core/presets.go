package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PresetMatchThreshold is the minimum header overlap for a preset to be
// offered for a file.
const PresetMatchThreshold = 0.7

// ErrPresetNotFound is returned when a preset id is unknown.
var ErrPresetNotFound = errors.New("mapping preset not found")

// ErrPresetExists is returned when a preset name is already taken.
var ErrPresetExists = errors.New("a mapping preset with this name already exists")

// MappingPreset is a saved column mapping, reusable for files with the same
// layout.
type MappingPreset struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Mapping   map[string]string `json:"mapping"` // column -> field key
	Headers   []string          `json:"headers"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// PresetMatch is a preset that fits a file's headers.
type PresetMatch struct {
	Preset     MappingPreset `json:"preset"`
	MatchScore float64       `json:"matchScore"`
}

// PresetStore persists mapping presets.
type PresetStore interface {
	ListPresets(ctx context.Context) ([]MappingPreset, error)
	GetPreset(ctx context.Context, id string) (*MappingPreset, error)
	CreatePreset(ctx context.Context, p MappingPreset) (*MappingPreset, error)
	UpdatePreset(ctx context.Context, p MappingPreset) (*MappingPreset, error)
	DeletePreset(ctx context.Context, id string) error
}

// validatePreset checks the preset's mapping against its own headers and
// returns it in canonical form.
func validatePreset(p MappingPreset) (MappingPreset, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, fmt.Errorf("preset name is required")
	}
	if len(p.Headers) == 0 {
		return p, fmt.Errorf("preset headers are required")
	}

	m, err := MappingFromAssignments(p.Headers, p.Mapping)
	if err != nil {
		return p, err
	}
	p.Mapping = make(map[string]string, m.MappedCount())
	for col, key := range m.Assignments() {
		p.Mapping[col] = string(key)
	}
	return p, nil
}

// CreatePreset validates and stores a new preset.
func (s *Service) CreatePreset(ctx context.Context, p MappingPreset) (*MappingPreset, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	p, err := validatePreset(p)
	if err != nil {
		return nil, err
	}
	return s.store.CreatePreset(ctx, p)
}

// GetPreset returns a preset by id.
func (s *Service) GetPreset(ctx context.Context, id string) (*MappingPreset, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.store.GetPreset(ctx, id)
}

// ListPresets returns all presets, most recently updated first.
func (s *Service) ListPresets(ctx context.Context) ([]MappingPreset, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.store.ListPresets(ctx)
}

// UpdatePreset replaces a preset's name, headers and mapping.
func (s *Service) UpdatePreset(ctx context.Context, p MappingPreset) (*MappingPreset, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	p, err := validatePreset(p)
	if err != nil {
		return nil, err
	}
	return s.store.UpdatePreset(ctx, p)
}

// DeletePreset removes a preset.
func (s *Service) DeletePreset(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrHistoryUnavailable
	}
	return s.store.DeletePreset(ctx, id)
}

// MatchPresets returns presets whose headers overlap headers by at least
// PresetMatchThreshold, best match first. Without a store it returns nothing.
func (s *Service) MatchPresets(ctx context.Context, headers []string) ([]PresetMatch, error) {
	if s.store == nil {
		return nil, nil
	}
	presets, err := s.store.ListPresets(ctx)
	if err != nil {
		return nil, err
	}
	return matchPresets(headers, presets), nil
}

func matchPresets(headers []string, presets []MappingPreset) []PresetMatch {
	var matches []PresetMatch
	for _, p := range presets {
		score := matchPresetHeaders(headers, p.Headers)
		if score >= PresetMatchThreshold {
			matches = append(matches, PresetMatch{Preset: p, MatchScore: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	return matches
}

// matchPresetHeaders returns the share of preset headers present in headers.
func matchPresetHeaders(headers, presetHeaders []string) float64 {
	if len(presetHeaders) == 0 {
		return 0
	}

	set := make(map[string]bool, len(headers))
	for _, h := range headers {
		set[strings.ToLower(strings.TrimSpace(h))] = true
	}

	matched := 0
	for _, h := range presetHeaders {
		if set[strings.ToLower(strings.TrimSpace(h))] {
			matched++
		}
	}

	return float64(matched) / float64(len(presetHeaders))
}

// ApplyPreset builds a mapping for headers from a preset. Preset columns
// missing from headers are ignored, matched case-insensitively.
func ApplyPreset(headers []string, p MappingPreset) ColumnMapping {
	byLower := make(map[string]string, len(headers))
	for _, h := range headers {
		byLower[strings.ToLower(strings.TrimSpace(h))] = h
	}

	m := NewColumnMapping(headers)
	for _, col := range p.Headers {
		raw, ok := p.Mapping[col]
		if !ok {
			continue
		}
		actual, ok := byLower[strings.ToLower(strings.TrimSpace(col))]
		if !ok {
			continue
		}
		if key, ok := ParseFieldKey(raw); ok {
			m = m.WithMapping(actual, key)
		}
	}
	return m
}
