package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPresetHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		preset  []string
		want    float64
	}{
		{"exact", []string{"A", "B"}, []string{"A", "B"}, 1},
		{"case and space", []string{" a ", "B"}, []string{"A", "b"}, 1},
		{"partial", []string{"A", "B", "C"}, []string{"A", "B", "X", "Y"}, 0.5},
		{"extra file columns", []string{"A", "B", "C", "D"}, []string{"A", "B"}, 1},
		{"empty preset", []string{"A"}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, matchPresetHeaders(tt.headers, tt.preset), 1e-9)
		})
	}
}

func TestMatchPresets_ThresholdAndOrder(t *testing.T) {
	presets := []MappingPreset{
		{Name: "low", Headers: []string{"A", "X", "Y"}},
		{Name: "mid", Headers: []string{"A", "B", "C", "Z"}},
		{Name: "full", Headers: []string{"A", "B"}},
	}

	matches := matchPresets([]string{"A", "B", "C"}, presets)
	require.Len(t, matches, 2)
	assert.Equal(t, "full", matches[0].Preset.Name)
	assert.Equal(t, "mid", matches[1].Preset.Name)
	assert.InDelta(t, 0.75, matches[1].MatchScore, 1e-9)
}

func TestService_PresetValidation(t *testing.T) {
	svc := newTestService(&fakeCreator{}, newMemStore())
	ctx := context.Background()

	_, err := svc.CreatePreset(ctx, MappingPreset{Name: " ", Headers: []string{"A"}})
	assert.ErrorContains(t, err, "name is required")

	_, err = svc.CreatePreset(ctx, MappingPreset{Name: "x", Headers: []string{"A"}, Mapping: map[string]string{"B": "email"}})
	assert.ErrorContains(t, err, "unknown column")

	created, err := svc.CreatePreset(ctx, MappingPreset{
		Name:    "  Roster  ",
		Headers: []string{"Name", "Mail", "Other"},
		Mapping: map[string]string{"Name": "FULLNAME", "Mail": "email", "Other": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Roster", created.Name)
	assert.Equal(t, map[string]string{"Name": "fullName", "Mail": "email"}, created.Mapping)

	created.Name = "Renamed"
	updated, err := svc.UpdatePreset(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	require.NoError(t, svc.DeletePreset(ctx, created.ID))
	_, err = svc.GetPreset(ctx, created.ID)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func TestService_PresetsWithoutStore(t *testing.T) {
	svc := newTestService(&fakeCreator{}, nil)

	_, err := svc.ListPresets(context.Background())
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	matches, err := svc.MatchPresets(context.Background(), []string{"A"})
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestApplyPreset(t *testing.T) {
	preset := MappingPreset{
		Headers: []string{"First", "Last", "Gone"},
		Mapping: map[string]string{"First": "firstName", "Last": "lastName", "Gone": "email"},
	}
	m := ApplyPreset([]string{"FIRST", "last", "Extra"}, preset)

	assert.Equal(t, map[string]FieldKey{"FIRST": KeyFirstName, "last": KeyLastName}, m.Assignments())
	assert.True(t, m.IsComplete())
}
