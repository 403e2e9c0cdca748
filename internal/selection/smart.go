package selection

import (
	"context"
	"fmt"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/types"
)

// Preset names a project-wide smart selection.
type Preset string

// Preset values
const (
	PresetPendingDataForSeo Preset = "pending_dataforseo"
	PresetPendingAI         Preset = "pending_ai"
	PresetPendingBoth       Preset = "pending_both"
)

// Presets lists every preset.
var Presets = []Preset{PresetPendingDataForSeo, PresetPendingAI, PresetPendingBoth}

// ParsePreset validates a preset name.
func ParsePreset(raw string) (Preset, error) {
	for _, p := range Presets {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown smart selection preset %q", raw)
}

// Source answers the project-wide pending sets. Membership always comes
// from the backend, never from the locally visible records.
type Source interface {
	SmartFilters(ctx context.Context, projectID string) (*types.SmartFilters, error)
}

// Resolve returns the ids matching preset across the whole project.
func Resolve(ctx context.Context, src Source, projectID string, preset Preset) ([]string, error) {
	filters, err := src.SmartFilters(ctx, projectID)
	if err != nil {
		return nil, &Error{Preset: preset, Message: "failed to query backend", Cause: err}
	}
	switch preset {
	case PresetPendingDataForSeo:
		return filters.AllPendingDataForSeo, nil
	case PresetPendingAI:
		return filters.AllPendingAI, nil
	case PresetPendingBoth:
		return filters.AllPendingBoth, nil
	}
	return nil, &Error{Preset: preset, Message: "unknown preset"}
}

// SmartSelect replaces the selection with the preset's ids and returns how
// many were selected. On error the selection is unchanged.
func (s *Set) SmartSelect(ctx context.Context, src Source, projectID string, preset Preset) (int, error) {
	ids, err := Resolve(ctx, src, projectID, preset)
	if err != nil {
		return 0, err
	}
	s.SetAll(ids)
	return s.Len(), nil
}
