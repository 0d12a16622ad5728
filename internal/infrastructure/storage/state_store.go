package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

// stateSchemaVersion tags the snapshot layout. Loaders fill defaults
// for fields missing from older snapshots instead of failing.
const stateSchemaVersion = 1

// stateSnapshot is the on-disk shape of domain.SessionState.
type stateSnapshot struct {
	SchemaVersion         int      `json:"schema_version"`
	Goal                  string   `json:"goal"`
	CurrentHypothesis     string   `json:"current_hypothesis"`
	KnownFacts            []string `json:"known_facts"`
	Strategy              string   `json:"strategy"`
	ConsecutiveEmptyPulls int      `json:"consecutive_empty_pulls"`
	StepCount             int      `json:"step_count"`
	LastNote              string   `json:"last_note"`
}

// FileStateStore keeps the SessionState snapshot in a single JSON file,
// replaced atomically on every save.
type FileStateStore struct {
	path   string
	logger *slog.Logger
}

var _ ports.StateStore = (*FileStateStore)(nil)

// NewFileStateStore wires the snapshot path and a logger for corruption warnings.
func NewFileStateStore(path string, logger *slog.Logger) *FileStateStore {
	return &FileStateStore{path: path, logger: logger}
}

// Load deserializes the last snapshot. A missing or unreadable file is
// reported as no prior state, never as an error.
func (s *FileStateStore) Load() (*domain.SessionState, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.warn("state snapshot unreadable, starting fresh", "path", s.path, "error", err)
		}
		return nil, nil
	}

	var snap stateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.warn("state snapshot corrupt, starting fresh", "path", s.path, "error", err)
		return nil, nil
	}
	if snap.Goal == "" {
		s.warn("state snapshot has no goal, starting fresh", "path", s.path)
		return nil, nil
	}

	state := &domain.SessionState{
		Goal:                  snap.Goal,
		CurrentHypothesis:     snap.CurrentHypothesis,
		KnownFacts:            snap.KnownFacts,
		Strategy:              domain.Strategy(snap.Strategy),
		ConsecutiveEmptyPulls: snap.ConsecutiveEmptyPulls,
		StepCount:             snap.StepCount,
		LastNote:              snap.LastNote,
	}
	if state.KnownFacts == nil {
		state.KnownFacts = []string{}
	}
	if !domain.KnownStrategy(state.Strategy) {
		state.Strategy = domain.StrategyBroadSearch
	}
	return state, nil
}

// Save atomically overwrites the snapshot with the full current state.
func (s *FileStateStore) Save(state *domain.SessionState) error {
	if state == nil {
		return fmt.Errorf("save state: nil state")
	}

	snap := stateSnapshot{
		SchemaVersion:         stateSchemaVersion,
		Goal:                  state.Goal,
		CurrentHypothesis:     state.CurrentHypothesis,
		KnownFacts:            state.KnownFacts,
		Strategy:              string(state.Strategy),
		ConsecutiveEmptyPulls: state.ConsecutiveEmptyPulls,
		StepCount:             state.StepCount,
		LastNote:              state.LastNote,
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state snapshot: %w", err)
	}
	return nil
}

// ApplyOperatorOverride is the sole mutation path for a human operator:
// it rewrites the advisory fields and optionally the strategy label.
// It may race with the loop's own save; last write wins.
func (s *FileStateStore) ApplyOperatorOverride(command string, strategy domain.Strategy) error {
	state, err := s.Load()
	if err != nil {
		return fmt.Errorf("load state for override: %w", err)
	}
	if state == nil {
		return fmt.Errorf("apply override: no session state exists yet")
	}

	state.LastNote = "operator override: " + command
	state.CurrentHypothesis = command
	if strategy != "" {
		if !domain.KnownStrategy(strategy) {
			return fmt.Errorf("apply override: unknown strategy %q", strategy)
		}
		state.Strategy = strategy
	}
	return s.Save(state)
}

func (s *FileStateStore) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
