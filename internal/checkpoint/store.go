// Package checkpoint persists which work units have completed so a fresh
// run can resume without repeating them.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/tyfong/aiparserpipeline/internal/pipeline"
	"github.com/tyfong/aiparserpipeline/internal/storage/atomic"
)

// snapshot is the serialized checkpoint format: one atomic blob holding
// every completed unit and its result.
type snapshot struct {
	CompletedUnits map[string]pipeline.UnitResult `json:"completed_units"`
}

// Store accumulates unit results in memory and flushes them as a single
// atomic file. Only fully-completed units are ever recorded; partial
// progress never reaches the checkpoint.
type Store struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	done map[string]pipeline.UnitResult
}

// New creates a Store backed by the file at path.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
		done:   make(map[string]pipeline.UnitResult),
	}, nil
}

// Load reads the checkpoint from disk into memory and returns a copy of
// the completed-unit map. A missing or corrupt file means no prior
// progress: the run starts fresh rather than failing.
func (s *Store) Load() map[string]pipeline.UnitResult {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("checkpoint unreadable, starting fresh",
				zap.String("path", s.path), zap.Error(err))
		} else {
			s.logger.Info("no checkpoint found, starting from the beginning",
				zap.String("path", s.path))
		}
		return s.copyDone()
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("checkpoint corrupt, starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return s.copyDone()
	}

	s.mu.Lock()
	for id, result := range snap.CompletedUnits {
		s.done[id] = result
	}
	s.mu.Unlock()

	s.logger.Info("checkpoint loaded",
		zap.String("path", s.path), zap.Int("completed_units", len(snap.CompletedUnits)))
	return s.copyDone()
}

// Record marks a unit as done with its result. Call only after the unit
// fully completed.
func (s *Store) Record(id string, result pipeline.UnitResult) {
	s.mu.Lock()
	s.done[id] = result
	s.mu.Unlock()
}

// Completed reports whether a unit is already recorded.
func (s *Store) Completed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[id]
	return ok
}

// Len returns the number of recorded units.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

// Flush durably persists a snapshot of the current state. The snapshot is
// copied under the lock before serialization, so concurrent Records
// cannot corrupt the on-disk representation. The write itself is atomic.
func (s *Store) Flush() error {
	snap := snapshot{CompletedUnits: s.copyDone()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := atomic.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint flushed",
		zap.String("path", s.path), zap.Int("completed_units", len(snap.CompletedUnits)))
	return nil
}

// Remove deletes the checkpoint file. Used by the operator flow once a
// run is fully accepted. Removing a missing file succeeds.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (s *Store) copyDone() map[string]pipeline.UnitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]pipeline.UnitResult, len(s.done))
	for id, result := range s.done {
		out[id] = result
	}
	return out
}
