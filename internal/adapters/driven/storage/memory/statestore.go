package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of driven.CheckpointStore.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// SaveCheckpoint stores or updates a partition's checkpoint.
func (s *CheckpointStore) SaveCheckpoint(_ context.Context, checkpoint domain.Checkpoint) error {
	if err := checkpoint.Partition.Validate(); err != nil {
		return err
	}
	checkpoint.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.Partition.ID()] = checkpoint
	return nil
}

// GetCheckpoint retrieves the checkpoint for a partition.
func (s *CheckpointStore) GetCheckpoint(_ context.Context, partition domain.Partition) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[partition.ID()]
	if !ok {
		return domain.Checkpoint{}, fmt.Errorf("%w: no checkpoint for %s", domain.ErrNotFound, partition)
	}
	return checkpoint, nil
}

// ListCheckpoints returns every stored checkpoint, ordered by partition ID.
func (s *CheckpointStore) ListCheckpoints(_ context.Context) ([]domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.checkpoints))
	for id := range s.checkpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	checkpoints := make([]domain.Checkpoint, 0, len(ids))
	for _, id := range ids {
		checkpoints = append(checkpoints, s.checkpoints[id])
	}
	return checkpoints, nil
}

// DeleteCheckpoint removes a partition's checkpoint.
func (s *CheckpointStore) DeleteCheckpoint(_ context.Context, partition domain.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, partition.ID())
	return nil
}

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// activeRun tracks one in-flight run.
type activeRun struct {
	runID     string
	startedAt time.Time
}

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu       sync.RWMutex
	active   map[string]activeRun
	finished []domain.RunRecord
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		active: make(map[string]activeRun),
	}
}

// BeginRun registers a run as active, enforcing one active run per kind.
func (s *RunStore) BeginRun(_ context.Context, kind string, runID string) error {
	if kind == "" || runID == "" {
		return fmt.Errorf("%w: run kind and ID are required", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[kind]; ok {
		return fmt.Errorf("%w: a %s run is already active", domain.ErrFetchInProgress, kind)
	}
	s.active[kind] = activeRun{runID: runID, startedAt: time.Now().UTC()}
	return nil
}

// EndRun marks an active run as finished and records its outcome.
func (s *RunStore) EndRun(_ context.Context, run domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.active[run.Kind]
	if !ok || current.runID != run.RunID {
		return fmt.Errorf("%w: run %s was never registered", domain.ErrNotFound, run.RunID)
	}
	delete(s.active, run.Kind)

	if run.StartedAt.IsZero() {
		run.StartedAt = current.startedAt
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	s.finished = append(s.finished, run)
	return nil
}

// ListRuns returns recent finished runs ordered by start time descending.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]domain.RunRecord, len(s.finished))
	copy(runs, s.finished)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastRun returns the most recent finished run of a kind.
func (s *RunStore) LastRun(_ context.Context, kind string) (domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last domain.RunRecord
	found := false
	for _, run := range s.finished {
		if run.Kind != kind {
			continue
		}
		if !found || run.StartedAt.After(last.StartedAt) {
			last = run
			found = true
		}
	}
	if !found {
		return domain.RunRecord{}, fmt.Errorf("%w: no finished %s run recorded", domain.ErrNotFound, kind)
	}
	return last, nil
}

// PruneRuns removes old run records, keeping the most recent 'keep' per kind.
func (s *RunStore) PruneRuns(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := make(map[string][]domain.RunRecord)
	for _, run := range s.finished {
		byKind[run.Kind] = append(byKind[run.Kind], run)
	}

	var kept []domain.RunRecord
	for _, runs := range byKind {
		sort.SliceStable(runs, func(i, j int) bool {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		})
		if len(runs) > keep {
			runs = runs[:keep]
		}
		kept = append(kept, runs...)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].StartedAt.Before(kept[j].StartedAt)
	})
	s.finished = kept
	return nil
}
