package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
)

// Ensure SchedulerStore implements the interface.
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// SchedulerStore is an in-memory implementation of driven.SchedulerStore.
type SchedulerStore struct {
	mu      sync.RWMutex
	tasks   map[string]domain.ScheduledTask
	results map[string][]domain.TaskResult
}

// NewSchedulerStore creates a new in-memory scheduler store.
func NewSchedulerStore() *SchedulerStore {
	return &SchedulerStore{
		tasks:   make(map[string]domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

// GetTask retrieves a scheduled task by ID.
// Returns nil and no error if the task does not exist.
func (s *SchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

// ListTasks returns all scheduled tasks.
func (s *SchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tasks := make([]domain.ScheduledTask, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, s.tasks[id])
	}
	return tasks, nil
}

// SaveTask persists a task's state.
func (s *SchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

// DeleteTask removes a task from storage.
func (s *SchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	return nil
}

// RecordResult logs a task execution result.
func (s *SchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", domain.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.TaskID] = append(s.results[result.TaskID], *result)
	return nil
}

// GetTaskHistory returns recent results for a task, most recent first.
func (s *SchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.TaskResult, len(s.results[taskID]))
	copy(results, s.results[taskID])
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StartedAt.After(results[j].StartedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PruneHistory removes old task results, keeping the most recent 'keep' per
// task.
func (s *SchedulerStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, results := range s.results {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].StartedAt.After(results[j].StartedAt)
		})
		if len(results) > keep {
			results = results[:keep]
		}
		s.results[taskID] = results
	}
	return nil
}
