package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driving"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// taskHistoryKeep bounds persisted task results per task.
const taskHistoryKeep = 100

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs the recurring background tasks: periodic record fetches
// and index refreshes. Task state lives in the scheduler store so intervals
// survive restarts.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	fetcher driving.FetchOrchestrator
	indexer driving.IndexBuilder

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	fetcher driving.FetchOrchestrator,
	indexer driving.IndexBuilder,
) *Scheduler {
	return &Scheduler{
		config:  config,
		store:   store,
		fetcher: fetcher,
		indexer: indexer,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("Scheduler: initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// TriggerTask runs a task immediately, outside its schedule, and blocks
// until it finishes. The task's state and history are updated the same way
// a scheduled execution would.
func (s *Scheduler) TriggerTask(ctx context.Context, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		cfg := s.config.GetTaskConfig(taskID)
		if name := taskName(taskID); name != "" {
			task = &domain.ScheduledTask{
				ID:       taskID,
				Name:     name,
				Interval: time.Duration(cfg.Interval),
				Enabled:  cfg.Enabled,
			}
		}
	}
	if task == nil {
		return fmt.Errorf("%w: unknown task %q", domain.ErrInvalidRequest, taskID)
	}

	result := s.executeTask(ctx, task)
	if !result.Success {
		return fmt.Errorf("task %s: %s", taskID, result.Error)
	}
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store with
// their current intervals and enablement.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, taskID := range []string{domain.TaskIDRecordFetch, domain.TaskIDIndexRefresh} {
		cfg := s.config.GetTaskConfig(taskID)
		if err := s.ensureTask(ctx, taskID, taskName(taskID), cfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	interval := time.Duration(cfg.Interval)
	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(interval),
		}
	} else {
		if task.Interval != interval {
			task.Interval = interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("Scheduler: list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeTask(ctx, task)
	}()
}

// executeTask runs one task to completion and persists its state and
// result.
func (s *Scheduler) executeTask(ctx context.Context, task *domain.ScheduledTask) *domain.TaskResult {
	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: time.Now(),
	}
	logger.Debug("Scheduler: running task %s", task.ID)

	var err error
	switch task.ID {
	case domain.TaskIDRecordFetch:
		result.ItemsProcessed, err = s.runRecordFetch(ctx)
	case domain.TaskIDIndexRefresh:
		result.ItemsProcessed, err = s.runIndexRefresh(ctx, task.LastSuccess)
	default:
		err = fmt.Errorf("%w: unknown task %q", domain.ErrInvalidRequest, task.ID)
	}

	result.EndedAt = time.Now()
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		task.LastError = err.Error()
		logger.Warn("Scheduler: task %s failed: %v", task.ID, err)
	} else {
		result.Success = true
		task.LastError = ""
		task.LastSuccess = result.EndedAt
		logger.Debug("Scheduler: task %s processed %d items", task.ID, result.ItemsProcessed)
	}

	// Update task state
	task.LastRun = result.StartedAt
	task.NextRun = result.EndedAt.Add(task.Interval)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		logger.Warn("Scheduler: save task %s: %v", task.ID, saveErr)
	}
	if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
		logger.Warn("Scheduler: record result for %s: %v", task.ID, recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, taskHistoryKeep); pruneErr != nil {
		logger.Warn("Scheduler: prune history: %v", pruneErr)
	}

	return result
}

// runRecordFetch fetches updates across all sources. Incremental mode keeps
// scheduled runs narrow: each partition asks only for entities updated
// since its last completed walk.
func (s *Scheduler) runRecordFetch(ctx context.Context) (int, error) {
	if s.fetcher == nil {
		return 0, nil
	}

	report, err := s.fetcher.Fetch(ctx, driving.FetchOptions{Incremental: true})
	if err != nil {
		return 0, err
	}
	if failed := report.CountByStatus(domain.PartitionFailed); failed > 0 {
		return report.TotalWritten(), fmt.Errorf("%d of %d partitions failed", failed, len(report.Partitions))
	}
	return report.TotalWritten(), nil
}

// runIndexRefresh folds records changed since the task's last success into
// the indexes. A zero lower bound merges everything, which self-corrects
// the first run after enabling the scheduler.
func (s *Scheduler) runIndexRefresh(ctx context.Context, since time.Time) (int, error) {
	if s.indexer == nil {
		return 0, nil
	}

	reports, err := s.indexer.Update(ctx, since, nil)
	items := 0
	for _, report := range reports {
		items += report.Added + report.Updated + report.Removed
	}
	return items, err
}

// taskName maps built-in task IDs to display names. Empty for unknown IDs.
func taskName(taskID string) string {
	switch taskID {
	case domain.TaskIDRecordFetch:
		return "Record Fetch"
	case domain.TaskIDIndexRefresh:
		return "Index Refresh"
	default:
		return ""
	}
}
