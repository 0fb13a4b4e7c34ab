package driven

import (
	"context"

	"github.com/civica-labs/legisync-cli/internal/core/domain"
)

// SchedulerStore persists the background loop's task state so schedules
// survive restarts: a record-fetch due in four hours is still due in four
// hours after the daemon comes back up.
type SchedulerStore interface {
	// GetTask retrieves a scheduled task by ID. A task that has never
	// been saved yields nil and no error.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	// ListTasks returns every persisted task.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask upserts a task's state, keyed by its ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteTask removes a task and leaves its history in place.
	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends one execution outcome to the task's history.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns recent results for a task, most recent
	// first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory drops all but the most recent keep results per task.
	PruneHistory(ctx context.Context, keep int) error
}
