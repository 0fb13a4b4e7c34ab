package driving

import "context"

// Scheduler runs the periodic background loop: incremental fetches and
// index refreshes on their configured intervals.
type Scheduler interface {
	// Start runs due tasks until the context is cancelled. Task state is
	// persisted, so schedules carry across restarts.
	Start(ctx context.Context) error

	// Stop waits for any in-flight task to finish.
	Stop() error

	// TriggerTask runs a task immediately, outside its schedule.
	TriggerTask(ctx context.Context, taskID string) error
}
