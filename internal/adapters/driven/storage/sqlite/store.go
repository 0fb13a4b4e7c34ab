package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/civica-labs/legisync-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/civica-labs/legisync-cli/internal/core/domain"
	"github.com/civica-labs/legisync-cli/internal/core/ports/driven"
	"github.com/civica-labs/legisync-cli/internal/logger"
)

// Store is a unified SQLite-based state store that provides access to the
// checkpoint, run, and scheduler store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store in the specified state directory.
// If stateDir is empty, defaults to ~/.legisync/state/state.db.
func NewStore(stateDir string) (*Store, error) {
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".legisync", "state")
	}

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "state.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.recoverAbandonedRuns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recovering abandoned runs: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CheckpointStore returns a CheckpointStore interface backed by this store.
func (s *Store) CheckpointStore() driven.CheckpointStore {
	return &checkpointStore{store: s}
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// recoverAbandonedRuns closes out runs left active by a crashed process.
// The store is opened by a single process, so any active row on open is
// stale and would otherwise block every future run.
func (s *Store) recoverAbandonedRuns() error {
	result, err := s.db.Exec(`
		UPDATE runs
		SET active = 0, cancelled = 1, finished_at = ?, detail = 'abandoned: process exited mid-run'
		WHERE active = 1
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		logger.Warn("sqlite: closed %d abandoned run(s) from a previous process", n)
	}
	return nil
}

// ==================== Checkpoint Store ====================

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// SaveCheckpoint stores or updates a partition's checkpoint.
func (s *checkpointStore) SaveCheckpoint(ctx context.Context, checkpoint domain.Checkpoint) error {
	if err := checkpoint.Partition.Validate(); err != nil {
		return err
	}
	checkpoint.UpdatedAt = time.Now().UTC()

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (partition_id, source, entity_type, partition_key, cursor, pages_done, completed, last_success, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition_id) DO UPDATE SET
			cursor = excluded.cursor,
			pages_done = excluded.pages_done,
			completed = excluded.completed,
			last_success = excluded.last_success,
			updated_at = excluded.updated_at
	`, checkpoint.Partition.ID(),
		checkpoint.Partition.Source.String(),
		checkpoint.Partition.EntityType.String(),
		checkpoint.Partition.Key,
		checkpoint.Cursor,
		checkpoint.PagesDone,
		boolToInt(checkpoint.Completed),
		formatNullableTime(checkpoint.LastSuccess),
		checkpoint.UpdatedAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", checkpoint.Partition, err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a partition.
func (s *checkpointStore) GetCheckpoint(ctx context.Context, partition domain.Partition) (domain.Checkpoint, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source, entity_type, partition_key, cursor, pages_done, completed, last_success, updated_at
		FROM checkpoints WHERE partition_id = ?
	`, partition.ID())

	checkpoint, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, fmt.Errorf("%w: no checkpoint for %s", domain.ErrNotFound, partition)
	}
	if err != nil {
		return domain.Checkpoint{}, err
	}
	return checkpoint, nil
}

// ListCheckpoints returns every stored checkpoint, ordered by partition ID.
func (s *checkpointStore) ListCheckpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT source, entity_type, partition_key, cursor, pages_done, completed, last_success, updated_at
		FROM checkpoints ORDER BY partition_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []domain.Checkpoint //nolint:prealloc // size unknown from query
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, checkpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}

	return checkpoints, nil
}

// DeleteCheckpoint removes a partition's checkpoint.
func (s *checkpointStore) DeleteCheckpoint(ctx context.Context, partition domain.Partition) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE partition_id = ?", partition.ID())
	if err != nil {
		return fmt.Errorf("deleting checkpoint for %s: %w", partition, err)
	}
	return nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// BeginRun registers a run as active, enforcing one active run per kind.
func (s *runStore) BeginRun(ctx context.Context, kind string, runID string) error {
	if kind == "" || runID == "" {
		return fmt.Errorf("%w: run kind and ID are required", domain.ErrInvalidRequest)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE kind = ? AND active = 1", kind)
	if err := row.Scan(&active); err != nil {
		return fmt.Errorf("checking active runs: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: a %s run is already active", domain.ErrFetchInProgress, kind)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, kind, started_at, active)
		VALUES (?, ?, ?, 1)
	`, runID, kind, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("registering run %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run registration: %w", err)
	}
	return nil
}

// EndRun marks an active run as finished and records its outcome.
func (s *runStore) EndRun(ctx context.Context, run domain.RunRecord) error {
	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	result, err := s.store.db.ExecContext(ctx, `
		UPDATE runs SET
			active = 0,
			finished_at = ?,
			cancelled = ?,
			partitions_complete = ?,
			partitions_failed = ?,
			records_written = ?,
			records_unchanged = ?,
			detail = ?
		WHERE run_id = ?
	`, finishedAt.Format(time.RFC3339),
		boolToInt(run.Cancelled),
		run.PartitionsComplete,
		run.PartitionsFailed,
		run.RecordsWritten,
		run.RecordsUnchanged,
		run.Detail,
		run.RunID)

	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.RunID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s was never registered", domain.ErrNotFound, run.RunID)
	}
	return nil
}

// ListRuns returns recent runs ordered by start time descending. Runs still
// active appear with a zero FinishedAt.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, kind, started_at, finished_at, cancelled, partitions_complete, partitions_failed, records_written, records_unchanged, detail
		FROM runs
		ORDER BY started_at DESC, run_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// LastRun returns the most recent finished run of a kind.
func (s *runStore) LastRun(ctx context.Context, kind string) (domain.RunRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, kind, started_at, finished_at, cancelled, partitions_complete, partitions_failed, records_written, records_unchanged, detail
		FROM runs
		WHERE kind = ? AND active = 0
		ORDER BY started_at DESC, run_id
		LIMIT 1
	`, kind)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("%w: no finished %s run recorded", domain.ErrNotFound, kind)
	}
	if err != nil {
		return domain.RunRecord{}, err
	}
	return run, nil
}

// PruneRuns removes old run records, keeping the most recent 'keep' per
// kind. Active runs are never pruned.
func (s *runStore) PruneRuns(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE active = 0 AND run_id NOT IN (
			SELECT run_id FROM (
				SELECT run_id, ROW_NUMBER() OVER (PARTITION BY kind ORDER BY started_at DESC) as rn
				FROM runs WHERE active = 0
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanCheckpoint scans one checkpoint row.
func scanCheckpoint(row scanner) (domain.Checkpoint, error) {
	var checkpoint domain.Checkpoint
	var source, entityType, key, cursor string
	var completed int
	var lastSuccess sql.NullString
	var updatedAt string

	if err := row.Scan(&source, &entityType, &key, &cursor,
		&checkpoint.PagesDone, &completed, &lastSuccess, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Checkpoint{}, err
		}
		return domain.Checkpoint{}, fmt.Errorf("scanning checkpoint: %w", err)
	}

	checkpoint.Partition = domain.Partition{
		Source:     domain.SourceID(source),
		EntityType: domain.EntityType(entityType),
		Key:        key,
	}
	checkpoint.Cursor = cursor
	checkpoint.Completed = completed == 1
	checkpoint.LastSuccess = parseNullableTime(lastSuccess)
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		checkpoint.UpdatedAt = t
	}

	return checkpoint, nil
}

// scanRun scans one run history row.
func scanRun(row scanner) (domain.RunRecord, error) {
	var run domain.RunRecord
	var startedAt string
	var finishedAt sql.NullString
	var cancelled int

	if err := row.Scan(&run.RunID, &run.Kind, &startedAt, &finishedAt, &cancelled,
		&run.PartitionsComplete, &run.PartitionsFailed,
		&run.RecordsWritten, &run.RecordsUnchanged, &run.Detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RunRecord{}, err
		}
		return domain.RunRecord{}, fmt.Errorf("scanning run: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	run.FinishedAt = parseNullableTime(finishedAt)
	run.Cancelled = cancelled == 1

	return run, nil
}

// formatNullableTime formats a time to RFC3339 string, or returns nil for zero time.
func formatNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

// parseNullableTime parses a nullable RFC3339 string to time.Time.
// Returns zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
