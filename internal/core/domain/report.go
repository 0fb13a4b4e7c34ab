package domain

import "time"

// PartitionStatus is the terminal state of one partition within a fetch run.
type PartitionStatus string

const (
	// PartitionComplete means every page in the partition's chain was
	// fetched and persisted.
	PartitionComplete PartitionStatus = "complete"
	// PartitionPartial means some pages persisted before the run was
	// cancelled; the checkpoint allows resumption.
	PartitionPartial PartitionStatus = "partial"
	// PartitionFailed means the partition stopped on a terminal error.
	PartitionFailed PartitionStatus = "failed"
	// PartitionSkipped means the partition never started, because the
	// run was cancelled before a worker picked it up.
	PartitionSkipped PartitionStatus = "skipped"
)

// IsValid reports whether the status is a known terminal state.
func (s PartitionStatus) IsValid() bool {
	switch s {
	case PartitionComplete, PartitionPartial, PartitionFailed, PartitionSkipped:
		return true
	}
	return false
}

// String returns the status as a string.
func (s PartitionStatus) String() string {
	return string(s)
}

// PartitionResult summarises one partition's outcome within a fetch run.
type PartitionResult struct {
	// Partition identifies the data slice this result covers.
	Partition Partition

	// Status is the partition's terminal state.
	Status PartitionStatus

	// Pages counts pages fetched and persisted during this run.
	Pages int

	// RecordsWritten counts records that created or replaced a file.
	RecordsWritten int

	// RecordsUnchanged counts records whose payload matched the stored
	// checksum, so no write occurred.
	RecordsUnchanged int

	// RecordsSkipped counts records that failed validation or an
	// individual write and were dropped without stopping the partition.
	RecordsSkipped int

	// Resumed reports whether the walk started from a stored checkpoint
	// rather than the first page.
	Resumed bool

	// ErrorKind classifies the failure for failed partitions, KindNone
	// otherwise.
	ErrorKind ErrorKind

	// Err is the human-readable failure description for failed
	// partitions.
	Err string
}

// FetchReport is the aggregate outcome of one fetch run across all
// requested partitions.
type FetchReport struct {
	// RunID uniquely identifies the run in logs and run history.
	RunID string

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the last worker stopped.
	FinishedAt time.Time

	// Cancelled reports whether the run stopped on context cancellation
	// rather than running to completion.
	Cancelled bool

	// Partitions holds one result per requested partition, in the order
	// they were enumerated.
	Partitions []PartitionResult
}

// Duration returns the wall-clock length of the run.
func (r FetchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether every partition completed.
func (r FetchReport) Succeeded() bool {
	for _, p := range r.Partitions {
		if p.Status != PartitionComplete {
			return false
		}
	}
	return true
}

// CountByStatus returns how many partitions ended in the given state.
func (r FetchReport) CountByStatus(status PartitionStatus) int {
	n := 0
	for _, p := range r.Partitions {
		if p.Status == status {
			n++
		}
	}
	return n
}

// TotalWritten sums records written across all partitions.
func (r FetchReport) TotalWritten() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.RecordsWritten
	}
	return n
}

// TotalUnchanged sums unchanged records across all partitions.
func (r FetchReport) TotalUnchanged() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.RecordsUnchanged
	}
	return n
}

// TotalPages sums fetched pages across all partitions.
func (r FetchReport) TotalPages() int {
	n := 0
	for _, p := range r.Partitions {
		n += p.Pages
	}
	return n
}

// IndexReport is the outcome of one index build for a single entity type.
type IndexReport struct {
	// EntityType is the kind of record the index covers.
	EntityType EntityType

	// StartedAt is when the build began.
	StartedAt time.Time

	// FinishedAt is when the index file was durably written.
	FinishedAt time.Time

	// Entries is the number of records in the written index.
	Entries int

	// Added counts entries new to the index in this build.
	Added int

	// Updated counts entries whose checksum changed in this build.
	Updated int

	// Removed counts entries dropped because their record file vanished.
	Removed int

	// Rebuilt reports whether the build scanned every record file rather
	// than applying an incremental update.
	Rebuilt bool
}

// RunRecord is one row of persisted run history, kept so the status command
// can show past runs without re-parsing logs.
type RunRecord struct {
	// RunID uniquely identifies the run.
	RunID string

	// Kind is "fetch" or "index".
	Kind string

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the run ended.
	FinishedAt time.Time

	// Cancelled reports whether the run stopped on cancellation.
	Cancelled bool

	// PartitionsComplete counts partitions that finished their chain.
	PartitionsComplete int

	// PartitionsFailed counts partitions that stopped on a terminal
	// error.
	PartitionsFailed int

	// RecordsWritten counts records created or replaced.
	RecordsWritten int

	// RecordsUnchanged counts byte-identical re-fetches.
	RecordsUnchanged int

	// Detail is a short human-readable summary line.
	Detail string
}

// Run kinds stored in run history.
const (
	RunKindFetch = "fetch"
	RunKindIndex = "index"
)
