package domain

import (
	"fmt"
	"strings"
	"time"
)

// Partition is an independent slice of a source's data set, such as one
// congress number for bills or one filing year for lobbying filings.
// Partitions are the unit of parallelism and of failure isolation: pages
// within a partition are fetched strictly in order, while distinct
// partitions may be fetched concurrently.
type Partition struct {
	// Source is the upstream serving this partition.
	Source SourceID

	// EntityType is the kind of record the partition yields.
	EntityType EntityType

	// Key scopes the partition within its entity type, such as "119" for
	// a congress number or "2025" for a filing year. Empty when the
	// entity type has a single unpartitioned listing.
	Key string
}

// String renders the partition as source/entity/key for logs and reports.
func (p Partition) String() string {
	if p.Key == "" {
		return fmt.Sprintf("%s/%s", p.Source, p.EntityType)
	}
	return fmt.Sprintf("%s/%s/%s", p.Source, p.EntityType, p.Key)
}

// ID returns a stable identifier for persistence, identical to String but
// guaranteed unique across sources.
func (p Partition) ID() string {
	return p.String()
}

// Validate checks the partition references a known source and entity type
// served by that source.
func (p Partition) Validate() error {
	if !p.Source.IsValid() {
		return fmt.Errorf("%w: partition references unknown source %q", ErrInvalidConfiguration, p.Source)
	}
	if !p.EntityType.IsValid() {
		return fmt.Errorf("%w: partition references unknown entity type %q", ErrInvalidConfiguration, p.EntityType)
	}
	if p.EntityType.Source() != p.Source {
		return fmt.Errorf("%w: source %s does not serve entity type %s", ErrInvalidConfiguration, p.Source, p.EntityType)
	}
	if strings.ContainsAny(p.Key, "/\\") {
		return fmt.Errorf("%w: partition key %q contains path separators", ErrInvalidConfiguration, p.Key)
	}
	return nil
}

// FetchTask describes one page fetch against an upstream. Tasks are value
// objects: advancing through a cursor chain produces a new task via Next
// rather than mutating the current one.
type FetchTask struct {
	// Partition identifies the data slice being walked.
	Partition Partition

	// Cursor is the opaque position within the partition's page chain.
	// Empty means the first page.
	Cursor string

	// UpdatedSince, when non-zero, narrows the fetch to entities updated
	// at or after this instant. Used for incremental runs.
	UpdatedSince time.Time
}

// Next returns the task for the following page in the same partition.
func (t FetchTask) Next(cursor string) FetchTask {
	t.Cursor = cursor
	return t
}

// First reports whether the task targets the first page of its partition.
func (t FetchTask) First() bool {
	return t.Cursor == ""
}

// Page is the decoded result of one fetch task: the records on the page and
// the cursor for the next one.
type Page struct {
	// Records are the entities decoded from this page, in upstream order.
	Records []Record

	// NextCursor positions the next fetch. Empty means the chain is
	// exhausted and the partition walk is complete.
	NextCursor string

	// Skipped counts items on the page that could not be decoded into
	// records, such as entries missing their identifying fields. The
	// rest of the page is still usable.
	Skipped int
}

// Last reports whether this page ends its partition's cursor chain.
func (p Page) Last() bool {
	return p.NextCursor == ""
}

// Checkpoint records how far a partition walk has progressed, so an
// interrupted run can resume mid-chain instead of starting over.
type Checkpoint struct {
	// Partition identifies the data slice the checkpoint belongs to.
	Partition Partition

	// Cursor is the next page to fetch when resuming. Empty with
	// Completed set means the walk finished.
	Cursor string

	// PagesDone counts pages fully persisted in the current walk.
	PagesDone int

	// Completed reports whether the last walk reached the end of the
	// chain.
	Completed bool

	// LastSuccess is when the partition last completed a full walk.
	// Zero until the first complete walk; used as the incremental
	// lower bound for the next run.
	LastSuccess time.Time

	// UpdatedAt is when the checkpoint was last written.
	UpdatedAt time.Time
}
