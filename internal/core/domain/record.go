package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"time"
)

// EntityType identifies the kind of record a payload describes. Entity types
// name the per-type directories under the data root, so values must be valid
// path segments.
type EntityType string

const (
	// EntityBill is a piece of legislation from the congressional API.
	EntityBill EntityType = "bill"
	// EntityVote is a roll-call vote from the congressional API.
	EntityVote EntityType = "vote"
	// EntityMember is a member record from the congressional API.
	EntityMember EntityType = "member"
	// EntityFiling is a lobbying disclosure filing from the LDA API.
	EntityFiling EntityType = "filing"
)

// AllEntityTypes returns every known entity type in deterministic order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityBill, EntityVote, EntityMember, EntityFiling}
}

// IsValid reports whether the entity type is known.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityBill, EntityVote, EntityMember, EntityFiling:
		return true
	}
	return false
}

// String returns the entity type as a string.
func (e EntityType) String() string {
	return string(e)
}

// Source returns the upstream that serves this entity type.
func (e EntityType) Source() SourceID {
	switch e {
	case EntityBill, EntityVote, EntityMember:
		return SourceCongress
	case EntityFiling:
		return SourceLDA
	default:
		return ""
	}
}

// ParseEntityType validates a raw string as an entity type.
func ParseEntityType(raw string) (EntityType, error) {
	e := EntityType(raw)
	if !e.IsValid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidRequest, raw)
	}
	return e, nil
}

// stableIDPattern restricts identifiers to characters safe in a file name.
// Upstream identifiers are composed from digits, letters, hyphens, and
// underscores; anything else indicates a parsing bug upstream of the store.
var stableIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidStableID reports whether id is non-empty and safe to use as a file
// name under the data root.
func ValidStableID(id string) bool {
	return stableIDPattern.MatchString(id)
}

// RecordPath returns a record file's path relative to the data root, always
// slash-separated. Index entries carry it so consumers can open record files
// without knowing the directory layout.
func RecordPath(e EntityType, stableID string) string {
	return path.Join(e.String(), stableID+".json")
}

// Record is a single fetched entity, decoded from the upstream response and
// ready for persistence. Records are immutable once constructed; the store
// decides whether a record supersedes what is already on disk.
type Record struct {
	// EntityType is the kind of entity the payload describes.
	EntityType EntityType

	// StableID uniquely identifies the entity within its type across
	// fetches. It never changes between runs, so re-fetching overwrites
	// in place instead of accumulating duplicates.
	StableID string

	// Source is the upstream the record was fetched from.
	Source SourceID

	// Payload is the decoded upstream object. It is persisted verbatim,
	// so connectors must not inject synthetic fields into it.
	Payload map[string]any

	// FetchedAt is when the record was retrieved from the upstream.
	// The store uses it to order concurrent writes to the same entity.
	FetchedAt time.Time
}

// Validate checks the record is well-formed enough to persist.
func (r Record) Validate() error {
	if !r.EntityType.IsValid() {
		return fmt.Errorf("%w: record has unknown entity type %q", ErrInvalidConfiguration, r.EntityType)
	}
	if !ValidStableID(r.StableID) {
		return fmt.Errorf("%w: record has unusable stable ID %q", ErrInvalidConfiguration, r.StableID)
	}
	if r.Payload == nil {
		return fmt.Errorf("%w: record %s/%s has no payload", ErrInvalidConfiguration, r.EntityType, r.StableID)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 of the canonical JSON encoding of
// the payload. encoding/json sorts map keys, so two payloads with the same
// content produce the same checksum regardless of upstream field order.
func (r Record) Checksum() (string, error) {
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("encode payload for checksum: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// StoredRecord is the on-disk envelope for a record. The payload is wrapped
// with fetch metadata so that a record file is self-describing without
// consulting the index.
type StoredRecord struct {
	// StableID uniquely identifies the entity within its type.
	StableID string `json:"stable_id"`
	// EntityType is the kind of entity the payload describes.
	EntityType EntityType `json:"entity_type"`
	// Source is the upstream the record came from.
	Source SourceID `json:"source"`
	// FetchedAt is when the persisted payload was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
	// Checksum is the SHA-256 of the canonical payload encoding.
	Checksum string `json:"checksum"`
	// Payload is the upstream object, unmodified.
	Payload map[string]any `json:"payload"`
}

// IndexEntry is one record's row in a per-entity-type index file. Entries
// carry a summary projection of the payload so consumers can scan an index
// without opening every record file.
type IndexEntry struct {
	// StableID uniquely identifies the entity within its type.
	StableID string `json:"stable_id"`
	// Path is the record file's location relative to the data root.
	Path string `json:"path"`
	// FetchedAt is when the indexed record version was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
	// Checksum is the SHA-256 of the indexed record's payload.
	Checksum string `json:"checksum"`
	// Summary is the projection of payload fields for this entity type.
	Summary map[string]any `json:"summary"`
}

// Index is the decoded form of a per-entity-type index file.
type Index struct {
	// EntityType is the kind of entity the index covers.
	EntityType EntityType `json:"entity_type"`
	// GeneratedAt is when the index was last written.
	GeneratedAt time.Time `json:"generated_at"`
	// Entries lists every indexed record, sorted by stable ID.
	Entries []IndexEntry `json:"entries"`
}

// SummaryFields returns the payload fields projected into index entries for
// an entity type. Fields absent from a payload are skipped, not nulled.
func SummaryFields(e EntityType) []string {
	switch e {
	case EntityBill:
		return []string{"congress", "type", "number", "title", "latestAction", "updateDate"}
	case EntityVote:
		return []string{"congress", "chamber", "sessionNumber", "rollCallNumber", "voteQuestion", "result", "startDate"}
	case EntityMember:
		return []string{"bioguideId", "name", "partyName", "state", "terms", "updateDate"}
	case EntityFiling:
		return []string{"filing_uuid", "filing_year", "filing_type", "filing_period", "registrant", "client", "income", "dt_posted"}
	default:
		return nil
	}
}

// ProjectSummary extracts the summary fields for the entity type from a
// payload. Missing fields are omitted so summaries never invent data.
func ProjectSummary(e EntityType, payload map[string]any) map[string]any {
	fields := SummaryFields(e)
	summary := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := payload[f]; ok {
			summary[f] = v
		}
	}
	return summary
}
