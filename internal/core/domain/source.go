package domain

// SourceID identifies an upstream API that records are fetched from. The
// values are stable strings used in configuration keys, rate limiter scopes,
// metrics labels, and persisted run history.
type SourceID string

const (
	// SourceCongress is the congressional data API serving bills, votes,
	// and member records.
	SourceCongress SourceID = "congress"

	// SourceLDA is the lobbying disclosure API serving registration and
	// activity filings.
	SourceLDA SourceID = "lda"
)

// AllSources returns every known source in deterministic order.
func AllSources() []SourceID {
	return []SourceID{SourceCongress, SourceLDA}
}

// IsValid reports whether the source identifier is a known upstream.
func (s SourceID) IsValid() bool {
	switch s {
	case SourceCongress, SourceLDA:
		return true
	}
	return false
}

// String returns the source identifier as a string.
func (s SourceID) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for status output.
func (s SourceID) DisplayName() string {
	switch s {
	case SourceCongress:
		return "Congress API"
	case SourceLDA:
		return "Lobbying Disclosure API"
	default:
		return string(s)
	}
}

// Description returns a short explanation of what the source serves.
func (s SourceID) Description() string {
	switch s {
	case SourceCongress:
		return "Bills, roll-call votes, and member records from the congressional data API"
	case SourceLDA:
		return "Lobbying registration and activity filings from the disclosure API"
	default:
		return "Unknown source"
	}
}

// EntityTypes returns the entity types this source serves, in the order
// partitions are enumerated.
func (s SourceID) EntityTypes() []EntityType {
	switch s {
	case SourceCongress:
		return []EntityType{EntityBill, EntityVote, EntityMember}
	case SourceLDA:
		return []EntityType{EntityFiling}
	default:
		return nil
	}
}

// ParseSourceID validates a raw string as a source identifier.
func ParseSourceID(raw string) (SourceID, error) {
	s := SourceID(raw)
	if !s.IsValid() {
		return "", ErrSourceUnknown
	}
	return s, nil
}
