package congress

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// CursorVersion is the current cursor schema version.
const CursorVersion = 1

// ErrInvalidCursor indicates the cursor format is invalid.
var ErrInvalidCursor = errors.New("congress: invalid cursor format")

// Cursor tracks the position within one partition's listing.
type Cursor struct {
	// Version is the schema version for future migrations.
	Version int `json:"v"`

	// Offset is the index of the first item on the next page.
	Offset int `json:"offset"`
}

// NewCursor creates a cursor positioned at the start of a listing.
func NewCursor() *Cursor {
	return &Cursor{Version: CursorVersion}
}

// Encode serializes the cursor to a base64-encoded JSON string.
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor deserializes a cursor from a base64-encoded JSON string.
// Returns a new start-of-listing cursor if the input is empty.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return NewCursor(), nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	if cursor.Version != CursorVersion || cursor.Offset < 0 {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}
