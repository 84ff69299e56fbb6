package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned for tokens that do not decode to a Cursor.
var ErrInvalidToken = errors.New("invalid pagination token")

// Cursor is the opaque pagination state we encode/decode.
// Offset is the next index into the candidate stack; HeadID pins the stack
// head the listing started from so a changed stack is detected.
type Cursor struct {
	Offset int    `json:"offset"`
	HeadID string `json:"head_id,omitempty"`
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.Offset < 0 {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

// Page returns the [start, end) window of a list of n items for c and the
// cursor of the following page, nil when this is the last one.
func Page(c Cursor, n, size int, headID string) (start, end int, next *Cursor) {
	start = c.Offset
	if start > n {
		start = n
	}
	end = start + size
	if end > n {
		end = n
	}
	if end < n {
		next = &Cursor{Offset: end, HeadID: headID}
	}
	return start, end, next
}
