package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params are the keyset inputs of a history listing: a page size and the
// opaque cursor returned by the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) key of the last row already returned.
// Listings order by created_at DESC, id DESC and resume strictly after it.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type cursorPayload struct {
	At time.Time `json:"at"`
	ID uuid.UUID `json:"id"`
}

// NormalizeLimit applies DefaultLimit and MaxLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so that one extra row reveals
// whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// SplitPage trims rows fetched with LimitWithBuffer to the page size and
// returns the cursor of the last kept row when more rows follow.
func SplitPage[T any](rows []T, limit int, keyOf func(T) Cursor) ([]T, *Cursor) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	page := rows[:size]
	next := keyOf(page[size-1])
	return page, &next
}

// EncodeCursor renders a cursor as URL-safe text for query strings.
func EncodeCursor(cursor Cursor) string {
	raw, _ := json.Marshal(cursorPayload{At: cursor.CreatedAt.UTC(), ID: cursor.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes EncodeCursor output. A blank value means the first page
// and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if payload.At.IsZero() || payload.ID == uuid.Nil {
		return nil, fmt.Errorf("incomplete cursor")
	}
	return &Cursor{CreatedAt: payload.At, ID: payload.ID}, nil
}
