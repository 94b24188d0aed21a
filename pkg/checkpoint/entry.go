package checkpoint

import "time"

// Entry is a stored cursor.
type Entry struct {
	// Cursor is the date or resumption token for the next changes request.
	Cursor string `json:"cursor"`

	// SavedAt is when the cursor was stored.
	SavedAt time.Time `json:"saved_at"`

	// Saves counts how often a cursor was stored under this key. Skipped
	// empty change pages store a cursor too.
	Saves int64 `json:"saves"`
}

// Age returns how long ago the entry was saved.
func (e *Entry) Age() time.Duration {
	return time.Since(e.SavedAt)
}
