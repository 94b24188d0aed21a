// Package ratelimit throttles requests to the Pure API.
//
// Two inputs gate a request: a client-side token bucket (requests per second
// plus burst) and the server's own back-pressure, announced through the
// Retry-After header on 429 and 503 responses.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// State is the server-imposed back-pressure seen so far.
type State struct {
	// BlockedUntil is the earliest time the server accepts new requests.
	// Zero when no Retry-After has been received.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the HTTP status that produced BlockedUntil.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the state was last changed.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests must wait at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining wait at now, or 0.
func (s *State) TimeUntilUnblocked(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After value in either delta-seconds or
// HTTP-date form. ok is false for empty or malformed values.
func ParseRetryAfter(value string, now time.Time) (d time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if at.Before(now) {
		return 0, true
	}
	return at.Sub(now), true
}
