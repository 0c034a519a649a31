// Package ratelimit enforces a rolling daily ceiling on conversation turns.
//
// Counters are keyed by UTC calendar day and expire once the day closes.
// Enforcement is advisory by design: when the counter store is unreachable
// the caller is expected to fail open and keep the conversation alive,
// surfacing the error for observability.
package ratelimit

import (
	"context"
	"time"
)

// defaultWindowTTL keeps a day's counter around for 48 hours, comfortably
// past the day boundary, before Redis reclaims it.
const defaultWindowTTL = 48 * time.Hour

// dayKeyFormat is the UTC calendar-day key layout.
const dayKeyFormat = "2006-01-02"

// Result describes the outcome of a limit check.
type Result struct {
	Allowed      bool      `json:"allowed"`
	CurrentCount int64     `json:"current_count"`
	Limit        int64     `json:"limit"`
	ResetsAt     time.Time `json:"resets_at"`
}

// Limiter tracks daily usage counts against a ceiling.
type Limiter interface {
	// CheckAndIncrement atomically increments the counter for the UTC day
	// containing t, unless the count has already reached limit, in which
	// case the count is left unchanged and Allowed is false.
	CheckAndIncrement(ctx context.Context, t time.Time, limit int64) (Result, error)
}

// DayKey returns the counter key for the UTC day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyFormat)
}

// NextReset returns the next UTC midnight after t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
