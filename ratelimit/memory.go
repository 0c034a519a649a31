package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter provides an in-memory implementation of the Limiter
// interface for development and tests. Counters for past days are pruned
// lazily on access.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryLimiter creates an in-memory daily rate limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int64)}
}

// CheckAndIncrement implements Limiter.
func (l *MemoryLimiter) CheckAndIncrement(ctx context.Context, t time.Time, limit int64) (Result, error) {
	key := DayKey(t)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(key)

	count := l.counts[key]
	res := Result{
		Limit:    limit,
		ResetsAt: NextReset(t),
	}

	if count >= limit {
		res.CurrentCount = count
		return res, nil
	}

	count++
	l.counts[key] = count
	res.Allowed = true
	res.CurrentCount = count
	return res, nil
}

// prune drops counters for any day other than the one being accessed.
// Caller must hold the mutex.
func (l *MemoryLimiter) prune(current string) {
	for key := range l.counts {
		if key != current {
			delete(l.counts, key)
		}
	}
}
