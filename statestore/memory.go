package statestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/parleylabs/parley/types"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. For distributed systems, use RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	record    conversationRecord
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL sets the default time-to-live applied when Put is called
// with a zero ttl. Default is 24 hours.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithMemoryClock overrides the time source. Tests use this to drive
// expiry without real waits.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves the message history for a conference.
// Expired entries are removed lazily and read as an empty history.
func (s *MemoryStore) Get(ctx context.Context, conferenceID string) ([]types.Message, error) {
	if conferenceID == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[conferenceID]
	if !exists {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, conferenceID)
		return nil, nil
	}

	return copyMessages(entry.record.Messages), nil
}

// Put replaces the conversation with the given history and refreshes its TTL.
func (s *MemoryStore) Put(ctx context.Context, conferenceID string, messages []types.Message, ttl time.Duration) error {
	if conferenceID == "" {
		return ErrInvalidID
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[conferenceID] = memoryEntry{
		record: conversationRecord{
			ConferenceID: conferenceID,
			Messages:     copyMessages(messages),
			UpdatedAt:    s.now(),
		},
		expiresAt: s.now().Add(ttl),
	}

	return nil
}

// Delete removes a conversation.
func (s *MemoryStore) Delete(ctx context.Context, conferenceID string) error {
	if conferenceID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[conferenceID]; !exists {
		return ErrNotFound
	}
	delete(s.entries, conferenceID)

	return nil
}

// copyMessages creates a deep copy of a message slice so callers cannot
// mutate stored state.
func copyMessages(messages []types.Message) []types.Message {
	if messages == nil {
		return nil
	}

	// JSON round-trip for a reliable deep copy.
	data, err := json.Marshal(messages)
	if err != nil {
		return nil
	}
	var out []types.Message
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
