// Package statestore persists per-conference message history with
// automatic TTL expiry.
//
// History persistence is best-effort: the live call is the source of truth,
// and callers are expected to treat read failures as an empty history and
// write failures as log-and-continue. Writes are create-or-replace: two
// interleaved participants racing on the same conference resolve as
// last-writer-wins without corrupting message structure.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/parleylabs/parley/types"
)

// defaultTTL is the default conversation expiry (24 hours).
const defaultTTL = 24 * time.Hour

// Store defines the interface for conversation history storage.
type Store interface {
	// Get retrieves the message history for a conference. A missing or
	// expired conversation yields an empty history and no error.
	Get(ctx context.Context, conferenceID string) ([]types.Message, error)

	// Put replaces the message history for a conference and refreshes its
	// TTL. A ttl of 0 uses the store default.
	Put(ctx context.Context, conferenceID string, messages []types.Message, ttl time.Duration) error

	// Delete removes a conversation. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, conferenceID string) error
}

// conversationRecord is the stored representation of a conversation.
type conversationRecord struct {
	ConferenceID string          `json:"conference_id"`
	Messages     []types.Message `json:"messages"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ErrNotFound is returned when a conversation doesn't exist in the store.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidID is returned when an invalid conference ID is provided.
var ErrInvalidID = errors.New("invalid conference ID")
