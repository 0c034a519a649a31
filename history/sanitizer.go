// Package history validates and sanitizes conversation history before it is
// merged into a completion request.
//
// Stored history is never trusted as-is: every round-trip through the
// conversation store is re-validated here, and ValidateForCompletion runs a
// second, stricter check immediately before submission so that no path can
// smuggle a tampered sequence past the sanitizer. The guarded invariants:
//
//   - at most one system message, and if present it is the first element
//   - every message has a recognized role and non-empty content
//   - no message content exceeds the configured maximum length
//   - the list never exceeds the configured maximum history size
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/parleylabs/parley/types"
)

// Default sanitizer limits.
const (
	DefaultMaxMessages      = 20
	DefaultMaxContentLength = 2000
)

// Validation errors returned by ValidateForCompletion.
var (
	ErrNotArray       = errors.New("history is not an array")
	ErrEmptyHistory   = errors.New("history is empty")
	ErrMultipleSystem = errors.New("history contains more than one system message")
	ErrSystemNotFirst = errors.New("system message is not the first element")
	ErrInvalidRole    = errors.New("message has an unrecognized role")
	ErrEmptyContent   = errors.New("message has empty content")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
)

// Sanitizer applies history validation with configurable limits.
type Sanitizer struct {
	maxMessages      int
	maxContentLength int
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithMaxMessages sets the maximum history size. Default is DefaultMaxMessages.
func WithMaxMessages(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithMaxContentLength sets the maximum message content length in bytes.
// Default is DefaultMaxContentLength.
func WithMaxContentLength(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxContentLength = n
		}
	}
}

// NewSanitizer creates a Sanitizer with the given options.
func NewSanitizer(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		maxMessages:      DefaultMaxMessages,
		maxContentLength: DefaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rawMessage mirrors the wire shape of a stored message. Using pointers
// distinguishes missing fields from empty ones.
type rawMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// Validate parses and sanitizes a raw history payload. A payload that is not
// a JSON array is rejected outright; individual malformed entries (missing
// role or content, unrecognized role) are dropped rather than fatal, as are
// extra or misplaced system messages. Content beyond the maximum length is
// truncated, and the list is trimmed to the maximum history size while
// preserving a valid leading system message.
func (s *Sanitizer) Validate(raw []byte, allowSystemPrompt bool) ([]types.Message, error) {
	var entries []rawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}

	messages := make([]types.Message, 0, len(entries))
	for i, entry := range entries {
		msg, ok := s.sanitizeEntry(entry, i == 0 && allowSystemPrompt)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}

	return s.Truncate(messages), nil
}

// Sanitize applies the same rules as Validate to an already-decoded message
// list. Stored history re-enters through here after every round-trip.
func (s *Sanitizer) Sanitize(messages []types.Message, allowSystemPrompt bool) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for i, msg := range messages {
		role, content := msg.Role, msg.Content
		entry := rawMessage{Role: &role, Content: &content}
		clean, ok := s.sanitizeEntry(entry, i == 0 && allowSystemPrompt)
		if !ok {
			continue
		}
		clean.Timestamp = msg.Timestamp
		out = append(out, clean)
	}
	return s.Truncate(out)
}

// sanitizeEntry validates a single raw entry. systemAllowed is true only for
// the first element when system prompts are permitted.
func (s *Sanitizer) sanitizeEntry(entry rawMessage, systemAllowed bool) (types.Message, bool) {
	if entry.Role == nil || entry.Content == nil {
		return types.Message{}, false
	}

	role := *entry.Role
	if !types.ValidRole(role) {
		return types.Message{}, false
	}
	if role == types.RoleSystem && !systemAllowed {
		return types.Message{}, false
	}

	content := *entry.Content
	if content == "" {
		return types.Message{}, false
	}
	content = truncateContent(content, s.maxContentLength)

	return types.Message{Role: role, Content: content}, true
}

// truncateContent trims s to at most max bytes, backing up so the cut never
// splits a multi-byte rune.
func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Truncate caps history at the maximum size, evicting oldest non-system
// messages first. A leading system message is always preserved.
func (s *Sanitizer) Truncate(messages []types.Message) []types.Message {
	if len(messages) <= s.maxMessages {
		return messages
	}

	if messages[0].Role == types.RoleSystem {
		keep := s.maxMessages - 1
		rest := messages[1:]
		out := make([]types.Message, 0, s.maxMessages)
		out = append(out, messages[0])
		out = append(out, rest[len(rest)-keep:]...)
		return out
	}

	return messages[len(messages)-s.maxMessages:]
}

// ValidateForCompletion performs the strict pre-submission check. It
// independently re-verifies invariants already enforced by Validate, as
// defense in depth against any path that bypasses the sanitizer.
func (s *Sanitizer) ValidateForCompletion(messages []types.Message) error {
	if messages == nil {
		return ErrNotArray
	}
	if len(messages) == 0 {
		return ErrEmptyHistory
	}

	systemCount := 0
	for i, msg := range messages {
		if !types.ValidRole(msg.Role) {
			return fmt.Errorf("%w: %q at index %d", ErrInvalidRole, msg.Role, i)
		}
		if msg.Content == "" {
			return fmt.Errorf("%w: index %d", ErrEmptyContent, i)
		}
		if len(msg.Content) > s.maxContentLength {
			return fmt.Errorf("%w: index %d", ErrContentTooLong, i)
		}
		if msg.Role == types.RoleSystem {
			systemCount++
			if systemCount > 1 {
				return ErrMultipleSystem
			}
			if i != 0 {
				return ErrSystemNotFirst
			}
		}
	}

	return nil
}

// SanitizeUserMessage prepares captured speech for inclusion in history:
// trims to the maximum content length, strips null bytes, and trims
// surrounding whitespace.
func (s *Sanitizer) SanitizeUserMessage(text string) string {
	text = truncateContent(text, s.maxContentLength)
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
