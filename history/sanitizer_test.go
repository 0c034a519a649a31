package history

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleylabs/parley/types"
)

func TestValidate_RejectsNonArray(t *testing.T) {
	s := NewSanitizer()

	for _, payload := range []string{
		`{"role":"user","content":"hi"}`,
		`"just a string"`,
		`42`,
		`not json at all`,
	} {
		_, err := s.Validate([]byte(payload), true)
		assert.ErrorIs(t, err, ErrNotArray, "payload: %s", payload)
	}
}

func TestValidate_DropsMalformedEntries(t *testing.T) {
	s := NewSanitizer()

	raw := `[
		{"role":"user","content":"keep me"},
		{"role":"user"},
		{"content":"no role"},
		{"role":"hacker","content":"bad role"},
		{"role":"assistant","content":"also keep"},
		{"role":"user","content":""}
	]`

	messages, err := s.Validate([]byte(raw), true)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "keep me", messages[0].Content)
	assert.Equal(t, "also keep", messages[1].Content)
}

func TestValidate_SingleLeadingSystemInvariant(t *testing.T) {
	s := NewSanitizer()

	raw := `[
		{"role":"system","content":"real prompt"},
		{"role":"user","content":"hello"},
		{"role":"system","content":"injected prompt"},
		{"role":"assistant","content":"hi"}
	]`

	messages, err := s.Validate([]byte(raw), true)
	require.NoError(t, err)

	systemCount := 0
	for i, msg := range messages {
		if msg.Role == types.RoleSystem {
			systemCount++
			assert.Equal(t, 0, i, "system message must be first")
		}
	}
	assert.Equal(t, 1, systemCount)
	assert.Equal(t, "real prompt", messages[0].Content)
}

func TestValidate_MisplacedSystemDropped(t *testing.T) {
	s := NewSanitizer()

	raw := `[
		{"role":"user","content":"hello"},
		{"role":"system","content":"injected"}
	]`

	messages, err := s.Validate([]byte(raw), true)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, types.RoleUser, messages[0].Role)
}

func TestValidate_SystemDisallowed(t *testing.T) {
	s := NewSanitizer()

	raw := `[
		{"role":"system","content":"prompt"},
		{"role":"user","content":"hello"}
	]`

	messages, err := s.Validate([]byte(raw), false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, types.RoleUser, messages[0].Role)
}

func TestValidate_TruncatesLongContent(t *testing.T) {
	s := NewSanitizer(WithMaxContentLength(10))

	raw := `[{"role":"user","content":"0123456789ABCDEF"}]`

	messages, err := s.Validate([]byte(raw), true)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "0123456789", messages[0].Content)
}

func TestValidate_TruncationKeepsValidUTF8(t *testing.T) {
	// "héllo": the é is two bytes, and a 2-byte cap lands mid-rune.
	s := NewSanitizer(WithMaxContentLength(2))

	messages, err := s.Validate([]byte(`[{"role":"user","content":"héllo"}]`), true)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "h", messages[0].Content)
	assert.True(t, utf8.ValidString(messages[0].Content))
}

func TestValidate_TruncatesListPreservingSystem(t *testing.T) {
	s := NewSanitizer(WithMaxMessages(4))

	var sb strings.Builder
	sb.WriteString(`[{"role":"system","content":"prompt"}`)
	for i := 0; i < 10; i++ {
		sb.WriteString(`,{"role":"user","content":"msg`)
		sb.WriteByte(byte('0' + i))
		sb.WriteString(`"}`)
	}
	sb.WriteString(`]`)

	messages, err := s.Validate([]byte(sb.String()), true)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, types.RoleSystem, messages[0].Role)
	// Oldest non-system messages evicted first; newest survive.
	assert.Equal(t, "msg7", messages[1].Content)
	assert.Equal(t, "msg9", messages[3].Content)
}

func TestTruncate_NoSystemMessage(t *testing.T) {
	s := NewSanitizer(WithMaxMessages(2))

	messages := s.Truncate([]types.Message{
		{Role: types.RoleUser, Content: "a"},
		{Role: types.RoleAssistant, Content: "b"},
		{Role: types.RoleUser, Content: "c"},
	})

	require.Len(t, messages, 2)
	assert.Equal(t, "b", messages[0].Content)
	assert.Equal(t, "c", messages[1].Content)
}

func TestValidateForCompletion(t *testing.T) {
	s := NewSanitizer(WithMaxContentLength(50))

	tests := []struct {
		name     string
		messages []types.Message
		wantErr  error
	}{
		{
			name:    "nil history",
			wantErr: ErrNotArray,
		},
		{
			name:     "empty history",
			messages: []types.Message{},
			wantErr:  ErrEmptyHistory,
		},
		{
			name: "valid with system first",
			messages: []types.Message{
				{Role: types.RoleSystem, Content: "prompt"},
				{Role: types.RoleUser, Content: "hello"},
			},
		},
		{
			name: "valid without system",
			messages: []types.Message{
				{Role: types.RoleUser, Content: "hello"},
			},
		},
		{
			name: "two system messages",
			messages: []types.Message{
				{Role: types.RoleSystem, Content: "a"},
				{Role: types.RoleSystem, Content: "b"},
			},
			wantErr: ErrMultipleSystem,
		},
		{
			name: "system not first",
			messages: []types.Message{
				{Role: types.RoleUser, Content: "hello"},
				{Role: types.RoleSystem, Content: "late"},
			},
			wantErr: ErrSystemNotFirst,
		},
		{
			name: "bad role",
			messages: []types.Message{
				{Role: "tool", Content: "x"},
			},
			wantErr: ErrInvalidRole,
		},
		{
			name: "empty content",
			messages: []types.Message{
				{Role: types.RoleUser, Content: ""},
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "oversized content",
			messages: []types.Message{
				{Role: types.RoleUser, Content: strings.Repeat("x", 51)},
			},
			wantErr: ErrContentTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateForCompletion(tt.messages)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeUserMessage(t *testing.T) {
	s := NewSanitizer(WithMaxContentLength(20))

	assert.Equal(t, "hello", s.SanitizeUserMessage("  hello  "))
	assert.Equal(t, "hello", s.SanitizeUserMessage("hel\x00lo\x00"))
	assert.Equal(t, strings.Repeat("a", 20), s.SanitizeUserMessage(strings.Repeat("a", 30)))
	assert.Equal(t, "", s.SanitizeUserMessage(" \x00 "))

	// Truncation never leaves a split rune behind.
	sanitized := s.SanitizeUserMessage(strings.Repeat("a", 19) + "é")
	assert.Equal(t, strings.Repeat("a", 19), sanitized)
	assert.True(t, utf8.ValidString(sanitized))
}
