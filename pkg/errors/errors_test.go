package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextualError_Error(t *testing.T) {
	err := New("store", "Put", fmt.Errorf("connection refused"))
	assert.Equal(t, "[store] Put: connection refused", err.Error())

	err = Upstream("completion", "Complete", 502, nil)
	assert.Equal(t, "[completion] Complete (status 502)", err.Error())

	err = Upstream("lifecycle", "RequestTranscript", 429, fmt.Errorf("throttled"))
	assert.Equal(t, "[lifecycle] RequestTranscript (status 429): throttled", err.Error())
}

func TestContextualError_UnwrapPreservesSentinels(t *testing.T) {
	sentinel := errors.New("not found")
	err := New("store", "Get", fmt.Errorf("lookup: %w", sentinel))

	assert.ErrorIs(t, err, sentinel)

	var ce *ContextualError
	require.ErrorAs(t, error(err), &ce)
	assert.Equal(t, "store", ce.Component)
}

func TestContextualError_Details(t *testing.T) {
	err := New("ratelimit", "CheckAndIncrement", nil).
		WithDetails(map[string]any{"day": "2026-03-01"})

	assert.Equal(t, "2026-03-01", err.Details["day"])
}
