package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/parleylabs/parley/pkg/errors"
	"github.com/parleylabs/parley/resilience"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want Kind
	}{
		{
			name: "explicit conference start",
			form: url.Values{"StatusCallbackEvent": {"conference-start"}, "ConferenceSid": {"CF1"}},
			want: KindConferenceStart,
		},
		{
			name: "explicit conference end",
			form: url.Values{"StatusCallbackEvent": {"conference-end"}},
			want: KindConferenceEnd,
		},
		{
			name: "explicit participant join",
			form: url.Values{"StatusCallbackEvent": {"participant-join"}},
			want: KindParticipantJoin,
		},
		{
			name: "explicit participant leave",
			form: url.Values{"StatusCallbackEvent": {"participant-leave"}},
			want: KindParticipantLeave,
		},
		{
			name: "recording status completed",
			form: url.Values{"RecordingStatus": {"completed"}, "RecordingSid": {"RE1"}},
			want: KindRecordingCompleted,
		},
		{
			name: "recording in progress is not a completion",
			form: url.Values{"RecordingStatus": {"in-progress"}, "RecordingSid": {"RE1"}},
			want: KindUnknown,
		},
		{
			name: "failed recording is not a completion",
			form: url.Values{"RecordingStatus": {"failed"}, "RecordingSid": {"RE1"}, "RecordingUrl": {"https://rec.example.com/RE1"}},
			want: KindUnknown,
		},
		{
			name: "inferred recording from sid",
			form: url.Values{"RecordingSid": {"RE1"}, "RecordingUrl": {"https://rec.example.com/RE1"}},
			want: KindRecordingCompleted,
		},
		{
			name: "inferred conference end from reason field",
			form: url.Values{"ReasonConferenceEnded": {"last-participant-left"}, "ConferenceSid": {"CF1"}},
			want: KindConferenceEnd,
		},
		{
			name: "explicit field wins over inference",
			form: url.Values{"StatusCallbackEvent": {"participant-leave"}, "ReasonConferenceEnded": {"x"}},
			want: KindParticipantLeave,
		},
		{
			name: "unrecognized payload",
			form: url.Values{"SomethingNew": {"yes"}},
			want: KindUnknown,
		},
		{
			name: "empty payload",
			form: url.Values{},
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.form)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassify_ExtractsFields(t *testing.T) {
	ev := Classify(url.Values{
		"StatusCallbackEvent": {"conference-end"},
		"ConferenceSid":       {"CF1"},
		"CallSid":             {"CA1"},
	})
	assert.Equal(t, "CF1", ev.ConferenceID)
	assert.Equal(t, "CA1", ev.CallID)
}

type fakeEnricher struct {
	mu    sync.Mutex
	id    string
	err   error
	calls int
}

func (f *fakeEnricher) RequestTranscript(_ context.Context, recordingID, recordingURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestDispatch_RecordingCompletedRequestsEnrichment(t *testing.T) {
	enricher := &fakeEnricher{id: "TR1"}
	d := NewDispatcher(enricher, WithRetryConfig(resilience.RetryConfig{
		MaxAttempts: 1, Sleep: noSleep,
	}))

	ack := d.Dispatch(context.Background(), Event{
		Kind:         KindRecordingCompleted,
		ConferenceID: "CF1",
		RecordingID:  "RE1",
		RecordingURL: "https://rec.example.com/RE1",
	})

	assert.True(t, ack.Success)
	assert.Equal(t, KindRecordingCompleted, ack.Event)
	assert.Equal(t, EnrichmentRequested, ack.Enrichment)
	assert.Equal(t, "TR1", ack.EnrichmentID)
	assert.Equal(t, 1, enricher.calls)
}

func TestDispatch_EnrichmentFailureStillAcknowledges(t *testing.T) {
	enricher := &fakeEnricher{err: errors.New("analytics down")}
	d := NewDispatcher(enricher, WithRetryConfig(resilience.RetryConfig{
		MaxAttempts: 2, Sleep: noSleep,
	}))

	ack := d.Dispatch(context.Background(), Event{
		Kind:        KindRecordingCompleted,
		RecordingID: "RE1",
	})

	assert.True(t, ack.Success)
	assert.Equal(t, EnrichmentFailed, ack.Enrichment)
	assert.Empty(t, ack.EnrichmentID)
	assert.Equal(t, 2, enricher.calls)
}

func TestDispatch_BreakerShortCircuitsEnrichment(t *testing.T) {
	enricher := &fakeEnricher{err: errors.New("analytics down")}
	breaker := resilience.NewBreaker("enrichment",
		resilience.WithFailureThreshold(2),
		resilience.WithResetTimeout(time.Hour))
	d := NewDispatcher(enricher,
		WithBreaker(breaker),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 1, Sleep: noSleep}))

	ev := Event{Kind: KindRecordingCompleted, RecordingID: "RE1"}
	d.Dispatch(context.Background(), ev)
	d.Dispatch(context.Background(), ev)

	ack := d.Dispatch(context.Background(), ev)

	assert.True(t, ack.Success)
	assert.Equal(t, EnrichmentFailed, ack.Enrichment)
	assert.Equal(t, 2, enricher.calls)
}

func TestDispatch_UnknownEventPassesThrough(t *testing.T) {
	d := NewDispatcher(nil)

	ack := d.Dispatch(context.Background(), Event{Kind: KindUnknown})

	assert.True(t, ack.Success)
	assert.Equal(t, KindUnknown, ack.Event)
	assert.True(t, ack.Passthrough)
}

func TestDispatch_LoggingOnlyEventsAcknowledge(t *testing.T) {
	d := NewDispatcher(nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	for _, kind := range []Kind{KindConferenceStart, KindConferenceEnd, KindParticipantJoin, KindParticipantLeave} {
		ack := d.Dispatch(context.Background(), Event{Kind: kind, ConferenceID: "CF1"})
		assert.True(t, ack.Success)
		assert.Equal(t, kind, ack.Event)
		assert.Equal(t, fixed, ack.Timestamp)
		assert.Empty(t, ack.Enrichment)
	}
}

func TestHTTPEnricher_RequestTranscript(t *testing.T) {
	var got transcriptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(transcriptResponse{ID: "TR9", Status: "queued"})
	}))
	defer srv.Close()

	e := NewHTTPEnricher(srv.URL)
	id, err := e.RequestTranscript(context.Background(), "RE1", "https://rec.example.com/RE1")

	require.NoError(t, err)
	assert.Equal(t, "TR9", id)
	assert.Equal(t, "RE1", got.RecordingID)
	assert.NotEmpty(t, got.RequestID)
}

func TestHTTPEnricher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEnricher(srv.URL)
	_, err := e.RequestTranscript(context.Background(), "RE1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	var ce *perrors.ContextualError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
	assert.Equal(t, "RE1", ce.Details["recording_id"])
}
