package lifecycle

import (
	"context"
	"time"

	"github.com/parleylabs/parley/logger"
	"github.com/parleylabs/parley/metrics"
	"github.com/parleylabs/parley/resilience"
)

// Enrichment outcome markers embedded in acknowledgments.
const (
	EnrichmentRequested = "requested"
	EnrichmentFailed    = "failed"
	EnrichmentSkipped   = "skipped"
)

// Ack is the acknowledgment returned for every lifecycle callback. Success
// is always true: the platform retries callbacks it believes failed, and a
// retried side effect is worse than a logged one.
type Ack struct {
	Success      bool      `json:"success"`
	Event        Kind      `json:"event"`
	ConferenceID string    `json:"conferenceId,omitempty"`
	CallID       string    `json:"callId,omitempty"`
	RecordingID  string    `json:"recordingId,omitempty"`
	Enrichment   string    `json:"enrichment,omitempty"`
	EnrichmentID string    `json:"enrichmentId,omitempty"`
	Passthrough  bool      `json:"passthrough,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Dispatcher maps classified lifecycle events to their side effects.
type Dispatcher struct {
	enricher Enricher
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	now      func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBreaker sets the circuit breaker guarding enrichment calls.
func WithBreaker(b *resilience.Breaker) DispatcherOption {
	return func(d *Dispatcher) {
		if b != nil {
			d.breaker = b
		}
	}
}

// WithRetryConfig sets the retry policy for enrichment calls.
func WithRetryConfig(cfg resilience.RetryConfig) DispatcherOption {
	return func(d *Dispatcher) { d.retry = cfg }
}

// WithClock overrides the acknowledgment timestamp source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a lifecycle dispatcher using the given enricher.
func NewDispatcher(enricher Enricher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		enricher: enricher,
		breaker:  resilience.NewBreaker("enrichment"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch performs the side effect for an event and returns its
// acknowledgment. Side-effect failures are logged, never propagated: the
// acknowledgment reports Success regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Ack {
	metrics.RecordLifecycleEvent(string(ev.Kind))

	ack := Ack{
		Success:      true,
		Event:        ev.Kind,
		ConferenceID: ev.ConferenceID,
		CallID:       ev.CallID,
		RecordingID:  ev.RecordingID,
		Timestamp:    d.now(),
	}

	switch ev.Kind {
	case KindConferenceStart:
		// Agent cueing is ordering-guaranteed by the entry-point webhook;
		// idempotent here, so a log line suffices.
		logger.Info("conference started", "conference_id", ev.ConferenceID)
	case KindConferenceEnd:
		// Conversation state self-expires via TTL; nothing to mutate.
		logger.Info("conference ended",
			"conference_id", ev.ConferenceID, "call_id", ev.CallID)
	case KindParticipantJoin:
		logger.Info("participant joined",
			"conference_id", ev.ConferenceID, "call_id", ev.CallID)
	case KindParticipantLeave:
		logger.Info("participant left",
			"conference_id", ev.ConferenceID, "call_id", ev.CallID)
	case KindRecordingCompleted:
		ack.Enrichment, ack.EnrichmentID = d.enrich(ctx, ev)
	default:
		logger.Warn("unclassified lifecycle event acknowledged",
			"conference_id", ev.ConferenceID)
		ack.Passthrough = true
	}

	return ack
}

// enrich requests a transcript through the breaker and retry layers.
// Enrichment is a best-effort side path; failure degrades to a marker in
// the acknowledgment.
func (d *Dispatcher) enrich(ctx context.Context, ev Event) (status, id string) {
	if d.enricher == nil {
		return EnrichmentSkipped, ""
	}

	var enrichmentID string
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, d.retry, func(ctx context.Context) error {
			out, err := d.enricher.RequestTranscript(ctx, ev.RecordingID, ev.RecordingURL)
			if err != nil {
				return err
			}
			enrichmentID = out
			return nil
		})
	}, nil)
	if err != nil {
		logger.Error("transcript enrichment failed",
			"recording_id", ev.RecordingID, "conference_id", ev.ConferenceID,
			"breaker_state", d.breaker.State(), "error", err)
		return EnrichmentFailed, ""
	}

	logger.Info("transcript enrichment requested",
		"recording_id", ev.RecordingID, "enrichment_id", enrichmentID)
	return EnrichmentRequested, enrichmentID
}
