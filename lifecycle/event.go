// Package lifecycle classifies and dispatches conference status callbacks:
// the out-of-band events the telephony platform posts as a call progresses
// (start, end, participants joining and leaving, recordings finishing).
package lifecycle

import (
	"net/url"
)

// Kind identifies a lifecycle event variant.
type Kind string

// Lifecycle event kinds. Unknown is a first-class variant: unrecognized
// payloads are acknowledged and passed through rather than guessed at.
const (
	KindConferenceStart    Kind = "conference-start"
	KindConferenceEnd      Kind = "conference-end"
	KindParticipantJoin    Kind = "participant-join"
	KindParticipantLeave   Kind = "participant-leave"
	KindRecordingCompleted Kind = "recording-completed"
	KindUnknown            Kind = "unknown"
)

// Event is a classified lifecycle callback.
type Event struct {
	Kind         Kind
	ConferenceID string
	CallID       string
	RecordingID  string
	RecordingURL string
	Duration     string
}

// explicitKinds maps the platform's event discriminant values to kinds.
var explicitKinds = map[string]Kind{
	"conference-start":  KindConferenceStart,
	"conference-end":    KindConferenceEnd,
	"participant-join":  KindParticipantJoin,
	"participant-leave": KindParticipantLeave,
}

// Classify maps a callback payload to an Event. The explicit event field
// wins when present; otherwise the kind is inferred from which
// status-specific fields the payload carries, in a fixed order. Payloads
// matching neither rule classify as Unknown.
func Classify(form url.Values) Event {
	ev := Event{
		Kind:         KindUnknown,
		ConferenceID: form.Get("ConferenceSid"),
		CallID:       form.Get("CallSid"),
		RecordingID:  form.Get("RecordingSid"),
		RecordingURL: form.Get("RecordingUrl"),
		Duration:     form.Get("RecordingDuration"),
	}

	if kind, ok := explicitKinds[form.Get("StatusCallbackEvent")]; ok {
		ev.Kind = kind
		return ev
	}
	if status := form.Get("RecordingStatus"); status != "" {
		// An explicit non-completed status (in-progress, failed) is not a
		// completion; it stays Unknown rather than being guessed into one.
		if status == "completed" {
			ev.Kind = KindRecordingCompleted
		}
		return ev
	}

	// Inference from field presence, checked in a fixed order.
	switch {
	case ev.RecordingID != "" || ev.RecordingURL != "":
		ev.Kind = KindRecordingCompleted
	case form.Has("ReasonConferenceEnded"):
		ev.Kind = KindConferenceEnd
	}

	return ev
}
