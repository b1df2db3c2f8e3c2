// Package speech coordinates microphone capture and speech playback around a
// dialogue session. Capture and playback are mutually exclusive, and each
// listening session delivers at most one final transcript.
package speech

import "context"

// TranscriptKind identifies whether a recognition event carries partial or
// final text.
type TranscriptKind string

const (
	TranscriptPartial TranscriptKind = "partial"
	TranscriptFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental recognition output from a provider.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// Recognizer captures audio and streams transcript events. Its internal
// acoustic processing is the provider's concern.
type Recognizer interface {
	// Start begins capture and returns the event stream. The stream ends when
	// capture stops or ctx is cancelled.
	Start(ctx context.Context) (<-chan TranscriptEvent, error)

	// Stop halts capture. Idempotent.
	Stop() error
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	// Speak plays text, blocking until playback finishes, is cancelled, or
	// ctx expires.
	Speak(ctx context.Context, text string) error

	// Cancel aborts any in-flight playback. Idempotent.
	Cancel()
}
