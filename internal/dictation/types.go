// Package dictation bridges a continuous speech recognizer into the draft buffer.
package dictation

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrUnsupported   = errors.New("speech recognition is not supported in this environment")
	ErrAlreadyActive = errors.New("recognition session already active")
	ErrNotConnected  = errors.New("recognizer not connected")
)

// EventKind discriminates recognition events.
type EventKind int

const (
	// EventPartial carries an interim cumulative transcript.
	EventPartial EventKind = iota
	// EventFinal carries a finalized cumulative transcript.
	EventFinal
	// EventError reports a recognition failure; see ErrKind.
	EventError
	// EventEnded signals the recognizer stopped, either on request or on its
	// own (silence timeout, stream close).
	EventEnded
)

// ErrKind classifies recognition failures.
type ErrKind int

const (
	ErrNone ErrKind = iota
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied
	// ErrNoSpeech means the session ended without detecting speech.
	ErrNoSpeech
	// ErrOther covers every remaining failure.
	ErrOther
)

// Event is a single recognition event. Transcript is always the full
// cumulative transcript-so-far, never a fragment.
type Event struct {
	Kind       EventKind
	Transcript string
	Err        ErrKind
}

// Recognizer is an owned handle on a speech-recognition capability. One
// controller holds exactly one recognizer; there is no ambient global.
type Recognizer interface {
	// Start begins a recognition session for the given locale and returns the
	// event stream. The stream is closed after EventEnded is delivered.
	Start(ctx context.Context, locale string) (<-chan Event, error)

	// SendAudio forwards captured audio into the active session.
	SendAudio(audio []byte) error

	// Stop ends the active session. The stream delivers EventEnded.
	Stop() error
}
