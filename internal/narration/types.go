// Package narration provides text-to-speech playback of assistant replies.
package narration

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrEngineUnavailable = errors.New("speech synthesis engine unavailable")
	ErrNothingToNarrate  = errors.New("no assistant message to narrate")
)

// Rate is an ordered playback-speed setting.
type Rate float64

const (
	RateNormal Rate = 1.0
	RateFast   Rate = 1.5
	RateDouble Rate = 2.0
)

// Next returns the following rate in the 1.0 → 1.5 → 2.0 → 1.0 cycle.
func (r Rate) Next() Rate {
	switch r {
	case RateNormal:
		return RateFast
	case RateFast:
		return RateDouble
	default:
		return RateNormal
	}
}

// Voice describes an installed synthesis voice.
type Voice struct {
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// UtteranceRequest is a single playback request.
type UtteranceRequest struct {
	Text   string
	Voice  *Voice // nil selects the platform default
	Locale string
	Rate   Rate
	Volume float64 // 0.0 - 1.0
}

// Utterance is a handle on one in-flight playback.
type Utterance interface {
	// Done is closed when playback completes or is cancelled.
	Done() <-chan struct{}

	// Cancel stops playback. Safe to call more than once.
	Cancel()

	// Cancelled reports whether playback was cancelled before completing.
	Cancelled() bool
}

// Synthesizer is an owned handle on a text-to-speech capability.
type Synthesizer interface {
	// Voices lists the installed voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak begins playback of a single utterance.
	Speak(ctx context.Context, req UtteranceRequest) (Utterance, error)
}
