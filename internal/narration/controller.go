package narration

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/rs/zerolog"
)

// DefaultRestartDelay is the pause between cancelling playback and starting
// the next utterance. The engine needs it to release its voice resource;
// skipping it causes clipped or overlapping audio on some platforms.
const DefaultRestartDelay = 50 * time.Millisecond

var markupPattern = regexp.MustCompile(`<[^>]*>?`)

// Controller reads the latest assistant message aloud. It owns exactly one
// synthesizer handle and at most one in-flight utterance.
type Controller struct {
	mu           sync.Mutex
	synth        Synthesizer
	language     lang.Language
	rate         Rate
	volume       float64
	restartDelay time.Duration

	speaking bool
	current  Utterance
	source   string // latest assistant text; empty disables the control

	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewController creates a narration controller around an owned synthesizer
// handle. synth may be nil when the environment offers no synthesis
// capability; the control is then inert.
func NewController(synth Synthesizer, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	return &Controller{
		synth:        synth,
		language:     lang.Default,
		rate:         RateNormal,
		volume:       1.0,
		restartDelay: DefaultRestartDelay,
		eventBus:     eventBus,
		logger:       logger.With().Str("component", "narration").Logger(),
	}
}

// SetRestartDelay overrides the cancel-to-restart pause.
func (c *Controller) SetRestartDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartDelay = d
}

// SetAssistantText updates the narration source. An empty string disables
// the control.
func (c *Controller) SetAssistantText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = text
}

// SetLanguage switches the voice-selection locale.
func (c *Controller) SetLanguage(l lang.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = l
}

// SetVolume sets playback volume, clamped to [0, 1]. Takes effect on the
// next utterance.
func (c *Controller) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
}

// Rate returns the current playback rate.
func (c *Controller) Rate() Rate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Speaking reports whether playback is active.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Enabled reports whether there is anything to narrate.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synth != nil && c.source != ""
}

// ToggleSpeak cancels active playback, or starts narrating the latest
// assistant message. With no assistant message the call has no effect.
func (c *Controller) ToggleSpeak() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.synth == nil {
		return nil
	}

	if c.speaking {
		c.stopLocked()
		return nil
	}

	if c.source == "" {
		return nil
	}
	return c.startLocked(c.rate)
}

// CycleRate advances the playback rate. If playback is active it restarts
// from the beginning at the new rate, never overlapping the old utterance.
func (c *Controller) CycleRate() Rate {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rate = c.rate.Next()

	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeRateChanged,
		Data: map[string]any{"rate": float64(c.rate)},
	})

	if c.speaking {
		if err := c.startLocked(c.rate); err != nil {
			c.logger.Error().Err(err).Msg("Failed to restart narration at new rate")
		}
	}
	return c.rate
}

// Close cancels any active playback. Must be called on teardown so no audio
// outlives the controller.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speaking {
		c.stopLocked()
	}
	return nil
}

// stopLocked cancels the current utterance. Caller must hold c.mu.
func (c *Controller) stopLocked() {
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
	}
	if c.speaking {
		c.speaking = false
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeNarrationStopped})
	}
}

// startLocked begins playback at the given rate, cancelling any prior
// utterance first. Caller must hold c.mu.
func (c *Controller) startLocked(rate Rate) error {
	if c.current != nil {
		c.current.Cancel()
		c.current = nil
		// Let the engine release its voice before reuse.
		time.Sleep(c.restartDelay)
	}

	text := markupPattern.ReplaceAllString(c.source, "")

	req := UtteranceRequest{
		Text:   text,
		Locale: c.language.Locale(),
		Rate:   rate,
		Volume: c.volume,
	}

	ctx := context.Background()
	if voices, err := c.synth.Voices(ctx); err == nil {
		if v, ok := SelectVoice(voices, c.language); ok {
			req.Voice = &v
		}
	} else {
		c.logger.Warn().Err(err).Msg("Voice listing failed, using platform default")
	}

	utt, err := c.synth.Speak(ctx, req)
	if err != nil {
		c.speaking = false
		c.logger.Error().Err(err).Msg("Failed to start narration")
		return err
	}

	c.current = utt
	c.speaking = true

	c.logger.Info().
		Str("locale", req.Locale).
		Float64("rate", float64(rate)).
		Int("textLen", len(text)).
		Msg("Narration started")
	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeNarrationStarted,
		Data: map[string]any{"rate": float64(rate)},
	})

	go c.watch(utt)
	return nil
}

// watch resets the speaking flag when the utterance finishes on its own.
func (c *Controller) watch(utt Utterance) {
	<-utt.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A restart may already have replaced this utterance.
	if c.current != utt {
		return
	}
	c.current = nil
	if c.speaking {
		c.speaking = false
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeNarrationStopped})
	}
}
