package dictation

import (
	"context"
	"sync"

	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/rs/zerolog"
)

// User-visible messages. No-speech endings are deliberately silent.
const (
	MsgPermissionDenied = "Microphone access denied. Please enable it in browser settings."
	MsgGenericError     = "Voice input error. Please try again."
	MsgUnsupported      = "Speech recognition is not supported in this environment."
)

// Controller manages the Idle/Listening dictation state machine. Every
// interim or final result replaces the draft with the cumulative transcript.
type Controller struct {
	mu        sync.Mutex
	rec       Recognizer
	language  lang.Language
	listening bool
	notice    string
	cancel    context.CancelFunc

	eventBus *bus.EventBus
	logger   zerolog.Logger

	onTranscript func(text string)
	onState      func(listening bool)
}

// NewController creates a dictation controller around an owned recognizer
// handle. rec may be nil when the environment offers no recognition
// capability; Toggle then reports MsgUnsupported instead of failing silently.
func NewController(rec Recognizer, eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	return &Controller{
		rec:      rec,
		language: lang.Default,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "dictation").Logger(),
	}
}

// OnTranscript registers the draft replacement callback.
func (c *Controller) OnTranscript(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = fn
}

// OnStateChange registers a listener for Listening transitions, including
// ones triggered by the recognizer itself.
func (c *Controller) OnStateChange(fn func(listening bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// SetLanguage switches the recognition locale used by the next session. An
// active session keeps its locale until it ends.
func (c *Controller) SetLanguage(l lang.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = l
}

// Listening reports whether a recognition session is active.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Notice returns the pending user-visible message, empty when none.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// ClearNotice clears the pending user-visible message.
func (c *Controller) ClearNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = ""
}

// Toggle starts dictation when idle and stops it when listening. Starting
// while listening is not an error: the second call is a stop, matching the
// toggle semantics of the mic control.
func (c *Controller) Toggle() error {
	c.mu.Lock()

	if c.rec == nil {
		c.notice = MsgUnsupported
		c.mu.Unlock()
		c.logger.Warn().Msg("Dictation toggled with no recognizer available")
		return ErrUnsupported
	}

	if c.listening {
		c.mu.Unlock()
		return c.rec.Stop()
	}

	c.notice = ""
	locale := c.language.Locale()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	events, err := c.rec.Start(ctx, locale)
	if err != nil {
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		c.logger.Error().Err(err).Msg("Failed to start recognition")
		return err
	}

	c.setListeningLocked(true)
	c.mu.Unlock()

	c.logger.Info().Str("locale", locale).Msg("Dictation started")
	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeDictationStarted,
		Data: map[string]any{"locale": locale},
	})

	go c.consume(events)
	return nil
}

// SendAudio forwards captured audio into the active session.
func (c *Controller) SendAudio(audio []byte) error {
	c.mu.Lock()
	rec, active := c.rec, c.listening
	c.mu.Unlock()

	if rec == nil || !active {
		return ErrNotConnected
	}
	return rec.SendAudio(audio)
}

// Close stops any active session.
func (c *Controller) Close() error {
	c.mu.Lock()
	rec, active := c.rec, c.listening
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if rec != nil && active {
		return rec.Stop()
	}
	return nil
}

func (c *Controller) consume(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case EventPartial, EventFinal:
			c.applyTranscript(ev)

		case EventError:
			c.applyError(ev.Err)

		case EventEnded:
			// Recognizer-initiated end (silence timeout) arrives here too;
			// reconcile the flag rather than assuming we asked for the stop.
			c.endSession()
		}
	}
	c.endSession()
}

func (c *Controller) applyTranscript(ev Event) {
	c.mu.Lock()
	fn := c.onTranscript
	c.mu.Unlock()

	if fn != nil {
		fn(ev.Transcript)
	}

	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeTranscript,
		Data: map[string]any{
			"text":  ev.Transcript,
			"final": ev.Kind == EventFinal,
		},
	})
}

func (c *Controller) applyError(kind ErrKind) {
	c.mu.Lock()
	switch kind {
	case ErrPermissionDenied:
		c.notice = MsgPermissionDenied
	case ErrNoSpeech:
		// Pauses are not errors; say nothing.
	default:
		c.notice = MsgGenericError
	}
	notice := c.notice
	c.setListeningLocked(false)
	c.mu.Unlock()

	c.logger.Warn().Int("kind", int(kind)).Msg("Recognition error")
	if notice != "" {
		c.eventBus.Publish(bus.Event{
			Type: bus.EventTypeDictationError,
			Data: map[string]any{"message": notice},
		})
	}
}

func (c *Controller) endSession() {
	c.mu.Lock()
	wasListening := c.listening
	c.setListeningLocked(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if wasListening {
		c.logger.Info().Msg("Dictation stopped")
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeDictationStopped})
	}
}

// setListeningLocked updates the flag and fires the state callback. Caller
// must hold c.mu.
func (c *Controller) setListeningLocked(listening bool) {
	if c.listening == listening {
		return
	}
	c.listening = listening
	if c.onState != nil {
		go c.onState(listening)
	}
}
