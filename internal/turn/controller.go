// Package turn owns the draft buffer and the send/stop action of one
// conversational turn.
package turn

import (
	"strings"
	"sync"

	"github.com/reishilabs/ganochat/internal/attachment"
	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/rs/zerolog"
)

// DefaultMaxRows caps the rendered input height.
const DefaultMaxRows = 6

// Mode is the interaction state of the input surface. Listening and speaking
// are mutually exclusive; sending only changes the action button semantics.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
	ModeSending   Mode = "sending"
)

// Draft is the not-yet-sent message the user is composing.
type Draft struct {
	Text       string
	Attachment *attachment.Payload
}

// Controller is the single authority over the draft and the send/stop
// action. Readiness and loading are host-owned flags pushed in from the
// conversation store; the controller holds no network state of its own.
type Controller struct {
	mu      sync.Mutex
	draft   Draft
	rows    int
	maxRows int

	ready   bool
	loading bool

	listening bool
	speaking  bool

	eventBus *bus.EventBus
	logger   zerolog.Logger

	onSend    func(text string)
	onStop    func()
	onAnalyze func(prompt string, payload attachment.Payload)
}

// NewController creates a turn controller.
func NewController(eventBus *bus.EventBus, logger zerolog.Logger) *Controller {
	return &Controller{
		rows:     1,
		maxRows:  DefaultMaxRows,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "turn").Logger(),
	}
}

// OnSend registers the outbound send handler.
func (c *Controller) OnSend(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

// OnStop registers the outbound stop/cancel handler.
func (c *Controller) OnStop(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStop = fn
}

// OnAnalyze registers the outbound attachment-analysis handler.
func (c *Controller) OnAnalyze(fn func(prompt string, payload attachment.Payload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAnalyze = fn
}

// SetReady updates the host-supplied backend readiness flag.
func (c *Controller) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// SetLoading updates the host-supplied loading flag. While true the action
// button means Stop, and Submit issues a cancellation instead of a send.
func (c *Controller) SetLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = loading
}

// SetListening records the dictation state. Listening clears speaking.
func (c *Controller) SetListening(listening bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = listening
	if listening {
		c.speaking = false
	}
}

// SetSpeaking records the narration state. Speaking clears listening.
func (c *Controller) SetSpeaking(speaking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = speaking
	if speaking {
		c.listening = false
	}
}

// Mode returns the current interaction state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.listening:
		return ModeListening
	case c.speaking:
		return ModeSpeaking
	case c.loading:
		return ModeSending
	default:
		return ModeIdle
	}
}

// Text returns the current draft text.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Text
}

// Rows returns the rendered input height in rows.
func (c *Controller) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// InputDisabled reports whether the text input accepts keystrokes.
func (c *Controller) InputDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading || !c.ready
}

// UpdateDraft replaces the draft buffer. Dictation transcripts and manual
// typing both land here, so the height adjustment is shared.
func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	c.draft.Text = text
	c.resizeLocked()
	rows := c.rows
	c.mu.Unlock()

	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeDraftUpdated,
		Data: map[string]any{"text": text, "rows": rows},
	})
}

// HandleEnter applies the key-press contract: plain Enter submits,
// Shift+Enter inserts a literal newline without submitting.
func (c *Controller) HandleEnter(shift bool) {
	if shift {
		c.mu.Lock()
		text := c.draft.Text + "\n"
		c.mu.Unlock()
		c.UpdateDraft(text)
		return
	}
	c.Submit()
}

// Submit emits the turn action. While a request is in flight it issues a
// cancellation and leaves the draft untouched. Otherwise an empty draft or a
// backend that is not ready makes it a silent no-op; the disabled control is
// the user signal, not an error.
func (c *Controller) Submit() {
	c.mu.Lock()

	if c.loading {
		fn := c.onStop
		c.mu.Unlock()

		c.logger.Info().Msg("Stop requested")
		if fn != nil {
			fn()
		}
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeStop})
		return
	}

	text := strings.TrimSpace(c.draft.Text)
	if text == "" || !c.ready {
		c.mu.Unlock()
		return
	}

	c.draft = Draft{}
	c.rows = 1
	fn := c.onSend
	c.mu.Unlock()

	c.logger.Info().Int("textLen", len(text)).Msg("Turn sent")
	if fn != nil {
		fn(text)
	}
	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeSend,
		Data: map[string]any{"text": text},
	})
}

// SubmitAnalysis dispatches a composed attachment prompt. From the store's
// perspective it is indistinguishable from a typed send with an attachment.
func (c *Controller) SubmitAnalysis(prompt string, payload attachment.Payload) {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return
	}
	c.draft.Attachment = nil // cleared after dispatch
	fn := c.onAnalyze
	c.mu.Unlock()

	c.logger.Info().Str("mimeType", payload.MimeType).Msg("Analysis turn sent")
	if fn != nil {
		fn(prompt, payload)
	}
	c.eventBus.Publish(bus.Event{
		Type: bus.EventTypeAnalyze,
		Data: map[string]any{"prompt": prompt, "mimeType": payload.MimeType},
	})
}

// resizeLocked recomputes the input height from the draft's line count,
// capped at maxRows. Caller must hold c.mu.
func (c *Controller) resizeLocked() {
	rows := 1 + strings.Count(c.draft.Text, "\n")
	if rows > c.maxRows {
		rows = c.maxRows
	}
	c.rows = rows
}
