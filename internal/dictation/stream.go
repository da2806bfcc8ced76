package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reishilabs/ganochat/internal/config"
	"github.com/rs/zerolog"
)

// StreamRecognizer is a continuous speech recognizer over a WebSocket
// transcription endpoint. Interim and final results are reassembled into the
// cumulative transcript-so-far before they reach the controller.
type StreamRecognizer struct {
	cfg    config.DictationConfig
	apiKey string
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	active bool
	events chan Event
	closed bool

	// Transcript assembly: finalized segments plus the current interim tail.
	segments []string
}

// NewStreamRecognizer creates a recognizer for the configured endpoint. The
// API key falls back to the GANOCHAT_DICTATION_API_KEY environment variable.
func NewStreamRecognizer(cfg config.DictationConfig, logger zerolog.Logger) *StreamRecognizer {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GANOCHAT_DICTATION_API_KEY")
	}

	return &StreamRecognizer{
		cfg:    cfg,
		apiKey: apiKey,
		logger: logger.With().Str("component", "stream-recognizer").Logger(),
	}
}

// Available reports whether the recognizer can be used at all.
func (r *StreamRecognizer) Available() bool {
	return r.apiKey != "" && r.cfg.Endpoint != ""
}

type streamMessage struct {
	Type        string        `json:"type"`
	IsFinal     bool          `json:"is_final,omitempty"`
	SpeechFinal bool          `json:"speech_final,omitempty"`
	Channel     streamChannel `json:"channel,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Description string        `json:"description,omitempty"`
}

type streamChannel struct {
	Alternatives []streamAlternative `json:"alternatives,omitempty"`
}

type streamAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Start connects and begins a recognition session for the given locale.
func (r *StreamRecognizer) Start(ctx context.Context, locale string) (<-chan Event, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("recognizer API key not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return nil, ErrAlreadyActive
	}

	url := fmt.Sprintf("%s?language=%s&encoding=linear16&sample_rate=%d&channels=%d&punctuate=true&interim_results=%t",
		r.cfg.Endpoint,
		locale,
		r.cfg.SampleRate,
		r.cfg.Channels,
		r.cfg.InterimResults,
	)

	header := http.Header{}
	header.Set("Authorization", "Token "+r.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			r.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("Recognizer connection failed")
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("recognizer access denied: %w", err)
			}
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.active = true
	r.closed = false
	r.segments = r.segments[:0]
	r.events = make(chan Event, 32)

	go r.readLoop(ctx, conn, r.events)

	r.logger.Info().Str("locale", locale).Msg("Recognition stream connected")
	return r.events, nil
}

func (r *StreamRecognizer) readLoop(ctx context.Context, conn *websocket.Conn, events chan Event) {
	defer func() {
		r.finish(events)
	}()

	sawSpeech := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug().Msg("Recognition stream closed")
				if !sawSpeech {
					r.emit(events, Event{Kind: EventError, Err: ErrNoSpeech})
				}
				return
			}
			// A locally closed connection is a Stop, not a fault.
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Error().Err(err).Msg("Error reading recognition stream")
			r.emit(events, Event{Kind: EventError, Err: ErrOther})
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to parse recognizer message")
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			sawSpeech = true

			final := msg.IsFinal || msg.SpeechFinal
			r.emit(events, Event{
				Kind:       eventKindFor(final),
				Transcript: r.assemble(text, final),
			})

		case "UtteranceEnd":
			r.logger.Debug().Msg("Utterance end")

		case "Error":
			r.emit(events, Event{Kind: EventError, Err: classifyError(msg.ErrorCode)})
			return
		}
	}
}

func eventKindFor(final bool) EventKind {
	if final {
		return EventFinal
	}
	return EventPartial
}

// classifyError maps recognizer error codes onto the controller's taxonomy.
func classifyError(code string) ErrKind {
	switch code {
	case "not-allowed", "permission-denied", "insufficient-permissions":
		return ErrPermissionDenied
	case "no-speech":
		return ErrNoSpeech
	default:
		return ErrOther
	}
}

// assemble folds a result into the cumulative transcript. Finalized segments
// accumulate; an interim result is appended as a provisional tail only for
// the returned snapshot.
func (r *StreamRecognizer) assemble(text string, final bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if final {
		r.segments = append(r.segments, text)
		return strings.Join(r.segments, " ")
	}

	if len(r.segments) == 0 {
		return text
	}
	return strings.Join(r.segments, " ") + " " + text
}

// SendAudio forwards raw audio to the active session.
func (r *StreamRecognizer) SendAudio(audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.conn == nil {
		return ErrNotConnected
	}
	return r.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stop ends the active session. The event stream delivers EventEnded and is
// then closed.
func (r *StreamRecognizer) Stop() error {
	r.mu.Lock()
	conn := r.conn
	events := r.events
	r.mu.Unlock()

	if conn == nil {
		return nil
	}

	closeMsg := []byte(`{"type": "CloseStream"}`)
	if err := conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send close message")
	}
	err := conn.Close()

	r.finish(events)
	return err
}

// emit delivers an event unless the stream is already closed.
func (r *StreamRecognizer) emit(events chan Event, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	events <- ev
}

// finish tears down session state and closes the event stream exactly once.
func (r *StreamRecognizer) finish(events chan Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.conn = nil
	r.active = false
	r.mu.Unlock()

	if events != nil {
		events <- Event{Kind: EventEnded}
		close(events)
	}
}
