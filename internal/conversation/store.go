package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/reishilabs/ganochat/internal/attachment"
	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/rs/zerolog"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one rendered entry in the conversation.
type Message struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is one backend completion call.
type Request struct {
	Text       string
	Attachment *attachment.Payload
	Language   lang.Language
	Context    string // formatted prior exchanges
}

// Backend performs the AI completion. Implementations must honor ctx
// cancellation; the store's Stop is a context cancel.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
	Ready() bool
}

// Store owns the message list, the loading flag, and the in-flight request.
// The input controllers never talk to the backend directly; they emit send
// and stop events that land here.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	history  *History
	messages []Message
	language lang.Language

	loading bool
	cancel  context.CancelFunc

	eventBus *bus.EventBus
	logger   zerolog.Logger

	onLoading func(loading bool)
	onMessage func(msg Message)
}

// NewStore creates a conversation store.
func NewStore(backend Backend, eventBus *bus.EventBus, logger zerolog.Logger) *Store {
	return &Store{
		backend:  backend,
		history:  NewHistory(DefaultHistoryConfig()),
		language: lang.Default,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "conversation").Logger(),
	}
}

// OnLoadingChange registers the loading-flag listener feeding the turn
// controller.
func (s *Store) OnLoadingChange(fn func(loading bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoading = fn
}

// OnMessage registers the rendered-message listener.
func (s *Store) OnMessage(fn func(msg Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// SetLanguage switches the response language the backend is asked for.
func (s *Store) SetLanguage(l lang.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = l
}

// Ready reports whether the backend can take a request.
func (s *Store) Ready() bool {
	return s.backend != nil && s.backend.Ready()
}

// Loading reports whether a request is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Messages returns a copy of the rendered message list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastAssistantText returns the latest assistant reply, empty when none
// exists yet. This is the narration source.
func (s *Store) LastAssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i].Text
		}
	}
	return ""
}

// Send dispatches a user turn to the backend. A turn already in flight makes
// this a no-op; the turn controller converts the action into Stop instead.
func (s *Store) Send(text string) {
	s.dispatch(Request{Text: text}, text)
}

// Analyze dispatches an attachment-analysis turn. Indistinguishable from a
// typed send once it reaches the backend.
func (s *Store) Analyze(prompt string, payload attachment.Payload) {
	s.dispatch(Request{Text: prompt, Attachment: &payload}, prompt)
}

// Stop cancels the in-flight request. Purely a user action, never a fault.
func (s *Store) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		s.logger.Info().Msg("In-flight request cancelled")
		cancel()
	}
}

func (s *Store) dispatch(req Request, displayText string) {
	s.mu.Lock()
	if s.loading || s.backend == nil {
		s.mu.Unlock()
		return
	}

	req.Language = s.language
	req.Context = s.history.Context()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.setLoadingLocked(true)

	userMsg := Message{ID: newID(), Role: RoleUser, Text: displayText}
	s.messages = append(s.messages, userMsg)
	onMessage := s.onMessage
	s.mu.Unlock()

	if onMessage != nil {
		onMessage(userMsg)
	}
	s.eventBus.Publish(bus.Event{
		Type: bus.EventTypeMessage,
		Data: map[string]any{"id": userMsg.ID, "role": userMsg.Role, "text": userMsg.Text},
	})

	go s.complete(ctx, cancel, req, displayText)
}

func (s *Store) complete(ctx context.Context, cancel context.CancelFunc, req Request, userText string) {
	defer cancel()

	reply, err := s.backend.Complete(ctx, req)

	s.mu.Lock()
	s.cancel = nil
	s.setLoadingLocked(false)

	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			s.logger.Info().Msg("Turn cancelled by user")
			return
		}
		s.logger.Error().Err(err).Msg("Backend completion failed")
		s.eventBus.Publish(bus.Event{
			Type: bus.EventTypeBackendError,
			Data: map[string]any{"error": err.Error()},
		})
		return
	}

	msg := Message{ID: newID(), Role: RoleAssistant, Text: reply}
	s.messages = append(s.messages, msg)
	onMessage := s.onMessage
	s.mu.Unlock()

	s.history.Add(userText, reply)

	if onMessage != nil {
		onMessage(msg)
	}
	s.eventBus.Publish(bus.Event{
		Type: bus.EventTypeMessage,
		Data: map[string]any{"id": msg.ID, "role": msg.Role, "text": msg.Text},
	})
}

// setLoadingLocked flips the loading flag and notifies. Caller must hold s.mu.
func (s *Store) setLoadingLocked(loading bool) {
	if s.loading == loading {
		return
	}
	s.loading = loading
	if s.onLoading != nil {
		go s.onLoading(loading)
	}
	s.eventBus.Publish(bus.Event{
		Type: bus.EventTypeLoading,
		Data: map[string]any{"loading": loading},
	})
}

func newID() string {
	return "gano-" + uuid.New().String()[:8]
}
