package widget

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/reishilabs/ganochat/internal/attachment"
	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/config"
	"github.com/reishilabs/ganochat/internal/conversation"
	"github.com/reishilabs/ganochat/internal/dictation"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/reishilabs/ganochat/internal/logging"
	"github.com/reishilabs/ganochat/internal/narration"
	"github.com/reishilabs/ganochat/internal/turn"
)

// Deps are the controllers the widget surface drives.
type Deps struct {
	Turn      *turn.Controller
	Dictation *dictation.Controller
	Narration *narration.Controller
	Store     *conversation.Store
	Encoder   *attachment.Encoder
	Logs      *logging.Logger

	Language    func() lang.Language
	SetLanguage func(lang.Language)
}

// Server is the widget transport: a token endpoint plus a WebSocket speaking
// the ClientEvent/ServerEvent protocol.
type Server struct {
	deps   Deps
	tokens *TokenIssuer
	cfg    config.WidgetConfig

	eventBus *bus.EventBus
	logger   zerolog.Logger

	connections sync.Map // *websocket.Conn -> *connState
	upgrader    websocket.Upgrader
}

type connState struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	session string
}

func (cs *connState) write(deadline time.Duration, v any) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.conn.SetWriteDeadline(time.Now().Add(deadline))
	return cs.conn.WriteJSON(v)
}

// NewServer creates the widget server.
func NewServer(deps Deps, cfg config.WidgetConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Server {
	s := &Server{
		deps:     deps,
		tokens:   NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, logger),
		cfg:      cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "widget").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin checking is the deployment proxy's job
			},
		},
	}

	s.subscribe()
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/widget/token", s.tokens.HandleToken).Methods("POST")
	r.HandleFunc("/widget/logs", s.HandleLogs).Methods("GET")
	r.HandleFunc("/ws", s.HandleWebSocket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	return r
}

// HandleLogs is the GET /widget/logs endpoint serving recent log entries.
// It is token-gated like the WebSocket.
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if _, valid := s.tokens.Validate(bearerToken(r)); !valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries := []logging.Entry{}
	if s.deps.Logs != nil {
		entries = s.deps.Logs.History(limit)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"entries": entries})
}

// subscribe forwards bus events to all connected widgets.
func (s *Server) subscribe() {
	s.eventBus.Subscribe(bus.EventTypeMessage, func(ev bus.Event) {
		s.broadcast(ServerEvent{
			Type: ServerMessage,
			ID:   asString(ev.Data["id"]),
			Role: asString(ev.Data["role"]),
			Text: asString(ev.Data["text"]),
		})
		s.pushState()
	})
	s.eventBus.Subscribe(bus.EventTypeNavigate, func(ev bus.Event) {
		s.broadcast(ServerEvent{Type: ServerNav, Page: asString(ev.Data["page"])})
	})
	s.eventBus.Subscribe(bus.EventTypeDraftUpdated, func(ev bus.Event) {
		s.broadcast(ServerEvent{Type: ServerDraft, Text: asString(ev.Data["text"])})
		s.pushState()
	})
	s.eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeLoading,
		bus.EventTypeDictationStarted,
		bus.EventTypeDictationStopped,
		bus.EventTypeDictationError,
		bus.EventTypeNarrationStarted,
		bus.EventTypeNarrationStopped,
		bus.EventTypeRateChanged,
		bus.EventTypeLanguageChanged,
	}, func(bus.Event) {
		s.pushState()
	})
}

// HandleWebSocket upgrades a widget connection after token validation.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, valid := s.tokens.Validate(tokenString)
	if !valid {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Could not upgrade connection", http.StatusInternalServerError)
		return
	}

	state := &connState{conn: conn, session: sessionID}
	s.connections.Store(conn, state)
	defer func() {
		s.connections.Delete(conn)
		conn.Close()
	}()

	s.logger.Info().Str("session", sessionID).Msg("Widget connected")

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go s.pingLoop(conn, done)

	// Initial state snapshot
	state.write(s.cfg.WriteWait, s.stateSnapshot())

	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		var event ClientEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("session", sessionID).Msg("Widget connection error")
			}
			break
		}
		s.dispatch(state, event)
	}

	s.logger.Info().Str("session", sessionID).Msg("Widget disconnected")
}

func (s *Server) pingLoop(conn *websocket.Conn, done chan struct{}) {
	period := (s.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) dispatch(state *connState, event ClientEvent) {
	switch event.Type {
	case ClientDraft:
		s.deps.Turn.UpdateDraft(event.Text)

	case ClientEnter:
		s.deps.Turn.HandleEnter(event.Shift)

	case ClientSubmit:
		s.deps.Turn.Submit()

	case ClientDictationToggle:
		if err := s.deps.Dictation.Toggle(); err != nil {
			s.sendError(state, s.deps.Dictation.Notice())
		}
		s.pushState()

	case ClientAudio:
		audio, err := base64.StdEncoding.DecodeString(event.Data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Bad audio chunk")
			return
		}
		if err := s.deps.Dictation.SendAudio(audio); err != nil {
			s.logger.Debug().Err(err).Msg("Audio dropped, no active session")
		}

	case ClientNarrationToggle:
		if err := s.deps.Narration.ToggleSpeak(); err != nil {
			s.sendError(state, err.Error())
		}
		s.pushState()

	case ClientRateCycle:
		s.deps.Narration.CycleRate()

	case ClientVolume:
		s.deps.Narration.SetVolume(event.Value)

	case ClientLanguage:
		l, ok := lang.Parse(event.Code)
		if !ok {
			s.sendError(state, "Unsupported language: "+event.Code)
			return
		}
		s.deps.SetLanguage(l)
		s.pushState()

	case ClientAttachment:
		s.handleAttachment(state, event)

	default:
		s.logger.Warn().Str("type", event.Type).Msg("Unknown widget event")
	}
}

func (s *Server) handleAttachment(state *connState, event ClientEvent) {
	data, err := base64.StdEncoding.DecodeString(event.Data)
	if err != nil {
		s.sendError(state, "Could not read the uploaded file. Please try again.")
		return
	}

	prompt, payload, err := s.deps.Encoder.Process(bytes.NewReader(data), event.MimeType, s.deps.Language())
	if err != nil {
		// Recoverable: surface and return to idle, never a stuck state.
		s.logger.Warn().Err(err).Str("name", event.Name).Msg("Attachment rejected")
		s.sendError(state, "Could not process the uploaded file. Please try again.")
		return
	}

	s.deps.Turn.SubmitAnalysis(prompt, payload)
}

// stateSnapshot assembles the full widget state.
func (s *Server) stateSnapshot() ServerEvent {
	language := s.deps.Language()

	notice := s.deps.Dictation.Notice()
	listening := s.deps.Dictation.Listening()

	placeholder := "Ask about Ganoderma..."
	if !s.deps.Store.Ready() {
		placeholder = "AI is currently unavailable..."
	}
	if listening {
		placeholder = language.ListeningPlaceholder()
	}

	// Direction flips only while there is text to render right-to-left.
	dir := "auto"
	if language.RTL() && s.deps.Turn.Text() != "" {
		dir = "rtl"
	}

	return ServerEvent{
		Type:        ServerState,
		Mode:        string(s.deps.Turn.Mode()),
		Rows:        s.deps.Turn.Rows(),
		Ready:       s.deps.Store.Ready(),
		Loading:     s.deps.Store.Loading(),
		Listening:   listening,
		Speaking:    s.deps.Narration.Speaking(),
		Rate:        float64(s.deps.Narration.Rate()),
		Notice:      notice,
		Placeholder: placeholder,
		Dir:         dir,
	}
}

func (s *Server) pushState() {
	s.broadcast(s.stateSnapshot())
}

func (s *Server) broadcast(event ServerEvent) {
	s.connections.Range(func(_, value any) bool {
		state := value.(*connState)
		if err := state.write(s.cfg.WriteWait, event); err != nil {
			s.logger.Debug().Err(err).Msg("Widget write failed")
		}
		return true
	})
}

func (s *Server) sendError(state *connState, message string) {
	if message == "" {
		return
	}
	state.write(s.cfg.WriteWait, ServerEvent{Type: ServerError, Message: message})
}

func asString(v any) string {
	str, _ := v.(string)
	return str
}
