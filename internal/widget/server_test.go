package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

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

type echoBackend struct{}

func (echoBackend) Ready() bool { return true }

func (echoBackend) Complete(_ context.Context, req conversation.Request) (string, error) {
	return "echo: " + req.Text, nil
}

type languageState struct {
	mu sync.Mutex
	l  lang.Language
}

func (s *languageState) get() lang.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l
}

func (s *languageState) set(l lang.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l = l
}

func newTestServer(t *testing.T) (*Server, *turn.Controller, *conversation.Store) {
	t.Helper()

	syslog, err := logging.New(&logging.Config{
		LogDir:     t.TempDir(),
		MaxHistory: 50,
		Console:    false,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { syslog.Close() })

	logger := zerolog.Nop()
	eventBus := bus.NewEventBus()

	turnCtrl := turn.NewController(eventBus, logger)
	dictCtrl := dictation.NewController(nil, eventBus, logger)
	narrCtrl := narration.NewController(nil, eventBus, logger)
	store := conversation.NewStore(echoBackend{}, eventBus, logger)
	encoder := attachment.NewEncoder(0, logger)

	turnCtrl.SetReady(store.Ready())
	turnCtrl.OnSend(store.Send)
	turnCtrl.OnStop(store.Stop)
	turnCtrl.OnAnalyze(store.Analyze)
	store.OnLoadingChange(turnCtrl.SetLoading)

	langState := &languageState{l: lang.Default}

	deps := Deps{
		Turn:        turnCtrl,
		Dictation:   dictCtrl,
		Narration:   narrCtrl,
		Store:       store,
		Encoder:     encoder,
		Logs:        syslog,
		Language:    langState.get,
		SetLanguage: func(l lang.Language) { langState.set(l) },
	}

	cfg := config.WidgetConfig{
		TokenSecret: "test-secret",
		TokenTTL:    time.Hour,
		PongWait:    30 * time.Second,
		WriteWait:   10 * time.Second,
	}

	return NewServer(deps, cfg, eventBus, logger), turnCtrl, store
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLogsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/widget/logs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", resp.StatusCode)
	}

	token := mintToken(t, ts.URL)
	resp, err = http.Get(ts.URL + "/widget/logs?access_token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Entries []logging.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	// The logger records its own initialization, so history is never empty.
	if len(body.Entries) == 0 {
		t.Error("logs endpoint returned no entries")
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/ws?access_token=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func mintToken(t *testing.T, baseURL string) string {
	t.Helper()
	resp, err := http.Post(baseURL+"/widget/token", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.AccessToken
}

func dialWidget(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()
	token := mintToken(t, baseURL)
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?access_token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

// readUntil reads server events until one matches the given type.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) ServerEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("reading until %q: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func TestWebSocketInitialState(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()

	state := readUntil(t, conn, ServerState)
	if !state.Ready {
		t.Error("initial state not ready with a working backend")
	}
	if state.Mode != "idle" {
		t.Errorf("mode = %q, want idle", state.Mode)
	}
	if state.Rate != 1.0 {
		t.Errorf("rate = %v, want 1.0", state.Rate)
	}
	if state.Dir != "auto" {
		t.Errorf("dir = %q, want auto", state.Dir)
	}
}

func TestWebSocketDraftRoundTrip(t *testing.T) {
	s, turnCtrl, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	if err := conn.WriteJSON(ClientEvent{Type: ClientDraft, Text: "hello widget"}); err != nil {
		t.Fatal(err)
	}

	draft := readUntil(t, conn, ServerDraft)
	if draft.Text != "hello widget" {
		t.Errorf("draft broadcast = %q", draft.Text)
	}
	if turnCtrl.Text() != "hello widget" {
		t.Errorf("controller draft = %q", turnCtrl.Text())
	}
}

func TestWebSocketSubmitDeliversMessages(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	if err := conn.WriteJSON(ClientEvent{Type: ClientDraft, Text: "what is reishi"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(ClientEvent{Type: ClientEnter}); err != nil {
		t.Fatal(err)
	}

	// Broadcast handlers run concurrently, so collect both turns before
	// checking them.
	byRole := map[string]string{}
	for len(byRole) < 2 {
		msg := readUntil(t, conn, ServerMessage)
		byRole[msg.Role] = msg.Text
	}

	if byRole["user"] != "what is reishi" {
		t.Errorf("user turn = %q", byRole["user"])
	}
	if byRole["assistant"] != "echo: what is reishi" {
		t.Errorf("assistant turn = %q", byRole["assistant"])
	}
}

func TestWebSocketLanguageSwitch(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	if err := conn.WriteJSON(ClientEvent{Type: ClientLanguage, Code: "fa"}); err != nil {
		t.Fatal(err)
	}

	// With an empty draft the direction stays auto even in Persian.
	state := readUntil(t, conn, ServerState)
	if state.Dir != "auto" {
		t.Fatalf("dir = %q with empty draft, want auto", state.Dir)
	}

	if err := conn.WriteJSON(ClientEvent{Type: ClientDraft, Text: "سلام"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("waiting for rtl state: %v", err)
		}
		if ev.Type == ServerState && ev.Dir == "rtl" {
			return
		}
	}
}

func TestWebSocketUnsupportedLanguage(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	if err := conn.WriteJSON(ClientEvent{Type: ClientLanguage, Code: "de"}); err != nil {
		t.Fatal(err)
	}

	errEv := readUntil(t, conn, ServerError)
	if !strings.Contains(errEv.Message, "Unsupported language") {
		t.Errorf("error message = %q", errEv.Message)
	}
}

func TestWebSocketDictationUnsupported(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	// No recognizer is wired, so toggling dictation surfaces the notice.
	if err := conn.WriteJSON(ClientEvent{Type: ClientDictationToggle}); err != nil {
		t.Fatal(err)
	}

	errEv := readUntil(t, conn, ServerError)
	if errEv.Message != dictation.MsgUnsupported {
		t.Errorf("error message = %q, want %q", errEv.Message, dictation.MsgUnsupported)
	}
}

func TestWebSocketBadAttachment(t *testing.T) {
	s, _, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dialWidget(t, ts.URL)
	defer conn.Close()
	readUntil(t, conn, ServerState)

	// text/plain is outside the accepted set.
	if err := conn.WriteJSON(ClientEvent{
		Type:     ClientAttachment,
		Data:     "aGVsbG8=",
		MimeType: "text/plain",
		Name:     "notes.txt",
	}); err != nil {
		t.Fatal(err)
	}

	errEv := readUntil(t, conn, ServerError)
	if !strings.Contains(errEv.Message, "Could not process the uploaded file") {
		t.Errorf("error message = %q", errEv.Message)
	}
}
