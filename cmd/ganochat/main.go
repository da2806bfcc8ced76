// ganochat - conversational input service for the GanoTerra chat widget
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/reishilabs/ganochat/internal/attachment"
	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/config"
	"github.com/reishilabs/ganochat/internal/conversation"
	"github.com/reishilabs/ganochat/internal/dictation"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/reishilabs/ganochat/internal/logging"
	"github.com/reishilabs/ganochat/internal/narration"
	"github.com/reishilabs/ganochat/internal/turn"
	"github.com/reishilabs/ganochat/internal/widget"
)

// languageState holds the active UI language, shared by every controller.
type languageState struct {
	mu      sync.RWMutex
	current lang.Language
}

func (s *languageState) get() lang.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *languageState) set(l lang.Language) {
	s.mu.Lock()
	s.current = l
	s.mu.Unlock()
}

func main() {
	syslog, err := logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	cfg, err := config.Load()
	if err != nil {
		syslog.Error("main", "Failed to load config, using defaults", err)
	}
	if cfg.Backend.APIKey == "" {
		cfg.Backend.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Widget.TokenSecret == "" {
		cfg.Widget.TokenSecret = os.Getenv("GANOCHAT_TOKEN_SECRET")
	}

	zlog := syslog.Component("main")
	eventBus := bus.NewEventBus()

	language := &languageState{}
	if l, ok := lang.Parse(cfg.Language); ok {
		language.set(l)
	} else {
		language.set(lang.Default)
	}

	// Capabilities are owned handles, absent when the environment cannot
	// provide them; the controllers degrade per their contracts.
	var recognizer dictation.Recognizer
	if sr := dictation.NewStreamRecognizer(cfg.Dictation, zlog); sr.Available() {
		recognizer = sr
	} else {
		syslog.Warn("main", "No speech recognizer configured, dictation disabled")
	}

	var synthesizer narration.Synthesizer
	if es, err := narration.NewEngineSynthesizer(cfg.Narration, zlog); err == nil {
		synthesizer = es
	} else {
		syslog.Warn("main", "No speech engine installed, narration disabled")
	}

	backend := conversation.NewOpenAIBackend(cfg.Backend, zlog)
	store := conversation.NewStore(backend, eventBus, zlog)

	turnCtrl := turn.NewController(eventBus, zlog)
	dictCtrl := dictation.NewController(recognizer, eventBus, zlog)
	narrCtrl := narration.NewController(synthesizer, eventBus, zlog)
	narrCtrl.SetRestartDelay(cfg.Narration.RestartDelay)
	narrCtrl.SetVolume(cfg.Narration.Volume)
	encoder := attachment.NewEncoder(cfg.Attachment.MaxSizeBytes, zlog)
	commands := dictation.NewCommandRouter(eventBus, zlog)

	// Turn actions flow outward to the store; its state flows back.
	turnCtrl.OnSend(store.Send)
	turnCtrl.OnStop(store.Stop)
	turnCtrl.OnAnalyze(store.Analyze)
	turnCtrl.SetReady(store.Ready())

	store.OnLoadingChange(turnCtrl.SetLoading)
	store.OnMessage(func(msg conversation.Message) {
		if msg.Role == conversation.RoleAssistant {
			narrCtrl.SetAssistantText(msg.Text)
		}
	})

	// Dictation replaces the draft with each cumulative transcript.
	dictCtrl.OnTranscript(turnCtrl.UpdateDraft)
	dictCtrl.OnStateChange(turnCtrl.SetListening)

	// Final transcripts double as voice navigation commands.
	eventBus.Subscribe(bus.EventTypeTranscript, func(ev bus.Event) {
		final, _ := ev.Data["final"].(bool)
		text, _ := ev.Data["text"].(string)
		if final {
			commands.Dispatch(text)
		}
	})

	eventBus.Subscribe(bus.EventTypeNarrationStarted, func(bus.Event) {
		turnCtrl.SetSpeaking(true)
	})
	eventBus.Subscribe(bus.EventTypeNarrationStopped, func(bus.Event) {
		turnCtrl.SetSpeaking(false)
	})

	setLanguage := func(l lang.Language) {
		language.set(l)
		dictCtrl.SetLanguage(l)
		narrCtrl.SetLanguage(l)
		store.SetLanguage(l)
		eventBus.Publish(bus.Event{
			Type: bus.EventTypeLanguageChanged,
			Data: map[string]any{"language": string(l)},
		})
	}
	setLanguage(language.get())

	// A site-side language switch rewrites the config file; the watcher
	// propagates it into the voice controllers.
	watcher, err := config.Watch(cfg, zlog, func(code string) {
		if l, ok := lang.Parse(code); ok {
			setLanguage(l)
		}
	})
	if err != nil {
		syslog.Warn("main", "Config watcher unavailable")
	} else {
		defer watcher.Close()
	}

	server := widget.NewServer(widget.Deps{
		Turn:        turnCtrl,
		Dictation:   dictCtrl,
		Narration:   narrCtrl,
		Store:       store,
		Encoder:     encoder,
		Logs:        syslog,
		Language:    language.get,
		SetLanguage: setLanguage,
	}, cfg.Widget, eventBus, zlog)

	httpServer := &http.Server{
		Addr:    cfg.Widget.Addr,
		Handler: server.Router(),
	}

	go func() {
		syslog.Info("main", "Widget server listening on "+cfg.Widget.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			syslog.Error("main", "Server error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	syslog.Info("main", "Shutting down")

	// Teardown contract: no dangling audio or recognition session.
	narrCtrl.Close()
	dictCtrl.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		syslog.Error("main", "Shutdown error", err)
	}
}
