package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reishilabs/ganochat/internal/attachment"
	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/rs/zerolog"
)

func analysisPayload() attachment.Payload {
	return attachment.Payload{Data: "JVBERi0=", MimeType: "application/pdf"}
}

type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	err     error
	release chan struct{} // non-nil blocks Complete until closed or ctx done
	lastReq Request
}

func (f *fakeBackend) Ready() bool { return true }

func (f *fakeBackend) Complete(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.lastReq = req
	release := f.release
	reply, err := f.reply, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeBackend) request() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSendAppendsBothMessages(t *testing.T) {
	backend := &fakeBackend{reply: "Reishi is a mushroom."}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())

	s.Send("what is reishi")

	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "assistant reply never arrived")

	msgs := s.Messages()
	if msgs[0].Role != RoleUser || msgs[0].Text != "what is reishi" {
		t.Errorf("first message = %+v, want the user turn", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Text != "Reishi is a mushroom." {
		t.Errorf("second message = %+v, want the assistant reply", msgs[1])
	}
	if got := s.LastAssistantText(); got != "Reishi is a mushroom." {
		t.Errorf("LastAssistantText = %q", got)
	}
	if s.Loading() {
		t.Error("still loading after completion")
	}
}

func TestLoadingLifecycle(t *testing.T) {
	backend := &fakeBackend{reply: "ok", release: make(chan struct{})}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())

	var mu sync.Mutex
	var transitions []bool
	s.OnLoadingChange(func(loading bool) {
		mu.Lock()
		transitions = append(transitions, loading)
		mu.Unlock()
	})

	s.Send("question")
	if !s.Loading() {
		t.Fatal("not loading after send")
	}

	close(backend.release)
	waitFor(t, func() bool { return !s.Loading() }, "loading never cleared")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	}, "expected two loading transitions")

	mu.Lock()
	defer mu.Unlock()
	if !transitions[0] || transitions[1] {
		t.Errorf("transitions = %v, want [true false]", transitions)
	}
}

func TestSendWhileLoadingIsNoop(t *testing.T) {
	backend := &fakeBackend{reply: "ok", release: make(chan struct{})}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())

	s.Send("first")
	s.Send("second")

	if got := len(s.Messages()); got != 1 {
		t.Errorf("messages = %d, want just the first user turn", got)
	}
	close(backend.release)
}

func TestStopCancelsInFlight(t *testing.T) {
	backend := &fakeBackend{reply: "never delivered", release: make(chan struct{})}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())

	s.Send("long question")
	if !s.Loading() {
		t.Fatal("not loading after send")
	}

	s.Stop()
	waitFor(t, func() bool { return !s.Loading() }, "loading never cleared after stop")

	// Cancellation is a user action: no assistant message, no error surfaced.
	if got := len(s.Messages()); got != 1 {
		t.Errorf("messages = %d after cancel, want 1", got)
	}
	if s.LastAssistantText() != "" {
		t.Errorf("assistant text after cancel: %q", s.LastAssistantText())
	}
}

func TestBackendErrorPublished(t *testing.T) {
	backend := &fakeBackend{err: errors.New("upstream 500")}
	eventBus := bus.NewEventBus()
	errs := make(chan string, 1)
	eventBus.Subscribe(bus.EventTypeBackendError, func(ev bus.Event) {
		errs <- ev.Data["error"].(string)
	})

	s := NewStore(backend, eventBus, zerolog.Nop())
	s.Send("question")

	select {
	case got := <-errs:
		if got != "upstream 500" {
			t.Errorf("error = %q, want upstream 500", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend error never published")
	}

	if got := len(s.Messages()); got != 1 {
		t.Errorf("messages = %d after failure, want 1", got)
	}
}

func TestRequestCarriesLanguageAndContext(t *testing.T) {
	backend := &fakeBackend{reply: "answer one"}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())
	s.SetLanguage(lang.Spanish)

	s.Send("first question")
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "first reply never arrived")

	s.Send("second question")
	waitFor(t, func() bool { return len(s.Messages()) == 4 }, "second reply never arrived")

	req := backend.request()
	if req.Language != lang.Spanish {
		t.Errorf("language = %v, want Spanish", req.Language)
	}
	if req.Context == "" {
		t.Error("second request carried no prior context")
	}
}

func TestAnalyzeCarriesAttachment(t *testing.T) {
	backend := &fakeBackend{reply: "analysis done"}
	s := NewStore(backend, bus.NewEventBus(), zerolog.Nop())

	payload := analysisPayload()
	s.Analyze("analyze my bloodwork", payload)
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "analysis reply never arrived")

	req := backend.request()
	if req.Attachment == nil || req.Attachment.MimeType != "application/pdf" {
		t.Errorf("attachment = %+v, want the pdf payload", req.Attachment)
	}
}

func TestLastAssistantTextEmptyInitially(t *testing.T) {
	s := NewStore(&fakeBackend{}, bus.NewEventBus(), zerolog.Nop())
	if s.LastAssistantText() != "" {
		t.Error("expected empty narration source before any reply")
	}
}
