package dictation

import (
	"testing"

	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/rs/zerolog"
)

func TestRoute(t *testing.T) {
	r := NewCommandRouter(bus.NewEventBus(), zerolog.Nop())

	tests := []struct {
		transcript string
		want       Page
		ok         bool
	}{
		{"take me to the shop", PageProducts, true},
		{"show me your products please", PageProducts, true},
		{"I want to buy something", PageProducts, true},
		{"tell me about the science", PageScience, true},
		{"any research behind this", PageScience, true},
		{"how do I contact you", PageContact, true},
		{"what is your email", PageContact, true},
		{"go home", PageHome, true},
		{"about the company", PageAbout, true},
		{"SHOW ME PRODUCTS", PageProducts, true},
		{"what is reishi good for", "", false},
		{"", "", false},
		{"   ", "", false},
	}

	for _, tt := range tests {
		got, ok := r.Route(tt.transcript)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Route(%q) = %v, %v; want %v, %v", tt.transcript, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRouteOrderPrefersEarlierEntry(t *testing.T) {
	r := NewCommandRouter(bus.NewEventBus(), zerolog.Nop())

	// "shop" entries take precedence over "contact" when both words appear.
	got, ok := r.Route("contact the shop")
	if !ok || got != PageProducts {
		t.Errorf("Route = %v, %v; want products, true", got, ok)
	}
}

func TestDispatchPublishesNavigation(t *testing.T) {
	eventBus := bus.NewEventBus()
	pages := make(chan string, 1)
	eventBus.Subscribe(bus.EventTypeNavigate, func(ev bus.Event) {
		pages <- ev.Data["page"].(string)
	})

	r := NewCommandRouter(eventBus, zerolog.Nop())

	if r.Dispatch("nothing matches here whatsoever") {
		t.Fatal("dispatch reported a match for an unmatched transcript")
	}
	if !r.Dispatch("open the shop") {
		t.Fatal("dispatch missed a matching transcript")
	}
	if got := <-pages; got != string(PageProducts) {
		t.Errorf("navigation page = %q, want %q", got, PageProducts)
	}
}
