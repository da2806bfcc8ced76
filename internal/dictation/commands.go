package dictation

import (
	"strings"

	"github.com/reishilabs/ganochat/internal/bus"
	"github.com/rs/zerolog"
)

// Page is a navigation target on the host site.
type Page string

const (
	PageHome     Page = "home"
	PageProducts Page = "products"
	PageScience  Page = "science"
	PageContact  Page = "contact"
	PageAbout    Page = "about"
)

// pageKeywords maps spoken keywords to navigation targets. Order matters:
// earlier entries win when a transcript matches several.
var pageKeywords = []struct {
	page  Page
	words []string
}{
	{PageProducts, []string{"shop", "products", "buy"}},
	{PageScience, []string{"science", "research"}},
	{PageContact, []string{"contact", "email"}},
	{PageHome, []string{"home"}},
	{PageAbout, []string{"about"}},
}

// CommandRouter maps final dictation transcripts onto page navigation.
type CommandRouter struct {
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewCommandRouter creates a router publishing navigation events on the bus.
func NewCommandRouter(eventBus *bus.EventBus, logger zerolog.Logger) *CommandRouter {
	return &CommandRouter{
		eventBus: eventBus,
		logger:   logger.With().Str("component", "voice-commands").Logger(),
	}
}

// Route matches a transcript against the known commands. It returns the
// target page and whether anything matched.
func (r *CommandRouter) Route(transcript string) (Page, bool) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return "", false
	}

	for _, entry := range pageKeywords {
		for _, word := range entry.words {
			if strings.Contains(text, word) {
				return entry.page, true
			}
		}
	}
	return "", false
}

// Dispatch routes a transcript and publishes a navigation event on a match.
func (r *CommandRouter) Dispatch(transcript string) bool {
	page, ok := r.Route(transcript)
	if !ok {
		return false
	}

	r.logger.Info().Str("page", string(page)).Str("transcript", transcript).Msg("Voice command matched")
	r.eventBus.Publish(bus.Event{
		Type: bus.EventTypeNavigate,
		Data: map[string]any{"page": string(page)},
	})
	return true
}
