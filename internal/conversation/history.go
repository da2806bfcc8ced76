// Package conversation owns the message history and the AI backend call.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Exchange is one completed user/assistant turn.
type Exchange struct {
	UserText      string    `json:"userText"`
	AssistantText string    `json:"assistantText"`
	Timestamp     time.Time `json:"timestamp"`
}

// HistoryConfig bounds the retained conversation context.
type HistoryConfig struct {
	// MaxExchanges is the maximum number of exchanges retained (default: 10)
	MaxExchanges int
	// InactivityTimeout is the duration after which context expires (default: 5 minutes)
	InactivityTimeout time.Duration
}

// DefaultHistoryConfig returns sensible defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxExchanges:      10,
		InactivityTimeout: 5 * time.Minute,
	}
}

// History tracks recent exchanges for backend context. Old exchanges roll
// off by count, the whole context by inactivity.
type History struct {
	mu           sync.RWMutex
	exchanges    []Exchange
	lastActivity time.Time
	config       HistoryConfig
}

// NewHistory creates a History with the given config.
func NewHistory(config HistoryConfig) *History {
	if config.MaxExchanges <= 0 {
		config.MaxExchanges = 10
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 5 * time.Minute
	}

	return &History{
		exchanges:    make([]Exchange, 0, config.MaxExchanges),
		lastActivity: time.Now(),
		config:       config,
	}
}

// Add records a user/assistant exchange pair, trimming to MaxExchanges.
func (h *History) Add(userText, assistantText string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.expiredLocked() {
		h.exchanges = h.exchanges[:0]
	}

	h.exchanges = append(h.exchanges, Exchange{
		UserText:      userText,
		AssistantText: assistantText,
		Timestamp:     time.Now(),
	})
	h.lastActivity = time.Now()

	if len(h.exchanges) > h.config.MaxExchanges {
		h.exchanges = h.exchanges[len(h.exchanges)-h.config.MaxExchanges:]
	}
}

// Context returns the formatted history for the backend prompt, empty when
// expired or unused.
func (h *History) Context() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.expiredLocked() || len(h.exchanges) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, ex := range h.exchanges {
		fmt.Fprintf(&sb, "User: %s\n", ex.UserText)
		fmt.Fprintf(&sb, "Assistant: %s\n", truncate(ex.AssistantText, 200))
	}
	return sb.String()
}

// Count returns the number of stored exchanges.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.exchanges)
}

// Exchanges returns a copy of the stored exchanges, nil when expired.
func (h *History) Exchanges() []Exchange {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.expiredLocked() {
		return nil
	}
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Clear removes all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = h.exchanges[:0]
}

// truncate shortens s to at most max runes. Cutting at a byte offset could
// split a multi-byte character, which matters for Persian replies.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// expiredLocked checks inactivity expiry. Caller must hold a lock.
func (h *History) expiredLocked() bool {
	if len(h.exchanges) == 0 {
		return false
	}
	return time.Since(h.lastActivity) > h.config.InactivityTimeout
}
