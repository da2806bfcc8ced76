// Package widget exposes the conversational input controller to the embedded
// site widget over HTTP and WebSocket.
package widget

// Client event types.
const (
	ClientDraft           = "draft"
	ClientEnter           = "enter"
	ClientSubmit          = "submit"
	ClientDictationToggle = "dictation_toggle"
	ClientAudio           = "audio"
	ClientNarrationToggle = "narration_toggle"
	ClientRateCycle       = "rate_cycle"
	ClientVolume          = "volume"
	ClientLanguage        = "language"
	ClientAttachment      = "attachment"
)

// Server event types.
const (
	ServerState   = "state"
	ServerDraft   = "draft"
	ServerMessage = "message"
	ServerNav     = "nav"
	ServerError   = "error"
)

// ClientEvent is a single inbound widget event.
type ClientEvent struct {
	Type string `json:"type"`

	// draft / enter
	Text  string `json:"text,omitempty"`
	Shift bool   `json:"shift,omitempty"`

	// audio / attachment (base64)
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`

	// volume
	Value float64 `json:"value,omitempty"`

	// language
	Code string `json:"code,omitempty"`
}

// ServerEvent is a single outbound widget event.
type ServerEvent struct {
	Type string `json:"type"`

	// state snapshot
	Mode        string  `json:"mode,omitempty"`
	Rows        int     `json:"rows,omitempty"`
	Ready       bool    `json:"ready,omitempty"`
	Loading     bool    `json:"loading,omitempty"`
	Listening   bool    `json:"listening,omitempty"`
	Speaking    bool    `json:"speaking,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Notice      string  `json:"notice,omitempty"`
	Placeholder string  `json:"placeholder,omitempty"`
	Dir         string  `json:"dir,omitempty"` // ltr or rtl

	// draft
	Text string `json:"text,omitempty"`

	// message
	ID   string `json:"id,omitempty"`
	Role string `json:"role,omitempty"`

	// nav
	Page string `json:"page,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}
