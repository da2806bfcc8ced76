// Package lang defines the closed set of UI languages the chat widget supports.
package lang

// Language is a two-letter UI language code.
type Language string

const (
	English Language = "en"
	Spanish Language = "es"
	Persian Language = "fa"
)

// Default is the language used when none has been selected.
const Default = English

// Parse returns the Language for a two-letter code, and whether it is one of
// the supported set.
func Parse(code string) (Language, bool) {
	switch Language(code) {
	case English, Spanish, Persian:
		return Language(code), true
	}
	return Default, false
}

// All returns every supported language.
func All() []Language {
	return []Language{English, Spanish, Persian}
}

// Locale returns the BCP-47 tag used to configure speech recognition and
// synthesis for this language.
func (l Language) Locale() string {
	switch l {
	case Persian:
		return "fa-IR"
	case Spanish:
		return "es-ES"
	default:
		return "en-US"
	}
}

// DisplayName returns the human-readable language name substituted into
// analysis prompts and answer-language directives.
func (l Language) DisplayName() string {
	switch l {
	case Persian:
		return "Persian (Farsi)"
	case Spanish:
		return "Spanish"
	default:
		return "English"
	}
}

// RTL reports whether text in this language renders right to left.
func (l Language) RTL() bool {
	return l == Persian
}

// ListeningPlaceholder returns the input placeholder shown while dictation is
// capturing.
func (l Language) ListeningPlaceholder() string {
	switch l {
	case Persian:
		return "در حال گوش دادن..."
	case Spanish:
		return "Escuchando..."
	default:
		return "Listening..."
	}
}
