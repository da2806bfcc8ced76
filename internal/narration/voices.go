package narration

import (
	"strings"

	"github.com/reishilabs/ganochat/internal/lang"
)

// SelectVoice picks a voice for the given language from the installed set.
// The preference order is fixed:
//
//	Farsi:   exact fa-IR locale tag, then a name containing "farsi" or
//	         "persian", then one containing "iran".
//	Others:  voices whose locale starts with the two-letter code, preferring
//	         a name containing "google" or "male", else the first of the
//	         filtered set.
//
// A false return is not an error; the caller falls back to the platform
// default voice.
func SelectVoice(voices []Voice, language lang.Language) (Voice, bool) {
	if language == lang.Persian {
		return selectFarsiVoice(voices)
	}

	prefix := string(language)
	var filtered []Voice
	for _, v := range voices {
		if strings.HasPrefix(v.Locale, prefix) {
			filtered = append(filtered, v)
		}
	}

	for _, v := range filtered {
		name := strings.ToLower(v.Name)
		if strings.Contains(name, "google") || strings.Contains(name, "male") {
			return v, true
		}
	}
	if len(filtered) > 0 {
		return filtered[0], true
	}
	return Voice{}, false
}

func selectFarsiVoice(voices []Voice) (Voice, bool) {
	// An exact locale tag beats any name match, even one earlier in the list.
	for _, v := range voices {
		if v.Locale == "fa-IR" {
			return v, true
		}
	}
	for _, v := range voices {
		name := strings.ToLower(v.Name)
		if strings.Contains(name, "farsi") || strings.Contains(name, "persian") {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), "iran") {
			return v, true
		}
	}
	return Voice{}, false
}
