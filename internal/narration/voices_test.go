package narration

import (
	"testing"

	"github.com/reishilabs/ganochat/internal/lang"
)

func TestSelectVoiceFarsiPrefersLocaleTag(t *testing.T) {
	voices := []Voice{
		{Name: "Persian Voice", Locale: "fa"},
		{Name: "Microsoft Sara", Locale: "fa-IR"},
		{Name: "Iranian Male", Locale: "fa"},
	}

	got, ok := SelectVoice(voices, lang.Persian)
	if !ok {
		t.Fatal("no voice selected")
	}
	// The exact fa-IR tag wins over the earlier name match.
	if got.Name != "Microsoft Sara" {
		t.Errorf("selected %q, want Microsoft Sara", got.Name)
	}
}

func TestSelectVoiceFarsiNameFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		voices []Voice
		want   string
		ok     bool
	}{
		{
			name: "farsi in name",
			voices: []Voice{
				{Name: "English US", Locale: "en-US"},
				{Name: "Farsi TTS", Locale: "fa"},
			},
			want: "Farsi TTS",
			ok:   true,
		},
		{
			name: "persian in name",
			voices: []Voice{
				{Name: "Persian Narrator", Locale: "xx"},
			},
			want: "Persian Narrator",
			ok:   true,
		},
		{
			name: "iran in name as last resort",
			voices: []Voice{
				{Name: "English US", Locale: "en-US"},
				{Name: "Voice of Iran", Locale: "xx"},
			},
			want: "Voice of Iran",
			ok:   true,
		},
		{
			name: "nothing matches",
			voices: []Voice{
				{Name: "English US", Locale: "en-US"},
			},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectVoice(tt.voices, lang.Persian)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Name != tt.want {
				t.Errorf("selected %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestSelectVoicePrefixAndPreference(t *testing.T) {
	voices := []Voice{
		{Name: "Spanish Spain", Locale: "es-ES"},
		{Name: "English UK Female", Locale: "en-GB"},
		{Name: "Google US English", Locale: "en-US"},
	}

	got, ok := SelectVoice(voices, lang.English)
	if !ok {
		t.Fatal("no voice selected")
	}
	if got.Name != "Google US English" {
		t.Errorf("selected %q, want the google-named voice", got.Name)
	}

	got, ok = SelectVoice(voices, lang.Spanish)
	if !ok || got.Name != "Spanish Spain" {
		t.Errorf("Spanish selected %q, %v; want Spanish Spain", got.Name, ok)
	}
}

func TestSelectVoiceFirstOfFiltered(t *testing.T) {
	voices := []Voice{
		{Name: "Laura", Locale: "es-MX"},
		{Name: "Carmen", Locale: "es-ES"},
	}

	got, ok := SelectVoice(voices, lang.Spanish)
	if !ok || got.Name != "Laura" {
		t.Errorf("selected %q, %v; want first filtered voice Laura", got.Name, ok)
	}
}

func TestSelectVoiceEmptySet(t *testing.T) {
	if _, ok := SelectVoice(nil, lang.English); ok {
		t.Error("selected a voice from an empty set")
	}
}

func TestRateCycle(t *testing.T) {
	r := RateNormal
	want := []Rate{RateFast, RateDouble, RateNormal, RateFast}
	for i, w := range want {
		r = r.Next()
		if r != w {
			t.Fatalf("step %d: rate = %v, want %v", i, r, w)
		}
	}
}
