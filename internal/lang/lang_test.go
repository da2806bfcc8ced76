package lang

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		code string
		want Language
		ok   bool
	}{
		{"en", English, true},
		{"es", Spanish, true},
		{"fa", Persian, true},
		{"de", Default, false},
		{"", Default, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Parse(%q) = %v, %v; want %v, %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLocale(t *testing.T) {
	if got := English.Locale(); got != "en-US" {
		t.Errorf("English locale = %q, want en-US", got)
	}
	if got := Spanish.Locale(); got != "es-ES" {
		t.Errorf("Spanish locale = %q, want es-ES", got)
	}
	if got := Persian.Locale(); got != "fa-IR" {
		t.Errorf("Persian locale = %q, want fa-IR", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := Persian.DisplayName(); got != "Persian (Farsi)" {
		t.Errorf("Persian display name = %q, want 'Persian (Farsi)'", got)
	}
	if got := Spanish.DisplayName(); got != "Spanish" {
		t.Errorf("Spanish display name = %q, want 'Spanish'", got)
	}
	if got := English.DisplayName(); got != "English" {
		t.Errorf("English display name = %q, want 'English'", got)
	}
}

func TestRTL(t *testing.T) {
	if !Persian.RTL() {
		t.Error("expected Persian to be RTL")
	}
	if English.RTL() || Spanish.RTL() {
		t.Error("expected English and Spanish to be LTR")
	}
}

func TestAll(t *testing.T) {
	if len(All()) != 3 {
		t.Errorf("expected 3 languages, got %d", len(All()))
	}
}
