package pipeline

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Climb! 5.12a  (crux)", "Climb_512a_crux"},
		{"simple", "simple"},
		{"  padded  title  ", "padded_title"},
		{"tabs\tand\nnewlines", "tabs_and_newlines"},
		{"../../etc/passwd", "etcpasswd"},
		{"Crème brûlée", "Creme_brulee"},
		{"!!!", UntitledTitle},
		{"", UntitledTitle},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_Truncates(t *testing.T) {
	got := Sanitize(strings.Repeat("a", 250))
	if len(got) != MaxTitleLength {
		t.Errorf("expected length %d, got %d", MaxTitleLength, len(got))
	}

	got = Sanitize(strings.Repeat("a", 99) + " b")
	if len(got) > MaxTitleLength || strings.HasSuffix(got, "_") {
		t.Errorf("unexpected truncation %q", got)
	}
}

func TestSanitize_NoSeparators(t *testing.T) {
	for _, in := range []string{"a/b\\c", "x\x00y", "dots...", "semi;colon"} {
		got := Sanitize(in)
		if strings.ContainsAny(got, "/\\.\x00;") {
			t.Errorf("Sanitize(%q) = %q leaks separators", in, got)
		}
	}
}
