package output

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 40, "short"},
		{strings.Repeat("a", 40), 40, strings.Repeat("a", 40)},
		{strings.Repeat("a", 41), 40, strings.Repeat("a", 37) + "..."},
		{"日本語のタイトル", 5, "日本..."},
		{strings.Repeat("季", 45), 40, strings.Repeat("季", 37) + "..."},
	}
	for _, tt := range tests {
		got := truncateTitle(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncateTitle(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateTitle(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}
