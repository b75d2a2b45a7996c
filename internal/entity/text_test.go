package entity_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"article-pipeline/internal/entity"
)

func TestClipText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "timeout", 10, "timeout"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"cut inside rune", "xé", 2, "x"},
		{"invalid bytes", "a\xffb", 10, "a\uFFFDb"},
		{"nul stripped", "a\x00b", 10, "ab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := entity.ClipText(tc.in, tc.n); got != tc.want {
				t.Fatalf("ClipText(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
			}
		})
	}

	long := "x" + strings.Repeat("é", 600)
	got := entity.ClipText(long, 1000)
	if len(got) > 1000 || !utf8.ValidString(got) {
		t.Fatalf("len=%d valid=%v", len(got), utf8.ValidString(got))
	}
	if len(got) != 999 {
		t.Fatalf("expected cut back to the rune boundary at 999, got %d", len(got))
	}
}
