package clean

import (
	"testing"

	"github.com/TobiSchelling/flatdrop/internal/config"
)

func defaultCleaner(t *testing.T) *Cleaner {
	t.Helper()
	c, err := New(config.Default().Cleaning.ArtifactPatterns)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestStripHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"header", "---\ntitle: x\ntags: [a]\n---\n\nBody text", "Body text"},
		{"leading blank lines", "\n\n---\nk: v\n---\nBody", "Body"},
		{"no header", "Body\n---\nmore", "Body\n---\nmore"},
		{"unterminated", "---\nk: v\nbody", "---\nk: v\nbody"},
		{"header only", "---\nk: v\n---", ""},
		{"rule later", "intro\n\n---\n\nrest", "intro\n\n---\n\nrest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHeader(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCleanRemovesArtifacts(t *testing.T) {
	c := defaultCleaner(t)
	in := "Here's what I found: I remember the lake. I'll help you with that today. Based on the notes you sent, fine. Let me analyze this for you. End."
	got := c.Clean(in)
	want := "I remember the lake. End."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanArtifactsIgnoreCase(t *testing.T) {
	c := defaultCleaner(t)
	got := c.Clean("here's what i found: the notes. LET ME REVIEW this quickly. Done.")
	want := "the notes. Done."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	c := defaultCleaner(t)
	in := "one  \t two\r\n\r\n\r\n\r\nthree   \n\n\n\nfour"
	want := "one two\n\nthree\n\nfour"
	if got := c.Clean(in); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanNormalizesUnicode(t *testing.T) {
	c := defaultCleaner(t)
	// fullwidth letters fold under NFKC; zero-width joiner and BOM are dropped.
	in := "\ufeff\uff21\uff21 meet\u200ding"
	if got := c.Clean(in); got != "AA meeting" {
		t.Errorf("expected %q, got %q", "AA meeting", got)
	}
}

func TestCleanInvalidUTF8(t *testing.T) {
	c := defaultCleaner(t)
	if got := c.Clean("ok\xffay"); got != "okay" {
		t.Errorf("expected invalid bytes dropped, got %q", got)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New([]string{"(open"}); err == nil {
		t.Error("expected compile error")
	}
}
