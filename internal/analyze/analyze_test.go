package analyze

import (
	"strings"
	"testing"

	"github.com/TobiSchelling/flatdrop/internal/config"
)

func newAnalyzer(t *testing.T, mutate func(*config.Config)) *Analyzer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAnalyzeMemoirPassage(t *testing.T) {
	a := newAnalyzer(t, nil)
	text := strings.Repeat("I remember my mother and when I was young growing up near the lake. ", 5)

	res := a.Analyze(text)
	if res.Theme != "memoir" {
		t.Errorf("expected memoir theme, got %q", res.Theme)
	}
	if res.Coordinate.Structure != "shadowcast" {
		t.Errorf("expected shadowcast, got %q", res.Coordinate.Structure)
	}
	if res.Score <= 0 {
		t.Errorf("expected positive score, got %.1f", res.Score)
	}
	if res.Score != res.Breakdown.Total {
		t.Errorf("score %.1f differs from breakdown total %.1f", res.Score, res.Breakdown.Total)
	}
}

func TestAnalyzeMemoizes(t *testing.T) {
	a := newAnalyzer(t, nil)
	first := a.Analyze("my sponsor took me to a meeting")
	if a.MemoSize() != 1 {
		t.Fatalf("expected 1 memo entry, got %d", a.MemoSize())
	}
	second := a.Analyze("my sponsor took me to a meeting")
	if first.Score != second.Score || first.Coordinate != second.Coordinate || first.Theme != second.Theme {
		t.Error("memoized analysis differs")
	}
	if a.MemoSize() != 1 {
		t.Errorf("expected memo hit, got %d entries", a.MemoSize())
	}
}

func TestAnalyzeWithoutMemo(t *testing.T) {
	a := newAnalyzer(t, func(c *config.Config) { c.Cache.TTL = 0 })
	a.Analyze("anything")
	if a.MemoSize() != 0 {
		t.Errorf("expected memo disabled, got %d entries", a.MemoSize())
	}
}

func TestAnalyzeTotal(t *testing.T) {
	a := newAnalyzer(t, nil)
	for _, text := range []string{"", "   ", "\x00\x01", strings.Repeat("server ", 500)} {
		res := a.Analyze(text)
		if res.Coordinate.Structure == "" || res.Coordinate.Transmission == "" ||
			res.Coordinate.Purpose == "" || res.Coordinate.Terrain == "" {
			t.Errorf("incomplete coordinate for %q: %+v", text, res.Coordinate)
		}
		if res.Theme == "" {
			t.Errorf("empty theme for %q", text)
		}
		if res.Score < 0 {
			t.Errorf("negative score for %q", text)
		}
	}
}
