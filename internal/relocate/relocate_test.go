package relocate

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/flatdrop/internal/analyze"
	"github.com/TobiSchelling/flatdrop/internal/chunk"
	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC) }

type fixture struct {
	vault  string
	inbox  string
	engine *Engine
	router *triage.Router
	chunks *chunk.Chunker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	vault := t.TempDir()
	cfg.Vault.Root = vault

	a, err := analyze.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := chunk.New(cfg.Chunking, a)
	if err != nil {
		t.Fatal(err)
	}
	r, err := triage.NewRouter(cfg.Routing)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.InboxDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		vault:  vault,
		inbox:  cfg.InboxDir(),
		engine: New(vault, cfg.ArchiveDir(), fixedNow),
		router: r,
		chunks: ch,
	}
}

func (f *fixture) source(t *testing.T, rel, content string) Source {
	t.Helper()
	p := filepath.Join(f.inbox, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return Source{Path: p, Key: "_inload/" + rel, Rel: rel}
}

func (f *fixture) items(text string) []Item {
	var items []Item
	for _, frag := range f.chunks.Chunk(text).Fragments {
		items = append(items, Item{Fragment: frag, Decision: f.router.Route(frag.Score, frag.Coordinate.Purpose)})
	}
	return items
}

func TestIDGeneratorIncrements(t *testing.T) {
	g := NewIDGenerator(fixedNow)
	a, b := g.Next(), g.Next()
	if a != "20260314-093005-chunk-001" {
		t.Errorf("unexpected first id %q", a)
	}
	if b != "20260314-093005-chunk-002" {
		t.Errorf("unexpected second id %q", b)
	}
}

func TestPlaceWritesFragmentAndArchives(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "notes/day.md", "")
	text := "On 2024-05-02 I went to a meeting. My sponsor said the steps work. " +
		"See https://example.com and ![[photo.png]]."

	p, err := f.engine.Place(src, f.items(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(p.Fragments))
	}

	placed := p.Fragments[0]
	if placed.Dest != "_archive/processed-trash" {
		t.Errorf("expected low scoring text in trash, got %q", placed.Dest)
	}
	data, err := os.ReadFile(placed.Path)
	if err != nil {
		t.Fatalf("reading fragment: %v", err)
	}
	h, body, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("parsing header: %v", err)
	}
	if h.ChunkID != placed.ID || filepath.Base(placed.Path) != placed.ID+".md" {
		t.Errorf("id mismatch: header %q, placed %q, path %q", h.ChunkID, placed.ID, placed.Path)
	}
	if h.ChunkSource != "_inload/notes/day.md" {
		t.Errorf("unexpected chunk_source %q", h.ChunkSource)
	}
	if h.ContentDate == nil || *h.ContentDate != "2024-05-02" || h.ContentDateStatus != DateStatusExtracted {
		t.Errorf("expected extracted content date, got %v %q", h.ContentDate, h.ContentDateStatus)
	}
	if h.Disposition != "trash" || h.Priority != 4 || h.Status != triage.StatusArchived {
		t.Errorf("unexpected routing fields %q %d %q", h.Disposition, h.Priority, h.Status)
	}
	if !slices.Equal(h.Modality, []string{"text", "image", "weblink"}) {
		t.Errorf("unexpected modality %v", h.Modality)
	}
	if len(h.Tags) != 4 || !strings.HasPrefix(h.Tags[0], "x-structure/") {
		t.Errorf("unexpected tags %v", h.Tags)
	}
	if h.ParentPiece != nil || h.ParentPieceStatus != "unassigned" {
		t.Errorf("unexpected parent piece fields %v %q", h.ParentPiece, h.ParentPieceStatus)
	}
	if len(h.QualityHistory) != 1 || h.QualityHistory[0].Method != "pattern-simple" {
		t.Errorf("unexpected quality history %+v", h.QualityHistory)
	} else if _, err := time.Parse(time.RFC3339, h.QualityHistory[0].Date); err != nil {
		t.Errorf("expected RFC3339 quality history timestamp, got %q", h.QualityHistory[0].Date)
	}
	if strings.TrimSpace(body) != text {
		t.Errorf("body mismatch: %q", body)
	}
	if !strings.Contains(string(data), "# Identity") {
		t.Error("expected section comments in header")
	}

	if _, err := os.Stat(src.Path); !os.IsNotExist(err) {
		t.Error("expected source to be moved out of the inbox")
	}
	want := filepath.Join(f.vault, "_archive", "processed-sources", "notes", "day.md")
	if p.ArchivePath != want {
		t.Errorf("expected archive %q, got %q", want, p.ArchivePath)
	}
}

func TestPlaceMemoirGradeRoutesByPurpose(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "story.md", "x")
	items := []Item{{
		Fragment: chunk.Fragment{Sequence: 1, Total: 1, Text: "text", Method: chunk.MethodSimple,
			Analysis: analyze.Analysis{Score: 60}},
		Decision: f.router.Route(60, "help-addict"),
	}}

	p, err := f.engine.Place(src, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := filepath.Dir(p.Fragments[0].Path); got != filepath.Join(f.vault, "recovery") {
		t.Errorf("expected recovery dir, got %q", got)
	}
	data, _ := os.ReadFile(p.Fragments[0].Path)
	h, _, _ := ParseHeader(data)
	if h.NextAction != nil || h.Annotations != nil || h.ParentPiece != nil {
		t.Errorf("expected human fields left empty, got %v %v %v", h.NextAction, h.Annotations, h.ParentPiece)
	}
	for _, line := range []string{"next_action: null", "annotations: null", "parent_piece: null"} {
		if !strings.Contains(string(data), line+"\n") {
			t.Errorf("expected %q in header", line)
		}
	}
	if h.ContentDate != nil || h.ContentDateStatus != DateStatusNeeded {
		t.Errorf("expected missing content date, got %v %q", h.ContentDate, h.ContentDateStatus)
	}
}

func TestPlaceNeverOverwritesExistingID(t *testing.T) {
	f := newFixture(t)
	taken := filepath.Join(f.vault, "_archive", "processed-trash")
	if err := os.MkdirAll(taken, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(taken, "20260314-093005-chunk-001.md")
	if err := os.WriteFile(existing, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := f.source(t, "a.md", "x")
	p, err := f.engine.Place(src, f.items("short note"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Fragments[0].ID != "20260314-093005-chunk-002" {
		t.Errorf("expected counter to skip taken id, got %q", p.Fragments[0].ID)
	}
	if data, _ := os.ReadFile(existing); string(data) != "keep me" {
		t.Error("existing fragment was overwritten")
	}
}

func TestPlaceRollsBackOnArchiveFailure(t *testing.T) {
	f := newFixture(t)
	src := Source{Path: filepath.Join(f.inbox, "missing.md"), Key: "_inload/missing.md", Rel: "missing.md"}

	_, err := f.engine.Place(src, f.items("some text about a job interview"))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Op != OpArchive {
		t.Fatalf("expected archive error, got %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(f.vault, "_archive", "processed-trash"))
	if len(entries) != 0 {
		t.Errorf("expected rollback to remove fragments, found %d files", len(entries))
	}
}

func TestPlaceWriteFailure(t *testing.T) {
	f := newFixture(t)
	// A regular file where the destination directory should be.
	if err := os.MkdirAll(filepath.Join(f.vault, "_archive"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.vault, "_archive", "processed-trash"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	src := f.source(t, "b.md", "x")

	_, err := f.engine.Place(src, f.items("tiny"))
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Op != OpWrite {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := os.Stat(src.Path); err != nil {
		t.Error("source should stay in the inbox after a failed write")
	}
}

func TestArchiveDoesNotClobber(t *testing.T) {
	f := newFixture(t)
	first := f.source(t, "dup.md", "one")
	p1, err := f.engine.Archive(first)
	if err != nil {
		t.Fatal(err)
	}
	second := f.source(t, "dup.md", "two")
	p2, err := f.engine.Archive(second)
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Fatalf("second archive reused %q", p1)
	}
	if data, _ := os.ReadFile(p1); string(data) != "one" {
		t.Error("first archived copy was overwritten")
	}
	if !strings.HasSuffix(p2, ".20260314-093005.md") {
		t.Errorf("unexpected suffixed name %q", p2)
	}
}

func TestParseHeaderWithoutFrontMatter(t *testing.T) {
	if _, _, err := ParseHeader([]byte("just text")); err == nil {
		t.Error("expected error for missing front matter")
	}
}

func TestContentDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"met on 2023-11-04 downtown", "2023-11-04", true},
		{"on March 5, 2021 it rained", "2021-03-05", true},
		{"bad 2023-13-45 then 2022-02-01", "2022-02-01", true},
		{"March 5, 2021 and 2020-01-01", "2020-01-01", true},
		{"no dates here", "", false},
	}
	for _, tt := range tests {
		got, ok := ContentDate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ContentDate(%q): expected %q %v, got %q %v", tt.in, tt.want, tt.ok, got, ok)
		}
	}
}

func TestModality(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{"plain words", []string{"text"}},
		{"![[clip.mp4]] and ![[voice.m4a|memo]]", []string{"text", "video", "audio"}},
		{"![alt](pic.jpeg)", []string{"text", "image"}},
		{"[site](https://example.org)", []string{"text", "weblink"}},
		{"visit https://example.org now", []string{"text", "weblink"}},
		{"```\ncode here\n```", []string{"text", "code"}},
	}
	for _, tt := range tests {
		if got := Modality(tt.body); !slices.Equal(got, tt.want) {
			t.Errorf("Modality(%q): expected %v, got %v", tt.body, tt.want, got)
		}
	}
}
