package cluster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var signals = []string{"memoir_markers", "recovery_markers", "emotional_markers"}

func frag(id, terrain string, disposition string, counts map[string]int) database.Fragment {
	return database.Fragment{
		ChunkID: id, RunID: "run-1", SourceKey: "_inload/" + id + ".md", Sequence: 1, Total: 1,
		Path: "memoir/" + id + ".md", Score: 60, Disposition: disposition,
		Structure: "shadowcast", Transmission: "narrative", Purpose: "tell-story", Terrain: terrain,
		Theme: "memoir", Signals: counts,
	}
}

func grouping() config.Grouping {
	return config.Grouping{DistanceThreshold: DefaultDistanceThreshold, MinSize: 2}
}

func TestGroupNoFragments(t *testing.T) {
	db := openTestDB(t)
	res, err := NewGrouper(db, grouping(), signals).Group()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fragments != 0 || len(res.Pieces) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestGroupSingleFragmentIsUnassigned(t *testing.T) {
	g := NewGrouper(nil, grouping(), signals)
	res := g.groupFragments([]database.Fragment{frag("a", "complex", "memoir-grade", map[string]int{"memoir_markers": 3})})
	if len(res.Pieces) != 0 || len(res.Unassigned) != 1 {
		t.Errorf("expected one unassigned fragment, got %+v", res)
	}
}

func TestGroupBySharedCoordinate(t *testing.T) {
	db := openTestDB(t)
	db.BeginRun("run-1", false)
	db.InsertFragments([]database.Fragment{
		frag("c-001", "complex", "memoir-grade", map[string]int{"memoir_markers": 4, "emotional_markers": 1}),
		frag("c-002", "complex", "memoir-grade", map[string]int{"memoir_markers": 5, "emotional_markers": 1}),
		frag("c-003", "complex", "memoir-grade", map[string]int{"memoir_markers": 3}),
		frag("c-004", "chaotic", "memoir-grade", map[string]int{"emotional_markers": 6}),
		frag("c-005", "complex", "trash", map[string]int{"memoir_markers": 4}),
	})

	res, err := NewGrouper(db, grouping(), signals).Group()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fragments != 4 {
		t.Fatalf("expected only memoir-grade fragments, got %d", res.Fragments)
	}
	if len(res.Pieces) != 1 || len(res.Pieces[0].Members) != 3 {
		t.Fatalf("expected one piece of three, got %+v", res.Pieces)
	}
	p := res.Pieces[0]
	if p.ID != "piece-001" || p.Coordinate != "shadowcast:narrative:tell-story:complex" || p.Theme != "memoir" {
		t.Errorf("unexpected piece %+v", p)
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0].ChunkID != "c-004" {
		t.Errorf("expected c-004 unassigned, got %+v", res.Unassigned)
	}

	path, err := res.Write(t.TempDir(), "20260314_090000")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var back Result
	if err := json.Unmarshal(data, &back); err != nil || len(back.Pieces) != 1 {
		t.Errorf("unexpected proposal file %s: %v", data, err)
	}
}

func TestVectorsOneHotAndProfile(t *testing.T) {
	g := NewGrouper(nil, grouping(), signals)
	vecs := g.vectors([]database.Fragment{
		frag("a", "complex", "memoir-grade", map[string]int{"memoir_markers": 3, "emotional_markers": 1}),
		frag("b", "chaotic", "memoir-grade", nil),
	})
	// One value each for three axes, two terrains, three signals.
	if len(vecs[0]) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(vecs[0]))
	}
	if vecs[0][5] != 0.75 || vecs[0][7] != 0.25 {
		t.Errorf("unexpected profile %v", vecs[0])
	}
	for _, v := range vecs[1][5:] {
		if v != 0 {
			t.Errorf("expected zero profile without signals, got %v", vecs[1])
		}
	}
}

func TestNewGrouperDefaults(t *testing.T) {
	g := NewGrouper(nil, config.Grouping{}, nil)
	if g.threshold != DefaultDistanceThreshold || g.minSize != 2 {
		t.Errorf("unexpected defaults %v %d", g.threshold, g.minSize)
	}
}
