// Package cluster proposes parent pieces by grouping memoir-grade fragments
// that share a coordinate and a similar signal profile.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/logger"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

const DefaultDistanceThreshold = 1.2

// Member is one fragment of a proposed piece.
type Member struct {
	ChunkID   string  `json:"chunk_id"`
	Path      string  `json:"path"`
	SourceKey string  `json:"source"`
	Sequence  int     `json:"sequence"`
	Score     float64 `json:"quality_score"`
}

// Piece is a proposed parent piece.
type Piece struct {
	ID         string   `json:"parent_piece_id"`
	Label      string   `json:"label"`
	Coordinate string   `json:"coordinate_key"`
	Theme      string   `json:"theme"`
	AvgScore   float64  `json:"avg_quality_score"`
	Members    []Member `json:"members"`
}

// Result holds the results of a grouping run.
type Result struct {
	Pieces     []Piece  `json:"pieces"`
	Unassigned []Member `json:"unassigned"`
	Fragments  int      `json:"fragments"`
	Threshold  float64  `json:"distance_threshold"`
}

// Grouper groups fragments recorded in the ledger.
type Grouper struct {
	db        *database.DB
	signals   []string
	threshold float64
	minSize   int
	log       *logger.Logger
}

// NewGrouper creates a grouper. signals fixes the order of the profile
// dimensions; a non-positive threshold falls back to the default.
func NewGrouper(db *database.DB, g config.Grouping, signals []string) *Grouper {
	threshold := g.DistanceThreshold
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	minSize := g.MinSize
	if minSize < 1 {
		minSize = 2
	}
	return &Grouper{db: db, signals: signals, threshold: threshold, minSize: minSize, log: logger.Named("cluster")}
}

// Group proposes pieces over every memoir-grade fragment.
func (g *Grouper) Group() (*Result, error) {
	frags, err := g.db.GetFragments(string(triage.MemoirGrade))
	if err != nil {
		return nil, err
	}
	res := g.groupFragments(frags)
	g.log.Info().
		Int("fragments", res.Fragments).
		Int("pieces", len(res.Pieces)).
		Int("unassigned", len(res.Unassigned)).
		Msg("grouping complete")
	return res, nil
}

func (g *Grouper) groupFragments(frags []database.Fragment) *Result {
	res := &Result{Fragments: len(frags), Threshold: g.threshold}
	if len(frags) == 0 {
		return res
	}

	labels := make([]int, len(frags))
	if len(frags) > 1 {
		labels = cutTree(wardLinkage(g.vectors(frags)), len(frags), g.threshold)
	}

	groups := make(map[int][]database.Fragment)
	for i, l := range labels {
		groups[l] = append(groups[l], frags[i])
	}

	var pieces [][]database.Fragment
	for _, group := range groups {
		if len(group) >= g.minSize {
			pieces = append(pieces, group)
			continue
		}
		for _, f := range group {
			res.Unassigned = append(res.Unassigned, member(f))
		}
	}

	sort.Slice(pieces, func(i, j int) bool {
		if len(pieces[i]) != len(pieces[j]) {
			return len(pieces[i]) > len(pieces[j])
		}
		return pieces[i][0].ChunkID < pieces[j][0].ChunkID
	})
	for i, group := range pieces {
		res.Pieces = append(res.Pieces, newPiece(fmt.Sprintf("piece-%03d", i+1), group))
	}
	sort.Slice(res.Unassigned, func(i, j int) bool { return res.Unassigned[i].ChunkID < res.Unassigned[j].ChunkID })
	return res
}

// vectors concatenates a one-hot encoding of each coordinate axis with the
// fragment's signal counts normalized to sum to one.
func (g *Grouper) vectors(frags []database.Fragment) [][]float64 {
	axes := [4]func(database.Fragment) string{
		func(f database.Fragment) string { return f.Structure },
		func(f database.Fragment) string { return f.Transmission },
		func(f database.Fragment) string { return f.Purpose },
		func(f database.Fragment) string { return f.Terrain },
	}
	var offsets [4]map[string]int
	dim := 0
	for a, value := range axes {
		var vals []string
		seen := make(map[string]bool)
		for _, f := range frags {
			if v := value(f); !seen[v] {
				seen[v] = true
				vals = append(vals, v)
			}
		}
		sort.Strings(vals)
		offsets[a] = make(map[string]int, len(vals))
		for _, v := range vals {
			offsets[a][v] = dim
			dim++
		}
	}

	out := make([][]float64, len(frags))
	for i, f := range frags {
		vec := make([]float64, dim+len(g.signals))
		for a, value := range axes {
			vec[offsets[a][value(f)]] = 1
		}
		total := 0
		for _, s := range g.signals {
			total += f.Signals[s]
		}
		if total > 0 {
			for k, s := range g.signals {
				vec[dim+k] = float64(f.Signals[s]) / float64(total)
			}
		}
		out[i] = vec
	}
	return out
}

func member(f database.Fragment) Member {
	return Member{ChunkID: f.ChunkID, Path: f.Path, SourceKey: f.SourceKey, Sequence: f.Sequence, Score: f.Score}
}

func newPiece(id string, group []database.Fragment) Piece {
	sort.Slice(group, func(i, j int) bool { return group[i].ChunkID < group[j].ChunkID })
	coordCount := make(map[string]int)
	themeCount := make(map[string]int)
	p := Piece{ID: id}
	sum := 0.0
	for _, f := range group {
		p.Members = append(p.Members, member(f))
		coordCount[f.CoordinateKey()]++
		themeCount[f.Theme]++
		sum += f.Score
	}
	p.Coordinate = dominant(coordCount)
	p.Theme = dominant(themeCount)
	p.AvgScore = sum / float64(len(group))
	p.Label = fmt.Sprintf("%s (%d fragments)", p.Theme, len(group))
	return p
}

// dominant returns the most frequent key, ties broken alphabetically.
func dominant(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// Write stores the proposal as parent_pieces_<stamp>.json in dir.
func (r *Result) Write(dir, stamp string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "parent_pieces_"+stamp+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
