// Package report summarizes placed fragments: score calibration against the
// routing bands and the distribution of coordinates.
package report

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/coords"
	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/relocate"
	"github.com/TobiSchelling/flatdrop/internal/score"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

// Calibration describes a score sample and the bands it suggests.
type Calibration struct {
	Count     int
	Mean      float64
	Min       float64
	Max       float64
	P50       float64
	P65       float64
	P80       float64
	P90       float64
	Current   triage.Summary
	Table     config.Routing
	Suggested config.Routing
}

// Percentile interpolates linearly between closest ranks. sorted must be
// ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Calibrate computes percentiles of scores and proposes thresholds at the
// 50th, 65th and 80th percentile. Current counts scores per band under rt.
func Calibrate(scores []float64, rt *triage.Router) Calibration {
	c := Calibration{Count: len(scores), Current: triage.Summary{}, Table: rt.Table(), Suggested: rt.Table()}
	if len(scores) == 0 {
		return c
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, s := range sorted {
		sum += s
		c.Current.Add(rt.Route(s, "").Disposition)
	}
	c.Mean = score.Round(sum / float64(len(sorted)))
	c.Min, c.Max = sorted[0], sorted[len(sorted)-1]
	c.P50 = score.Round(Percentile(sorted, 50))
	c.P65 = score.Round(Percentile(sorted, 65))
	c.P80 = score.Round(Percentile(sorted, 80))
	c.P90 = score.Round(Percentile(sorted, 90))

	c.Suggested.Borderline = c.P50
	c.Suggested.Promising = c.P65
	c.Suggested.MemoirGrade = c.P80
	return c
}

// Write renders c as aligned text.
func (c Calibration) Write(w io.Writer) error {
	if c.Count == 0 {
		_, err := fmt.Fprintln(w, "No fragments to calibrate.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fragments\t%d\n", c.Count)
	fmt.Fprintf(tw, "Mean\t%.1f\n", c.Mean)
	fmt.Fprintf(tw, "Range\t%.1f - %.1f\n", c.Min, c.Max)
	fmt.Fprintf(tw, "p50 / p65 / p80 / p90\t%.1f / %.1f / %.1f / %.1f\n", c.P50, c.P65, c.P80, c.P90)
	fmt.Fprintf(tw, "Current bands\t%s\n", c.Current)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Threshold\tCurrent\tSuggested")
	fmt.Fprintf(tw, "memoir_grade\t%.1f\t%.1f\n", c.Table.MemoirGrade, c.Suggested.MemoirGrade)
	fmt.Fprintf(tw, "promising\t%.1f\t%.1f\n", c.Table.Promising, c.Suggested.Promising)
	fmt.Fprintf(tw, "borderline\t%.1f\t%.1f\n", c.Table.Borderline, c.Suggested.Borderline)
	return tw.Flush()
}

// Axes lists coordinate axis names in display order.
var Axes = []string{"structure", "transmission", "purpose", "terrain"}

// Distribution counts fragments per coordinate and per axis value.
type Distribution struct {
	Total       int
	Coordinates []database.CoordinateCount
	ByAxis      map[string]map[string]int
	// Unreadable counts fragment files without a usable header.
	Unreadable int
}

// FromLedger builds a distribution from ledger aggregates.
func FromLedger(rows []database.CoordinateCount) Distribution {
	d := Distribution{ByAxis: newAxes()}
	for _, r := range rows {
		d.Total += r.Count
		d.Coordinates = append(d.Coordinates, r)
		d.ByAxis["structure"][r.Structure] += r.Count
		d.ByAxis["transmission"][r.Transmission] += r.Count
		d.ByAxis["purpose"][r.Purpose] += r.Count
		d.ByAxis["terrain"][r.Terrain] += r.Count
	}
	return d
}

// ScanFragments reads the header of every .md file under dirs and groups
// them by coordinate key. Missing directories are skipped.
func ScanFragments(dirs []string) (Distribution, error) {
	type agg struct {
		n   int
		sum float64
	}
	seen := make(map[string]*agg)
	unreadable := 0

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == dir && os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			h, _, err := relocate.ParseHeader(data)
			if err != nil || h.CoordinateKey == "" {
				unreadable++
				return nil
			}
			if _, ok := coords.ParseKey(h.CoordinateKey); !ok {
				unreadable++
				return nil
			}
			a := seen[h.CoordinateKey]
			if a == nil {
				a = &agg{}
				seen[h.CoordinateKey] = a
			}
			a.n++
			a.sum += h.QualityScore
			return nil
		})
		if err != nil {
			return Distribution{}, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	rows := make([]database.CoordinateCount, 0, len(seen))
	for key, a := range seen {
		c, _ := coords.ParseKey(key)
		rows = append(rows, database.CoordinateCount{
			Structure:    c.Structure,
			Transmission: c.Transmission,
			Purpose:      c.Purpose,
			Terrain:      c.Terrain,
			Count:        a.n,
			AvgScore:     a.sum / float64(a.n),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return coordKey(rows[i]) < coordKey(rows[j])
	})

	d := FromLedger(rows)
	d.Unreadable = unreadable
	return d, nil
}

// Write renders the distribution, top coordinates first.
func (d Distribution) Write(w io.Writer, top int) error {
	if d.Total == 0 {
		_, err := fmt.Fprintln(w, "No placed fragments.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Fragments\t%d\t(%d coordinates)\n", d.Total, len(d.Coordinates))
	if d.Unreadable > 0 {
		fmt.Fprintf(tw, "Unreadable\t%d\n", d.Unreadable)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Coordinate\tCount\tAvg score")
	for i, c := range d.Coordinates {
		if top > 0 && i >= top {
			fmt.Fprintf(tw, "...\t%d more\t\n", len(d.Coordinates)-top)
			break
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", coordKey(c), c.Count, c.AvgScore)
	}
	for _, axis := range Axes {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "%s\t\t\n", axis)
		for _, kv := range sortedCounts(d.ByAxis[axis]) {
			fmt.Fprintf(tw, "  %s\t%d\t%.0f%%\n", kv.key, kv.n, 100*float64(kv.n)/float64(d.Total))
		}
	}
	return tw.Flush()
}

type keyCount struct {
	key string
	n   int
}

func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	return out
}

func newAxes() map[string]map[string]int {
	m := make(map[string]map[string]int, len(Axes))
	for _, a := range Axes {
		m[a] = make(map[string]int)
	}
	return m
}

func coordKey(c database.CoordinateCount) string {
	return coords.Coordinate{
		Structure:    c.Structure,
		Transmission: c.Transmission,
		Purpose:      c.Purpose,
		Terrain:      c.Terrain,
	}.Key()
}

// Destinations lists every fragment directory of a routing table, resolved
// against the vault root.
func Destinations(cfg *config.Config) []string {
	r := cfg.Routing
	set := map[string]bool{r.PromisingDir: true, r.BorderlineDir: true, r.TrashDir: true}
	for _, d := range r.PurposeDirs {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, cfg.VaultPath(d))
	}
	sort.Strings(out)
	return out
}
