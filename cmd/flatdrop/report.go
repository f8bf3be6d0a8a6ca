package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/flatdrop/internal/analyze"
	"github.com/TobiSchelling/flatdrop/internal/chunk"
	"github.com/TobiSchelling/flatdrop/internal/clean"
	"github.com/TobiSchelling/flatdrop/internal/cluster"
	"github.com/TobiSchelling/flatdrop/internal/report"
	"github.com/TobiSchelling/flatdrop/internal/source"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Score and classify files without moving them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyze.New(cfg)
		if err != nil {
			return err
		}
		cl, err := clean.New(cfg.Cleaning.ArtifactPatterns)
		if err != nil {
			return err
		}
		ch, err := chunk.New(cfg.Chunking, a)
		if err != nil {
			return err
		}
		router, err := triage.NewRouter(cfg.Routing)
		if err != nil {
			return err
		}

		for _, path := range args {
			doc, err := source.Stat(path)
			if err != nil {
				return err
			}
			text, err := source.Read(doc)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			res := ch.Chunk(cl.Clean(text))

			fmt.Printf("%s\n", path)
			fmt.Printf("  Topics: %v (complex: %t)\n", res.Topics, res.Complex)
			for _, f := range res.Fragments {
				d := router.Route(f.Score, f.Coordinate.Purpose)
				b := f.Breakdown
				fmt.Printf("\n  Fragment %d/%d (%s, %d words)\n", f.Sequence, f.Total, f.Method, f.Words())
				fmt.Printf("    Score: %.1f = length %.1f + signals %.1f + pronouns %.1f - penalty %.1f\n",
					f.Score, b.LengthBonus, b.SignalSum, b.PronounBonus, b.Penalty)
				fmt.Printf("    Disposition: %s -> %s\n", d.Disposition, d.Dir)
				fmt.Printf("    Theme: %s\n", f.Theme)
				fmt.Printf("    Coordinate: %s\n", f.Coordinate.Key())
				fmt.Printf("    Signals: %s\n", formatCounts(f.Signals.Counts, f.Signals.Features.FirstPerson))
			}
			fmt.Println()
		}
		return nil
	},
}

func formatCounts(counts map[string]int, firstPerson int) string {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s=%d ", k, counts[k])
	}
	return out + fmt.Sprintf("first_person=%d", firstPerson)
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Suggest disposition thresholds from inbox score percentiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch, store, err := newOrchestrator(db, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		scores, err := orch.Scores()
		if err != nil {
			return err
		}
		router, err := triage.NewRouter(cfg.Routing)
		if err != nil {
			return err
		}
		return report.Calibrate(scores, router).Write(cmd.OutOrStdout())
	},
}

var (
	fromFiles bool
	top       int
)

var distributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Show how placed fragments spread across coordinates",
	RunE: func(cmd *cobra.Command, args []string) error {
		var dist report.Distribution
		if fromFiles {
			d, err := report.ScanFragments(report.Destinations(cfg))
			if err != nil {
				return err
			}
			dist = d
		} else {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := db.CoordinateDistribution()
			if err != nil {
				return err
			}
			dist = report.FromLedger(rows)
		}
		return dist.Write(cmd.OutOrStdout(), top)
	},
}

var groupThreshold float64

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Propose parent pieces from memoir-grade fragments",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		a, err := analyze.New(cfg)
		if err != nil {
			return err
		}
		g := cfg.Grouping
		if groupThreshold > 0 {
			g.DistanceThreshold = groupThreshold
		}
		res, err := cluster.NewGrouper(db, g, a.Catalog().Names()).Group()
		if err != nil {
			return err
		}
		if res.Fragments == 0 {
			fmt.Println("No memoir-grade fragments in the ledger.")
			return nil
		}

		for _, p := range res.Pieces {
			fmt.Printf("%s  %s  avg %.1f  %s\n", p.ID, p.Coordinate, p.AvgScore, p.Label)
			for _, m := range p.Members {
				fmt.Printf("    %s  %s\n", m.ChunkID, m.Path)
			}
		}
		fmt.Printf("\n%d pieces, %d unassigned of %d fragments\n", len(res.Pieces), len(res.Unassigned), res.Fragments)

		path, err := res.Write(cfg.LogsDir(), time.Now().Format("20060102_150405"))
		if err != nil {
			return err
		}
		fmt.Printf("Proposal written to %s\n", path)
		return nil
	},
}

func init() {
	distributionCmd.Flags().BoolVar(&fromFiles, "from-files", false, "Read fragment headers instead of the ledger")
	distributionCmd.Flags().IntVar(&top, "top", 20, "Coordinates to list (0 for all)")
	groupCmd.Flags().Float64Var(&groupThreshold, "threshold", 0, "Override grouping.distance_threshold")
}
