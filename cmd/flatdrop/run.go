package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/fingerprint"
	"github.com/TobiSchelling/flatdrop/internal/logger"
	"github.com/TobiSchelling/flatdrop/internal/pipeline"
	"github.com/TobiSchelling/flatdrop/internal/triage"
)

var (
	dryRun    bool
	limit     int
	batchSize int
	interval  time.Duration
)

// newOrchestrator wires the fingerprint store and ledger into a pipeline.
// The caller closes the returned store.
func newOrchestrator(db *database.DB, router *triage.Router) (*pipeline.Orchestrator, fingerprint.Store, error) {
	store, err := openStore(db)
	if err != nil {
		return nil, nil, err
	}
	orch, err := pipeline.New(cfg, pipeline.Deps{Router: router, Store: store, Ledger: db})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return orch, store, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process new and changed inbox documents",
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := orch.Run(ctx, pipeline.Options{DryRun: dryRun, Limit: limit, BatchSize: batchSize})
		printResult(result)
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nInterrupted; unprocessed documents stay in the inbox.")
			return nil
		}
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify and report without writing anything")
	runCmd.Flags().IntVar(&limit, "limit", 0, "Process at most this many new documents")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override ingest.batch_size")

	watchCmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Time between runs")
	watchCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Override ingest.batch_size")
}

func printResult(r *pipeline.Result) {
	if r == nil {
		return
	}
	for i, step := range r.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(r.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}

	s := r.Summary
	fmt.Println("\nSummary:")
	fmt.Printf("  Processed: %d\n", s.Processed)
	fmt.Printf("  Skipped (error): %d\n", s.Errors)
	fmt.Printf("  Archived unchanged: %d\n", s.ArchivedUnchanged)
	fmt.Printf("  Fragments: %d\n", s.Fragments)
	for _, d := range triage.Dispositions {
		fmt.Printf("    %s: %d\n", d, s.Dispositions[d])
	}
	for _, f := range s.Failed {
		fmt.Printf("  ! %s\n", f)
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run repeatedly, reloading routing tables when the config file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Named("watch")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		router, err := triage.NewRouter(cfg.Routing)
		if err != nil {
			return err
		}
		orch, store, err := newOrchestrator(db, router)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfgFile != "" {
			watchRouting(cfgFile, router, log)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			result, err := orch.Run(ctx, pipeline.Options{BatchSize: batchSize})
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				log.Error().Err(err).Msg("run failed")
			case result.Summary.New > 0 || result.Summary.AlreadyProcessed > 0:
				log.Info().
					Int("processed", result.Summary.Processed).
					Int("errors", result.Summary.Errors).
					Str("dispositions", result.Summary.Dispositions.String()).
					Msg("run complete")
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

// watchRouting swaps the router table whenever path changes. Only routing
// is hot: pattern and coordinate changes need a restart.
func watchRouting(path string, router *triage.Router, log *logger.Logger) {
	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := config.Load(path)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring invalid config change")
			return
		}
		if err := router.Update(next.Routing); err != nil {
			log.Warn().Err(err).Msg("ignoring invalid routing table")
			return
		}
		log.Info().Str("file", e.Name).Msg("routing table reloaded")
	})
	v.WatchConfig()
}
