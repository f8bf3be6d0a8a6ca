package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/database"
	"github.com/TobiSchelling/flatdrop/internal/fingerprint"
	"github.com/TobiSchelling/flatdrop/internal/logger"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	vaultRoot  string
	cfg        *config.Config
	// cfgFile is the resolved config path; empty when running on defaults.
	cfgFile string
	env     = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "flatdrop",
	Short:   "Classify and relocate inbox writing into a memoir vault",
	Long:    "flatdrop scores inbox documents, splits multi-topic ones, assigns coordinates, and files every fragment into the vault.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, cfgFile, err = loadConfig()
		if err != nil {
			return err
		}

		level := env.GetString("log_level")
		if verbose {
			level = "debug"
		}
		if err := cfg.Apply(config.Overrides{
			VaultRoot: env.GetString("vault"),
			Store:     env.GetString("store"),
			LogLevel:  level,
		}); err != nil {
			return err
		}

		logger.Init(logger.Options{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			WithCaller: verbose,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "vault", "", "Vault root (overrides vault.root)")

	// Flags win over FLATDROP_* variables, which win over the file.
	env.SetEnvPrefix("FLATDROP")
	env.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	env.AutomaticEnv()
	_ = env.BindPFlag("vault", rootCmd.PersistentFlags().Lookup("vault"))
	_ = env.BindEnv("store")
	_ = env.BindEnv("log_level")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(distributionCmd)
	rootCmd.AddCommand(groupCmd)
}

// loadConfig resolves the config file. Without any file the embedded
// defaults apply, except that an explicit --config must exist.
func loadConfig() (*config.Config, string, error) {
	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		if configPath != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config %s: %w", path, err)
	}
	return c, path, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("flatdrop", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/flatdrop/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit vault.root, then run 'flatdrop run --dry-run'.")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		if cfgFile != "" {
			fmt.Printf("# source: %s\n", cfgFile)
		} else {
			fmt.Println("# source: built-in defaults")
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, fingerprint and inbox status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		orch, store, err := newOrchestrator(db, nil)
		if err != nil {
			return err
		}
		defer store.Close()
		plan, err := orch.Plan()
		if err != nil {
			return err
		}

		fmt.Printf("Vault: %s\n\n", cfg.VaultRoot())
		fmt.Println("Inbox:")
		fmt.Printf("  Pending (new or changed): %d\n", len(plan.Fresh))
		fmt.Printf("  Already processed: %d\n", len(plan.Seen))
		fmt.Println("\nFingerprints:")
		fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
		fmt.Printf("  Recorded documents: %d\n", len(store.Keys()))
		fmt.Println("\nLedger:")
		fmt.Printf("  Runs: %d\n", stats.Runs)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last run: %s\n", *stats.LastRunAt)
		}
		fmt.Printf("  Fragments: %d from %d sources\n", stats.Fragments, stats.Sources)
		for _, d := range []string{"memoir-grade", "promising", "borderline", "trash"} {
			fmt.Printf("    %s: %d\n", d, stats.ByDisposition[d])
		}
		return nil
	},
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.LedgerPath())
}

// openStore opens the configured fingerprint backend. db may be nil for the
// json backend.
func openStore(db *database.DB) (fingerprint.Store, error) {
	return fingerprint.Open(cfg.Store.Backend, cfg.LogsDir(), db)
}
