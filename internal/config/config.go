package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Vault       Vault       `yaml:"vault"`
	Ingest      Ingest      `yaml:"ingest"`
	Store       Store       `yaml:"store"`
	Output      Output      `yaml:"output"`
	Logging     Logging     `yaml:"logging"`
	Cache       Cache       `yaml:"cache"`
	Patterns    []Pattern   `yaml:"patterns" validate:"min=1,dive"`
	Pronouns    Pronouns    `yaml:"pronouns"`
	Quality     Quality     `yaml:"quality"`
	Themes      []Theme     `yaml:"themes" validate:"min=1,dive"`
	Coordinates Coordinates `yaml:"coordinates"`
	Cleaning    Cleaning    `yaml:"cleaning"`
	Chunking    Chunking    `yaml:"chunking"`
	Routing     Routing     `yaml:"routing"`
	Grouping    Grouping    `yaml:"grouping"`
}

type Vault struct {
	Root    string `yaml:"root" validate:"required"`
	Inbox   string `yaml:"inbox" validate:"required"`
	Archive string `yaml:"archive" validate:"required"`
	Backups string `yaml:"backups" validate:"required"`
	Logs    string `yaml:"logs" validate:"required"`
}

type Ingest struct {
	Extensions []string `yaml:"extensions" validate:"min=1,dive,startswith=."`
	BatchSize  int      `yaml:"batch_size" validate:"gte=1"`
	Backup     bool     `yaml:"backup"`
}

type Store struct {
	Backend string `yaml:"backend" validate:"oneof=json sqlite"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

type Cache struct {
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Cleanup time.Duration `yaml:"cleanup" validate:"gte=0"`
}

// Pattern is one named signal. Exactly one of Regex or Terms is set.
type Pattern struct {
	Name        string   `yaml:"name" validate:"required"`
	Regex       string   `yaml:"regex" validate:"required_without=Terms,excluded_with=Terms"`
	Terms       []string `yaml:"terms" validate:"omitempty,dive,required"`
	Weight      float64  `yaml:"weight"`
	Description string   `yaml:"description"`
}

type Pronouns struct {
	Regex         string `yaml:"regex" validate:"required"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

type Quality struct {
	LengthBonuses []LengthBonus `yaml:"length_bonuses" validate:"dive"`
	// PatternWeights replaces the catalog weights when non-empty.
	PatternWeights map[string]float64 `yaml:"pattern_weights"`
	Penalty        Penalty            `yaml:"technical_penalty"`
	FirstPerson    FirstPerson        `yaml:"first_person"`
}

type LengthBonus struct {
	MinWords int     `yaml:"min_words" validate:"gte=0"`
	Bonus    float64 `yaml:"bonus"`
}

// Penalty is disabled when Signal is empty.
type Penalty struct {
	Signal      string   `yaml:"signal"`
	Threshold   int      `yaml:"threshold" validate:"gte=0"`
	RequireZero []string `yaml:"require_zero"`
	Amount      float64  `yaml:"amount" validate:"gte=0"`
}

type FirstPerson struct {
	High        int     `yaml:"high" validate:"gte=0"`
	HighBonus   float64 `yaml:"high_bonus"`
	Medium      int     `yaml:"medium" validate:"gte=0"`
	MediumBonus float64 `yaml:"medium_bonus"`
}

type Theme struct {
	Name    string             `yaml:"name" validate:"required"`
	Weights map[string]float64 `yaml:"weights" validate:"min=1"`
}

type Coordinates struct {
	Structure    Axis `yaml:"structure"`
	Transmission Axis `yaml:"transmission"`
	Purpose      Axis `yaml:"purpose"`
	Terrain      Axis `yaml:"terrain"`
}

type Axis struct {
	Default string `yaml:"default" validate:"required"`
	Rules   []Rule `yaml:"rules" validate:"dive"`
}

// Rule matches when every When threshold is strictly exceeded and every
// Requires flag is true.
type Rule struct {
	Value    string             `yaml:"value" validate:"required"`
	When     map[string]float64 `yaml:"when"`
	Requires []string           `yaml:"requires"`
}

type Cleaning struct {
	ArtifactPatterns []string `yaml:"artifact_patterns"`
}

type Chunking struct {
	ComplexMinWords  int           `yaml:"complex_min_words" validate:"gte=0"`
	MinTopics        int           `yaml:"min_topics" validate:"gte=1"`
	MinFragmentWords int           `yaml:"min_fragment_words" validate:"gte=0"`
	TopicMarkers     []TopicMarker `yaml:"topic_markers" validate:"min=1,dive"`
}

type TopicMarker struct {
	Name  string `yaml:"name" validate:"required"`
	Regex string `yaml:"regex" validate:"required"`
}

type Routing struct {
	MemoirGrade    float64           `yaml:"memoir_grade"`
	Promising      float64           `yaml:"promising"`
	Borderline     float64           `yaml:"borderline" validate:"gte=0"`
	DefaultPurpose string            `yaml:"default_purpose" validate:"required"`
	PurposeDirs    map[string]string `yaml:"purpose_dirs" validate:"min=1,dive,required"`
	PromisingDir   string            `yaml:"promising_dir" validate:"required"`
	BorderlineDir  string            `yaml:"borderline_dir" validate:"required"`
	TrashDir       string            `yaml:"trash_dir" validate:"required"`
}

type Grouping struct {
	DistanceThreshold float64 `yaml:"distance_threshold" validate:"gt=0"`
	MinSize           int     `yaml:"min_size" validate:"gte=1"`
}

// ConfigDir returns the XDG config directory for flatdrop.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "flatdrop")
}

// DataDir returns the XDG data directory for flatdrop.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "flatdrop")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/flatdrop/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'flatdrop init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse layers data over the embedded defaults and validates the result.
// Sequences in data replace the default sequence; mappings merge.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overrides carries values set outside the config file (flags, environment).
type Overrides struct {
	VaultRoot string
	Store     string
	LogLevel  string
}

// Apply copies non-empty overrides into c and re-validates.
func (c *Config) Apply(o Overrides) error {
	if o.VaultRoot != "" {
		c.Vault.Root = o.VaultRoot
	}
	if o.Store != "" {
		c.Store.Backend = o.Store
	}
	if o.LogLevel != "" {
		c.Logging.Level = strings.ToLower(o.LogLevel)
	}
	return c.Validate()
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return expandHome(c.Output.DataDir)
	}
	return DataDir()
}

// LedgerPath returns the sqlite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.GetDataDir(), "flatdrop.db")
}

// VaultRoot returns the vault root with ~ expanded.
func (c *Config) VaultRoot() string {
	return expandHome(c.Vault.Root)
}

// VaultPath resolves p against the vault root unless it is absolute.
func (c *Config) VaultPath(p string) string {
	p = expandHome(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.VaultRoot(), filepath.FromSlash(p))
}

func (c *Config) InboxDir() string   { return c.VaultPath(c.Vault.Inbox) }
func (c *Config) ArchiveDir() string { return c.VaultPath(c.Vault.Archive) }
func (c *Config) BackupsDir() string { return c.VaultPath(c.Vault.Backups) }
func (c *Config) LogsDir() string    { return c.VaultPath(c.Vault.Logs) }

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
