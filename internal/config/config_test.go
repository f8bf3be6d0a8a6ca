package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Patterns) != 8 {
		t.Errorf("expected 8 patterns, got %d", len(cfg.Patterns))
	}
	if cfg.Patterns[0].Name != "memoir_markers" {
		t.Errorf("expected memoir_markers first, got %q", cfg.Patterns[0].Name)
	}
	if cfg.Ingest.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Store.Backend != "json" {
		t.Errorf("expected json store, got %q", cfg.Store.Backend)
	}
	if cfg.Routing.MemoirGrade != 51 || cfg.Routing.Promising != 34 || cfg.Routing.Borderline != 20 {
		t.Errorf("unexpected routing thresholds: %+v", cfg.Routing)
	}
	if got := cfg.Coordinates.Structure.Rules[0].Value; got != "shadowcast" {
		t.Errorf("expected shadowcast as first structure rule, got %q", got)
	}
	if cfg.Coordinates.Purpose.Default != "tell-story" {
		t.Errorf("expected purpose default tell-story, got %q", cfg.Coordinates.Purpose.Default)
	}
	if cfg.Cache.TTL.Minutes() != 10 {
		t.Errorf("expected 10m cache ttl, got %s", cfg.Cache.TTL)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
vault:
  root: /tmp/vault
ingest:
  batch_size: 3
routing:
  memoir_grade: 60
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Vault.Root != "/tmp/vault" {
		t.Errorf("expected vault root /tmp/vault, got %q", cfg.Vault.Root)
	}
	if cfg.Ingest.BatchSize != 3 {
		t.Errorf("expected batch size 3, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Routing.MemoirGrade != 60 {
		t.Errorf("expected memoir_grade 60, got %.1f", cfg.Routing.MemoirGrade)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Vault.Inbox != "_inload" {
		t.Errorf("expected default inbox, got %q", cfg.Vault.Inbox)
	}
	if cfg.Routing.PurposeDirs["help-addict"] != "recovery" {
		t.Errorf("expected default purpose dirs, got %v", cfg.Routing.PurposeDirs)
	}
	if cfg.InboxDir() != filepath.Join("/tmp/vault", "_inload") {
		t.Errorf("unexpected inbox dir %q", cfg.InboxDir())
	}
}

func TestParseReplacesSequences(t *testing.T) {
	data := []byte(`
patterns:
  - name: only
    terms: [alpha, beta]
    weight: 1
themes:
  - name: solo
    weights: {only: 1}
quality:
  technical_penalty: {signal: ""}
coordinates:
  structure: {default: archetype, rules: []}
  transmission: {default: text, rules: []}
  purpose: {default: tell-story, rules: []}
  terrain: {default: obvious, rules: []}
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Patterns) != 1 || cfg.Patterns[0].Name != "only" {
		t.Errorf("expected patterns to be replaced, got %+v", cfg.Patterns)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "descending thresholds",
			yaml: "routing:\n  promising: 60\n",
			want: "thresholds must descend",
		},
		{
			name: "unknown axis value",
			yaml: "coordinates:\n  terrain:\n    default: swampy\n",
			want: "coordinates.terrain.default",
		},
		{
			name: "unknown rule signal",
			yaml: "coordinates:\n  structure:\n    default: archetype\n    rules:\n      - value: protocol\n        when: {nonsense_markers: 1}\n",
			want: "unknown signal or feature",
		},
		{
			name: "unknown flag",
			yaml: "coordinates:\n  transmission:\n    default: text\n    rules:\n      - value: image\n        requires: [sparkles]\n",
			want: "unknown flag",
		},
		{
			name: "bad regex",
			yaml: "pronouns:\n  regex: '(unclosed'\n",
			want: "pronouns.regex",
		},
		{
			name: "zero batch size",
			yaml: "ingest:\n  batch_size: 0\n",
			want: "BatchSize",
		},
		{
			name: "unknown store",
			yaml: "store:\n  backend: redis\n",
			want: "Backend",
		},
		{
			name: "default purpose without dir",
			yaml: "routing:\n  default_purpose: help-world\n  purpose_dirs: {help-world: ''}\n",
			want: "PurposeDirs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	if err := cfg.Apply(Overrides{VaultRoot: "/srv/vault", Store: "sqlite", LogLevel: "DEBUG"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.Root != "/srv/vault" || cfg.Store.Backend != "sqlite" || cfg.Logging.Level != "debug" {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.Vault, cfg.Store, cfg.Logging)
	}

	if err := cfg.Apply(Overrides{Store: "mongo"}); err == nil {
		t.Error("expected invalid store override to fail")
	}
}

func TestRoutingValidate(t *testing.T) {
	r := Default().Routing
	if err := r.Validate(); err != nil {
		t.Fatalf("default routing should validate: %v", err)
	}
	r.Borderline = 40
	if err := r.Validate(); err == nil {
		t.Error("expected error for borderline above promising")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Themes) != 7 {
		t.Errorf("expected 7 themes, got %d", len(cfg.Themes))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("vault:\n  root: /tmp\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := ResolveConfigPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != path {
		t.Errorf("expected %q, got %q", path, resolved)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestVaultPathAbsolute(t *testing.T) {
	cfg := Default()
	cfg.Vault.Root = "/vault"
	if got := cfg.VaultPath("/elsewhere/logs"); got != "/elsewhere/logs" {
		t.Errorf("expected absolute path to pass through, got %q", got)
	}
	if got := cfg.VaultPath("_review/promising"); got != filepath.Join("/vault", "_review", "promising") {
		t.Errorf("unexpected relative resolution %q", got)
	}
}
