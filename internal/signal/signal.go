// Package signal compiles the pattern catalog and counts signal matches in text.
package signal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/flatdrop/internal/config"
)

// Counts maps every catalog signal name to its match count.
type Counts map[string]int

// Features are derived from raw text alongside the catalog counts.
type Features struct {
	FirstPerson  int
	HasDialogue  bool
	ImageContent bool
}

// Extraction is the result of scanning one unit of text.
type Extraction struct {
	Counts   Counts
	Features Features
	Words    int
}

// Value returns a signal count or numeric feature by name.
func (e Extraction) Value(key string) float64 {
	if key == config.FeatureFirstPerson {
		return float64(e.Features.FirstPerson)
	}
	return float64(e.Counts[key])
}

// Flag returns a boolean feature by name.
func (e Extraction) Flag(name string) bool {
	switch name {
	case config.FlagHasDialogue:
		return e.Features.HasDialogue
	case config.FlagImageContent:
		return e.Features.ImageContent
	}
	return false
}

var dialogue = regexp.MustCompile(`"[^"]*"`)

type rule struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

// Catalog is the compiled, ordered set of pattern rules. It is read-only
// after construction and safe for concurrent use.
type Catalog struct {
	rules    []rule
	pronouns *regexp.Regexp
}

// NewCatalog compiles the configured patterns. Regexes and term lists are
// matched case-insensitively; the pronoun pattern honors CaseSensitive.
func NewCatalog(patterns []config.Pattern, pronouns config.Pronouns) (*Catalog, error) {
	c := &Catalog{rules: make([]rule, 0, len(patterns))}
	for _, p := range patterns {
		expr := p.Regex
		if len(p.Terms) > 0 {
			quoted := make([]string, len(p.Terms))
			for i, t := range p.Terms {
				quoted[i] = regexp.QuoteMeta(t)
			}
			expr = "(?:" + strings.Join(quoted, "|") + ")"
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", p.Name, err)
		}
		c.rules = append(c.rules, rule{name: p.Name, re: re, weight: p.Weight})
	}

	expr := pronouns.Regex
	if !pronouns.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pronoun pattern: %w", err)
	}
	c.pronouns = re
	return c, nil
}

// FromConfig compiles the catalog described by cfg.
func FromConfig(cfg *config.Config) (*Catalog, error) {
	return NewCatalog(cfg.Patterns, cfg.Pronouns)
}

// Names returns signal names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.name
	}
	return names
}

// Weights returns the catalog weight of every signal.
func (c *Catalog) Weights() map[string]float64 {
	w := make(map[string]float64, len(c.rules))
	for _, r := range c.rules {
		w[r.name] = r.weight
	}
	return w
}

// Count returns non-overlapping match counts for every rule, zeros included.
func (c *Catalog) Count(text string) Counts {
	counts := make(Counts, len(c.rules))
	for _, r := range c.rules {
		if text == "" {
			counts[r.name] = 0
			continue
		}
		counts[r.name] = len(r.re.FindAllStringIndex(text, -1))
	}
	return counts
}

// Extract scans text once per rule and computes the derived features.
func (c *Catalog) Extract(text string) Extraction {
	return Extraction{
		Counts: c.Count(text),
		Features: Features{
			FirstPerson:  len(c.pronouns.FindAllStringIndex(text, -1)),
			HasDialogue:  dialogue.MatchString(text),
			ImageContent: strings.Contains(strings.ToLower(text), "image"),
		},
		Words: WordCount(text),
	}
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
