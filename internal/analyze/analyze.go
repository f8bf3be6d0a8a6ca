// Package analyze runs signal extraction, scoring, theme and coordinate
// assignment over one unit of text.
package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/coords"
	"github.com/TobiSchelling/flatdrop/internal/score"
	"github.com/TobiSchelling/flatdrop/internal/signal"
)

// Analysis is the full classification of one unit of text. Counts are
// shared with the memo and must be treated as read-only.
type Analysis struct {
	Signals    signal.Extraction
	Score      float64
	Breakdown  score.Breakdown
	Theme      string
	Coordinate coords.Coordinate
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	catalog  *signal.Catalog
	scorer   *score.Scorer
	themer   *score.Themer
	assigner *coords.Assigner
	memo     *gocache.Cache
}

// New builds an analyzer from cfg. A zero cache TTL disables memoization.
func New(cfg *config.Config) (*Analyzer, error) {
	cat, err := signal.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}
	a := &Analyzer{
		catalog:  cat,
		scorer:   score.NewScorer(cfg.Quality, cat.Weights()),
		themer:   score.NewThemer(cfg.Themes),
		assigner: coords.New(cfg.Coordinates),
	}
	if cfg.Cache.TTL > 0 {
		a.memo = gocache.New(cfg.Cache.TTL, cfg.Cache.Cleanup)
	}
	return a, nil
}

// Catalog returns the compiled pattern catalog.
func (a *Analyzer) Catalog() *signal.Catalog {
	return a.catalog
}

// Analyze classifies text. Identical text yields an identical Analysis.
func (a *Analyzer) Analyze(text string) Analysis {
	var key string
	if a.memo != nil {
		key = contentKey(text)
		if v, ok := a.memo.Get(key); ok {
			return v.(Analysis)
		}
	}

	ext := a.catalog.Extract(text)
	b := a.scorer.Explain(ext)
	res := Analysis{
		Signals:    ext,
		Score:      b.Total,
		Breakdown:  b,
		Theme:      a.themer.Theme(ext.Counts),
		Coordinate: a.assigner.Assign(ext),
	}

	if a.memo != nil {
		a.memo.SetDefault(key, res)
	}
	return res
}

// MemoSize reports how many analyses are cached.
func (a *Analyzer) MemoSize() int {
	if a.memo == nil {
		return 0
	}
	return a.memo.ItemCount()
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
