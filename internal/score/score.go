// Package score computes the quality score and dominant theme of a unit of text.
package score

import (
	"math"
	"sort"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/signal"
)

// Breakdown itemizes how a score was reached.
type Breakdown struct {
	LengthBonus  float64
	SignalSum    float64
	Penalty      float64
	PronounBonus float64
	Total        float64
}

// Scorer turns an extraction into a quality score.
type Scorer struct {
	lengths []config.LengthBonus
	names   []string
	weights map[string]float64
	penalty config.Penalty
	fp      config.FirstPerson
}

// NewScorer builds a scorer. When q.PatternWeights is empty the catalog
// weights are used.
func NewScorer(q config.Quality, catalogWeights map[string]float64) *Scorer {
	weights := catalogWeights
	if len(q.PatternWeights) > 0 {
		weights = q.PatternWeights
	}

	lengths := append([]config.LengthBonus(nil), q.LengthBonuses...)
	sort.SliceStable(lengths, func(i, j int) bool { return lengths[i].MinWords > lengths[j].MinWords })

	// Sorted so float sums are reproducible.
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Scorer{lengths: lengths, names: names, weights: weights, penalty: q.Penalty, fp: q.FirstPerson}
}

// Score returns the clamped score rounded to one decimal.
func (s *Scorer) Score(e signal.Extraction) float64 {
	return s.Explain(e).Total
}

// Explain returns the score with its components.
func (s *Scorer) Explain(e signal.Extraction) Breakdown {
	var b Breakdown

	for _, tier := range s.lengths {
		if e.Words > tier.MinWords {
			b.LengthBonus = tier.Bonus
			break
		}
	}

	for _, name := range s.names {
		b.SignalSum += float64(e.Counts[name]) * s.weights[name]
	}

	if s.penaltyApplies(e.Counts) {
		b.Penalty = s.penalty.Amount
	}

	switch n := e.Features.FirstPerson; {
	case n > s.fp.High:
		b.PronounBonus = s.fp.HighBonus
	case n > s.fp.Medium:
		b.PronounBonus = s.fp.MediumBonus
	}

	total := b.LengthBonus + b.SignalSum - b.Penalty + b.PronounBonus
	b.Total = Round(math.Max(0, total))
	return b
}

func (s *Scorer) penaltyApplies(counts signal.Counts) bool {
	if s.penalty.Signal == "" || counts[s.penalty.Signal] <= s.penalty.Threshold {
		return false
	}
	for _, name := range s.penalty.RequireZero {
		if counts[name] != 0 {
			return false
		}
	}
	return true
}

// Round rounds to one decimal place.
func Round(v float64) float64 {
	return math.Round(v*10) / 10
}

// Themer picks the dominant theme from signal counts.
type Themer struct {
	themes []theme
}

type theme struct {
	name    string
	signals []string
	weights []float64
}

func NewThemer(themes []config.Theme) *Themer {
	t := &Themer{themes: make([]theme, 0, len(themes))}
	for _, th := range themes {
		signals := make([]string, 0, len(th.Weights))
		for name := range th.Weights {
			signals = append(signals, name)
		}
		sort.Strings(signals)
		weights := make([]float64, len(signals))
		for i, name := range signals {
			weights[i] = th.Weights[name]
		}
		t.themes = append(t.themes, theme{name: th.Name, signals: signals, weights: weights})
	}
	return t
}

// Theme returns the highest scoring theme. Ties go to the earlier theme and
// config.ThemeUnclear is returned when nothing scores above zero.
func (t *Themer) Theme(counts signal.Counts) string {
	best, bestScore := config.ThemeUnclear, 0.0
	for _, th := range t.themes {
		var sum float64
		for i, name := range th.signals {
			sum += float64(counts[name]) * th.weights[i]
		}
		if sum > bestScore {
			best, bestScore = th.name, sum
		}
	}
	return best
}
