// Package chunk decides whether a document holds several unrelated topics
// and splits it into independently scored fragments.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/flatdrop/internal/analyze"
	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/signal"
)

// Method records how a fragment's score was produced.
type Method string

const (
	MethodSimple   Method = "simple"
	MethodSplit    Method = "split"
	MethodFallback Method = "fallback"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Fragment is a scored unit of text placed independently of its siblings.
type Fragment struct {
	Sequence int
	Total    int
	Text     string
	Method   Method
	analyze.Analysis
}

// Words returns the fragment word count.
func (f Fragment) Words() int {
	return f.Signals.Words
}

// Result is the chunking outcome for one document.
type Result struct {
	Complex   bool
	Topics    []string
	Fragments []Fragment
}

type marker struct {
	name string
	re   *regexp.Regexp
}

type Chunker struct {
	analyzer    *analyze.Analyzer
	markers     []marker
	minWords    int
	minTopics   int
	minFragment int
}

func New(c config.Chunking, a *analyze.Analyzer) (*Chunker, error) {
	ch := &Chunker{
		analyzer:    a,
		minWords:    c.ComplexMinWords,
		minTopics:   c.MinTopics,
		minFragment: c.MinFragmentWords,
	}
	for _, tm := range c.TopicMarkers {
		re, err := regexp.Compile("(?i)" + tm.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling topic marker %s: %w", tm.Name, err)
		}
		ch.markers = append(ch.markers, marker{name: tm.Name, re: re})
	}
	return ch, nil
}

// Topics returns the names of topic-marker categories present in text.
func (c *Chunker) Topics(text string) []string {
	var found []string
	for _, m := range c.markers {
		if m.re.MatchString(text) {
			found = append(found, m.name)
		}
	}
	return found
}

// IsComplex reports whether text is long enough and spans enough topics to split.
func (c *Chunker) IsComplex(text string) bool {
	return signal.WordCount(text) > c.minWords && len(c.Topics(text)) >= c.minTopics
}

// Chunk always returns at least one fragment.
func (c *Chunker) Chunk(text string) Result {
	topics := c.Topics(text)
	res := Result{
		Complex: signal.WordCount(text) > c.minWords && len(topics) >= c.minTopics,
		Topics:  topics,
	}

	if !res.Complex {
		res.Fragments = []Fragment{{Text: text, Method: MethodSimple, Analysis: c.analyzer.Analyze(text)}}
		number(res.Fragments)
		return res
	}

	for _, piece := range paragraphBreak.Split(text, -1) {
		piece = strings.TrimSpace(piece)
		if signal.WordCount(piece) < c.minFragment {
			continue
		}
		res.Fragments = append(res.Fragments, Fragment{Text: piece, Method: MethodSplit, Analysis: c.analyzer.Analyze(piece)})
	}

	if len(res.Fragments) == 0 {
		a := c.analyzer.Analyze(text)
		a.Score = 0
		a.Breakdown.Total = 0
		res.Fragments = []Fragment{{Text: text, Method: MethodFallback, Analysis: a}}
	}

	number(res.Fragments)
	return res
}

func number(frags []Fragment) {
	for i := range frags {
		frags[i].Sequence = i + 1
		frags[i].Total = len(frags)
	}
}
