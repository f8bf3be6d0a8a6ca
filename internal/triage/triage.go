// Package triage maps a quality score and purpose to a disposition and
// destination directory.
package triage

import (
	"fmt"
	"path"
	"sync/atomic"

	"github.com/TobiSchelling/flatdrop/internal/config"
)

// Disposition is the routing class of a fragment.
type Disposition string

const (
	MemoirGrade Disposition = "memoir-grade"
	Promising   Disposition = "promising"
	Borderline  Disposition = "borderline"
	Trash       Disposition = "trash"
)

// Dispositions lists every class from best to worst.
var Dispositions = []Disposition{MemoirGrade, Promising, Borderline, Trash}

const (
	StatusReady    = "ready-for-refinement"
	StatusDecision = "needs-human-decision"
	StatusArchived = "archived"
)

// Decision is the routing outcome for one fragment.
type Decision struct {
	Disposition Disposition
	Status      string
	Priority    int
	// Dir is slash separated and relative to the vault root.
	Dir string
}

// Router holds the routing table behind an atomic pointer so it can be
// replaced while runs are in flight. Each Route call sees one table.
type Router struct {
	table atomic.Pointer[config.Routing]
}

func NewRouter(r config.Routing) (*Router, error) {
	rt := &Router{}
	if err := rt.Update(r); err != nil {
		return nil, err
	}
	return rt, nil
}

// Update validates r and swaps it in. An invalid table leaves the current
// one in place.
func (rt *Router) Update(r config.Routing) error {
	if err := r.Validate(); err != nil {
		return err
	}
	dirs := make(map[string]string, len(r.PurposeDirs))
	for k, v := range r.PurposeDirs {
		dirs[k] = v
	}
	r.PurposeDirs = dirs
	rt.table.Store(&r)
	return nil
}

// Table returns the active routing table.
func (rt *Router) Table() config.Routing {
	return *rt.table.Load()
}

// Route is total: every score lands in exactly one band.
func (rt *Router) Route(score float64, purpose string) Decision {
	t := rt.table.Load()
	switch {
	case score >= t.MemoirGrade:
		dir, ok := t.PurposeDirs[purpose]
		if !ok {
			dir = t.PurposeDirs[t.DefaultPurpose]
		}
		return Decision{Disposition: MemoirGrade, Status: StatusReady, Priority: 1, Dir: path.Clean(dir)}
	case score >= t.Promising:
		return Decision{Disposition: Promising, Status: StatusDecision, Priority: 2, Dir: path.Clean(t.PromisingDir)}
	case score >= t.Borderline:
		return Decision{Disposition: Borderline, Status: StatusDecision, Priority: 3, Dir: path.Clean(t.BorderlineDir)}
	default:
		return Decision{Disposition: Trash, Status: StatusArchived, Priority: 4, Dir: path.Clean(t.TrashDir)}
	}
}

// Summary counts fragments per disposition.
type Summary map[Disposition]int

// Add records one fragment.
func (s Summary) Add(d Disposition) {
	s[d]++
}

// Merge adds other into s.
func (s Summary) Merge(other Summary) {
	for k, v := range other {
		s[k] += v
	}
}

// Total returns the number of fragments counted.
func (s Summary) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// String renders counts in disposition order, e.g. "memoir-grade=1 trash=2".
func (s Summary) String() string {
	out := ""
	for _, d := range Dispositions {
		if s[d] == 0 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", d, s[d])
	}
	if out == "" {
		return "none"
	}
	return out
}
