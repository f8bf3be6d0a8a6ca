// Package coords assigns the four-axis coordinate from ordered threshold rules.
package coords

import (
	"strings"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/signal"
)

// Coordinate holds exactly one value per axis.
type Coordinate struct {
	Structure    string `json:"structure" yaml:"structure"`
	Transmission string `json:"transmission" yaml:"transmission"`
	Purpose      string `json:"purpose" yaml:"purpose"`
	Terrain      string `json:"terrain" yaml:"terrain"`
}

// Key returns structure:transmission:purpose:terrain.
func (c Coordinate) Key() string {
	return strings.Join([]string{c.Structure, c.Transmission, c.Purpose, c.Terrain}, ":")
}

// Tags returns the hierarchical tag for each axis.
func (c Coordinate) Tags() []string {
	return []string{
		"x-structure/" + c.Structure,
		"y-transmission/" + c.Transmission,
		"z-purpose/" + c.Purpose,
		"w-terrain/" + c.Terrain,
	}
}

// ParseKey splits a composite key back into a Coordinate.
func ParseKey(key string) (Coordinate, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return Coordinate{}, false
	}
	return Coordinate{Structure: parts[0], Transmission: parts[1], Purpose: parts[2], Terrain: parts[3]}, true
}

// Assigner evaluates each axis independently.
type Assigner struct {
	axes [4]config.Axis
}

func New(c config.Coordinates) *Assigner {
	return &Assigner{axes: [4]config.Axis{c.Structure, c.Transmission, c.Purpose, c.Terrain}}
}

// Assign returns the coordinate for e. It never fails: an axis with no
// matching rule takes its default.
func (a *Assigner) Assign(e signal.Extraction) Coordinate {
	return Coordinate{
		Structure:    pick(a.axes[0], e),
		Transmission: pick(a.axes[1], e),
		Purpose:      pick(a.axes[2], e),
		Terrain:      pick(a.axes[3], e),
	}
}

func pick(ax config.Axis, e signal.Extraction) string {
	for _, r := range ax.Rules {
		if matches(r, e) {
			return r.Value
		}
	}
	return ax.Default
}

func matches(r config.Rule, e signal.Extraction) bool {
	for key, threshold := range r.When {
		if e.Value(key) <= threshold {
			return false
		}
	}
	for _, flag := range r.Requires {
		if !e.Flag(flag) {
			return false
		}
	}
	return true
}
