package coords

import (
	"slices"
	"testing"

	"github.com/TobiSchelling/flatdrop/internal/config"
	"github.com/TobiSchelling/flatdrop/internal/signal"
)

func extraction(counts signal.Counts, f signal.Features) signal.Extraction {
	return signal.Extraction{Counts: counts, Features: f}
}

func TestDefaultsWhenNothingMatches(t *testing.T) {
	a := New(config.Default().Coordinates)
	got := a.Assign(extraction(signal.Counts{}, signal.Features{}))

	want := Coordinate{Structure: "archetype", Transmission: "text", Purpose: "tell-story", Terrain: "obvious"}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if got.Key() != "archetype:text:tell-story:obvious" {
		t.Errorf("unexpected key %q", got.Key())
	}
}

func TestFirstMatchingRuleWins(t *testing.T) {
	a := New(config.Default().Coordinates)

	// Both shadowcast (memoir>2) and protocol (recovery>2) match; shadowcast is first.
	got := a.Assign(extraction(signal.Counts{"memoir_markers": 3, "recovery_markers": 5}, signal.Features{}))
	if got.Structure != "shadowcast" {
		t.Errorf("expected shadowcast, got %q", got.Structure)
	}

	got = a.Assign(extraction(signal.Counts{"memoir_markers": 2, "recovery_markers": 5}, signal.Features{}))
	if got.Structure != "protocol" {
		t.Errorf("threshold must be strictly exceeded; expected protocol, got %q", got.Structure)
	}
}

func TestRuleOrderIsContract(t *testing.T) {
	ax := config.Axis{
		Default: "obvious",
		Rules: []config.Rule{
			{Value: "complicated", When: map[string]float64{"technical_markers": 1}},
			{Value: "chaotic", When: map[string]float64{"technical_markers": 1}},
		},
	}
	e := extraction(signal.Counts{"technical_markers": 5}, signal.Features{})
	if got := pick(ax, e); got != "complicated" {
		t.Errorf("expected complicated, got %q", got)
	}

	slices.Reverse(ax.Rules)
	if got := pick(ax, e); got != "chaotic" {
		t.Errorf("expected chaotic after reversing rule order, got %q", got)
	}
}

func TestAllThresholdsRequired(t *testing.T) {
	a := New(config.Default().Coordinates)

	// narrative needs fp>20 and memoir>1.
	got := a.Assign(extraction(signal.Counts{"memoir_markers": 2}, signal.Features{FirstPerson: 20}))
	if got.Transmission == "narrative" {
		t.Error("narrative should not match with fp=20")
	}
	got = a.Assign(extraction(signal.Counts{"memoir_markers": 2}, signal.Features{FirstPerson: 21}))
	if got.Transmission != "narrative" {
		t.Errorf("expected narrative, got %q", got.Transmission)
	}
}

func TestFlagsRequired(t *testing.T) {
	a := New(config.Default().Coordinates)

	noImage := a.Assign(extraction(signal.Counts{"creative_markers": 3}, signal.Features{}))
	if noImage.Transmission != "text" {
		t.Errorf("expected text without image content, got %q", noImage.Transmission)
	}
	image := a.Assign(extraction(signal.Counts{"creative_markers": 3}, signal.Features{ImageContent: true}))
	if image.Transmission != "image" {
		t.Errorf("expected image, got %q", image.Transmission)
	}
	invocation := a.Assign(extraction(signal.Counts{"recovery_markers": 3}, signal.Features{HasDialogue: true}))
	if invocation.Transmission != "invocation" {
		t.Errorf("expected invocation, got %q", invocation.Transmission)
	}
}

func TestPurposeAndTerrain(t *testing.T) {
	a := New(config.Default().Coordinates)

	tests := []struct {
		name    string
		counts  signal.Counts
		fp      int
		purpose string
		terrain string
	}{
		{"recovery", signal.Counts{"recovery_markers": 2}, 0, "help-addict", "obvious"},
		{"survival", signal.Counts{"job_markers": 2, "medical_markers": 2}, 0, "prevent-death-poverty", "obvious"},
		{"amends", signal.Counts{"job_markers": 3}, 0, "financial-amends", "obvious"},
		{"world", signal.Counts{"creative_markers": 3}, 0, "help-world", "obvious"},
		{"chaotic", signal.Counts{"emotional_markers": 6, "technical_markers": 9}, 0, "tell-story", "chaotic"},
		{"complicated", signal.Counts{"technical_markers": 6}, 0, "tell-story", "complicated"},
		{"complex", signal.Counts{"memoir_markers": 3}, 25, "tell-story", "complex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assign(extraction(tt.counts, signal.Features{FirstPerson: tt.fp}))
			if got.Purpose != tt.purpose {
				t.Errorf("expected purpose %q, got %q", tt.purpose, got.Purpose)
			}
			if got.Terrain != tt.terrain {
				t.Errorf("expected terrain %q, got %q", tt.terrain, got.Terrain)
			}
		})
	}
}

func TestTagsAndParseKey(t *testing.T) {
	c := Coordinate{Structure: "protocol", Transmission: "invocation", Purpose: "help-addict", Terrain: "chaotic"}
	want := []string{"x-structure/protocol", "y-transmission/invocation", "z-purpose/help-addict", "w-terrain/chaotic"}
	if !slices.Equal(c.Tags(), want) {
		t.Errorf("expected %v, got %v", want, c.Tags())
	}

	back, ok := ParseKey(c.Key())
	if !ok || back != c {
		t.Errorf("expected round trip of %q, got %+v", c.Key(), back)
	}
	if _, ok := ParseKey("a:b"); ok {
		t.Error("expected short key to be rejected")
	}
}
