package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Derived features usable in coordinate rules alongside signal names.
const (
	FeatureFirstPerson = "first_person_pronouns"
	FlagHasDialogue    = "has_dialogue"
	FlagImageContent   = "image_content"
)

// ThemeUnclear is reported when no theme scores above zero.
const ThemeUnclear = "unclear"

const (
	axisStructure    = "structure"
	axisTransmission = "transmission"
	axisPurpose      = "purpose"
	axisTerrain      = "terrain"
)

// Axis vocabularies. Coordinate values outside these sets are rejected.
var (
	StructureValues    = []string{"archetype", "protocol", "shadowcast", "expansion", "summoning"}
	TransmissionValues = []string{"narrative", "text", "image", "tarot", "invocation"}
	PurposeValues      = []string{"tell-story", "help-addict", "prevent-death-poverty", "financial-amends", "help-world"}
	TerrainValues      = []string{"obvious", "complicated", "complex", "chaotic", "confused"}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references. The returned error
// wraps ErrInvalid and lists every problem found.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fieldTag(fe), fe.Value()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	problems = append(problems, c.semanticProblems()...)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(problems, "\n  "))
}

func fieldTag(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

func (c *Config) semanticProblems() []string {
	var problems []string
	signals := make(map[string]bool, len(c.Patterns))

	for i, p := range c.Patterns {
		if signals[p.Name] {
			problems = append(problems, fmt.Sprintf("patterns[%d]: duplicate name %q", i, p.Name))
		}
		signals[p.Name] = true
		if p.Regex != "" {
			if _, err := regexp.Compile("(?i)" + p.Regex); err != nil {
				problems = append(problems, fmt.Sprintf("patterns[%d] %s: %v", i, p.Name, err))
			}
		}
	}
	if _, err := regexp.Compile(c.Pronouns.Regex); err != nil {
		problems = append(problems, fmt.Sprintf("pronouns.regex: %v", err))
	}

	for name := range c.Quality.PatternWeights {
		if !signals[name] {
			problems = append(problems, fmt.Sprintf("quality.pattern_weights: unknown signal %q", name))
		}
	}
	if pen := c.Quality.Penalty; pen.Signal != "" {
		for _, name := range append([]string{pen.Signal}, pen.RequireZero...) {
			if !signals[name] {
				problems = append(problems, fmt.Sprintf("quality.technical_penalty: unknown signal %q", name))
			}
		}
	}

	for i, th := range c.Themes {
		if th.Name == ThemeUnclear {
			problems = append(problems, fmt.Sprintf("themes[%d]: %q is reserved", i, ThemeUnclear))
		}
		for name := range th.Weights {
			if !signals[name] {
				problems = append(problems, fmt.Sprintf("themes[%d] %s: unknown signal %q", i, th.Name, name))
			}
		}
	}

	problems = append(problems, checkAxis(axisStructure, c.Coordinates.Structure, StructureValues, signals)...)
	problems = append(problems, checkAxis(axisTransmission, c.Coordinates.Transmission, TransmissionValues, signals)...)
	problems = append(problems, checkAxis(axisPurpose, c.Coordinates.Purpose, PurposeValues, signals)...)
	problems = append(problems, checkAxis(axisTerrain, c.Coordinates.Terrain, TerrainValues, signals)...)

	for i, expr := range c.Cleaning.ArtifactPatterns {
		if _, err := regexp.Compile("(?i)" + expr); err != nil {
			problems = append(problems, fmt.Sprintf("cleaning.artifact_patterns[%d]: %v", i, err))
		}
	}

	for i, tm := range c.Chunking.TopicMarkers {
		if _, err := regexp.Compile("(?i)" + tm.Regex); err != nil {
			problems = append(problems, fmt.Sprintf("chunking.topic_markers[%d] %s: %v", i, tm.Name, err))
		}
	}
	if n := len(c.Chunking.TopicMarkers); c.Chunking.MinTopics > n {
		problems = append(problems, fmt.Sprintf("chunking.min_topics: %d exceeds the %d configured topic markers", c.Chunking.MinTopics, n))
	}

	problems = append(problems, c.Routing.problems()...)
	return problems
}

func checkAxis(name string, ax Axis, allowed []string, signals map[string]bool) []string {
	var problems []string
	if ax.Default != "" && !slices.Contains(allowed, ax.Default) {
		problems = append(problems, fmt.Sprintf("coordinates.%s.default: %q is not one of %v", name, ax.Default, allowed))
	}
	for i, r := range ax.Rules {
		where := fmt.Sprintf("coordinates.%s.rules[%d]", name, i)
		if !slices.Contains(allowed, r.Value) {
			problems = append(problems, fmt.Sprintf("%s: %q is not one of %v", where, r.Value, allowed))
		}
		for key := range r.When {
			if key != FeatureFirstPerson && !signals[key] {
				problems = append(problems, fmt.Sprintf("%s: unknown signal or feature %q", where, key))
			}
		}
		for _, flag := range r.Requires {
			if flag != FlagHasDialogue && flag != FlagImageContent {
				problems = append(problems, fmt.Sprintf("%s: unknown flag %q", where, flag))
			}
		}
	}
	return problems
}

// Validate checks the routing table on its own so it can be swapped at runtime.
func (r Routing) Validate() error {
	var problems []string
	if err := validate.Struct(r); err != nil {
		problems = append(problems, err.Error())
	}
	problems = append(problems, r.problems()...)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: routing:\n  %s", ErrInvalid, strings.Join(problems, "\n  "))
}

func (r Routing) problems() []string {
	var problems []string
	if !(r.MemoirGrade > r.Promising && r.Promising > r.Borderline) {
		problems = append(problems, fmt.Sprintf(
			"routing: thresholds must descend (memoir_grade %.1f > promising %.1f > borderline %.1f)",
			r.MemoirGrade, r.Promising, r.Borderline))
	}
	for purpose := range r.PurposeDirs {
		if !slices.Contains(PurposeValues, purpose) {
			problems = append(problems, fmt.Sprintf("routing.purpose_dirs: %q is not one of %v", purpose, PurposeValues))
		}
	}
	if _, ok := r.PurposeDirs[r.DefaultPurpose]; !ok {
		problems = append(problems, fmt.Sprintf("routing.default_purpose: %q has no directory in purpose_dirs", r.DefaultPurpose))
	}
	return problems
}
