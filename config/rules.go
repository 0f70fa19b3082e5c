package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rules is the externalised table of magic identifiers: segment markers,
// overlay exemption sets and the contentId -> duration class table.
type Rules struct {
	Segments  SegmentRules  `yaml:"segments" json:"segments"`
	Overlay   OverlayRules  `yaml:"overlay" json:"overlay"`
	Durations DurationRules `yaml:"durations" json:"durations"`
}

type SegmentRules struct {
	Begin []string `yaml:"begin" json:"begin"` // contentIds opening a segment
	End   []string `yaml:"end" json:"end"`     // contentIds closing a segment
}

// ExemptionRules select program events that must not carry an overlay.
type ExemptionRules struct {
	ContentIDs      []string      `yaml:"content_ids" json:"contentIds"`
	TitleSubstrings []string      `yaml:"title_substrings" json:"titleSubstrings"`
	TitlePrefixes   []string      `yaml:"title_prefixes" json:"titlePrefixes"`
	NumericTitles   bool          `yaml:"numeric_titles" json:"numericTitles"` // first title word is a number
	MaxDuration     time.Duration `yaml:"max_duration" json:"maxDuration"`     // 0 disables
}

type OverlayRules struct {
	Exempt                ExemptionRules `yaml:"exempt" json:"exempt"`
	MultiOverlayAllowed   []string       `yaml:"multi_overlay_allowed" json:"multiOverlayAllowed"`
	MissingOverlayAllowed []string       `yaml:"missing_overlay_allowed" json:"missingOverlayAllowed"`
}

// DurationClass is an expected duration range for a group of content ids.
// A zero Min or Max leaves that side unbounded.
type DurationClass struct {
	Name       string        `yaml:"name" json:"name"`
	ContentIDs []string      `yaml:"content_ids" json:"contentIds"`
	Min        time.Duration `yaml:"min" json:"min"`
	Max        time.Duration `yaml:"max" json:"max"`
}

// CommercialRule expects every program whose title contains TitleContains
// to run exactly Duration.
type CommercialRule struct {
	TitleContains string        `yaml:"title_contains" json:"titleContains"`
	Duration      time.Duration `yaml:"duration" json:"duration"`
}

// BufferLoopRules flag buffer loops that were scheduled with a forbidden
// duration. A buffer loop is a program whose first title word is a number
// and whose title contains one of TitleSubstrings.
type BufferLoopRules struct {
	TitleSubstrings   []string      `yaml:"title_substrings" json:"titleSubstrings"`
	ForbiddenDuration time.Duration `yaml:"forbidden_duration" json:"forbiddenDuration"`
}

type DurationRules struct {
	TrailerMax  time.Duration    `yaml:"trailer_max" json:"trailerMax"` // 0 disables trailer classification
	Classes     []DurationClass  `yaml:"classes" json:"classes"`
	Commercials []CommercialRule `yaml:"commercials" json:"commercials"`
	BufferLoops BufferLoopRules  `yaml:"buffer_loops" json:"bufferLoops"`
}

// DefaultRules returns the embedded rules table.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads a YAML rules file. An empty path yields the embedded defaults.
func LoadRules(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rules, err := ParseRules(b)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and validates a YAML rules table. An absent
// trailer_max keeps the one minute default; an explicit 0s disables it.
func ParseRules(b []byte) (*Rules, error) {
	r := Rules{Durations: DurationRules{TrailerMax: time.Minute}}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the table for contradictions.
func (r *Rules) Validate() error {
	if len(r.Segments.Begin) == 0 || len(r.Segments.End) == 0 {
		return errors.New("segments: begin and end markers are required")
	}
	begins := make(map[string]struct{}, len(r.Segments.Begin))
	for _, id := range r.Segments.Begin {
		begins[id] = struct{}{}
	}
	for _, id := range r.Segments.End {
		if _, ok := begins[id]; ok {
			return fmt.Errorf("segments: %q is both a begin and an end marker", id)
		}
	}

	seen := make(map[string]string)
	for _, class := range r.Durations.Classes {
		if class.Min < 0 || class.Max < 0 {
			return fmt.Errorf("durations: class %q has a negative bound", class.Name)
		}
		if class.Max > 0 && class.Min > class.Max {
			return fmt.Errorf("durations: class %q has min %s above max %s", class.Name, class.Min, class.Max)
		}
		for _, id := range class.ContentIDs {
			if other, ok := seen[id]; ok {
				return fmt.Errorf("durations: content id %q listed in classes %q and %q", id, other, class.Name)
			}
			seen[id] = class.Name
		}
	}
	if r.Durations.TrailerMax < 0 {
		return errors.New("durations: trailer_max must not be negative")
	}

	for i, c := range r.Durations.Commercials {
		if strings.TrimSpace(c.TitleContains) == "" {
			return fmt.Errorf("durations: commercial #%d has no title_contains", i)
		}
		if c.Duration <= 0 {
			return fmt.Errorf("durations: commercial %q needs a positive duration", c.TitleContains)
		}
	}
	if len(r.Durations.BufferLoops.TitleSubstrings) > 0 && r.Durations.BufferLoops.ForbiddenDuration <= 0 {
		return errors.New("durations: buffer_loops needs a positive forbidden_duration")
	}
	return nil
}
